package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/calvinwijaya/twentyone/internal/game"
	"github.com/calvinwijaya/twentyone/internal/store"
)

// Handlers contains all the API handlers
type Handlers struct {
	store  store.Store
	hub    *Hub
	logger *log.Logger
}

// NewHandlers creates a new instance of Handlers. hub may be nil, in which
// case no WebSocket updates are sent.
func NewHandlers(store store.Store, hub *Hub, logger *log.Logger) *Handlers {
	return &Handlers{
		store:  store,
		hub:    hub,
		logger: logger.WithPrefix("api"),
	}
}

// RegisterRoutes registers all API routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Session endpoints
	r.HandleFunc("/api/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/api/sessions", h.ListSessions).Methods("GET")
	r.HandleFunc("/api/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{id}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/api/sessions/{id}/stats", h.GetStats).Methods("GET")
	r.HandleFunc("/api/sessions/{id}/reset", h.Reset).Methods("POST")

	// Round endpoints
	r.HandleFunc("/api/sessions/{id}/round", h.StartRound).Methods("POST")
	r.HandleFunc("/api/sessions/{id}/hit", h.Hit).Methods("POST")
	r.HandleFunc("/api/sessions/{id}/stand", h.Stand).Methods("POST")
	r.HandleFunc("/api/sessions/{id}/dealer", h.DealerPlay).Methods("POST")

	if h.hub != nil {
		r.HandleFunc("/ws", h.WebSocket).Methods("GET")
	}
}

// response helper function to send JSON responses
func (h *Handlers) response(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// errorResponse helper function to send JSON errors
func (h *Handlers) errorResponse(w http.ResponseWriter, status int, message string) {
	h.response(w, status, map[string]string{"error": message})
}

// session looks up the session named in the route, writing a 404 if it is gone
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	id := mux.Vars(r)["id"]

	session, err := h.store.GetSession(id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Session not found")
		} else {
			h.logger.Error("Failed to load session", "id", id, "error", err)
			h.errorResponse(w, http.StatusInternalServerError, "Failed to load session")
		}
		return nil, false
	}
	return session, true
}

// broadcast pushes a message to the session's WebSocket clients. Handlers
// call it from inside Session.Do so messages keep the order of the actions.
func (h *Handlers) broadcast(sessionID, msgType string, data interface{}) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastToSession(sessionID, Message{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
	})
}

// WebSocket subscribes a client to ?sessionId= updates
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		h.errorResponse(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if _, err := h.store.GetSession(id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Session not found")
		} else {
			h.logger.Error("Failed to load session", "id", id, "error", err)
			h.errorResponse(w, http.StatusInternalServerError, "Failed to load session")
		}
		return
	}

	h.hub.ServeSession(w, r, id)
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

// CreateSession starts a new session
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.CreateSession()
	if err != nil {
		h.logger.Error("Failed to create session", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.response(w, http.StatusCreated, map[string]interface{}{
		"id":   session.ID,
		"game": session.Snapshot(),
	})
}

// ListSessions returns a summary of every live session
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	list := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Snapshot()
		list = append(list, map[string]interface{}{
			"id":        s.ID,
			"state":     snap.State,
			"stats":     snap.Stats,
			"createdAt": s.CreatedAt,
			"updatedAt": s.UpdatedAt(),
		})
	}

	h.response(w, http.StatusOK, list)
}

// GetSession returns the current table state
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.response(w, http.StatusOK, session.Snapshot())
}

// DeleteSession ends a session
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.DeleteSession(id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			h.errorResponse(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to delete session", "id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	if h.hub != nil {
		h.hub.CloseSession(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStats returns the session counters
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.response(w, http.StatusOK, session.Snapshot().Stats)
}

// Reset zeroes the counters and returns the session to idle
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var snap game.Snapshot
	session.Do(func(e *game.Engine) {
		e.Reset()
		snap = e.Snapshot()
		h.broadcast(session.ID, MessageGameUpdate, snap)
	})

	h.response(w, http.StatusOK, snap)
}

// StartRound deals a new round
func (h *Handlers) StartRound(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var started bool
	var snap game.Snapshot
	session.Do(func(e *game.Engine) {
		started = e.StartRound()
		snap = e.Snapshot()
		if started {
			h.broadcast(session.ID, MessageGameUpdate, snap)
		}
	})

	if !started {
		h.errorResponse(w, http.StatusConflict, "Round already in progress")
		return
	}

	h.response(w, http.StatusOK, snap)
}

// Hit draws a card for the player
func (h *Handlers) Hit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var card game.Card
	var hit bool
	var snap game.Snapshot
	session.Do(func(e *game.Engine) {
		card, hit = e.PlayerHit()
		snap = e.Snapshot()
		if hit {
			h.broadcast(session.ID, MessageGameUpdate, snap)
		}
	})

	if !hit {
		h.errorResponse(w, http.StatusConflict, "Unable to hit")
		return
	}

	h.response(w, http.StatusOK, map[string]interface{}{
		"card": game.NewCardView(card),
		"game": snap,
	})
}

// Stand ends the player's turn and reveals the dealer's hidden card
func (h *Handlers) Stand(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var stood bool
	var snap game.Snapshot
	session.Do(func(e *game.Engine) {
		stood = e.PlayerStand()
		snap = e.Snapshot()
		if stood {
			h.broadcast(session.ID, MessageGameUpdate, snap)
		}
	})

	if !stood {
		h.errorResponse(w, http.StatusConflict, "Unable to stand")
		return
	}

	h.response(w, http.StatusOK, snap)
}

// DealerPlay runs the dealer's turn. WebSocket clients get one message per
// dealer card before the final state.
func (h *Handlers) DealerPlay(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var played bool
	var cards []game.CardView
	var snap game.Snapshot
	session.Do(func(e *game.Engine) {
		var drawn iter.Seq[game.Card]
		drawn, played = e.DealerPlay()
		if !played {
			return
		}

		cards = make([]game.CardView, 0)
		for card := range drawn {
			view := game.NewCardView(card)
			cards = append(cards, view)
			h.broadcast(session.ID, MessageDealerCard, view)
		}
		snap = e.Snapshot()
		h.broadcast(session.ID, MessageGameUpdate, snap)
	})

	if !played {
		h.errorResponse(w, http.StatusConflict, "Dealer cannot play now")
		return
	}

	h.logger.Debug("Dealer played", "session", session.ID, "draws", len(cards), "outcome", snap.Outcome)
	h.response(w, http.StatusOK, map[string]interface{}{
		"cards": cards,
		"game":  snap,
	})
}

package game

// CardView is the rendering form of a card
type CardView struct {
	Suit  Suit   `json:"suit"`
	Rank  Rank   `json:"rank"`
	Label string `json:"label"`
	Red   bool   `json:"red"`
	Value int    `json:"value"`
}

// HandView is the rendering form of a hand. Hidden cards are never included,
// only flagged.
type HandView struct {
	Cards         []CardView `json:"cards"`
	Value         int        `json:"value"`
	HiddenPending bool       `json:"hiddenPending"`
}

// Snapshot is everything a front end needs to draw the table
type Snapshot struct {
	State         State    `json:"state"`
	Outcome       Outcome  `json:"outcome"`
	Message       string   `json:"message"`
	Player        HandView `json:"player"`
	Dealer        HandView `json:"dealer"`
	DeckRemaining int      `json:"deckRemaining"`
	Stats         Stats    `json:"stats"`
}

// NewCardView converts a card for rendering
func NewCardView(c Card) CardView {
	return CardView{
		Suit:  c.Suit,
		Rank:  c.Rank,
		Label: c.Label(),
		Red:   c.IsRed(),
		Value: c.Value(),
	}
}

// NewCardViews converts a slice of cards for rendering
func NewCardViews(cards []Card) []CardView {
	views := make([]CardView, len(cards))
	for i, c := range cards {
		views[i] = NewCardView(c)
	}
	return views
}

func newHandView(h *Hand) HandView {
	return HandView{
		Cards:         NewCardViews(h.Cards()),
		Value:         h.Value(),
		HiddenPending: h.HasHidden(),
	}
}

// Snapshot captures the current table state
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:         e.state,
		Outcome:       e.outcome,
		Message:       e.outcome.Message(),
		Player:        newHandView(e.player),
		Dealer:        newHandView(e.dealer),
		DeckRemaining: e.deck.Remaining(),
		Stats:         e.stats,
	}
}

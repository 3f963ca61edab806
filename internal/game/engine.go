package game

import (
	"io"
	"iter"

	"github.com/charmbracelet/log"
)

type State string

const (
	StateIdle       State = "idle"        // No round dealt yet
	StatePlayerTurn State = "player_turn" // Player may hit or stand
	StateDealerTurn State = "dealer_turn" // Dealer card revealed, dealer to play
	StateFinished   State = "finished"    // Round resolved
)

// Outcome is always from the player's point of view.
type Outcome string

const (
	OutcomeNone Outcome = "none"
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomePush Outcome = "push"
)

// Message returns a human readable description of the outcome
func (o Outcome) Message() string {
	switch o {
	case OutcomeWin:
		return "Player wins!"
	case OutcomeLose:
		return "Dealer wins!"
	case OutcomePush:
		return "Push (tie)."
	default:
		return "Game in progress"
	}
}

const (
	// reshuffleThreshold forces a fresh deck at round start when fewer cards remain.
	reshuffleThreshold = 20
	dealerStandsOn     = 17
)

// Engine runs single-deck rounds of 21 between one player and the dealer.
//
// Every action checks the current state first and quietly does nothing when it
// is not allowed; the boolean results only tell the caller whether the action
// was taken. An Engine is not safe for concurrent use.
type Engine struct {
	deck    *Deck
	player  *Hand
	dealer  *Hand
	state   State
	outcome Outcome
	stats   Stats
	logger  *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithSeed makes every shuffle of the engine's deck reproducible
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.deck = NewSeededDeck(seed)
	}
}

// WithLogger sets the logger used for transition tracing
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.WithPrefix("engine")
	}
}

// NewEngine creates an idle engine with a full shuffled deck
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		player:  NewHand(),
		dealer:  NewDealerHand(),
		state:   StateIdle,
		outcome: OutcomeNone,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.deck == nil {
		e.deck = NewDeck()
	}
	if e.logger == nil {
		e.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return e
}

// StartRound clears both hands and deals player, dealer, player, dealer
// face down. A natural blackjack for the player ends the round at once.
// Rounds can only be started from idle or after the previous one finished.
func (e *Engine) StartRound() bool {
	if e.state != StateIdle && e.state != StateFinished {
		return false
	}

	e.player.Clear()
	e.dealer.Clear()
	e.outcome = OutcomeNone

	if e.deck.Remaining() < reshuffleThreshold {
		e.logger.Debug("Reshuffling deck", "remaining", e.deck.Remaining())
		e.deck.Reset()
	}

	e.player.AddCard(e.deck.Draw(), true)
	e.dealer.AddCard(e.deck.Draw(), true)
	e.player.AddCard(e.deck.Draw(), true)
	e.dealer.AddCard(e.deck.Draw(), false)

	e.logger.Debug("Dealt round", "player", e.player.Cards(), "dealerUp", e.dealer.Cards())

	if e.player.HasNaturalBlackjack() {
		e.dealer.RevealHidden()
		if e.dealer.HasNaturalBlackjack() {
			e.finish(OutcomePush)
		} else {
			e.finish(OutcomeWin)
		}
		return true
	}

	e.state = StatePlayerTurn
	return true
}

// PlayerHit draws a card for the player and returns it. Going bust ends the
// round as a loss.
func (e *Engine) PlayerHit() (Card, bool) {
	if e.state != StatePlayerTurn {
		return Card{}, false
	}

	card := e.deck.Draw()
	e.player.AddCard(card, true)
	e.logger.Debug("Player hit", "card", card, "value", e.player.Value())

	if e.player.IsBust() {
		e.dealer.RevealHidden()
		e.finish(OutcomeLose)
	}

	return card, true
}

// PlayerStand ends the player's turn and turns the dealer's hidden card over.
// The dealer does not play until DealerPlay is called.
func (e *Engine) PlayerStand() bool {
	if e.state != StatePlayerTurn {
		return false
	}

	e.dealer.RevealHidden()
	e.state = StateDealerTurn
	e.logger.Debug("Player stood", "value", e.player.Value(), "dealer", e.dealer.Value())
	return true
}

// DealerPlay draws for the dealer until the hand is worth 17 or more, then
// settles the round. The round is fully resolved before DealerPlay returns;
// the returned sequence replays the drawn cards in order for staged display
// and can only be ranged over once.
func (e *Engine) DealerPlay() (iter.Seq[Card], bool) {
	if e.state != StateDealerTurn {
		return emptySeq, false
	}

	var drawn []Card
	for e.dealer.Value() < dealerStandsOn {
		card := e.deck.Draw()
		e.dealer.AddCard(card, true)
		drawn = append(drawn, card)
		e.logger.Debug("Dealer hit", "card", card, "value", e.dealer.Value())
	}

	e.finish(e.judge())

	return onceSeq(drawn), true
}

// DetermineWinner recomputes the outcome of a finished round and returns it.
// Before the round is finished it leaves the outcome untouched. Counters are
// never changed here.
func (e *Engine) DetermineWinner() Outcome {
	if e.state != StateFinished {
		return e.outcome
	}
	e.outcome = e.judge()
	return e.outcome
}

// judge ranks the two hands: player bust, then dealer bust, then the higher value.
func (e *Engine) judge() Outcome {
	playerValue := e.player.Value()
	dealerValue := e.dealer.Value()

	switch {
	case e.player.IsBust():
		return OutcomeLose
	case e.dealer.IsBust():
		return OutcomeWin
	case playerValue > dealerValue:
		return OutcomeWin
	case dealerValue > playerValue:
		return OutcomeLose
	default:
		return OutcomePush
	}
}

// finish is the single place a round is closed and counted.
func (e *Engine) finish(outcome Outcome) {
	e.state = StateFinished
	e.outcome = outcome
	e.stats.Record(outcome)
	e.logger.Debug("Round finished",
		"outcome", outcome,
		"player", e.player.Value(),
		"dealer", e.dealer.Value(),
		"rounds", e.stats.RoundsPlayed,
	)
}

// Reset zeroes the session counters and returns the engine to idle with a
// fresh deck
func (e *Engine) Reset() {
	e.stats = Stats{}
	e.deck.Reset()
	e.player.Clear()
	e.dealer.Clear()
	e.state = StateIdle
	e.outcome = OutcomeNone
	e.logger.Debug("Session reset")
}

// State returns the current round state
func (e *Engine) State() State {
	return e.state
}

// Outcome returns the current round outcome
func (e *Engine) Outcome() Outcome {
	return e.outcome
}

// Stats returns a copy of the session counters
func (e *Engine) Stats() Stats {
	return e.stats
}

// PlayerCards returns the player's cards
func (e *Engine) PlayerCards() []Card {
	return e.player.Cards()
}

// PlayerValue returns the player's hand value
func (e *Engine) PlayerValue() int {
	return e.player.Value()
}

// DealerCards returns the dealer's visible cards
func (e *Engine) DealerCards() []Card {
	return e.dealer.Cards()
}

// DealerValue returns the value of the dealer's visible cards
func (e *Engine) DealerValue() int {
	return e.dealer.Value()
}

// DealerHasHidden reports whether the dealer's face-down card is still hidden
func (e *Engine) DealerHasHidden() bool {
	return e.dealer.HasHidden()
}

// DeckRemaining returns the number of undealt cards
func (e *Engine) DeckRemaining() int {
	return e.deck.Remaining()
}

func emptySeq(func(Card) bool) {}

func onceSeq(cards []Card) iter.Seq[Card] {
	used := false
	return func(yield func(Card) bool) {
		if used {
			return
		}
		used = true
		for _, card := range cards {
			if !yield(card) {
				return
			}
		}
	}
}

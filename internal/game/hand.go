package game

const (
	blackjackTotal = 21
	aceSoftening   = 10
)

// Hand holds one party's cards. Only a dealer hand can hold a hidden card;
// it sits outside the visible cards until RevealHidden moves it across.
type Hand struct {
	cards  []Card
	hidden *Card
	dealer bool
}

// NewHand creates an empty player hand
func NewHand() *Hand {
	return &Hand{}
}

// NewDealerHand creates an empty hand that accepts a face-down card
func NewDealerHand() *Hand {
	return &Hand{dealer: true}
}

// IsDealer reports whether the hand belongs to the dealer
func (h *Hand) IsDealer() bool {
	return h.dealer
}

// AddCard adds a card to the hand. A face-down card goes to the hidden slot
// on a dealer hand, replacing anything already there. On any other hand it is
// added face up.
func (h *Hand) AddCard(card Card, faceUp bool) {
	if !faceUp && h.dealer {
		h.hidden = &card
		return
	}
	h.cards = append(h.cards, card)
}

// RevealHidden moves the hidden card, if any, onto the end of the visible cards
func (h *Hand) RevealHidden() {
	if h.hidden == nil {
		return
	}
	h.cards = append(h.cards, *h.hidden)
	h.hidden = nil
}

// HasHidden reports whether a face-down card is pending reveal
func (h *Hand) HasHidden() bool {
	return h.hidden != nil
}

// Cards returns a copy of the visible cards
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// CardCount returns the number of cards held, hidden card included
func (h *Hand) CardCount() int {
	if h.hidden != nil {
		return len(h.cards) + 1
	}
	return len(h.cards)
}

// Value returns the best total of the visible cards. Aces start at 11 and are
// softened to 1 one at a time while the total is over 21.
func (h *Hand) Value() int {
	total := 0
	aces := 0

	for _, card := range h.cards {
		if card.IsAce() {
			aces++
		}
		total += card.Value()
	}

	for total > blackjackTotal && aces > 0 {
		total -= aceSoftening
		aces--
	}

	return total
}

// IsBust returns true if the hand value is over 21
func (h *Hand) IsBust() bool {
	return h.Value() > blackjackTotal
}

// HasNaturalBlackjack returns true for exactly two visible cards worth 21
// with an Ace among them
func (h *Hand) HasNaturalBlackjack() bool {
	if len(h.cards) != 2 || h.Value() != blackjackTotal {
		return false
	}
	return h.cards[0].IsAce() || h.cards[1].IsAce()
}

// Clear empties the visible cards and the hidden slot
func (h *Hand) Clear() {
	h.cards = h.cards[:0]
	h.hidden = nil
}

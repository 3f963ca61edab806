package game

import (
	"math/rand/v2"
)

const deckSize = 52

// Deck is a single 52-card deck. Cards are drawn from the end of the slice.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck creates a full, shuffled deck backed by a randomly seeded generator
func NewDeck() *Deck {
	return newDeck(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewSeededDeck creates a full, shuffled deck whose shuffles are reproducible
// for a given seed.
func NewSeededDeck(seed int64) *Deck {
	return newDeck(seededRand(seed))
}

func newDeck(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, deckSize),
		rng:   rng,
	}
	d.Reset()
	return d
}

// Reset rebuilds all 52 cards in canonical order (suits outer, ranks inner)
// and shuffles them
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	for _, suit := range Suits {
		for _, rank := range Ranks {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	d.Shuffle()
}

// Shuffle randomizes the order of the remaining cards
func (d *Deck) Shuffle() {
	// Fisher-Yates
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the last card. An empty deck is reset first, so
// Draw always yields a card.
func (d *Deck) Draw() Card {
	if len(d.cards) == 0 {
		d.Reset()
	}

	last := len(d.cards) - 1
	card := d.cards[last]
	d.cards = d.cards[:last]
	return card
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards)
}

const goldenRatio64 = 0x9e3779b97f4a7c15

func seededRand(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

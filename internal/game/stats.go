package game

import "encoding/json"

// Stats are the session counters kept across rounds. They are only updated
// by Record, once per finished round.
type Stats struct {
	RoundsPlayed int `json:"roundsPlayed"`
	PlayerWins   int `json:"playerWins"`
	DealerWins   int `json:"dealerWins"`
}

// Record tallies one finished round
func (s *Stats) Record(outcome Outcome) {
	switch outcome {
	case OutcomeWin:
		s.PlayerWins++
	case OutcomeLose:
		s.DealerWins++
	case OutcomePush:
		// tie
	default:
		return
	}
	s.RoundsPlayed++
}

// Ties returns the number of pushed rounds
func (s Stats) Ties() int {
	return s.RoundsPlayed - s.PlayerWins - s.DealerWins
}

// MarshalJSON includes the derived tie count
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RoundsPlayed int `json:"roundsPlayed"`
		PlayerWins   int `json:"playerWins"`
		DealerWins   int `json:"dealerWins"`
		Ties         int `json:"ties"`
	}{
		RoundsPlayed: s.RoundsPlayed,
		PlayerWins:   s.PlayerWins,
		DealerWins:   s.DealerWins,
		Ties:         s.Ties(),
	})
}

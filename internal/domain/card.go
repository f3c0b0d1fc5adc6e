package domain

// Answers holds the aggregate answer counters for a card. The counters only
// grow during normal study; administrative edits may overwrite them.
type Answers struct {
	Correct   int `json:"correct"`
	Partial   int `json:"partial"`
	Incorrect int `json:"incorrect"`
}

// Card is a single front/back study unit with its review statistics.
//
// LastAsked and NextReview are ISO-8601 strings; the empty string means
// "never". NextReview is a passthrough field: nothing in the engine computes
// it, it is stored and returned as-is for a future scheduler.
type Card struct {
	ID         int64    `json:"id"`
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	Tags       []string `json:"tags"`
	LastAsked  string   `json:"last_asked"`
	NextReview string   `json:"next_review"`
	Answers    Answers  `json:"answers"`
	Retired    bool     `json:"retired"`
	Streak     int      `json:"streak"`
	Images     []string `json:"images"`

	// Version is the optimistic-concurrency token maintained by the store.
	// It is not part of the wire format.
	Version int64 `json:"-"`
}

// HasAllTags reports whether the card carries every tag in want.
// An empty want matches every card.
func (c Card) HasAllTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range c.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// NewCard is the creation payload for a card. The store assigns the ID and
// every other field starts at its zero value (no answers, streak 0, active).
type NewCard struct {
	Front string   `json:"front" validate:"required"`
	Back  string   `json:"back" validate:"required"`
	Tags  []string `json:"tags" validate:"required"`
}

// Outcome is the result of a single recall attempt.
type Outcome int

const (
	// Correct bumps the correct counter and extends the streak.
	Correct Outcome = iota
	// Incorrect bumps the incorrect counter and resets the streak.
	Incorrect
	// Partial bumps the partial counter only. It is a manual/administrative
	// outcome and leaves streak and last_asked alone.
	Partial
)

// String returns the wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case Partial:
		return "partial"
	}
	return "unknown"
}

// ParseOutcome converts a wire name into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "correct":
		return Correct, nil
	case "incorrect":
		return Incorrect, nil
	case "partial":
		return Partial, nil
	}
	return 0, ErrValidation
}

package review

import (
	"fmt"
	"sync"
	"time"

	"github.com/conorfennell/persist/internal/domain"
	"github.com/conorfennell/persist/internal/storage"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SessionOptions configures a new study session.
type SessionOptions struct {
	// Tags filters to cards carrying every listed tag; empty means all cards.
	Tags []string
	// IncludeRetired keeps retired cards in the session.
	IncludeRetired bool
	// Order is the sequencing policy. The zero value is InOrder.
	Order Policy
}

// Session is one ordered traversal of a filtered card snapshot. The snapshot
// is taken when the session starts and does not change afterwards, even if
// the store does. Counters are scoped to this session only.
type Session struct {
	id      string
	engine  *Engine
	cards   []domain.Card
	started time.Time

	mu        sync.Mutex
	pos       int
	correct   int
	incorrect int
}

// Summary aggregates what happened during a session.
type Summary struct {
	Correct   int           `json:"correct"`
	Incorrect int           `json:"incorrect"`
	Total     int           `json:"total"`
	Done      bool          `json:"done"`
	Elapsed   time.Duration `json:"-"`
}

// StartSession snapshots the matching cards from the store and arranges them
// per the order policy. The result is always a permutation of the filtered
// set; a fresh session reshuffles under the Random policy.
func (e *Engine) StartSession(opts SessionOptions) (*Session, error) {
	if opts.Order == "" {
		opts.Order = InOrder
	}

	cards, err := e.store.List(storage.Filter{
		Tags:           opts.Tags,
		IncludeRetired: opts.IncludeRetired,
	})
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	return &Session{
		id:      id,
		engine:  e,
		cards:   Order(cards, opts.Order),
		started: e.now(),
	}, nil
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string {
	return s.id
}

// Cards returns a copy of the session's ordered snapshot.
func (s *Session) Cards() []domain.Card {
	out := make([]domain.Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Current returns the card the session is waiting on, or false when the
// sequence is exhausted.
func (s *Session) Current() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.cards) {
		return domain.Card{}, false
	}
	return s.cards[s.pos], true
}

// Answer records an outcome for the session's current card and advances to
// the next one. The card id must match the current card; answering out of
// order is rejected so a retried request after a failure stays safe and a
// stray duplicate cannot double-count. Only Correct and Incorrect drive a
// session. If persisting fails the session does not advance and the same
// answer may be retried.
func (s *Session) Answer(cardID int64, outcome domain.Outcome) (domain.Card, error) {
	if outcome != domain.Correct && outcome != domain.Incorrect {
		return domain.Card{}, fmt.Errorf("session outcome %q: %w", outcome, domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.cards) {
		return domain.Card{}, fmt.Errorf("session exhausted: %w", domain.ErrValidation)
	}
	if s.cards[s.pos].ID != cardID {
		return domain.Card{}, fmt.Errorf("card %d is not the current card: %w", cardID, domain.ErrValidation)
	}

	card, err := s.engine.RecordAnswer(cardID, outcome)
	if err != nil {
		return domain.Card{}, err
	}

	if outcome == domain.Correct {
		s.correct++
	} else {
		s.incorrect++
	}
	s.pos++
	return card, nil
}

// Done reports whether the ordered sequence is exhausted.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.cards)
}

// Remaining returns how many cards are left, including the current one.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards) - s.pos
}

// Summary reports the session counters and elapsed wall-clock time.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Correct:   s.correct,
		Incorrect: s.incorrect,
		Total:     len(s.cards),
		Done:      s.pos >= len(s.cards),
		Elapsed:   s.engine.now().Sub(s.started),
	}
}

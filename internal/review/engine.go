package review

import (
	"fmt"
	"sync"
	"time"

	"github.com/conorfennell/persist/internal/domain"
	"github.com/conorfennell/persist/internal/parser"
	"github.com/conorfennell/persist/internal/storage"
)

// Store is the persistence contract the engine depends on. *storage.DB is
// the production implementation; tests substitute an in-memory one.
type Store interface {
	List(f storage.Filter) ([]domain.Card, error)
	Get(id int64) (domain.Card, error)
	Upsert(card domain.Card) (domain.Card, error)
	BulkInsert(newCards []domain.NewCard) ([]domain.Card, error)
}

// Engine owns every card state transition: answer recording, retirement,
// content edits and session construction. Mutations for the same card id are
// serialized through a per-id mutex so overlapping requests cannot lose
// updates; mutations to different cards proceed concurrently.
type Engine struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		locks: map[int64]*sync.Mutex{},
	}
}

func (e *Engine) lockFor(id int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// mutate runs a read-modify-write for one card under its id lock. Either the
// whole transition commits through the store, or the card is left untouched.
func (e *Engine) mutate(id int64, fn func(*domain.Card)) (domain.Card, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	card, err := e.store.Get(id)
	if err != nil {
		return domain.Card{}, err
	}
	fn(&card)
	return e.store.Upsert(card)
}

// RecordAnswer applies one recall outcome to a card and persists it before
// returning. Correct bumps the correct counter, extends the streak and stamps
// last_asked; Incorrect bumps the incorrect counter, resets the streak and
// stamps last_asked; Partial only bumps the partial counter.
func (e *Engine) RecordAnswer(id int64, outcome domain.Outcome) (domain.Card, error) {
	switch outcome {
	case domain.Correct, domain.Incorrect, domain.Partial:
	default:
		return domain.Card{}, fmt.Errorf("outcome %d: %w", outcome, domain.ErrValidation)
	}

	return e.mutate(id, func(c *domain.Card) {
		applyOutcome(c, outcome, e.now())
	})
}

func applyOutcome(c *domain.Card, outcome domain.Outcome, now time.Time) {
	switch outcome {
	case domain.Correct:
		c.Answers.Correct++
		c.Streak++
		c.LastAsked = now.UTC().Format(time.RFC3339)
	case domain.Incorrect:
		c.Answers.Incorrect++
		c.Streak = 0
		c.LastAsked = now.UTC().Format(time.RFC3339)
	case domain.Partial:
		c.Answers.Partial++
	}
}

// SetRetired flags a card in or out of the active study rotation. Streak and
// answer counters are untouched; the card stays stored and editable.
func (e *Engine) SetRetired(id int64, retired bool) (domain.Card, error) {
	return e.mutate(id, func(c *domain.Card) {
		c.Retired = retired
	})
}

// Update is a partial administrative edit. Nil fields are left as stored.
type Update struct {
	Front      *string         `json:"front"`
	Back       *string         `json:"back"`
	Tags       *[]string       `json:"tags"`
	Images     *[]string       `json:"images"`
	Retired    *bool           `json:"retired"`
	NextReview *string         `json:"next_review"`
	Answers    *domain.Answers `json:"answers"`
}

// touchesContent reports whether the update changes study content, which is
// what stamps a fresh last_asked on save.
func (u Update) touchesContent() bool {
	return u.Front != nil || u.Back != nil || u.Tags != nil
}

// ApplyUpdate replaces exactly the supplied fields of a card and persists the
// result. Editing front, back or tags stamps last_asked with the edit time;
// streak is never touched and answers change only when explicitly supplied.
func (e *Engine) ApplyUpdate(id int64, u Update) (domain.Card, error) {
	return e.mutate(id, func(c *domain.Card) {
		if u.Front != nil {
			c.Front = *u.Front
		}
		if u.Back != nil {
			c.Back = *u.Back
		}
		if u.Tags != nil {
			c.Tags = *u.Tags
		}
		if u.Images != nil {
			c.Images = *u.Images
		}
		if u.Retired != nil {
			c.Retired = *u.Retired
		}
		if u.NextReview != nil {
			c.NextReview = *u.NextReview
		}
		if u.Answers != nil {
			c.Answers = *u.Answers
		}
		if u.touchesContent() {
			c.LastAsked = e.now().UTC().Format(time.RFC3339)
		}
	})
}

// EditCard is the content-edit operation: front, back and tags only.
func (e *Engine) EditCard(id int64, front, back *string, tags *[]string) (domain.Card, error) {
	return e.ApplyUpdate(id, Update{Front: front, Back: back, Tags: tags})
}

// Import parses bulk text into front/back pairs and creates a card for each
// accepted pair, all carrying the given tags. It returns the created cards
// and the number of malformed segments that were dropped by the parser.
func (e *Engine) Import(text, cardDelim, frontBackDelim string, tags []string) ([]domain.Card, int, error) {
	pairs, dropped := parser.ParseBulk(text, cardDelim, frontBackDelim)
	if len(pairs) == 0 {
		return nil, dropped, nil
	}

	newCards := make([]domain.NewCard, 0, len(pairs))
	for _, p := range pairs {
		newCards = append(newCards, domain.NewCard{Front: p.Front, Back: p.Back, Tags: tags})
	}

	created, err := e.store.BulkInsert(newCards)
	if err != nil {
		return nil, dropped, err
	}
	return created, dropped, nil
}

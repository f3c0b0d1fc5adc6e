package review

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/conorfennell/persist/internal/domain"
)

// Policy selects how a session sequences its cards.
type Policy string

const (
	// InOrder keeps the store iteration order (ascending id).
	InOrder Policy = "in_order"
	// Random is a fresh uniform shuffle on every session start.
	Random Policy = "random"
	// ByStreak puts the lowest streaks first; those cards are the ones most
	// at risk of being forgotten.
	ByStreak Policy = "by_streak"
	// ByLastAsked puts the longest-unasked cards first; never-asked cards
	// sort before everything.
	ByLastAsked Policy = "by_last_asked"
	// ByRatio puts the highest incorrect/correct ratio first. A card with
	// zero correct answers has ratio 0, so it sorts with the least urgent
	// cards. Non-intuitive, but it is the established behavior and callers
	// depend on it.
	ByRatio Policy = "by_ratio"
)

// ParsePolicy converts a wire name into a Policy. The empty string means
// InOrder.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return InOrder, nil
	case InOrder, Random, ByStreak, ByLastAsked, ByRatio:
		return Policy(s), nil
	}
	return "", fmt.Errorf("order policy %q: %w", s, domain.ErrValidation)
}

// Order returns a new sequence of the given cards arranged per the policy.
// The input slice is never mutated and the output is always a permutation of
// it. All comparison-based policies sort stably, so ties keep their store
// order.
func Order(cards []domain.Card, policy Policy) []domain.Card {
	out := slices.Clone(cards)

	switch policy {
	case Random:
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	case ByStreak:
		slices.SortStableFunc(out, func(a, b domain.Card) int {
			return a.Streak - b.Streak
		})
	case ByLastAsked:
		// Lexicographic compare works for ISO-8601 strings, and the empty
		// string (never asked) naturally sorts first.
		slices.SortStableFunc(out, func(a, b domain.Card) int {
			switch {
			case a.LastAsked < b.LastAsked:
				return -1
			case a.LastAsked > b.LastAsked:
				return 1
			}
			return 0
		})
	case ByRatio:
		slices.SortStableFunc(out, func(a, b domain.Card) int {
			ra, rb := failureRatio(a), failureRatio(b)
			switch {
			case ra > rb:
				return -1
			case ra < rb:
				return 1
			}
			return 0
		})
	}

	return out
}

// failureRatio is incorrect over correct, defined as 0 when the card has no
// correct answers yet.
func failureRatio(c domain.Card) float64 {
	if c.Answers.Correct == 0 {
		return 0
	}
	return float64(c.Answers.Incorrect) / float64(c.Answers.Correct)
}

package parser

import "strings"

// Pair is one parsed front/back unit of study material.
type Pair struct {
	Front string
	Back  string
}

// ParseBulk splits free-form pasted text into front/back pairs.
//
// The text is split on cardDelim into segments; blank segments are ignored.
// Each segment must split on frontBackDelim into exactly two parts to be
// accepted — anything else (no delimiter, or an accidental extra one) is
// silently dropped. That leniency is deliberate: bulk text is pasted in by
// hand and a malformed segment should not poison the rest of the import.
// The number of dropped segments is returned for observability.
//
// ParseBulk is pure: no I/O, no side effects. Callers attach tags and
// defaults when turning pairs into cards.
func ParseBulk(text, cardDelim, frontBackDelim string) ([]Pair, int) {
	if cardDelim == "" || frontBackDelim == "" {
		return nil, 0
	}

	var pairs []Pair
	dropped := 0

	for _, segment := range strings.Split(text, cardDelim) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		parts := strings.Split(segment, frontBackDelim)
		if len(parts) != 2 {
			dropped++
			continue
		}

		pairs = append(pairs, Pair{
			Front: strings.TrimSpace(parts[0]),
			Back:  strings.TrimSpace(parts[1]),
		})
	}

	return pairs, dropped
}

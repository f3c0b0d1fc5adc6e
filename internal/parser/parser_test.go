package parser

import "testing"

func TestParseBulk(t *testing.T) {
	testCases := []struct {
		name            string
		input           string
		cardDelim       string
		frontBackDelim  string
		expectedPairs   []Pair
		expectedDropped int
	}{
		{
			name:           "Two simple cards",
			input:          "A=>1&B=>2",
			cardDelim:      "&",
			frontBackDelim: "=>",
			expectedPairs:  []Pair{{"A", "1"}, {"B", "2"}},
		},
		{
			name:            "Extra delimiter drops the segment",
			input:           "A=>1=>extra&B=>2",
			cardDelim:       "&",
			frontBackDelim:  "=>",
			expectedPairs:   []Pair{{"B", "2"}},
			expectedDropped: 1,
		},
		{
			name:            "Segment without delimiter is dropped",
			input:           "just some text&B=>2",
			cardDelim:       "&",
			frontBackDelim:  "=>",
			expectedPairs:   []Pair{{"B", "2"}},
			expectedDropped: 1,
		},
		{
			name:           "Whitespace is trimmed",
			input:          "  front one => back one \n&\n front two=>back two  ",
			cardDelim:      "&",
			frontBackDelim: "=>",
			expectedPairs:  []Pair{{"front one", "back one"}, {"front two", "back two"}},
		},
		{
			name:           "Blank segments are skipped, not counted as dropped",
			input:          "&&A=>1&   &",
			cardDelim:      "&",
			frontBackDelim: "=>",
			expectedPairs:  []Pair{{"A", "1"}},
		},
		{
			name:           "Multi-character card delimiter",
			input:          "front=>back\n--------------\nsecond=>card",
			cardDelim:      "--------------",
			frontBackDelim: "=>",
			expectedPairs:  []Pair{{"front", "back"}, {"second", "card"}},
		},
		{
			name:           "Multiline front and back survive",
			input:          "line one\nline two=>answer\nmore answer",
			cardDelim:      "&",
			frontBackDelim: "=>",
			expectedPairs:  []Pair{{"line one\nline two", "answer\nmore answer"}},
		},
		{
			name:           "Empty input",
			input:          "",
			cardDelim:      "&",
			frontBackDelim: "=>",
		},
		{
			name:           "Empty delimiters parse nothing",
			input:          "A=>1",
			cardDelim:      "",
			frontBackDelim: "=>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pairs, dropped := ParseBulk(tc.input, tc.cardDelim, tc.frontBackDelim)

			if dropped != tc.expectedDropped {
				t.Errorf("Expected %d dropped segments, got %d", tc.expectedDropped, dropped)
			}
			if len(pairs) != len(tc.expectedPairs) {
				t.Fatalf("Expected %d pairs, got %d: %v", len(tc.expectedPairs), len(pairs), pairs)
			}
			for i, want := range tc.expectedPairs {
				if pairs[i] != want {
					t.Errorf("Pair %d: expected %q, got %q", i, want, pairs[i])
				}
			}
		})
	}
}

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTable_Rows(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		Headers  []string
		Rows     [][]Field
		Expected [][]Field
	}{
		"no headers keeps everything": {
			Rows:     [][]Field{{{Name: "b", Value: 2}, {Name: "a", Value: 1}}},
			Expected: [][]Field{{{Name: "b", Value: 2}, {Name: "a", Value: 1}}},
		},
		"ordered by headers": {
			Headers:  []string{"A", "B"},
			Rows:     [][]Field{{{Name: "b", Value: 2}, {Name: "a", Value: 1}}},
			Expected: [][]Field{{{Name: "a", Value: 1}, {Name: "b", Value: 2}}},
		},
		"names are normalized": {
			Headers:  []string{"Image ID"},
			Rows:     [][]Field{{{Name: " image   id ", Value: "sha256:1"}}},
			Expected: [][]Field{{{Name: " image   id ", Value: "sha256:1"}}},
		},
		"rows without matching fields are dropped": {
			Headers:  []string{"One"},
			Rows:     [][]Field{{{Name: "One", Value: 1}}, {{Name: "Two", Value: 2}}},
			Expected: [][]Field{{{Name: "One", Value: 1}}},
		},
	} {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			table := NewDefaultTable(WithHeaders(tc.Headers))
			for _, r := range tc.Rows {
				table.AddRow(r...)
			}

			assert.Equal(t, tc.Expected, table.Rows())
		})
	}
}

package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Energy Report", want: "energy-report"},
		{name: "umlauts folded", input: "Wärme Übersicht", want: "warme-ubersicht"},
		{name: "punctuation dropped", input: "Report (A/B) #1", want: "report-ab-1"},
		{name: "repeated separators", input: "  a -- b  ", want: "a-b"},
		{name: "underscores kept inside", input: "site_7 total", want: "site_7-total"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Make(tc.input))
		})
	}
}

package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"passthrough", "AAPL", "AAPL"},
		{"lowercase", "msft", "MSFT"},
		{"whitespace", "  nvda ", "NVDA"},
		{"alias", "KLA", "KLAC"},
		{"alias lowercase", "kla", "KLAC"},
		{"canonical of alias", "KLAC", "KLAC"},
		{"blank", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestLookupCandidates(t *testing.T) {
	assert.ElementsMatch(t, []string{"KLAC", "KLA"}, LookupCandidates("KLA"))
	assert.ElementsMatch(t, []string{"KLAC", "KLA"}, LookupCandidates("KLAC"))
	assert.Equal(t, []string{"AAPL"}, LookupCandidates("aapl"))
}

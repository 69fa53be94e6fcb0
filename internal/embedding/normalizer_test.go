package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryNormalizer_Tokens(t *testing.T) {
	n := NewQueryNormalizer()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"stop words and punctuation", "What is the weather today?", []string{"weather", "today"}},
		{"contraction", "What's the weather like today?", []string{"weather", "like", "today"}},
		{"case and whitespace", "  Redis   CLUSTER\tsetup ", []string{"redis", "cluster", "setup"}},
		{"hyphen kept", "state-of-the-art caching", []string{"state-of-the-art", "caching"}},
		{"numbers kept", "top 5 results", []string{"top", "5", "results"}},
		{"consecutive repeats", "go go go gophers", []string{"go", "gophers"}},
		{"only stop words", "what is it", nil},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Tokens(tt.query))
		})
	}
}

func TestQueryNormalizer_Normalize(t *testing.T) {
	n := NewQueryNormalizer()
	assert.Equal(t, "weather like today", n.Normalize("What's the weather like today?"))
	assert.Equal(t, "", n.Normalize("the"))
}

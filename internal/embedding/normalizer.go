package embedding

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[^\w\s-]`)
)

// QueryNormalizer reduces a query to the tokens that carry its meaning.
type QueryNormalizer struct {
	stopWords map[string]bool
}

// NewQueryNormalizer returns a normalizer with the default English stop
// words.
func NewQueryNormalizer() *QueryNormalizer {
	return &QueryNormalizer{stopWords: defaultStopWords()}
}

// Tokens lowercases the query, strips punctuation except hyphens, drops stop
// words and one-letter words, and collapses consecutive repeats. Numbers are
// kept.
func (n *QueryNormalizer) Tokens(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	q = whitespaceRe.ReplaceAllString(q, " ")
	q = punctuationRe.ReplaceAllString(q, " ")

	var out []string
	for _, w := range strings.Fields(q) {
		if n.stopWords[w] {
			continue
		}
		if len(w) < 2 && !isNumber(w) {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == w {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Normalize joins Tokens with single spaces.
func (n *QueryNormalizer) Normalize(query string) string {
	return strings.Join(n.Tokens(query), " ")
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

func defaultStopWords() map[string]bool {
	words := []string{
		// articles
		"a", "an", "the",
		// pronouns
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your",
		"yours", "yourself", "yourselves", "he", "him", "his", "himself", "she",
		"her", "hers", "herself", "it", "its", "itself", "they", "them", "their",
		"theirs", "themselves",
		// auxiliaries
		"is", "am", "are", "was", "were", "be", "been", "being", "have", "has",
		"had", "having", "do", "does", "did", "doing", "will", "would", "should",
		"could", "ought", "might", "must", "can", "may",
		// prepositions
		"at", "by", "for", "with", "about", "against", "between", "into", "through",
		"during", "before", "after", "above", "below", "to", "from", "up", "down",
		"in", "out", "on", "off", "over", "under",
		// conjunctions and question words
		"and", "but", "or", "nor", "if", "then", "else", "when", "where", "how",
		"why", "what", "which", "who", "whom", "this", "that", "these", "those",
		// other
		"all", "each", "few", "more", "most", "other", "some", "such", "only",
		"own", "same", "so", "than", "too", "very", "just", "now", "here", "there",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

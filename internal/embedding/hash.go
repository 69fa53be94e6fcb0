package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hash is a local feature-hashing embedder. Each normalized token adds one
// to the bucket its xxhash selects, and the result is scaled to unit length.
// Queries sharing most of their content words land close together.
type Hash struct {
	dim        int
	normalizer *QueryNormalizer
}

// NewHash returns a Hash embedder producing dim-length vectors.
func NewHash(dim int) (*Hash, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash embedder: dimension must be > 0, got %d", dim)
	}
	return &Hash{dim: dim, normalizer: NewQueryNormalizer()}, nil
}

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := h.normalizer.Tokens(text)
	if len(tokens) == 0 {
		// nothing but stop words; fall back to the raw text
		if raw := strings.ToLower(strings.TrimSpace(text)); raw != "" {
			tokens = []string{raw}
		}
	}

	vec := make([]float32, h.dim)
	for _, tok := range tokens {
		vec[xxhash.Sum64String(tok)%uint64(h.dim)]++
	}
	return Normalize(vec), nil
}

func (h *Hash) Dimensions() int { return h.dim }

package semcache

import (
	"fmt"
	"strings"

	"github.com/Subhagatoadak/SemanticCaching/internal/vectorindex"
)

// Direction says which way a score gets better.
type Direction int

const (
	// LowerIsCloser suits distances (L2).
	LowerIsCloser Direction = iota
	// HigherIsCloser suits similarities (inner product).
	HigherIsCloser
)

func (d Direction) String() string {
	if d == HigherIsCloser {
		return "higher_is_closer"
	}
	return "lower_is_closer"
}

// ParseDirection accepts "lower_is_closer" and "higher_is_closer".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lower_is_closer", "lower":
		return LowerIsCloser, nil
	case "higher_is_closer", "higher":
		return HigherIsCloser, nil
	default:
		return 0, fmt.Errorf("unknown threshold direction %q", s)
	}
}

// DirectionOf returns the direction matching m.
func DirectionOf(m vectorindex.Metric) Direction {
	if m.LowerIsCloser() {
		return LowerIsCloser
	}
	return HigherIsCloser
}

// Threshold decides whether a neighbor is close enough to count as the same
// query. The boundary value itself is accepted.
type Threshold struct {
	Value     float32
	Direction Direction
}

// ThresholdFor builds a threshold in m's direction.
func ThresholdFor(m vectorindex.Metric, value float32) Threshold {
	return Threshold{Value: value, Direction: DirectionOf(m)}
}

// Accepts reports whether score is within the threshold.
func (t Threshold) Accepts(score float32) bool {
	if t.Direction == HigherIsCloser {
		return score >= t.Value
	}
	return score <= t.Value
}

func (t Threshold) String() string {
	op := "<="
	if t.Direction == HigherIsCloser {
		op = ">="
	}
	return fmt.Sprintf("score %s %g", op, t.Value)
}

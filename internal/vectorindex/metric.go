package vectorindex

import (
	"fmt"
	"strings"
)

// Metric is the score an engine ranks neighbors by.
type Metric int

const (
	// L2 is squared Euclidean distance. Lower is closer.
	L2 Metric = iota
	// InnerProduct is the dot product. Higher is closer; for unit vectors it
	// equals cosine similarity.
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case L2:
		return "l2"
	case InnerProduct:
		return "inner_product"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric accepts "l2" and "inner_product" (also "ip").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "":
		return L2, nil
	case "inner_product", "ip":
		return InnerProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// LowerIsCloser reports the metric's direction.
func (m Metric) LowerIsCloser() bool {
	return m == L2
}

// Score compares two vectors of equal length.
func (m Metric) Score(a, b []float32) float32 {
	var s float32
	switch m {
	case InnerProduct:
		for i := range a {
			s += a[i] * b[i]
		}
	default:
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
	}
	return s
}

// Closer reports whether score a ranks strictly ahead of score b.
func (m Metric) Closer(a, b float32) bool {
	if m.LowerIsCloser() {
		return a < b
	}
	return a > b
}

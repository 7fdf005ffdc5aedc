package vector

import (
	"fmt"
	"strings"

	"github.com/viant/vec/search"
)

// Metric selects how query and entry vectors are compared.
type Metric uint16

const (
	// MetricL2 ranks by Euclidean distance, lower is closer.
	MetricL2 Metric = 0
	// MetricCosine ranks by cosine similarity, higher is closer.
	MetricCosine Metric = 1
)

// ParseMetric parses a metric name from config. Empty selects l2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q (supported: l2, cosine)", ErrInvalidArgument, s)
	}
}

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("metric(%d)", uint16(m))
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}

// better reports whether score a ranks ahead of score b.
func (m Metric) better(a, b float32) bool {
	if m == MetricCosine {
		return a > b
	}
	return a < b
}

// score compares an entry against the query. The magnitudes only guard cosine against
// zero vectors.
func (m Metric) score(entry search.Float32s, entryMag float32, query []float32, qMag float32) float32 {
	if m == MetricCosine {
		if entryMag == 0 || qMag == 0 {
			return 0
		}
		return 1 - entry.CosineDistance(query)
	}
	return entry.EuclideanDistance(query)
}

// Package sizing compares declared container resources against observed usage
// and produces right-sizing recommendations.
package sizing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	kibi = 1024.0
	mebi = kibi * 1024
	gibi = mebi * 1024
)

// suffixScale lists the suffixes that are scaled exactly, so that "500m" is
// exactly 0.5 rather than its nearest approximation.
var suffixScale = []struct {
	suffix string
	scale  float64
	divide bool
}{
	{"Ki", kibi, false},
	{"Mi", mebi, false},
	{"Gi", gibi, false},
	{"Ti", gibi * kibi, false},
	{"m", 1e3, true},
	{"n", 1e9, true},
}

// ParseQuantity converts a Kubernetes quantity string into cores (CPU) or
// bytes (memory). "500m" is 0.5, "500000000n" is 0.5, "1Gi" is 1073741824 and
// a bare number is taken literally. Unparseable input yields 0.
func ParseQuantity(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, sc := range suffixScale {
		if !strings.HasSuffix(s, sc.suffix) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, sc.suffix), 64)
		if err != nil {
			break
		}
		if sc.divide {
			return v / sc.scale
		}
		return v * sc.scale
	}
	// metrics collectors occasionally emit plain floats such as "0.25"
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return q.AsApproximateFloat64()
}

// FormatCPU renders cores in millicores below one core, plain cores otherwise.
func FormatCPU(cores float64) string {
	if cores < 1 {
		return fmt.Sprintf("%dm", int64(math.Round(cores*1000)))
	}
	return strconv.FormatFloat(cores, 'f', -1, 64)
}

// FormatMemory renders bytes in the largest binary unit that is at least 1.
func FormatMemory(bytes float64) string {
	switch {
	case bytes >= gibi:
		return fmt.Sprintf("%dGi", int64(math.Round(bytes/gibi)))
	case bytes >= mebi:
		return fmt.Sprintf("%dMi", int64(math.Round(bytes/mebi)))
	case bytes >= kibi:
		return fmt.Sprintf("%dKi", int64(math.Round(bytes/kibi)))
	}
	return strconv.FormatFloat(bytes, 'f', -1, 64)
}

// roundCPU rounds up to a whole millicore. The epsilon absorbs float noise
// such as 0.05*1.5 == 0.07500000000000001.
func roundCPU(cores float64) float64 {
	return math.Ceil(cores*1000-1e-6) / 1000
}

func roundMemory(bytes float64) float64 {
	return math.Ceil(bytes - 1e-6)
}

package capacity

import (
	"math"
	"strconv"
	"strings"
)

// Binary size units.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// units is ordered largest first so that "GiB" is never mistaken for "B".
var units = []struct {
	suffix string
	factor int64
}{
	{"TiB", TiB},
	{"GiB", GiB},
	{"MiB", MiB},
	{"KiB", KiB},
	{"B", 1},
}

// ParseSize converts a human-readable size such as "4.37 GiB" to a byte
// count, clamped to math.MaxInt64. Input that carries no known unit or whose
// numeric part does not parse yields 0, which callers must treat as an
// unknown size rather than an empty item.
func ParseSize(text string) int64 {
	// Listing cells render as "4.37\nGiB"; collapse any whitespace run.
	text = strings.Join(strings.Fields(text), " ")

	for _, u := range units {
		if !strings.HasSuffix(text, u.suffix) {
			continue
		}

		number := strings.TrimSpace(strings.TrimSuffix(text, u.suffix))
		value, err := strconv.ParseFloat(number, 64)
		if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return 0
		}

		// Clamp rather than wrap to a negative count.
		bytes := value * float64(u.factor)
		if bytes >= math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(bytes)
	}

	return 0
}

// GiBToBytes converts a whole number of GiB to bytes.
func GiBToBytes(gib int64) int64 {
	return gib * GiB
}

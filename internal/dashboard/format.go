package dashboard

import (
	"math"
	"strconv"
)

var sizeUnits = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FormatBytes renders a byte count with binary (1024) scaling, two decimals at
// most and no trailing zeros: 1536 -> "1.5 KB". Zero, negative and NaN inputs
// render as "0 B". Values past the unit table stay in YB.
func FormatBytes(bytes float64) string {
	if bytes <= 0 || math.IsNaN(bytes) {
		return "0 B"
	}
	if math.IsInf(bytes, 1) {
		return "+Inf " + sizeUnits[len(sizeUnits)-1]
	}

	// Log2 is exact for powers of two, so 1024^n lands on index n.
	sizeIndex := int(math.Floor(math.Log2(bytes) / 10))
	if sizeIndex < 0 {
		sizeIndex = 0
	}
	if sizeIndex > len(sizeUnits)-1 {
		sizeIndex = len(sizeUnits) - 1
	}

	value := bytes / math.Pow(1024, float64(sizeIndex))
	value = math.Round(value*100) / 100

	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[sizeIndex]
}

// FormatByteCount is FormatBytes for unsigned counters.
func FormatByteCount(bytes uint64) string {
	return FormatBytes(float64(bytes))
}

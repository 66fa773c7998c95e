package format

import "fmt"

const unitStep = 1024

var (
	sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}
	rateUnits = []string{"B/s", "KiB/s", "MiB/s", "GiB/s", "TiB/s", "PiB/s"}
)

// Bytes renders a size for log lines, e.g. "999 B" or "1.50 GiB".
func Bytes(size int64) string {
	if size < unitStep {
		return fmt.Sprintf("%d %s", size, sizeUnits[0])
	}

	value, unit := scale(float64(size), sizeUnits)
	return fmt.Sprintf("%.2f %s", value, unit)
}

func BytesPerSecond(bytesPerSecond float64) string {
	value, unit := scale(bytesPerSecond, rateUnits)
	return fmt.Sprintf("%.2f %s", value, unit)
}

func scale(value float64, units []string) (float64, string) {
	idx := 0
	for value >= unitStep && idx < len(units)-1 {
		value /= unitStep
		idx++
	}

	return value, units[idx]
}

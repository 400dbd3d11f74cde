package progress

import "fmt"

// UnknownValue is displayed when a speed, size or ETA cannot be computed
const UnknownValue = "—"

// FormatSpeed renders a byte rate using the smallest unit where the value is
// at least one, with one decimal place except for integer B/s.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return UnknownValue
	}

	kb := bytesPerSec / 1024
	if kb < 1 {
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}

	mb := kb / 1024
	if mb < 1 {
		return fmt.Sprintf("%.1f KB/s", kb)
	}

	gb := mb / 1024
	if gb < 1 {
		return fmt.Sprintf("%.1f MB/s", mb)
	}
	return fmt.Sprintf("%.1f GB/s", gb)
}

// FormatSize renders a byte count on the 1024 ladder, integer bytes below 1 KB
func FormatSize(numBytes int64) string {
	if numBytes <= 0 {
		return UnknownValue
	}

	size := float64(numBytes)
	units := []string{"B", "KB", "MB", "GB", "TB"}
	for _, unit := range units {
		if size < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%d B", int64(size))
			}
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}

// FormatETA renders a second count as h:mm:ss, or m:ss below one hour
func FormatETA(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}

	total := int(seconds)
	minutes, sec := total/60, total%60
	hours, minutes := minutes/60, minutes%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, sec)
	}
	return fmt.Sprintf("%d:%02d", minutes, sec)
}

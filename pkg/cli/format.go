package cli

import "fmt"

// FormatDuration renders a span of milliseconds, as carried by journal
// timestamps, in the smallest readable unit.
func FormatDuration(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	rem := float64(ms-mins*60000) / 1000
	return fmt.Sprintf("%dm%.1fs", mins, rem)
}

// FormatBytes renders a byte count with binary unit prefixes.
func FormatBytes(bytes int64) string {
	units := []struct {
		name string
		size int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
	}
	for _, u := range units {
		if bytes >= u.size {
			return fmt.Sprintf("%.2f %s", float64(bytes)/float64(u.size), u.name)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}

// FormatBytesInt is FormatBytes for int counts.
func FormatBytesInt(bytes int) string {
	return FormatBytes(int64(bytes))
}

package builtin

import (
	"context"
	"time"

	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// dateLayout renders a timestamp the way the voice model reads it aloud.
const dateLayout = "Monday, 2006-01-02 15:04:05"

// Date returns the tool reporting the current date and time in UTC.
func Date() tool.Tool {
	return DateAt(time.Now)
}

// DateAt is Date with an injectable clock.
func DateAt(now func() time.Time) tool.Tool {
	return tool.MustNewFunc("getdatetool", "Gets the current date and time in UTC.",
		func(ctx context.Context, args struct{}) (any, error) {
			return now().UTC().Format(dateLayout), nil
		})
}

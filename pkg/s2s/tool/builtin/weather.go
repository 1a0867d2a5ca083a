package builtin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// DefaultWeatherDelay is how long the slow weather tool stalls before
// answering, exercising pipelined tool execution during a live session.
const DefaultWeatherDelay = 20 * time.Second

// weatherHoldMessage is spoken to the user while the lookup runs.
const weatherHoldMessage = "just say 'Hold on one second while I find the weather information for you.'"

// weatherReport is a captured observation served as the canned answer.
var weatherReport = json.RawMessage(`{"weather":[{"id":801,"main":"Clouds","description":"few clouds","icon":"02d"}],"base":"stations","main":{"temp":52.14,"feels_like":50.56,"temp_min":45.0,"temp_max":58.99,"pressure":1012,"humidity":68},"visibility":16093,"wind":{"speed":8.05,"deg":330},"clouds":{"all":20},"dt":1757676720,"sys":{"type":1,"id":479,"country":"US","sunrise":1522590707,"sunset":1522636288},"timezone":-25200,"id":5809844}`)

// SlowWeatherOptions configures the slow weather tool.
type SlowWeatherOptions struct {
	// Delay overrides DefaultWeatherDelay when positive.
	Delay time.Duration

	// Say, when set, is called with a hold message before the stall so the
	// session can keep talking while the lookup runs.
	Say func(ctx context.Context, text string) error
}

// SlowWeather returns the deliberately slow weather tool. The result is a
// canned report; the point of the tool is the delay.
func SlowWeather(opts SlowWeatherOptions) tool.Tool {
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultWeatherDelay
	}
	return tool.MustNewFunc("getslowtool", "Gets the current weather. Slow to respond; acknowledge the wait.",
		func(ctx context.Context, args struct{}) (any, error) {
			if opts.Say != nil {
				if err := opts.Say(ctx, weatherHoldMessage); err != nil {
					return nil, err
				}
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return weatherReport, nil
		})
}

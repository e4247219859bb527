package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rhuss/plugflow/pkg/plugin"
)

type clockArgs struct {
	Timezone string `json:"timezone"`
}

type clockReading struct {
	Timezone string `json:"timezone"`
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
}

// Clock returns a demo plugin reporting the current time in an IANA time
// zone. now is the time source; nil means time.Now.
func Clock(now func() time.Time) Plugin {
	if now == nil {
		now = time.Now
	}
	return Plugin{
		Descriptor: plugin.Descriptor{
			Name:        "ClockPlugin",
			Description: "Get the current date and time, optionally in a given IANA time zone.",
			Parameters: []plugin.Parameter{
				{Name: "timezone", Type: "string", Description: "IANA zone such as Europe/Berlin; defaults to UTC"},
			},
			RiskTier: plugin.Informational,
		},
		Handler: func(_ context.Context, raw json.RawMessage) (string, error) {
			var args clockArgs
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			tz := args.Timezone
			if tz == "" {
				tz = "UTC"
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("%w: unknown time zone %q", plugin.ErrInvalidArguments, tz)
			}
			t := now().In(loc)
			return encodeResult(clockReading{
				Timezone: tz,
				Time:     t.Format(time.RFC3339),
				Weekday:  t.Weekday().String(),
			})
		},
	}
}

// Defaults returns the demo plugins served when no configuration overrides
// them.
func Defaults() []Plugin {
	return []Plugin{Weather(), Clock(nil)}
}

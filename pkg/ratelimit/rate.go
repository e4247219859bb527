package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is an invocation budget: at most Limit calls per Window.
type Rate struct {
	Limit  int
	Window time.Duration
}

// IsZero reports whether the rate is unset.
func (r Rate) IsZero() bool {
	return r.Limit == 0 && r.Window == 0
}

func (r Rate) String() string {
	if r.IsZero() {
		return "unlimited"
	}
	for _, u := range []struct {
		name string
		d    time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	} {
		if r.Window == u.d {
			return fmt.Sprintf("%d/%s", r.Limit, u.name)
		}
	}
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseRate parses an "N/unit" budget such as "10/minute" or "100/h". The
// unit may also be a duration like "90s" or "1m30s".
func ParseRate(s string) (Rate, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("rate %q: expected N/unit", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return Rate{}, fmt.Errorf("rate %q: invalid count: %w", s, err)
	}
	if n <= 0 {
		return Rate{}, fmt.Errorf("rate %q: count must be positive", s)
	}
	unit = strings.TrimSpace(unit)
	window, ok := units[strings.ToLower(unit)]
	if !ok {
		// Arbitrary windows use Go duration syntax, as written by String.
		window, err = time.ParseDuration(unit)
		if err != nil || window <= 0 {
			return Rate{}, fmt.Errorf("rate %q: unknown unit %q", s, unit)
		}
	}
	return Rate{Limit: n, Window: window}, nil
}

// MarshalText encodes the rate in N/unit form.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText lets rates be written as "N/unit" strings in YAML and JSON.
func (r *Rate) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "unlimited" {
		*r = Rate{}
		return nil
	}
	parsed, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

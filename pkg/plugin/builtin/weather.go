package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/rhuss/plugflow/pkg/plugin"
)

var conditions = []string{"sunny", "partly cloudy", "overcast", "light rain", "windy", "foggy"}

type weatherArgs struct {
	City string `json:"city"`
	Unit string `json:"unit"`
}

type weatherReport struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Unit        string `json:"unit"`
	Conditions  string `json:"conditions"`
}

// Weather returns a demo plugin reporting synthetic current weather. The
// report is a pure function of the city name.
func Weather() Plugin {
	return Plugin{
		Descriptor: plugin.Descriptor{
			Name:        "WeatherPlugin",
			Description: "Get the current weather for a city.",
			Parameters: []plugin.Parameter{
				{Name: "city", Type: "string", Required: true, Description: "City name, e.g. Paris"},
				{Name: "unit", Type: "string", Description: "celsius (default) or fahrenheit"},
			},
			RiskTier: plugin.Informational,
		},
		Handler: weather,
	}
}

func weather(_ context.Context, raw json.RawMessage) (string, error) {
	var args weatherArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	city := strings.TrimSpace(args.City)
	if city == "" {
		return "", fmt.Errorf("%w: city is required", plugin.ErrInvalidArguments)
	}
	unit := strings.ToLower(args.Unit)
	switch unit {
	case "", "c", "celsius":
		unit = "celsius"
	case "f", "fahrenheit":
		unit = "fahrenheit"
	default:
		return "", fmt.Errorf("%w: unknown unit %q", plugin.ErrInvalidArguments, args.Unit)
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(city)))
	sum := h.Sum32()

	celsius := int(sum%35) - 5
	temp := celsius
	if unit == "fahrenheit" {
		temp = celsius*9/5 + 32
	}
	return encodeResult(weatherReport{
		City:        city,
		Temperature: temp,
		Unit:        unit,
		Conditions:  conditions[int(sum>>8)%len(conditions)],
	})
}

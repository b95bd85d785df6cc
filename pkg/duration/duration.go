// Package duration extends time.ParseDuration with day and week units
// and provides compact human-readable formatting.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

// extendedUnitPattern matches day and week components, which Go's
// parser does not understand. Examples: "2d", "1w", "30 days".
var extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)

// Parse parses a duration string. Standard Go syntax is accepted
// unchanged; day and week units are converted to hours first, so
// "1w2d12h" and "30 days" both work.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	converted := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := extendedUnitPattern.FindStringSubmatch(match)
		value, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return match
		}
		hours := value * 24
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(parts[2])), "w") {
			hours *= 7
		}
		return strconv.FormatInt(hours, 10) + "h"
	})
	converted = strings.ReplaceAll(converted, " ", "")

	d, err := time.ParseDuration(converted)
	if err != nil {
		return 0, fmt.Errorf("duration: invalid format %q", s)
	}
	return d, nil
}

// Format renders a duration compactly using the largest fitting units,
// e.g. "1w2d", "90m" as "1h30m", "45s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	negative := d < 0
	if negative {
		d = -d
	}

	var b strings.Builder
	if weeks := d / Week; weeks > 0 {
		fmt.Fprintf(&b, "%dw", weeks)
		d -= weeks * Week
	}
	if days := d / Day; days > 0 {
		fmt.Fprintf(&b, "%dd", days)
		d -= days * Day
	}
	if d > 0 {
		b.WriteString(d.String())
	}

	if negative {
		return "-" + b.String()
	}
	return b.String()
}

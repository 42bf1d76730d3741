package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var isoDurationRe = regexp.MustCompile(`(?i)^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// Seconds per designator, in capture group order. Years and months use calendar averages.
var isoUnitSeconds = []float64{365 * 86400, 30 * 86400, 7 * 86400, 86400, 3600, 60, 1}

// maxDurationMinutes caps parsed durations so the conversion to int cannot overflow
const maxDurationMinutes = math.MaxInt32

// ParseISODuration converts an ISO-8601 duration such as "PT1H30M" to whole minutes.
func ParseISODuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil || strings.EqualFold(s, "P") || strings.HasSuffix(strings.ToUpper(s), "T") {
		return 0, false
	}

	var seconds float64
	matched := false
	for i, unit := range isoUnitSeconds {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		seconds += v * unit
		matched = true
	}
	if !matched {
		return 0, false
	}
	minutes := math.Round(seconds / 60)
	if minutes > maxDurationMinutes {
		minutes = maxDurationMinutes
	}
	return int(minutes), true
}

// HumanizeMinutes renders minutes as e.g. "1 hour 30 minutes"
func HumanizeMinutes(minutes int) string {
	if minutes <= 0 {
		return "0 minutes"
	}
	hours, mins := minutes/60, minutes%60
	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if mins > 0 {
		parts = append(parts, plural(mins, "minute"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// NormalizeTime returns a human-readable time string and, when raw is an ISO-8601
// duration, its length in minutes. Non-ISO strings pass through trimmed.
func NormalizeTime(raw string) (string, *int) {
	raw = strings.TrimSpace(raw)
	if minutes, ok := ParseISODuration(raw); ok {
		return HumanizeMinutes(minutes), &minutes
	}
	return raw, nil
}

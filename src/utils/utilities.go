package utils

import (
	"regexp"
	"strings"
)

// Interface for a time source.
type TimeSource interface {
	// @return the current unix time in seconds.
	UnixNow() int64
}

// Seconds until the fixed window that opened at windowStart closes.
// Callers only invoke this while the window is live, so the result is
// always in [1, windowSeconds].
// @param windowStart supplies the unix time the window opened.
// @param windowSeconds supplies the window length.
// @return the remaining seconds to surface as a retry hint.
func CalculateReset(windowStart int64, windowSeconds int64, timeSource TimeSource) int64 {
	remaining := windowStart + windowSeconds - timeSource.UnixNow()
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

var (
	// pathSegmentRegex collapses route template characters so a path such as
	// /api/redirect or /api/{name} yields a stat-safe underscore form.
	pathSegmentRegex = regexp.MustCompile(`[/{}]+`)
)

// SanitizeStatName removes characters that break statsd wire formats from a
// stat name. Policy names and route paths both pass through here.
func SanitizeStatName(s string) string {
	r := strings.NewReplacer(":", "_", "|", "_")
	result := pathSegmentRegex.ReplaceAllString(r.Replace(s), "_")
	return strings.Trim(result, "_")
}

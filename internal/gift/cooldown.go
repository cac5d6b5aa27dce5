// Package gift implements the cooldown arithmetic for the daily gift: a
// successful claim starts a fixed 24 hour window during which the gift is
// unavailable and no remote status call is needed.
package gift

import (
	"strings"
	"time"
)

// Cooldown is the window after a successful claim during which the gift
// cannot be claimed again.
const Cooldown = 24 * time.Hour

// playedTimeLayout matches the backend's timestamps with any fractional
// seconds stripped, e.g. "2026-02-14T13:21:48.563" parses as
// "2026-02-14T13:21:48".
const playedTimeLayout = "2006-01-02T15:04:05"

// Decision says whether cached state is enough to answer the gift question.
type Decision struct {
	// RemoteCheck is true when the cache cannot prove the gift is cooling
	// down and a status call must be made.
	RemoteCheck bool

	// Remaining is the time left in the cooldown window. Only meaningful
	// when RemoteCheck is false.
	Remaining time.Duration
}

// ParsePlayedTime parses a backend played-time string, ignoring sub-second
// precision. The backend serves wall-clock time without a zone, so it is
// interpreted in local time.
func ParsePlayedTime(s string) (time.Time, error) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return time.ParseInLocation(playedTimeLayout, s, time.Local)
}

// Decide applies the cooldown arithmetic to a cached played-time. An absent
// or unparsable value never fails; it simply demands a remote check.
func Decide(lastPlayedTime string, now time.Time) Decision {
	if lastPlayedTime == "" {
		return Decision{RemoteCheck: true}
	}

	playedAt, err := ParsePlayedTime(lastPlayedTime)
	if err != nil {
		return Decision{RemoteCheck: true}
	}

	remaining := playedAt.Add(Cooldown).Sub(now)
	if remaining <= 0 {
		return Decision{RemoteCheck: true}
	}
	return Decision{Remaining: remaining}
}

package kino

import (
	"sync"
	"time"
)

// DrawTimeZone is the zone whose calendar defines "today" for draw dates.
const DrawTimeZone = "Europe/Athens"

var drawLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation(DrawTimeZone)
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
})

// DrawLocation returns the DrawTimeZone location.
func DrawLocation() *time.Location { return drawLocation() }

// Today returns the draw calendar day containing now, normalised the way
// PageKey dates are (midnight UTC).
func Today(now time.Time) time.Time {
	local := now.In(DrawLocation())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Settled reports whether every draw of date has taken place by now. Only
// settled days are historical.
func Settled(date, now time.Time) bool {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Before(Today(now))
}

// Package markethours answers "is the NSE trading session open right now".
// It drives the adaptive polling interval: short interval during the session,
// long interval outside it.
package markethours

import (
	"log/slog"
	"time"

	"github.com/scmhub/calendar"
)

// NSE session bounds used by the weekday fallback (09:15 - 15:30 IST).
const (
	openHour    = 9
	openMinute  = 15
	closeHour   = 15
	closeMinute = 30
)

// Checker decides whether the exchange is open at a given instant.
type Checker struct {
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

// NewNSE builds a checker for the National Stock Exchange of India.
// When the exchange calendar is unavailable it falls back to a plain
// Mon-Fri 09:15-15:30 IST predicate, which misses holidays but never
// blocks monitoring.
func NewNSE(logger *slog.Logger) *Checker {
	// MIC per ISO 10383; see scmhub/calendar for the supported set
	cal := calendar.GetCalendar("xbom")
	if cal != nil {
		return &Checker{cal: cal, loc: cal.Loc}
	}

	logger.Warn("⚠️  Exchange calendar unavailable, using weekday fallback")

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}

	return &Checker{loc: loc, fallback: true}
}

// IsOpen reports whether the trading session is open at t.
func (c *Checker) IsOpen(t time.Time) bool {
	t = t.In(c.loc)

	if !c.fallback {
		return c.cal.IsOpen(t)
	}

	return withinFallbackSession(t)
}

// withinFallbackSession is the Mon-Fri 09:15-15:30 predicate, inclusive on
// both bounds. t must already be in exchange-local time.
func withinFallbackSession(t time.Time) bool {
	weekday := t.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()

	return minutes >= openHour*60+openMinute && minutes <= closeHour*60+closeMinute
}

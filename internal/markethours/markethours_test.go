package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fallbackChecker() *Checker {
	return &Checker{
		loc:      time.FixedZone("IST", 5*3600+1800),
		fallback: true,
	}
}

func TestFallbackSessionBounds(t *testing.T) {
	checker := fallbackChecker()

	// 2025-06-02 is a Monday
	day := func(hour, minute int) time.Time {
		return time.Date(2025, 6, 2, hour, minute, 0, 0, checker.loc)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"one minute before open", day(9, 14), false},
		{"session open", day(9, 15), true},
		{"mid session", day(12, 0), true},
		{"session close is inclusive", day(15, 30), true},
		{"one minute after close", day(15, 31), false},
		{"midnight", day(0, 0), false},
		{"saturday mid day", time.Date(2025, 6, 7, 12, 0, 0, 0, checker.loc), false},
		{"sunday mid day", time.Date(2025, 6, 8, 12, 0, 0, 0, checker.loc), false},
		{"friday session", time.Date(2025, 6, 6, 11, 0, 0, 0, checker.loc), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.IsOpen(tt.at))
		})
	}
}

func TestFallbackConvertsTimezone(t *testing.T) {
	checker := fallbackChecker()

	// 06:00 UTC on a Monday is 11:30 IST, inside the session
	utc := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	assert.True(t, checker.IsOpen(utc))

	// 12:00 UTC is 17:30 IST, after close
	utc = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	assert.False(t, checker.IsOpen(utc))
}

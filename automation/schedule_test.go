package automation

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Jan 2025: Wed 1st, Fri 3rd, Sat 4th, Sun 5th, Mon 6th.
func date(day, hour, min int) time.Time {
	return time.Date(2025, time.January, day, hour, min, 0, 0, time.UTC)
}

func TestAdjustToBusinessHours(t *testing.T) {
	s := NewScheduler(time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"weekday inside window unchanged", date(7, 12, 0), date(7, 12, 0)},
		{"friday just before close unchanged", date(3, 16, 59), date(3, 16, 59)},
		{"friday at close rolls to monday", date(3, 17, 0), date(6, 9, 0)},
		{"saturday morning rolls to monday opening", date(4, 10, 0), date(6, 9, 0)},
		{"saturday afternoon rolls to monday opening", date(4, 14, 5), date(6, 9, 0)},
		{"sunday night rolls to monday opening", date(5, 23, 0), date(6, 9, 0)},
		{"weekday before opening clamps", date(7, 7, 30), date(7, 9, 0)},
		{"weekday evening rolls to next morning", date(8, 20, 0), date(9, 9, 0)},
		{"monday opening unchanged", date(6, 9, 0), date(6, 9, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.AdjustToBusinessHours(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdjustToBusinessHoursIdempotent(t *testing.T) {
	s := NewScheduler(time.UTC)

	samples := []time.Time{
		date(3, 16, 59),
		date(3, 17, 0),
		date(4, 10, 0),
		date(5, 23, 0),
		date(6, 0, 0),
		date(7, 12, 30),
		date(8, 8, 59),
		date(8, 23, 59),
	}
	for _, sample := range samples {
		once := s.AdjustToBusinessHours(sample)
		twice := s.AdjustToBusinessHours(once)
		assert.Equal(t, once, twice, "not idempotent for %v", sample)
	}
}

func TestAdjustToBusinessHoursLogsWhenClamping(t *testing.T) {
	// A zero-width window can never converge; every weekday hour is
	// "after close" and keeps rolling forward.
	logger, hook := logrustest.NewNullLogger()
	s := &Scheduler{Location: time.UTC, StartHour: 9, EndHour: 9, Log: logger}

	got := s.AdjustToBusinessHours(date(7, 10, 0))

	assert.Equal(t, 9, got.Hour())
	require.NotEmpty(t, hook.Entries)
	last := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, 9, last.Data["end_hour"])
}

func TestNextSendTimeZeroDelayMinimum(t *testing.T) {
	s := NewScheduler(time.UTC)

	now := date(7, 10, 0) // Tuesday
	got := s.NextSendTime(now, 0, 0)
	assert.Equal(t, date(7, 10, 5), got)
	assert.True(t, got.Sub(now) >= 5*time.Minute)
}

func TestNextSendTimeDelaysAreAdditive(t *testing.T) {
	s := NewScheduler(time.UTC)

	// Tuesday 10:00 + 1 day + 2 hours = Wednesday 12:00
	got := s.NextSendTime(date(7, 10, 0), 2, 1)
	assert.Equal(t, date(8, 12, 0), got)
}

func TestNextSendTimeClampsAfterDelay(t *testing.T) {
	s := NewScheduler(time.UTC)

	// Tuesday 16:58 with zero delay becomes 17:03, outside the window,
	// so it rolls to Wednesday opening.
	got := s.NextSendTime(date(7, 16, 58), 0, 0)
	assert.Equal(t, date(8, 9, 0), got)

	// Saturday 14:00 signup with an immediate first message lands on
	// Monday at opening time.
	got = s.NextSendTime(date(4, 14, 0), 0, 0)
	assert.Equal(t, date(6, 9, 0), got)
}

func TestNextSendTimeLongDelayCrossesWeekend(t *testing.T) {
	s := NewScheduler(time.UTC)

	// Friday 10:00 + 1 day = Saturday 10:00, which rolls to Monday.
	got := s.NextSendTime(date(3, 10, 0), 0, 1)
	assert.Equal(t, date(6, 9, 0), got)
}

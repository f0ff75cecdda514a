package automation

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Never schedule "immediately": leave room for the dispatch worker
	// to pick the row up asynchronously.
	minimumDelay = 5 * time.Minute

	// A single adjustment needs at most a weekend roll, an evening roll,
	// and one more weekend check. More passes than that means the clock
	// arithmetic is broken, so the loop clamps instead of spinning.
	maxAdjustPasses = 4
)

// Scheduler computes future send times inside the practice's business
// window: StartHour–EndHour, Monday through Friday, in Location.
type Scheduler struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	Log       *logrus.Logger
}

// NewScheduler returns a scheduler for the 09:00-17:00 weekday window.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Location:  loc,
		StartHour: 9,
		EndHour:   17,
		Log:       logrus.New(),
	}
}

// NextSendTime applies the message's delay to now and clamps the result
// to business hours. Day and hour delays are additive; a zero delay is
// bumped to the 5-minute minimum before the clamp.
func (s *Scheduler) NextSendTime(now time.Time, delayHours, delayDays int) time.Time {
	t := now.In(s.Location)
	if delayHours == 0 && delayDays == 0 {
		t = t.Add(minimumDelay)
	} else {
		t = t.AddDate(0, 0, delayDays).Add(time.Duration(delayHours) * time.Hour)
	}
	return s.AdjustToBusinessHours(t)
}

// AdjustToBusinessHours moves a timestamp forward to the next slot inside
// the business window. Weekends roll forward to Monday at opening time;
// early mornings clamp to opening time; evenings roll to the next day's
// opening and are re-checked in case they land on a weekend. Applying it
// to an already-adjusted timestamp returns the same timestamp.
func (s *Scheduler) AdjustToBusinessHours(t time.Time) time.Time {
	t = t.In(s.Location)
	for i := 0; i < maxAdjustPasses; i++ {
		switch t.Weekday() {
		case time.Saturday:
			t = s.openingTime(t.AddDate(0, 0, 2))
			continue
		case time.Sunday:
			t = s.openingTime(t.AddDate(0, 0, 1))
			continue
		}
		if t.Hour() < s.StartHour {
			return s.openingTime(t)
		}
		if t.Hour() >= s.EndHour {
			t = s.openingTime(t.AddDate(0, 0, 1))
			continue
		}
		return t
	}
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"timestamp":  t,
			"start_hour": s.StartHour,
			"end_hour":   s.EndHour,
		}).Error("Business-hours adjustment did not converge, clamping to opening time")
	}
	return s.openingTime(t)
}

// openingTime pins t to StartHour:00 on the same day.
func (s *Scheduler) openingTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), s.StartHour, 0, 0, 0, s.Location)
}

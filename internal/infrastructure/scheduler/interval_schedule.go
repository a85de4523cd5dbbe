package scheduler

import "time"

// IntervalSchedule fires a job at a fixed period, measured from the end
// of the previous run.
type IntervalSchedule struct {
	every time.Duration
}

// NewIntervalSchedule builds a schedule firing every d. Non-positive
// durations are clamped to one minute.
func NewIntervalSchedule(d time.Duration) *IntervalSchedule {
	if d <= 0 {
		d = time.Minute
	}
	return &IntervalSchedule{every: d}
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.every)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.every.String()
}

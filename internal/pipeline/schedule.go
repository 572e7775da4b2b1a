package pipeline

import (
	"time"

	"github.com/robfig/cron/v3"
)

// everySchedule fires a fixed duration after the previous tick start.
// cron.Every rounds to whole seconds; this does not.
type everySchedule struct {
	every time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

// NewSchedule returns a cron schedule for expr, or a fixed interval when expr
// is empty.
func NewSchedule(interval time.Duration, expr string) (cron.Schedule, error) {
	if expr == "" {
		return everySchedule{every: interval}, nil
	}
	return cron.ParseStandard(expr)
}

package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/robfig/cron/v3"
)

// cronParser supports standard 5-field cron expressions and descriptors like @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression and returns a Schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// ScheduleFor returns the cron expression configured for l, or an
// "@every <interval>m" schedule built from its interval.
func ScheduleFor(l loop.Loop) (cron.Schedule, error) {
	if expr := cronExpr(l); expr != "" {
		sched, err := ParseSchedule(expr)
		if err != nil {
			return nil, goerr.Wrap(err, "parse loop schedule", goerr.V("loop", l.Name()), goerr.V("schedule", expr))
		}
		return sched, nil
	}
	if l.IntervalMinutes() <= 0 {
		return nil, goerr.New("loop has no interval", goerr.V("loop", l.Name()))
	}
	return cron.Every(time.Duration(l.IntervalMinutes()) * time.Minute), nil
}

// scheduleKey identifies the schedule ScheduleFor would build for l.
func scheduleKey(l loop.Loop) string {
	if expr := cronExpr(l); expr != "" {
		return expr
	}
	return fmt.Sprintf("@every %dm", l.IntervalMinutes())
}

func cronExpr(l loop.Loop) string {
	if s, ok := l.(loop.Scheduled); ok {
		return strings.TrimSpace(s.Schedule())
	}
	return ""
}

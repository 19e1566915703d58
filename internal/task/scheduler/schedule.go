package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind tells how a schedule string was read.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Schedule is a schedule string resolved to a cron spec.
type Schedule struct {
	Kind  Kind
	Spec  string
	Every time.Duration // KindInterval only
}

// specParser accepts 5-field and 6-field (with seconds) specs and descriptors.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reads one of:
//   - "HH:MM": every day at that time in the scheduler zone ("19:00")
//   - a cron expression or descriptor ("0 19 * * 0-4", "@daily")
//   - a Go duration, run at that interval ("5m")
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		if _, err := specParser.Parse(s); err != nil {
			return Schedule{}, fmt.Errorf("invalid cron %q: %w", s, err)
		}
		return Schedule{Kind: KindCron, Spec: s}, nil
	}
	if strings.Contains(s, ":") {
		h, m, err := parseHHMM(s)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: KindDaily, Spec: fmt.Sprintf("%d %d * * *", m, h)}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q (use HH:MM, a cron expression or a duration like 5m)", raw)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: KindInterval, Spec: "@every " + d.String(), Every: d}, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || len(ms) != 2 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

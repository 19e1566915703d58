package app

import (
	"context"
	"time"

	"mtcbot/internal/config"
	logx "mtcbot/pkg/logx"
)

const (
	jobReminder = "homework-reminder"
	jobSweep    = "ratelimit-sweep"
)

// registerJobs (re)installs the scheduled jobs for cfg. Jobs are upserted
// by name, so calling it on every reload is safe.
func (a *App) registerJobs(cfg *config.Config) error {
	rc, err := mapReminder(cfg)
	if err != nil {
		return err
	}
	if rc.enabled {
		if _, err := a.sched.AddSchedule(jobReminder, rc.at, rc.timeout, a.remindHomework); err != nil {
			return err
		}
	} else {
		a.sched.Remove(jobReminder)
	}

	every, err := dur("rate_limit.sweep_every", cfg.RateLimit.SweepEvery, 5*time.Minute)
	if err != nil {
		return err
	}
	_, err = a.sched.AddInterval(jobSweep, every, 10*time.Second, a.sweepLimiter)
	return err
}

func (a *App) remindHomework(ctx context.Context) error {
	res, sent, err := a.broadcast.HomeworkReminder(ctx, a.store)
	if err != nil {
		return err
	}
	if sent {
		a.log.Info("homework reminder sent",
			logx.Int("attempted", res.Attempted),
			logx.Int("succeeded", res.Succeeded),
			logx.Int("failed", res.Failed),
		)
	}
	return nil
}

func (a *App) sweepLimiter(context.Context) error {
	if n := a.limiter.Sweep(); n > 0 {
		a.log.Debug("rate limit state swept", logx.Int("removed", n), logx.Int("tracked", a.limiter.Len()))
	}
	return nil
}

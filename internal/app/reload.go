package app

import (
	"context"
	"strings"
	"time"

	"mtcbot/internal/config"
	"mtcbot/internal/eventbus"
	logx "mtcbot/pkg/logx"
)

// reloadLoop applies committed config changes to the running components.
// Sections listed by config.RequiresRestart are only reported.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	chatID, threadID := logTarget(next)
	a.adapter.SetLogTarget(chatID, threadID)
	a.logs.Apply(mapLogging(next))

	opSet := operatorSet(next)
	a.operators.Store(&opSet)
	a.dispatcher.SetNotices(mapNotices(next))

	if rl, err := mapRateLimit(next); err == nil {
		a.limiter.Apply(rl)
	}
	if bc, err := mapBroadcast(next); err == nil {
		a.broadcast.Apply(bc)
	}
	if has(sections, "content") || has(sections, "scheduler") {
		if loc, err := location(next); err == nil {
			a.loc = loc
			a.broadcast.SetLocation(loc)
		}
		if public, operator, err := a.buildCommands(next, a.log); err != nil {
			a.log.Warn("content rejected; keeping previous commands", logx.Err(err))
		} else {
			a.dispatcher.SetRouters(public, operator)
		}
	}

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapScheduler(next))
	if err := a.registerJobs(next); err != nil {
		a.log.Warn("scheduled jobs not updated", logx.Err(err))
	}
	switch {
	case wasEnabled && !next.Scheduler.Enabled:
		sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(sctx)
		cancel()
	case !wasEnabled && next.Scheduler.Enabled:
		a.sched.Start(ctx)
	}

	if oc, err := mapOps(next); err == nil {
		a.ops.Reconfigure(ctx, oc)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func has(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

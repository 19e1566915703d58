// Package app wires the configured components together and owns their
// lifecycle: start order, config hot reload and bounded shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mtcbot/internal/ai"
	"mtcbot/internal/broadcast"
	"mtcbot/internal/commands"
	"mtcbot/internal/config"
	"mtcbot/internal/dispatch"
	"mtcbot/internal/eventbus"
	"mtcbot/internal/observability/ops"
	"mtcbot/internal/ratelimit"
	"mtcbot/internal/router"
	rtsup "mtcbot/internal/runtime/supervisor"
	"mtcbot/internal/storage"
	"mtcbot/internal/task/scheduler"
	"mtcbot/internal/transport"
	telegram "mtcbot/internal/transport/telegram/adapter"
	logx "mtcbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	tracker *storage.AsyncTracker
	adapter *telegram.Adapter

	limiter    *ratelimit.Limiter
	broadcast  *broadcast.Service
	dispatcher *dispatch.Dispatcher
	sched      *scheduler.Service
	ops        *ops.Service

	commands  atomic.Pointer[commands.Commands]
	operators atomic.Pointer[map[string]struct{}]
	loc       *time.Location

	intake  *intake
	updates chan transport.Update
}

// New loads the config at cfgPath and builds every component. Nothing
// runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bootLog := logx.NewConsole("info").With(logx.String("comp", "telegram"))
	pollTimeout, err := dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bc, err := mapBroadcast(cfg)
	if err != nil {
		return nil, err
	}
	chatID, threadID := logTarget(cfg)
	ad, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		RequestTimeout: bc.SendTimeout,
		LogChatID:      chatID,
		LogThreadID:    threadID,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg), ad)
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
	}
	if err := a.build(cfg, log); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) (err error) {
	if a.loc, err = location(cfg); err != nil {
		return err
	}

	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.log.Info("storage ready", logx.String("driver", sc.Driver))
	a.tracker = storage.NewAsyncTracker(a.store, cfg.Storage.TrackQueue, log.With(logx.String("comp", "tracker")))

	rl, err := mapRateLimit(cfg)
	if err != nil {
		return err
	}
	a.limiter = ratelimit.New(rl)

	bc, err := mapBroadcast(cfg)
	if err != nil {
		return err
	}
	a.broadcast = broadcast.New(bc, a.adapter, a.store, a.store,
		log.With(logx.String("comp", "broadcast")), broadcast.WithBus(a.bus), broadcast.WithLocation(a.loc))

	public, operator, err := a.buildCommands(cfg, log)
	if err != nil {
		return err
	}
	opSet := operatorSet(cfg)
	a.operators.Store(&opSet)

	aic, err := mapAI(cfg, a.loc)
	if err != nil {
		return err
	}
	responder, err := ai.New(context.Background(), aic, log.With(logx.String("comp", "ai")))
	if err != nil {
		return err
	}

	a.dispatcher = dispatch.New(dispatch.Deps{
		Limiter:    a.limiter,
		Public:     public,
		Operator:   operator,
		IsOperator: a.isOperator,
		Fallback:   responder,
		Tracker:    a.tracker,
		Notices:    mapNotices(cfg),
		Log:        log.With(logx.String("comp", "dispatch")),
		Bus:        a.bus,
	})

	a.sched = scheduler.New(mapScheduler(cfg), log.With(logx.String("comp", "scheduler")), a.bus)

	oc, err := mapOps(cfg)
	if err != nil {
		return err
	}
	a.ops = ops.New(oc, a.stats, log.With(logx.String("comp", "ops")))

	ic, err := mapIntake(cfg)
	if err != nil {
		return err
	}
	a.updates = make(chan transport.Update, ic.queueSize)
	a.intake = &intake{
		cfg:      ic,
		updates:  a.updates,
		dispatch: a.dispatcher,
		sender:   a.adapter,
		tracker:  a.tracker,
		welcome:  func() transport.Reply { return a.commands.Load().Welcome() },
		log:      log.With(logx.String("comp", "intake")),
	}
	return nil
}

// buildCommands compiles the content and stores the result. The routers
// are returned for the dispatcher.
func (a *App) buildCommands(cfg *config.Config, log logx.Logger) (public, operator *router.Router, err error) {
	content, err := mapContent(cfg)
	if err != nil {
		return nil, nil, err
	}
	pub, op, cmds, err := commands.Build(commands.Deps{
		Content:     content,
		Store:       a.store,
		Broadcaster: a.broadcast,
		Location:    a.loc,
		Log:         log.With(logx.String("comp", "commands")),
	})
	if err != nil {
		return nil, nil, err
	}
	a.commands.Store(cmds)
	return pub, op, nil
}

func (a *App) isOperator(sender string) bool {
	_, ok := (*a.operators.Load())[sender]
	return ok
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		return err
	}

	a.sup.Go("intake", a.intake.run)
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sched.Start(run)
	a.ops.Start(run)

	tz := a.loc.String()
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Int("operators", len(*a.operators.Load())),
		logx.String("timezone", tz),
	)
	return nil
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// validate runs before a reloaded config is committed.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	loc, err := location(cfg)
	if err != nil {
		return err
	}
	content, err := mapContent(cfg)
	if err != nil {
		return err
	}
	if _, err := commands.New(commands.Deps{Content: content, Location: loc}); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if _, err := mapIntake(cfg); err != nil {
		return err
	}
	if _, err := mapReminder(cfg); err != nil {
		return err
	}
	_, err = mapOps(cfg)
	return err
}

// Stop shuts components down in reverse dependency order. Each step gets
// its own bound so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	step("tracker", 2*time.Second, a.tracker.Close)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Uint64("tracker_dropped", a.tracker.Dropped()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// stats is served on the ops /stats endpoint.
func (a *App) stats(ctx context.Context) any {
	users, err := a.store.CountActive(ctx)
	out := map[string]any{
		"active_users":    users,
		"rate_limited":    a.limiter.Len(),
		"tracker_dropped": a.tracker.Dropped(),
		"log_dropped":     a.logs.Dropped(),
		"scheduler":       a.sched.Snapshot(),
	}
	if err != nil {
		out["active_users_err"] = err.Error()
	}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if s := a.adapter.Supervisor(); s != nil {
		out["telegram"] = s.Snapshot()
	}
	if hist, err := a.store.RecentHistory(ctx, 5); err == nil {
		recent := make([]string, 0, len(hist))
		for _, h := range hist {
			recent = append(recent, fmt.Sprintf("%s %d/%d by %s", h.At.Format(time.RFC3339), h.Succeeded, h.Attempted, strings.TrimSpace(h.OperatorID)))
		}
		out["recent_broadcasts"] = recent
	}
	return out
}

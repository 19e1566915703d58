// Package broadcast delivers one operator message to every active
// recipient, individually, and reports what happened.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mtcbot/internal/eventbus"
	"mtcbot/internal/observability/metrics"
	"mtcbot/internal/storage"
	kit "mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Result is the outcome of one broadcast. Attempted == Succeeded + Failed.
type Result struct {
	Attempted int
	Succeeded int
	Failed    int
	Summary   string
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	dir    storage.Directory
	hist   storage.History
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
	loc    *time.Location // guarded by mu
}

type Option func(*Service)

func WithBus(b eventbus.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone "tomorrow" is computed in for reminders.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(cfg Config, sender kit.Sender, dir storage.Directory, hist storage.History, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sender:  sender,
		dir:     dir,
		hist:    hist,
		log:     log,
		bus:     eventbus.Nop{},
		now:     time.Now,
		loc:     time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps pool size, pacing and send timeout for the next broadcast.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetLocation swaps the reminder zone. A nil loc is ignored.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// Broadcast sends body to a snapshot of the active recipients. Sends run on
// a bounded pool and are not retried; one failure never stops the others.
// Once started, a broadcast runs to completion even if ctx is cancelled.
func (s *Service) Broadcast(ctx context.Context, operatorID, body string) Result {
	start := s.now()
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	var res Result
	recipients, err := s.dir.ListActive(ctx)
	if err != nil {
		s.log.Error("list recipients failed", logx.Err(err))
	}

	if len(recipients) > 0 {
		var ok, failed atomic.Int64
		jobs := make(chan storage.Recipient)
		var wg sync.WaitGroup

		workers := min(cfg.Workers, len(recipients))
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for r := range jobs {
					if err := s.sendOne(ctx, lim, cfg.SendTimeout, r, body); err != nil {
						failed.Add(1)
						metrics.BroadcastSendsTotal.WithLabelValues("failed").Inc()
						continue
					}
					ok.Add(1)
					metrics.BroadcastSendsTotal.WithLabelValues("ok").Inc()
				}
			}()
		}
		for _, r := range recipients {
			jobs <- r
		}
		close(jobs)
		wg.Wait()

		res.Succeeded, res.Failed = int(ok.Load()), int(failed.Load())
	}
	res.Attempted = res.Succeeded + res.Failed
	res.Summary = summarize(res)

	took := s.now().Sub(start)
	metrics.BroadcastDuration.Observe(took.Seconds())

	entry := storage.HistoryEntry{
		OperatorID: operatorID,
		Body:       body,
		Attempted:  res.Attempted,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		At:         s.now(),
	}
	if err := s.hist.AppendHistory(ctx, entry); err != nil {
		s.log.Warn("save broadcast history failed", logx.String("operator", operatorID), logx.Err(err))
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastFinished, Data: eventbus.BroadcastFinished{
		OperatorID: operatorID,
		Attempted:  res.Attempted,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Took:       took,
	}})

	fields := []logx.Field{
		logx.String("operator", operatorID),
		logx.Int("attempted", res.Attempted),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", took),
	}
	if res.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return res
}

func (s *Service) sendOne(ctx context.Context, lim *rate.Limiter, timeout time.Duration, r storage.Recipient, body string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("panic in broadcast send", logx.String("recipient", r.ID), logx.Panic(p))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	to, err := kit.TargetFor(r.ID)
	if err != nil {
		s.log.Warn("broadcast skipped bad recipient", logx.String("recipient", r.ID), logx.Err(err))
		return err
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err = s.sender.SendText(sctx, to, body, nil); err == nil {
		return nil
	}

	s.log.Warn("broadcast send failed", logx.String("recipient", r.ID), logx.Err(err))
	if errors.Is(err, kit.ErrRecipientGone) {
		if derr := s.dir.Deactivate(ctx, r.ID); derr != nil {
			s.log.Debug("deactivate recipient failed", logx.String("recipient", r.ID), logx.Err(derr))
		} else {
			s.log.Info("recipient deactivated", logx.String("recipient", r.ID))
		}
	}
	return err
}

func summarize(r Result) string {
	if r.Attempted == 0 {
		return "⚠️ ไม่พบผู้รับข้อความ"
	}
	msg := fmt.Sprintf("✅ ส่งสำเร็จ: %d คน", r.Succeeded)
	if r.Failed > 0 {
		msg += fmt.Sprintf("\n❌ ล้มเหลว: %d คน", r.Failed)
	}
	return msg
}

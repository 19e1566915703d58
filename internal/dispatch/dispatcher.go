// Package dispatch turns one inbound message into exactly one reply.
//
// The path is: empty check, rate limit, operator rules, public rules, AI
// fallback. Every failure on that path ends in a fixed notice.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"mtcbot/internal/ai"
	"mtcbot/internal/eventbus"
	"mtcbot/internal/observability/metrics"
	"mtcbot/internal/ratelimit"
	"mtcbot/internal/router"
	"mtcbot/internal/storage"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

// AnonymousPrefix marks sender ids synthesized for messages without a
// user identity. They are rate limited but never tracked as recipients.
const AnonymousPrefix = "anon:"

type Outcome int

const (
	Empty Outcome = iota
	RateLimited
	Matched
	Fallback
)

func (o Outcome) String() string {
	switch o {
	case Empty:
		return "empty"
	case RateLimited:
		return "rate_limited"
	case Matched:
		return "matched"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

type Inbound struct {
	Sender      string
	DisplayName string
	Text        string
}

type Result struct {
	Outcome Outcome
	Reply   transport.Reply
	// Rule and Keyword are set for Matched.
	Rule    string
	Keyword string
	Verdict ratelimit.Verdict
}

// Deliverable is false only for the silent cooldown tier.
func (r Result) Deliverable() bool { return r.Reply.Valid() }

// Gate is the rate limiter as the dispatcher sees it.
type Gate interface {
	Check(sender string) ratelimit.Verdict
}

type Deps struct {
	Limiter Gate
	Public  *router.Router
	// Operator rules are tried before public rules, for operators only.
	Operator   *router.Router
	IsOperator func(sender string) bool
	Fallback   ai.Responder
	Tracker    storage.Tracker
	Notices    Notices
	Log        logx.Logger
	Bus        eventbus.Bus
}

// routes is swapped as a unit so one message never sees public rules from
// one config and operator rules from another.
type routes struct {
	public   *router.Router
	operator *router.Router
}

type Dispatcher struct {
	limiter    Gate
	routes     atomic.Pointer[routes]
	isOperator func(string) bool
	fallback   ai.Responder
	tracker    storage.Tracker
	log        logx.Logger
	bus        eventbus.Bus
	invoker    *Invoker

	notices atomic.Pointer[Notices]
	now     func() time.Time
}

func New(d Deps) *Dispatcher {
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if d.IsOperator == nil {
		d.IsOperator = func(string) bool { return false }
	}
	if d.Fallback == nil {
		d.Fallback = ai.Disabled{}
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	x := &Dispatcher{
		limiter:    d.Limiter,
		isOperator: d.IsOperator,
		fallback:   d.Fallback,
		tracker:    d.Tracker,
		log:        d.Log,
		bus:        d.Bus,
		now:        time.Now,
	}
	x.SetNotices(d.Notices)
	x.SetRouters(d.Public, d.Operator)
	x.invoker = NewInvoker(d.Log, func() string { return x.notices.Load().ActionFailed })
	return x
}

// SetNotices swaps the notice texts; blank entries keep their defaults.
func (x *Dispatcher) SetNotices(n Notices) {
	n = n.WithDefaults()
	x.notices.Store(&n)
}

// SetRouters replaces the rule sets used for subsequent messages. A nil
// public router matches nothing.
func (x *Dispatcher) SetRouters(public, operator *router.Router) {
	x.routes.Store(&routes{public: public, operator: operator})
}

// Dispatch never panics and never returns an invalid reply except for the
// silent cooldown tier.
func (x *Dispatcher) Dispatch(ctx context.Context, in Inbound) (res Result) {
	start := x.now()
	notices := x.notices.Load()
	// stage is the outcome a panic is reported under.
	stage := Empty
	defer func() {
		if p := recover(); p != nil {
			x.log.Error("panic in dispatch", logx.Sender(in.Sender), logx.String("stage", stage.String()), logx.Panic(p))
			res = Result{Outcome: stage, Reply: transport.Text(notices.ActionFailed)}
		}
		x.observe(in.Sender, res, x.now().Sub(start))
	}()

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{Outcome: Empty, Reply: transport.Text(notices.InvalidMessage)}
	}

	stage = RateLimited
	x.track(ctx, in)

	v := x.limiter.Check(in.Sender)
	switch v.Tier {
	case ratelimit.Banned:
		if v.Count > 0 {
			// Ban created by this message.
			x.log.Warn("sender banned", logx.Sender(in.Sender), logx.Duration("for", v.Remaining))
			x.bus.Publish(eventbus.Event{Type: eventbus.TypeSenderBanned, Data: eventbus.SenderBanned{Sender: in.Sender, For: v.Remaining}})
		}
		return Result{Outcome: RateLimited, Verdict: v, Reply: transport.Text(notices.banned(v.Remaining))}
	case ratelimit.Cooldown:
		return Result{Outcome: RateLimited, Verdict: v}
	case ratelimit.Slowdown:
		return Result{Outcome: RateLimited, Verdict: v, Reply: transport.Text(notices.Slowdown)}
	}

	stage = Matched
	rin := router.Input{Sender: in.Sender, DisplayName: in.DisplayName, Text: text}
	rs := x.routes.Load()
	if rs.operator != nil && x.isOperator(in.Sender) {
		if m, ok := rs.operator.Resolve(text); ok {
			return x.matched(ctx, m, rin, v)
		}
	}
	if rs.public != nil {
		if m, ok := rs.public.Resolve(text); ok {
			return x.matched(ctx, m, rin, v)
		}
	}

	stage = Fallback
	reply, err := x.fallback.Generate(ctx, text)
	if err != nil || strings.TrimSpace(reply) == "" {
		metrics.FallbackErrorsTotal.Inc()
		if err != nil && !errors.Is(err, ai.ErrDisabled) {
			x.log.Warn("ai fallback failed", logx.Sender(in.Sender), logx.Err(err))
		}
		return Result{Outcome: Fallback, Verdict: v, Reply: transport.Text(notices.AIUnavailable)}
	}
	return Result{Outcome: Fallback, Verdict: v, Reply: transport.Text(reply)}
}

func (x *Dispatcher) matched(ctx context.Context, m router.Match, in router.Input, v ratelimit.Verdict) Result {
	reply := x.invoker.Invoke(ctx, m, in)
	return Result{Outcome: Matched, Reply: reply, Rule: m.Rule.Name, Keyword: m.Keyword, Verdict: v}
}

func (x *Dispatcher) track(ctx context.Context, in Inbound) {
	if x.tracker == nil || in.Sender == "" || strings.HasPrefix(in.Sender, AnonymousPrefix) {
		return
	}
	if err := x.tracker.RecordSeen(ctx, in.Sender, in.DisplayName); err != nil {
		x.log.Warn("record seen failed", logx.Sender(in.Sender), logx.Err(err))
	}
}

func (x *Dispatcher) observe(sender string, res Result, took time.Duration) {
	outcome := res.Outcome.String()
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(outcome).Observe(took.Seconds())
	switch res.Outcome {
	case Matched:
		metrics.RuleHitsTotal.WithLabelValues(res.Rule).Inc()
	case RateLimited:
		metrics.RateLimitedTotal.WithLabelValues(res.Verdict.Tier.String()).Inc()
	}
	x.bus.Publish(eventbus.Event{Type: eventbus.TypeMessageDispatched, Data: eventbus.MessageDispatched{
		Sender:  sender,
		Outcome: outcome,
		Rule:    res.Rule,
		Took:    took,
	}})
	x.log.Debug("message dispatched",
		logx.Sender(sender),
		logx.String("outcome", outcome),
		logx.String("rule", res.Rule),
		logx.Duration("took", took),
	)
}

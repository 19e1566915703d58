package dispatch

import (
	"context"
	"fmt"

	"mtcbot/internal/observability/metrics"
	"mtcbot/internal/router"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

// Invoker runs the handler of a matched rule and always produces a
// deliverable reply.
type Invoker struct {
	log    logx.Logger
	failed func() string
}

func NewInvoker(log logx.Logger, failed func() string) *Invoker {
	if failed == nil {
		def := DefaultNotices().ActionFailed
		failed = func() string { return def }
	}
	return &Invoker{log: log, failed: failed}
}

// Invoke calls the handler with the input it declared it needs. Errors,
// panics and empty replies become the action-failed notice.
func (iv *Invoker) Invoke(ctx context.Context, m router.Match, in router.Input) transport.Reply {
	in.Keyword = m.Keyword
	reply, err := iv.call(ctx, m.Rule.Handler, in)
	if err == nil && !reply.Valid() {
		err = fmt.Errorf("handler returned an empty reply")
	}
	if err != nil {
		metrics.ActionFailuresTotal.WithLabelValues(m.Rule.Name).Inc()
		iv.log.Error("command failed",
			logx.String("rule", m.Rule.Name),
			logx.String("keyword", m.Keyword),
			logx.Sender(in.Sender),
			logx.Err(err),
		)
		return transport.Text(iv.failed())
	}
	return reply
}

func (iv *Invoker) call(ctx context.Context, h router.Handler, in router.Input) (reply transport.Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			iv.log.Error("panic in command handler", logx.Panic(p))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	switch fn := h.(type) {
	case router.TextHandler:
		return fn(ctx, in)
	case router.NoArgHandler:
		return fn(ctx)
	default:
		return transport.Reply{}, fmt.Errorf("unsupported handler %T", h)
	}
}

package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"mtcbot/internal/dispatch"
	"mtcbot/internal/observability/metrics"
	rtsup "mtcbot/internal/runtime/supervisor"
	"mtcbot/internal/storage"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

// deliverTimeout bounds the reply send. It starts after the handler
// returns, so a slow command (an operator broadcast) still gets its reply out.
const deliverTimeout = 15 * time.Second

// Dispatcher is the part of *dispatch.Dispatcher the intake needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Inbound) dispatch.Result
}

// intake drains the adapter's update channel with a fixed pool of workers.
// Each update runs under its own timeout and a panic in one never takes
// the worker down.
type intake struct {
	cfg      intakeConfig
	updates  <-chan transport.Update
	dispatch Dispatcher
	sender   transport.Sender
	tracker  storage.Tracker
	welcome  func() transport.Reply
	log      logx.Logger
}

// run blocks until ctx is done or updates is closed.
func (in *intake) run(ctx context.Context) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(in.log),
		rtsup.WithCancelOnError(false),
	)
	in.log.Info("intake started", logx.Int("workers", in.cfg.workers), logx.Int("queue_cap", cap(in.updates)))

	for i := 0; i < in.cfg.workers; i++ {
		idx := i
		sup.GoRestart("intake.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-in.updates:
					if !ok {
						return nil
					}
					in.handle(c, idx, up)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	<-ctx.Done()
	wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sup.Stop(wctx)
	in.log.Info("intake stopped")
	return nil
}

func (in *intake) handle(root context.Context, worker int, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("panic in intake", logx.Int("worker", worker), logx.Panic(r))
		}
	}()

	ctx, cancel := context.WithTimeout(root, in.cfg.timeout)
	defer cancel()

	sender := senderID(msg)
	var reply transport.Reply
	switch up.Kind {
	case transport.UpdateStart:
		if in.tracker != nil && !strings.HasPrefix(sender, dispatch.AnonymousPrefix) {
			if err := in.tracker.RecordSeen(ctx, sender, msg.FromName); err != nil {
				in.log.Warn("record seen failed", logx.Sender(sender), logx.Err(err))
			}
		}
		reply = in.welcome()
	case transport.UpdateMessage:
		res := in.dispatch.Dispatch(ctx, dispatch.Inbound{
			Sender:      sender,
			DisplayName: msg.FromName,
			Text:        msg.Text,
		})
		if !res.Deliverable() {
			return
		}
		reply = res.Reply
	default:
		return
	}

	dctx, dcancel := context.WithTimeout(context.WithoutCancel(root), deliverTimeout)
	defer dcancel()
	if err := transport.Deliver(dctx, in.sender, msg.Chat(), reply); err != nil {
		metrics.DeliveryErrorsTotal.Inc()
		in.log.Warn("reply not delivered",
			logx.Sender(sender),
			logx.ChatID(msg.ChatID),
			logx.Err(err),
		)
	}
}

// senderID falls back to the chat for messages without a user, such as
// channel posts, so they are still rate limited.
func senderID(m *transport.Message) string {
	if id := m.SenderID(); id != "" {
		return id
	}
	return dispatch.AnonymousPrefix + strconv.FormatInt(m.ChatID, 10)
}

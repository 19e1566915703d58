package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"mtcbot/internal/observability/metrics"
	rtsup "mtcbot/internal/runtime/supervisor"
	kit "mtcbot/internal/transport"
	"mtcbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RequestTimeout bounds one Bot API call on top of the long-poll wait.
	// telebot's Send takes no context, so this HTTP client timeout is what
	// stops a hung send. Fixed at startup.
	RequestTimeout time.Duration
	// LogChatID receives mirrored log lines (0 disables).
	LogChatID   int64
	LogThreadID int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// droppedUpdates counts updates lost because the intake queue was full.
	droppedUpdates atomic.Uint64

	logMu     sync.Mutex
	logTarget kit.ChatTarget
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		Client: &http.Client{Timeout: clientTimeout(timeout, cfg.RequestTimeout)},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:       cfg,
		log:       log,
		bot:       b,
		logTarget: kit.ChatTarget{ChatID: cfg.LogChatID, ThreadID: cfg.LogThreadID},
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// clientTimeout leaves getUpdates its full poll wait and gives every call
// req more on top. The client is shared by polling and sending.
func clientTimeout(poll, req time.Duration) time.Duration {
	if req <= 0 {
		req = 10 * time.Second
	}
	return poll + req
}

// Supervisor returns the adapter's internal supervisor (nil if stopped).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

// SetLogTarget changes the operator chat used by PostLog.
func (a *Adapter) SetLogTarget(chatID int64, threadID int) {
	a.logMu.Lock()
	a.logTarget = kit.ChatTarget{ChatID: chatID, ThreadID: threadID}
	a.logMu.Unlock()
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		if up, ok := updateFrom(c.Message(), kit.UpdateStart); ok {
			a.sendUpdate(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := updateFrom(c.Message(), kit.UpdateMessage); ok {
			a.sendUpdate(up)
		}
		return nil
	})
}

func updateFrom(m *tele.Message, kind kit.UpdateKind) (kit.Update, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	name := strings.TrimSpace(strings.TrimSpace(m.Sender.FirstName) + " " + strings.TrimSpace(m.Sender.LastName))
	if name == "" {
		name = m.Sender.Username
	}
	return kit.Update{
		Kind: kind,
		Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			FromName:     name,
			Text:         m.Text,
			IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		},
	}, true
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
		metrics.IntakeDroppedTotal.Inc()
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (intake full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until bot.Stop; restart it if it returns early.
	sup.GoRestart0("telebot.poll", func(context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()

	// Long polling can hold getUpdates open; cap the wait.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitText(text, textLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, url, caption string) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// PostLog implements logx.Sink.
func (a *Adapter) PostLog(ctx context.Context, text string) error {
	a.logMu.Lock()
	to := a.logTarget
	a.logMu.Unlock()
	if to.ChatID == 0 {
		return nil
	}
	_, err := a.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// classify maps permanent delivery failures onto kit.ErrRecipientGone.
func classify(err error) error {
	var tgErr *tele.Error
	if errors.As(err, &tgErr) {
		desc := strings.ToLower(tgErr.Description)
		if tgErr.Code == 403 || strings.Contains(desc, "chat not found") || strings.Contains(desc, "user is deactivated") {
			return errors.Join(kit.ErrRecipientGone, err)
		}
	}
	return err
}

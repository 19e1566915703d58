package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"mtcbot/internal/ai"
	"mtcbot/internal/broadcast"
	"mtcbot/internal/commands"
	"mtcbot/internal/config"
	"mtcbot/internal/dispatch"
	"mtcbot/internal/observability/ops"
	"mtcbot/internal/ratelimit"
	"mtcbot/internal/storage"
	"mtcbot/internal/task/scheduler"
	logx "mtcbot/pkg/logx"
)

// Mapping from the on-disk config to each component's own Config. Every
// mapper validates what it parses so the reload validator can reuse them.

func dur(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget resolves telegram.group_log. A blank or malformed value
// disables chat mirroring.
func logTarget(cfg *config.Config) (chatID int64, threadID int) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, 0
	}
	return id, cfg.Logging.Telegram.ThreadID
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := dur("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   strings.TrimSpace(sc.Redis.Prefix),
		},
	}, nil
}

func mapRateLimit(cfg *config.Config) (ratelimit.Config, error) {
	rl := cfg.RateLimit
	window, err := dur("rate_limit.window", rl.Window, ratelimit.DefaultWindow)
	if err != nil {
		return ratelimit.Config{}, err
	}
	ban, err := dur("rate_limit.ban_duration", rl.BanDuration, ratelimit.DefaultBanDuration)
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Config{MaxPerWindow: rl.MaxMessagesPerWindow, Window: window, BanDuration: ban}, nil
}

func mapBroadcast(cfg *config.Config) (broadcast.Config, error) {
	timeout, err := dur("broadcast.send_timeout", cfg.Broadcast.SendTimeout, 10*time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		Workers:     cfg.Broadcast.Workers,
		RatePerSec:  cfg.Broadcast.RatePerSec,
		SendTimeout: timeout,
	}, nil
}

func mapAI(cfg *config.Config, loc *time.Location) (ai.Config, error) {
	a := cfg.AI
	timeout, err := dur("ai.timeout", a.Timeout, 30*time.Second)
	if err != nil {
		return ai.Config{}, err
	}
	return ai.Config{
		Provider:        a.Provider,
		Model:           a.Model,
		APIKey:          a.APIKey,
		BaseURL:         a.BaseURL,
		SystemPrompt:    a.SystemPrompt,
		MaxOutputTokens: a.MaxOutputTokens,
		Timeout:         timeout,
		Guard: ai.GuardConfig{
			IdentityText:    a.Identity,
			IdentityQueries: a.IdentityQueries,
			Brand:           a.Brand,
			MaxReplyRunes:   a.MaxReplyRunes,
			Location:        loc,
		},
	}, nil
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	return scheduler.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Timezone:    tz,
		HistorySize: cfg.Scheduler.HistorySize,
	}
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	read, err := dur("ops.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// pprof profiles run for 30s by default.
	write, err := dur("ops.write_timeout", o.WriteTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := dur("ops.idle_timeout", o.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapNotices(cfg *config.Config) dispatch.Notices {
	m := cfg.Messages
	return dispatch.Notices{
		InvalidMessage: m.InvalidMessage,
		Slowdown:       m.Slowdown,
		Banned:         m.Banned,
		ActionFailed:   m.ActionFailed,
		AIUnavailable:  m.AIUnavailable,
	}.WithDefaults()
}

const defaultTimezone = "Asia/Bangkok"

// location is the school's zone: scheduler.timezone when set, otherwise
// defaultTimezone.
func location(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func mapContent(cfg *config.Config) (commands.Content, error) {
	c := cfg.Content
	out := commands.Content{
		Links: commands.Links{
			Worksheet: c.Links.Worksheet,
			School:    c.Links.School,
			Grade:     c.Links.Grade,
			Absence:   c.Links.Absence,
			Biology:   c.Links.Biology,
			Physics:   c.Links.Physics,
		},
		TimetableImage: c.TimetableImage,
		Schedule:       make(map[time.Weekday][]commands.Period, len(c.Schedule)),
		Texts: commands.Texts{
			Welcome:          c.Texts.Welcome,
			Help:             c.Texts.Help,
			OperatorHelp:     c.Texts.OperatorHelp,
			HomeworkHowTo:    c.Texts.HomeworkHowTo,
			NoClassToday:     c.Texts.NoClassToday,
			NoClassLeft:      c.Texts.NoClassLeft,
			NoDifferentClass: c.Texts.NoDifferentClass,
		},
	}
	for name, periods := range c.Schedule {
		day, err := commands.ParseWeekday(name)
		if err != nil {
			return commands.Content{}, fmt.Errorf("content.schedule: %w", err)
		}
		if _, dup := out.Schedule[day]; dup {
			return commands.Content{}, fmt.Errorf("content.schedule: %s listed twice", day)
		}
		ps := make([]commands.Period, 0, len(periods))
		for _, p := range periods {
			ps = append(ps, commands.Period{Subject: p.Subject, Room: p.Room, Start: p.Start, End: p.End})
		}
		out.Schedule[day] = ps
	}
	for _, e := range c.Exams {
		out.Exams = append(out.Exams, commands.Exam{Name: e.Name, Dates: append([]string(nil), e.Dates...)})
	}
	return out, nil
}

// operatorSet indexes telegram.operator_ids by sender id.
func operatorSet(cfg *config.Config) map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.Telegram.OperatorIDs))
	for _, id := range cfg.Telegram.OperatorIDs {
		if id != 0 {
			set[strconv.FormatInt(id, 10)] = struct{}{}
		}
	}
	return set
}

type intakeConfig struct {
	workers   int
	queueSize int
	timeout   time.Duration
}

func mapIntake(cfg *config.Config) (intakeConfig, error) {
	timeout, err := dur("intake.handler_timeout", cfg.Intake.HandlerTimeout, 60*time.Second)
	if err != nil {
		return intakeConfig{}, err
	}
	ic := intakeConfig{workers: cfg.Intake.Workers, queueSize: cfg.Intake.QueueSize, timeout: timeout}
	if ic.workers <= 0 {
		ic.workers = 4
	}
	if ic.queueSize <= 0 {
		ic.queueSize = 256
	}
	return ic, nil
}

type reminderConfig struct {
	enabled bool
	at      string
	timeout time.Duration
}

func mapReminder(cfg *config.Config) (reminderConfig, error) {
	timeout, err := dur("reminder.timeout", cfg.Reminder.Timeout, 5*time.Minute)
	if err != nil {
		return reminderConfig{}, err
	}
	at := strings.TrimSpace(cfg.Reminder.At)
	if at == "" {
		at = "19:00"
	}
	if _, err := scheduler.ParseSchedule(at); err != nil {
		return reminderConfig{}, fmt.Errorf("reminder.at: %w", err)
	}
	return reminderConfig{enabled: cfg.Reminder.Enabled, at: at, timeout: timeout}, nil
}

package config

import (
	"reflect"
	"sort"
	"strings"

	logx "mtcbot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between oldCfg and
// newCfg and returns log attrs describing the new values. Secrets are only
// reported as set or unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	section := func(name string, differs bool, fields ...logx.Field) {
		if differs {
			changed = append(changed, name)
			attrs = append(attrs, fields...)
		}
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	o, n := oldCfg, newCfg

	section("telegram",
		o.Telegram.Token != n.Telegram.Token ||
			o.Telegram.PollTimeout != n.Telegram.PollTimeout ||
			o.Telegram.GroupLog != n.Telegram.GroupLog ||
			!reflect.DeepEqual(o.Telegram.OperatorIDs, n.Telegram.OperatorIDs),
		logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
		logx.Int("telegram.operator_count", len(n.Telegram.OperatorIDs)),
		logx.Bool("telegram.group_log_set", set(n.Telegram.GroupLog)),
	)

	section("logging", o.Logging != n.Logging,
		logx.String("logging.level", n.Logging.Level),
		logx.Bool("logging.console", n.Logging.Console),
		logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
		logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
	)

	section("rate_limit", o.RateLimit != n.RateLimit,
		logx.Int("rate_limit.max_messages_per_window", n.RateLimit.MaxMessagesPerWindow),
		logx.String("rate_limit.window", n.RateLimit.Window),
		logx.String("rate_limit.ban_duration", n.RateLimit.BanDuration),
	)

	section("ai", !reflect.DeepEqual(o.AI, n.AI),
		logx.String("ai.provider", n.AI.Provider),
		logx.String("ai.model", n.AI.Model),
		logx.Bool("ai.api_key_set", set(n.AI.APIKey)),
		logx.Bool("ai.base_url_set", set(n.AI.BaseURL)),
	)

	section("broadcast", o.Broadcast != n.Broadcast,
		logx.Int("broadcast.workers", n.Broadcast.Workers),
		logx.Int("broadcast.rate_per_sec", n.Broadcast.RatePerSec),
		logx.String("broadcast.send_timeout", n.Broadcast.SendTimeout),
	)

	section("storage", o.Storage != n.Storage,
		logx.String("storage.driver", n.Storage.Driver),
		logx.Bool("storage.path_set", set(n.Storage.Path)),
		logx.Bool("storage.redis_addr_set", set(n.Storage.Redis.Addr)),
	)

	section("scheduler", o.Scheduler != n.Scheduler,
		logx.Bool("scheduler.enabled", n.Scheduler.Enabled),
		logx.String("scheduler.timezone", n.Scheduler.Timezone),
	)

	section("reminder", o.Reminder != n.Reminder,
		logx.Bool("reminder.enabled", n.Reminder.Enabled),
		logx.String("reminder.at", n.Reminder.At),
	)

	section("intake", o.Intake != n.Intake,
		logx.Int("intake.workers", n.Intake.Workers),
		logx.Int("intake.queue_size", n.Intake.QueueSize),
	)

	section("ops", o.Ops != n.Ops,
		logx.Bool("ops.enabled", n.Ops.Enabled),
		logx.String("ops.addr", n.Ops.Addr),
		logx.Bool("ops.token_set", set(n.Ops.Token)),
		logx.Bool("ops.pprof", n.Ops.Pprof),
	)

	section("messages", o.Messages != n.Messages)

	section("content", !reflect.DeepEqual(o.Content, n.Content),
		logx.Int("content.schedule_days", len(n.Content.Schedule)),
		logx.Int("content.exams", len(n.Content.Exams)),
	)

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports the changed sections that only take effect after
// a restart. The rest are applied live.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "intake", "ai":
			out = append(out, s)
		}
	}
	return out
}

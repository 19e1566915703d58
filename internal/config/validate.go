package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"
)

// Environment variables consulted when the matching field is blank.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpsToken      = "MTCBOT_OPS_TOKEN"
	EnvRedisPassword = "REDIS_PASSWORD"
)

func applyEnv(cfg *Config) {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	fill(&cfg.Telegram.Token, EnvTelegramToken)
	switch strings.ToLower(strings.TrimSpace(cfg.AI.Provider)) {
	case "gemini":
		fill(&cfg.AI.APIKey, EnvGeminiKey)
	case "openai":
		fill(&cfg.AI.APIKey, EnvOpenAIKey)
	}
	fill(&cfg.Ops.Token, EnvOpsToken)
	fill(&cfg.Storage.Redis.Password, EnvRedisPassword)
}

// ParseDurationField parses the Go duration at path. Blank is zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 30s, 5m)", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for blank or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err == nil && d == 0 {
		d = def
	}
	return d, err
}

var reClock = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Validate checks the fields that can be checked without building
// components. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(fmt.Errorf("telegram.token: required (or set %s)", EnvTelegramToken))
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	if cfg.RateLimit.MaxMessagesPerWindow < 0 {
		add(errors.New("rate_limit.max_messages_per_window: must be >= 0"))
	}
	dur("rate_limit.window", cfg.RateLimit.Window)
	dur("rate_limit.ban_duration", cfg.RateLimit.BanDuration)
	dur("rate_limit.sweep_every", cfg.RateLimit.SweepEvery)

	switch p := strings.ToLower(strings.TrimSpace(cfg.AI.Provider)); p {
	case "", "none":
	case "gemini", "openai":
		if strings.TrimSpace(cfg.AI.APIKey) == "" {
			add(fmt.Errorf("ai.api_key: required for provider %s", p))
		}
	default:
		add(fmt.Errorf("ai.provider: unknown %q", cfg.AI.Provider))
	}
	dur("ai.timeout", cfg.AI.Timeout)

	if cfg.Broadcast.Workers < 0 || cfg.Broadcast.RatePerSec < 0 {
		add(errors.New("broadcast: workers and rate_per_sec must be >= 0"))
	}
	dur("broadcast.send_timeout", cfg.Broadcast.SendTimeout)

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path: required for driver %s", d))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			add(errors.New("storage.redis.addr: required for driver redis"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if cfg.Reminder.Enabled {
		// Cron expressions are checked when the job is registered.
		at := strings.TrimSpace(cfg.Reminder.At)
		if at != "" && !strings.ContainsAny(at, " \t@") && !reClock.MatchString(at) {
			add(fmt.Errorf("reminder.at: want HH:MM or a cron expression, got %q", cfg.Reminder.At))
		}
		if !cfg.Scheduler.Enabled {
			add(errors.New("reminder.enabled: needs scheduler.enabled"))
		}
	}
	dur("reminder.timeout", cfg.Reminder.Timeout)

	if cfg.Intake.Workers < 0 || cfg.Intake.QueueSize < 0 {
		add(errors.New("intake: workers and queue_size must be >= 0"))
	}
	dur("intake.handler_timeout", cfg.Intake.HandlerTimeout)

	if cfg.Ops.Enabled {
		add(validateOps(cfg.Ops))
	}

	return errors.Join(errs...)
}

func validateOps(o OpsConfig) error {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if !IsLoopbackHost(host) && strings.TrimSpace(o.Token) == "" && !o.AllowInsecure {
		return fmt.Errorf("ops.addr: %s is not loopback; set ops.token or ops.allow_insecure", addr)
	}
	for path, raw := range map[string]string{
		"ops.read_timeout":  o.ReadTimeout,
		"ops.write_timeout": o.WriteTimeout,
		"ops.idle_timeout":  o.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// IsLoopbackHost reports whether host is localhost or a loopback IP.
// An empty host (":9090") listens on every interface and is not loopback.
func IsLoopbackHost(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

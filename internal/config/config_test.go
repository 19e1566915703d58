package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  operator_ids: [42]
rate_limit:
  max_messages_per_window: 5
  window: 60s
  ban_duration: 300s
storage:
  driver: sqlite
  path: ./data/bot.db
content:
  links:
    grade: https://example.org/grade
  schedule:
    monday:
      - {subject: Math, room: "401", start: "08:30", end: "09:20"}
  exams:
    - {name: Midterm, dates: ["2025-12-15"]}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OperatorIDs) != 1 || cfg.Telegram.OperatorIDs[0] != 42 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.RateLimit.MaxMessagesPerWindow != 5 || cfg.RateLimit.Window != "60s" {
		t.Fatalf("rate_limit = %+v", cfg.RateLimit)
	}
	mon := cfg.Content.Schedule["monday"]
	if len(mon) != 1 || mon[0].Room != "401" || mon[0].Start != "08:30" {
		t.Fatalf("schedule = %+v", cfg.Content.Schedule)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", `{"telegram":{"token":"t"},"storage":{"driver":"memory"}}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown.json":  `{"telegram":{"token":"t","owner":1}}`,
		"trailing.json": `{"telegram":{"token":"t"}} {}`,
		"unknown.yaml":  "plugins:\n  echo: {}\n",
	}
	for name, body := range cases {
		if _, err := NewManager(writeFile(t, name, body)).Parse(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseFillsSecretsFromEnv(t *testing.T) {
	t.Setenv(EnvTelegramToken, "env-token")
	t.Setenv(EnvGeminiKey, "gem-key")
	t.Setenv(EnvOpenAIKey, "oa-key")

	cfg, err := NewManager(writeFile(t, "c.yaml", "ai:\n  provider: gemini\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.AI.APIKey != "gem-key" {
		t.Fatalf("api key = %q", cfg.AI.APIKey)
	}

	cfg, err = NewManager(writeFile(t, "d.yaml", "telegram:\n  token: file\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "file" {
		t.Fatalf("file token overridden: %q", cfg.Telegram.Token)
	}
	if cfg.AI.APIKey != "" {
		t.Fatalf("api key filled without provider: %q", cfg.AI.APIKey)
	}
}

func validConfig() *Config {
	return &Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{MaxMessagesPerWindow: 5, Window: "60s", BanDuration: "300s"},
		Storage:   StorageConfig{Driver: "memory"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "bad window", mutate: func(c *Config) { c.RateLimit.Window = "soon" }, wantErr: "rate_limit.window"},
		{name: "negative ban", mutate: func(c *Config) { c.RateLimit.BanDuration = "-1s" }, wantErr: "rate_limit.ban_duration"},
		{name: "unknown provider", mutate: func(c *Config) { c.AI.Provider = "llama" }, wantErr: "ai.provider"},
		{name: "provider without key", mutate: func(c *Config) { c.AI.Provider = "openai" }, wantErr: "ai.api_key"},
		{name: "provider none", mutate: func(c *Config) { c.AI.Provider = "none" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: "storage.path"},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "storage.redis.addr"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "storage.driver"},
		{
			name: "reminder bad clock",
			mutate: func(c *Config) {
				c.Scheduler.Enabled = true
				c.Reminder = ReminderConfig{Enabled: true, At: "25:00"}
			},
			wantErr: "reminder.at",
		},
		{
			name:    "reminder without scheduler",
			mutate:  func(c *Config) { c.Reminder = ReminderConfig{Enabled: true, At: "19:30"} },
			wantErr: "scheduler.enabled",
		},
		{
			name:    "ops public without token",
			mutate:  func(c *Config) { c.Ops = OpsConfig{Enabled: true, Addr: "0.0.0.0:9090"} },
			wantErr: "ops.addr",
		},
		{
			name:   "ops public with token",
			mutate: func(c *Config) { c.Ops = OpsConfig{Enabled: true, Addr: "0.0.0.0:9090", Token: "s"} },
		},
		{
			name:   "ops loopback",
			mutate: func(c *Config) { c.Ops = OpsConfig{Enabled: true, Addr: "127.0.0.1:9090"} },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestIsLoopbackHost(t *testing.T) {
	t.Parallel()
	for host, want := range map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"::1":       true,
		"[::1]":     true,
		"":          false,
		"0.0.0.0":   false,
		"10.0.0.5":  false,
	} {
		if got := IsLoopbackHost(host); got != want {
			t.Fatalf("IsLoopbackHost(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := validConfig()
	newCfg := validConfig()
	newCfg.Telegram.Token = "rotated"
	newCfg.RateLimit.MaxMessagesPerWindow = 10
	newCfg.Content.Exams = []ExamConfig{{Name: "Final", Dates: []string{"2026-03-01"}}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"content", "rate_limit", "telegram"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Log()
	for _, f := range attrs {
		f(ev)
	}
	ev.Send()
	if strings.Contains(buf.String(), "rotated") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	if got := RequiresRestart(changed); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("RequiresRestart = %v", got)
	}

	if changed, _ := SummarizeConfigChange(oldCfg, validConfig()); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestWatchPublishesValidatedChange(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", "telegram:\n  token: a\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)

	// Rejected: missing token.
	if err := os.WriteFile(path, []byte("telegram:\n  token: \"\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg.Telegram)
	default:
	}

	if err := os.WriteFile(path, []byte("telegram:\n  token: b\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Telegram.Token != "b" {
			t.Fatalf("token = %q", cfg.Telegram.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	m.Unsubscribe(ch)
}

package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets left blank are filled from the environment, see applyEnv.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	AI        AIConfig        `json:"ai"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminder  ReminderConfig  `json:"reminder"`
	Intake    IntakeConfig    `json:"intake"`
	Ops       OpsConfig       `json:"ops"`
	Messages  MessagesConfig  `json:"messages"`
	Content   ContentConfig   `json:"content"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OperatorIDs may run the operator commands (announcements, stats).
	OperatorIDs []int64 `json:"operator_ids"`
	GroupLog    string  `json:"group_log"`
	PollTimeout string  `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RateLimitConfig configures the per-sender limiter.
//
// Defaults: 5 messages per 60s window, 300s ban, sweep every 5m.
type RateLimitConfig struct {
	MaxMessagesPerWindow int    `json:"max_messages_per_window"`
	Window               string `json:"window"`
	BanDuration          string `json:"ban_duration"`
	SweepEvery           string `json:"sweep_every,omitempty"`
}

// AIConfig selects the fallback responder. Provider is "gemini", "openai"
// or "none".
type AIConfig struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model,omitempty"`
	APIKey          string   `json:"api_key,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	Timeout         string   `json:"timeout,omitempty"`
	Identity        string   `json:"identity,omitempty"`
	IdentityQueries []string `json:"identity_queries,omitempty"`
	Brand           string   `json:"brand,omitempty"`
	MaxReplyRunes   int      `json:"max_reply_runes,omitempty"`
}

type BroadcastConfig struct {
	Workers     int    `json:"workers"`
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/mtcbot.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
	// TrackQueue bounds the asynchronous recipient tracking queue.
	TrackQueue int `json:"track_queue,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Timezone    string `json:"timezone,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// ReminderConfig schedules the daily "homework due tomorrow" broadcast.
type ReminderConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at"` // HH:MM or cron, scheduler timezone
	Timeout string `json:"timeout,omitempty"`
}

// IntakeConfig sizes the inbound message pool.
type IntakeConfig struct {
	Workers        int    `json:"workers"`
	QueueSize      int    `json:"queue_size"`
	HandlerTimeout string `json:"handler_timeout"`
}

// OpsConfig controls the operations HTTP server (/healthz, /metrics,
// /stats and optionally pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// MessagesConfig overrides the notices sent by the dispatcher. Blank
// fields keep the built-in Thai text. Banned may contain {seconds}.
type MessagesConfig struct {
	InvalidMessage string `json:"invalid_message,omitempty"`
	Slowdown       string `json:"slowdown,omitempty"`
	Banned         string `json:"banned,omitempty"`
	ActionFailed   string `json:"action_failed,omitempty"`
	AIUnavailable  string `json:"ai_unavailable,omitempty"`
}

type ContentConfig struct {
	Links          LinksConfig `json:"links"`
	TimetableImage string      `json:"timetable_image"`
	// Schedule is keyed by English weekday name ("monday" or "mon").
	Schedule map[string][]PeriodConfig `json:"schedule"`
	Exams    []ExamConfig              `json:"exams"`
	Texts    TextsConfig               `json:"texts,omitempty"`
}

type LinksConfig struct {
	Worksheet string `json:"worksheet"`
	School    string `json:"school"`
	Grade     string `json:"grade"`
	Absence   string `json:"absence"`
	Biology   string `json:"biology"`
	Physics   string `json:"physics"`
}

type PeriodConfig struct {
	Subject string `json:"subject"`
	Room    string `json:"room"`
	Start   string `json:"start"` // HH:MM
	End     string `json:"end"`
}

type ExamConfig struct {
	Name  string   `json:"name"`
	Dates []string `json:"dates"` // YYYY-MM-DD
}

type TextsConfig struct {
	Welcome          string `json:"welcome,omitempty"`
	Help             string `json:"help,omitempty"`
	OperatorHelp     string `json:"operator_help,omitempty"`
	HomeworkHowTo    string `json:"homework_howto,omitempty"`
	NoClassToday     string `json:"no_class_today,omitempty"`
	NoClassLeft      string `json:"no_class_left,omitempty"`
	NoDifferentClass string `json:"no_different_class,omitempty"`
}

package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDisabled is returned by a store that has been closed.
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": dependency-free file backend (journal + snapshot)
//   - "redis": Redis server (hashes, sets and lists under Redis.Prefix)
//   - "memory": nothing survives a restart
//
// An empty Driver or "none" selects "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "mtcbot"
}

// Recipient is one user the bot has heard from.
type Recipient struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Active      bool      `json:"active"`
}

// HistoryEntry records one broadcast run.
type HistoryEntry struct {
	OperatorID string    `json:"operator_id"`
	Body       string    `json:"body"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	At         time.Time `json:"at"`
}

// HomeworkItem is one assignment posted by the class.
// Due is free text; reminders match it against "2006-01-02".
type HomeworkItem struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail"`
	Due       string    `json:"due"`
	CreatedAt time.Time `json:"created_at"`
}

// Tracker records that a sender was seen. Repeated calls refresh LastSeen
// and reactivate the recipient.
type Tracker interface {
	RecordSeen(ctx context.Context, id, displayName string) error
}

// Directory is the set of broadcast recipients.
type Directory interface {
	Tracker
	// ListActive returns a snapshot ordered by first contact.
	ListActive(ctx context.Context) ([]Recipient, error)
	CountActive(ctx context.Context) (int, error)
	// Deactivate excludes a recipient from future broadcasts until it is
	// seen again.
	Deactivate(ctx context.Context, id string) error
}

type History interface {
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// RecentHistory returns up to limit entries, newest first.
	RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
}

type Homework interface {
	// AddHomework assigns ID and CreatedAt and returns the stored item.
	AddHomework(ctx context.Context, it HomeworkItem) (HomeworkItem, error)
	// ListHomework returns every item, newest first.
	ListHomework(ctx context.Context) ([]HomeworkItem, error)
	// ClearHomework deletes every item and reports how many were removed.
	ClearHomework(ctx context.Context) (int, error)
	// HomeworkDue returns items whose Due equals due, oldest first.
	HomeworkDue(ctx context.Context, due string) ([]HomeworkItem, error)
}

// Store is the persistence API used by the bot.
type Store interface {
	Directory
	History
	Homework
	Close() error
}

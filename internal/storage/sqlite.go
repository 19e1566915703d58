package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	logx "mtcbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: create dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open sqlite")
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return errors.Wrap(err, "storage: migrate")
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecordSeen(ctx context.Context, id, displayName string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(id, display_name, first_seen, last_seen, active) VALUES(?,?,?,?,1)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = CASE WHEN excluded.display_name = '' THEN recipients.display_name ELSE excluded.display_name END,
		   last_seen = excluded.last_seen,
		   active = 1`,
		id, displayName, now, now,
	)
	return errors.Wrap(err, "storage: record seen")
}

func (s *sqliteStore) ListActive(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, first_seen, last_seen FROM recipients
		 WHERE active = 1 ORDER BY first_seen, id`)
	if err != nil {
		return nil, errors.Wrap(err, "storage: list recipients")
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			r           Recipient
			first, last int64
		)
		if err := rows.Scan(&r.ID, &r.DisplayName, &first, &last); err != nil {
			return nil, errors.Wrap(err, "storage: scan recipient")
		}
		r.FirstSeen, r.LastSeen, r.Active = time.UnixMilli(first), time.UnixMilli(last), true
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "storage: list recipients")
}

func (s *sqliteStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients WHERE active = 1`).Scan(&n)
	return n, errors.Wrap(err, "storage: count recipients")
}

func (s *sqliteStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipients SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "storage: deactivate")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_history(operator_id, body, attempted, succeeded, failed, at) VALUES(?,?,?,?,?,?)`,
		e.OperatorID, e.Body, e.Attempted, e.Succeeded, e.Failed, e.At.UnixMilli(),
	)
	return errors.Wrap(err, "storage: append history")
}

func (s *sqliteStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT operator_id, body, attempted, succeeded, failed, at FROM broadcast_history
		 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "storage: recent history")
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e  HistoryEntry
			at int64
		)
		if err := rows.Scan(&e.OperatorID, &e.Body, &e.Attempted, &e.Succeeded, &e.Failed, &at); err != nil {
			return nil, errors.Wrap(err, "storage: scan history")
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "storage: recent history")
}

func (s *sqliteStore) AddHomework(ctx context.Context, it HomeworkItem) (HomeworkItem, error) {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO homework(subject, detail, due, created_at) VALUES(?,?,?,?)`,
		it.Subject, it.Detail, it.Due, it.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return HomeworkItem{}, errors.Wrap(err, "storage: add homework")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return HomeworkItem{}, errors.Wrap(err, "storage: homework id")
	}
	it.ID = strconv.FormatInt(id, 10)
	return it, nil
}

func (s *sqliteStore) ListHomework(ctx context.Context) ([]HomeworkItem, error) {
	return s.queryHomework(ctx, `SELECT id, subject, detail, due, created_at FROM homework ORDER BY id DESC`)
}

func (s *sqliteStore) HomeworkDue(ctx context.Context, due string) ([]HomeworkItem, error) {
	return s.queryHomework(ctx,
		`SELECT id, subject, detail, due, created_at FROM homework WHERE trim(due) = ? ORDER BY id`,
		strings.TrimSpace(due))
}

func (s *sqliteStore) queryHomework(ctx context.Context, q string, args ...any) ([]HomeworkItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "storage: query homework")
	}
	defer rows.Close()

	var out []HomeworkItem
	for rows.Next() {
		var (
			it     HomeworkItem
			id, at int64
		)
		if err := rows.Scan(&id, &it.Subject, &it.Detail, &it.Due, &at); err != nil {
			return nil, errors.Wrap(err, "storage: scan homework")
		}
		it.ID = strconv.FormatInt(id, 10)
		it.CreatedAt = time.UnixMilli(at)
		out = append(out, it)
	}
	return out, errors.Wrap(rows.Err(), "storage: query homework")
}

func (s *sqliteStore) ClearHomework(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM homework`)
	if err != nil {
		return 0, errors.Wrap(err, "storage: clear homework")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

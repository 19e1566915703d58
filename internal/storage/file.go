package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	logx "mtcbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.history.jsonl  (append-only JSON Lines)
//   - <prefix>.snapshot.json  (recipients + homework, periodic snapshot)
//   - <prefix>.journal.jsonl  (append-only journal of mutations)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type fileStore struct {
	log logx.Logger
	now func() time.Time

	mu sync.Mutex

	st *state

	historyPath  string
	historyFile  *os.File
	snapshotPath string
	journalFile  *os.File

	writes       int
	compactEvery int
}

type journalOp string

const (
	opSeen       journalOp = "seen"
	opDeactivate journalOp = "deactivate"
	opHomework   journalOp = "homework"
	opClear      journalOp = "clear"
)

type journalRecord struct {
	Op        journalOp     `json:"op"`
	Recipient *Recipient    `json:"recipient,omitempty"`
	Homework  *HomeworkItem `json:"homework,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: create dir")
	}

	s := &fileStore{
		log:          log,
		now:          time.Now,
		st:           newState(),
		historyPath:  prefix + ".history.jsonl",
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 500,
	}
	journalPath := prefix + ".journal.jsonl"

	if err := loadSnapshot(s.snapshotPath, s.st); err != nil && !os.IsNotExist(errors.Cause(err)) {
		log.Warn("snapshot unreadable, starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, s.st); err != nil && !os.IsNotExist(err) {
		log.Warn("journal replay stopped early", logx.Err(err))
	}

	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open history")
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = hf.Close()
		return nil, errors.Wrap(err, "storage: open journal")
	}
	s.historyFile = hf
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("final compact failed", logx.Err(err))
	}
	err1 := s.historyFile.Close()
	err2 := s.journalFile.Close()
	s.historyFile, s.journalFile = nil, nil
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return errors.Wrap(err, "storage: journal append")
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecordSeen(_ context.Context, id, displayName string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	r := s.st.recordSeen(id, displayName, s.now())
	return s.appendLocked(journalRecord{Op: opSeen, Recipient: &r})
}

func (s *fileStore) ListActive(context.Context) ([]Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listActive(), nil
}

func (s *fileStore) CountActive(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.countActive(), nil
}

func (s *fileStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.deactivate(id) {
		return ErrNotFound
	}
	return s.appendLocked(journalRecord{Op: opDeactivate, Recipient: &Recipient{ID: id}})
}

func (s *fileStore) AppendHistory(_ context.Context, e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrDisabled
	}
	return errors.Wrap(json.NewEncoder(s.historyFile).Encode(e), "storage: history append")
}

func (s *fileStore) RecentHistory(_ context.Context, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil, ErrDisabled
	}
	f, err := os.Open(s.historyPath)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open history")
	}
	defer f.Close()

	var all []HistoryEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var e HistoryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "storage: read history")
	}
	return newestFirst(all, limit), nil
}

func (s *fileStore) AddHomework(_ context.Context, it HomeworkItem) (HomeworkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return HomeworkItem{}, ErrDisabled
	}
	it = s.st.addHomework(it, s.now())
	if err := s.appendLocked(journalRecord{Op: opHomework, Homework: &it}); err != nil {
		return HomeworkItem{}, err
	}
	return it, nil
}

func (s *fileStore) ListHomework(context.Context) ([]HomeworkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listHomework(), nil
}

func (s *fileStore) ClearHomework(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, ErrDisabled
	}
	n := s.st.clearHomework()
	if err := s.appendLocked(journalRecord{Op: opClear}); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *fileStore) HomeworkDue(_ context.Context, due string) ([]HomeworkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.homeworkDue(due), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out *state) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	st := newState()
	if err := json.NewDecoder(f).Decode(st); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	if st.Recipients == nil {
		st.Recipients = map[string]*Recipient{}
	}
	*out = *st
	return nil
}

func replayJournal(path string, st *state) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case opSeen:
			if r.Recipient == nil || r.Recipient.ID == "" {
				continue
			}
			rec := *r.Recipient
			if cur, ok := st.Recipients[rec.ID]; ok {
				rec.FirstSeen = cur.FirstSeen
			}
			st.Recipients[rec.ID] = &rec
		case opDeactivate:
			if r.Recipient != nil {
				st.deactivate(r.Recipient.ID)
			}
		case opHomework:
			if r.Homework != nil {
				st.putHomework(*r.Homework)
			}
		case opClear:
			st.clearHomework()
		}
	}
	return sc.Err()
}

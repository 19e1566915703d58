package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// state is the in-memory model shared by the memory and file drivers.
// Callers hold the owning store's lock.
type state struct {
	Recipients map[string]*Recipient `json:"recipients"`
	Homework   []HomeworkItem        `json:"homework"`
	Seq        uint64                `json:"seq"`
}

func newState() *state {
	return &state{Recipients: map[string]*Recipient{}}
}

func (st *state) recordSeen(id, name string, now time.Time) Recipient {
	r, ok := st.Recipients[id]
	if !ok {
		r = &Recipient{ID: id, FirstSeen: now}
		st.Recipients[id] = r
	}
	if strings.TrimSpace(name) != "" {
		r.DisplayName = name
	}
	r.LastSeen = now
	r.Active = true
	return *r
}

func (st *state) deactivate(id string) bool {
	r, ok := st.Recipients[id]
	if !ok {
		return false
	}
	r.Active = false
	return true
}

func (st *state) listActive() []Recipient {
	out := make([]Recipient, 0, len(st.Recipients))
	for _, r := range st.Recipients {
		if r.Active {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (st *state) countActive() int {
	n := 0
	for _, r := range st.Recipients {
		if r.Active {
			n++
		}
	}
	return n
}

func (st *state) addHomework(it HomeworkItem, now time.Time) HomeworkItem {
	st.Seq++
	it.ID = strconv.FormatUint(st.Seq, 10)
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	st.Homework = append(st.Homework, it)
	return it
}

// putHomework re-inserts an item that already has an ID (journal replay).
func (st *state) putHomework(it HomeworkItem) {
	if n, err := strconv.ParseUint(it.ID, 10, 64); err == nil && n > st.Seq {
		st.Seq = n
	}
	st.Homework = append(st.Homework, it)
}

func (st *state) listHomework() []HomeworkItem {
	out := make([]HomeworkItem, len(st.Homework))
	for i, it := range st.Homework {
		out[len(out)-1-i] = it
	}
	return out
}

func (st *state) clearHomework() int {
	n := len(st.Homework)
	st.Homework = nil
	return n
}

func (st *state) homeworkDue(due string) []HomeworkItem {
	due = strings.TrimSpace(due)
	var out []HomeworkItem
	for _, it := range st.Homework {
		if strings.TrimSpace(it.Due) == due {
			out = append(out, it)
		}
	}
	return out
}

func newestFirst(h []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]HistoryEntry, 0, limit)
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out
}

// Memory is a Store that keeps everything in process memory.
type Memory struct {
	mu      sync.Mutex
	st      *state
	history []HistoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{st: newState(), now: time.Now}
}

func (m *Memory) RecordSeen(_ context.Context, id, displayName string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.recordSeen(id, displayName, m.now())
	return nil
}

func (m *Memory) ListActive(context.Context) ([]Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listActive(), nil
}

func (m *Memory) CountActive(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.countActive(), nil
}

func (m *Memory) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.deactivate(id) {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, e HistoryEntry) error {
	if e.At.IsZero() {
		e.At = m.now()
	}
	m.mu.Lock()
	m.history = append(m.history, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecentHistory(_ context.Context, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.history, limit), nil
}

func (m *Memory) AddHomework(_ context.Context, it HomeworkItem) (HomeworkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.addHomework(it, m.now()), nil
}

func (m *Memory) ListHomework(context.Context) ([]HomeworkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listHomework(), nil
}

func (m *Memory) ClearHomework(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clearHomework(), nil
}

func (m *Memory) HomeworkDue(_ context.Context, due string) ([]HomeworkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.homeworkDue(due), nil
}

func (m *Memory) Close() error { return nil }

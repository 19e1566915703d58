package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "mtcbot/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	cfg := Config{Driver: driver}
	switch driver {
	case "file":
		cfg.Path = filepath.Join(t.TempDir(), "bot.db")
	case "sqlite":
		cfg.Path = filepath.Join(t.TempDir(), "bot.sqlite")
	}
	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var drivers = []string{"memory", "file", "sqlite"}

func TestDirectoryContract(t *testing.T) {
	t.Parallel()
	for _, d := range drivers {
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			s := openDriver(t, d)
			ctx := context.Background()

			for _, id := range []string{"1", "2", "3"} {
				if err := s.RecordSeen(ctx, id, "user "+id); err != nil {
					t.Fatalf("RecordSeen: %v", err)
				}
				time.Sleep(2 * time.Millisecond)
			}
			if err := s.RecordSeen(ctx, "2", ""); err != nil {
				t.Fatalf("RecordSeen again: %v", err)
			}
			if err := s.RecordSeen(ctx, "", "anonymous"); err != nil {
				t.Fatalf("RecordSeen anonymous: %v", err)
			}

			got, err := s.ListActive(ctx)
			if err != nil {
				t.Fatalf("ListActive: %v", err)
			}
			if len(got) != 3 || got[0].ID != "1" || got[1].ID != "2" || got[2].ID != "3" {
				t.Fatalf("ListActive = %+v", got)
			}
			if got[1].DisplayName != "user 2" {
				t.Fatalf("blank name overwrote display name: %q", got[1].DisplayName)
			}

			if err := s.Deactivate(ctx, "2"); err != nil {
				t.Fatalf("Deactivate: %v", err)
			}
			if n, _ := s.CountActive(ctx); n != 2 {
				t.Fatalf("CountActive = %d, want 2", n)
			}
			if err := s.Deactivate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Deactivate(missing) = %v", err)
			}

			// Seen again: back on the list.
			_ = s.RecordSeen(ctx, "2", "")
			if n, _ := s.CountActive(ctx); n != 3 {
				t.Fatalf("CountActive after reactivation = %d", n)
			}
		})
	}
}

func TestHistoryContract(t *testing.T) {
	t.Parallel()
	for _, d := range drivers {
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			s := openDriver(t, d)
			ctx := context.Background()

			for i := 1; i <= 3; i++ {
				e := HistoryEntry{OperatorID: "op", Body: "msg", Attempted: 5, Succeeded: 5 - i, Failed: i}
				if err := s.AppendHistory(ctx, e); err != nil {
					t.Fatalf("AppendHistory: %v", err)
				}
			}
			got, err := s.RecentHistory(ctx, 2)
			if err != nil {
				t.Fatalf("RecentHistory: %v", err)
			}
			if len(got) != 2 || got[0].Failed != 3 || got[1].Failed != 2 {
				t.Fatalf("RecentHistory = %+v", got)
			}
			if got[0].At.IsZero() {
				t.Fatal("At was not stamped")
			}
			all, _ := s.RecentHistory(ctx, 0)
			if len(all) != 3 {
				t.Fatalf("RecentHistory(0) = %d entries", len(all))
			}
		})
	}
}

func TestHomeworkContract(t *testing.T) {
	t.Parallel()
	for _, d := range drivers {
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			s := openDriver(t, d)
			ctx := context.Background()

			items := []HomeworkItem{
				{Subject: "คณิต", Detail: "แบบฝึกหัด 1.1", Due: "2025-11-04"},
				{Subject: "ฟิสิกส์", Detail: "สรุปบทที่ 2", Due: "ไม่ระบุ"},
				{Subject: "เคมี", Detail: "รายงาน", Due: "2025-11-04"},
			}
			for _, it := range items {
				got, err := s.AddHomework(ctx, it)
				if err != nil {
					t.Fatalf("AddHomework: %v", err)
				}
				if got.ID == "" || got.CreatedAt.IsZero() {
					t.Fatalf("AddHomework returned %+v", got)
				}
			}

			list, err := s.ListHomework(ctx)
			if err != nil {
				t.Fatalf("ListHomework: %v", err)
			}
			if len(list) != 3 || list[0].Subject != "เคมี" || list[2].Subject != "คณิต" {
				t.Fatalf("ListHomework order = %+v", list)
			}

			due, err := s.HomeworkDue(ctx, "2025-11-04")
			if err != nil {
				t.Fatalf("HomeworkDue: %v", err)
			}
			if len(due) != 2 || due[0].Subject != "คณิต" || due[1].Subject != "เคมี" {
				t.Fatalf("HomeworkDue = %+v", due)
			}

			n, err := s.ClearHomework(ctx)
			if err != nil || n != 3 {
				t.Fatalf("ClearHomework = %d, %v", n, err)
			}
			if list, _ := s.ListHomework(ctx); len(list) != 0 {
				t.Fatalf("after clear: %+v", list)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.RecordSeen(ctx, "10", "A")
	_ = s.RecordSeen(ctx, "20", "B")
	_ = s.Deactivate(ctx, "20")
	first, _ := s.AddHomework(ctx, HomeworkItem{Subject: "ไทย", Detail: "เรียงความ"})
	_ = s.AppendHistory(ctx, HistoryEntry{OperatorID: "op", Attempted: 1, Succeeded: 1})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	active, _ := s.ListActive(ctx)
	if len(active) != 1 || active[0].ID != "10" || active[0].DisplayName != "A" {
		t.Fatalf("ListActive after reopen = %+v", active)
	}
	hw, _ := s.ListHomework(ctx)
	if len(hw) != 1 || hw[0].ID != first.ID {
		t.Fatalf("homework after reopen = %+v", hw)
	}
	second, _ := s.AddHomework(ctx, HomeworkItem{Subject: "อังกฤษ"})
	if second.ID == first.ID {
		t.Fatalf("homework id reused: %s", second.ID)
	}
	hist, _ := s.RecentHistory(ctx, 10)
	if len(hist) != 1 {
		t.Fatalf("history after reopen = %+v", hist)
	}
}

func TestFileStoreReplaysJournalWithoutSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "j.db")
	ctx := context.Background()

	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.RecordSeen(ctx, "1", "one")
	_, _ = s.AddHomework(ctx, HomeworkItem{Subject: "a"})
	_, _ = s.ClearHomework(ctx)
	_, _ = s.AddHomework(ctx, HomeworkItem{Subject: "b"})

	// Simulate a crash: read the journal from a second handle without Close.
	s2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	hw, _ := s2.ListHomework(ctx)
	if len(hw) != 1 || hw[0].Subject != "b" {
		t.Fatalf("replayed homework = %+v", hw)
	}
	if n, _ := s2.CountActive(ctx); n != 1 {
		t.Fatalf("replayed recipients = %d", n)
	}
	_ = s.Close()
	_ = s2.Close()
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
}

type countingTracker struct {
	seen chan string
}

func (c *countingTracker) RecordSeen(_ context.Context, id, _ string) error {
	c.seen <- id
	return nil
}

func TestAsyncTrackerDeliversAndDrains(t *testing.T) {
	t.Parallel()
	inner := &countingTracker{seen: make(chan string, 10)}
	at := NewAsyncTracker(inner, 10, logx.Nop())

	for _, id := range []string{"a", "b", "", "c"} {
		if err := at.RecordSeen(context.Background(), id, ""); err != nil {
			t.Fatalf("RecordSeen: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := at.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(inner.seen) != 3 {
		t.Fatalf("inner saw %d sightings, want 3", len(inner.seen))
	}
	// After close, sightings are ignored rather than panicking.
	_ = at.RecordSeen(context.Background(), "late", "")
}

package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "mtcbot/pkg/logx"
)

func TestAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }

	if _, err := s.AddCron("x", "not cron", 0, job); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	if _, err := s.AddDaily("x", "25:00", 0, job); err == nil {
		t.Fatal("expected error for invalid daily time")
	}
	if _, err := s.AddInterval("x", 0, 0, job); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := s.AddCron(" ", "@hourly", 0, job); err == nil {
		t.Fatal("expected error for blank name")
	}
	if _, err := s.AddCron("x", "@hourly", 0, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestAddUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }

	if _, err := s.AddDaily("reminder", "20:00", 0, job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if _, err := s.AddDaily("reminder", "19:30", 0, job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "30 19 * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if !s.Remove("reminder") || s.Remove("reminder") {
		t.Fatal("Remove should succeed once")
	}
}

func TestRunSkipsOverlap(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	var calls atomic.Int32
	d := scheduleDef{name: "busy", job: func(context.Context) error { calls.Add(1); return nil }, running: &atomic.Bool{}}
	d.running.Store(true)

	s.run(d)
	if calls.Load() != 0 {
		t.Fatal("job ran while a previous run was in flight")
	}
	h := s.Snapshot().History
	if len(h) != 1 || !h[0].Skipped {
		t.Fatalf("history = %+v", h)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	err := s.call(context.Background(), scheduleDef{name: "boom", job: func(context.Context) error { panic("boom") }})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 3}, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		s.record(HistoryItem{Name: "j", Took: time.Duration(i)})
	}
	h := s.Snapshot().History
	if len(h) != 3 || h[0].Took != 2 || h[2].Took != 4 {
		t.Fatalf("history = %+v", h)
	}
}

func TestStartRunsIntervalJob(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	ran := make(chan struct{}, 1)
	if _, err := s.AddInterval("tick", time.Second, time.Second, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("tick failed")
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("interval job never ran")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	if s.Snapshot().Enabled {
		t.Fatal("disabled scheduler reports enabled")
	}
	s.Stop(context.Background())
}

func TestAddScheduleKinds(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }

	if _, err := s.AddSchedule("reminder", "0 19 * * 0-4", 0, job); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if _, err := s.AddSchedule("sweep", "5m", 0, job); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if _, err := s.AddSchedule("bad", "tomorrow", 0, job); err == nil {
		t.Fatal("expected error for unparseable schedule")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 2 {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if !strings.HasPrefix(snap.Schedules[0].ID, "cron:") || !strings.HasPrefix(snap.Schedules[1].ID, "interval:") {
		t.Fatalf("ids = %q, %q", snap.Schedules[0].ID, snap.Schedules[1].ID)
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"mtcbot/internal/eventbus"
	logx "mtcbot/pkg/logx"
)

const defaultHistorySize = 50

func (s *Service) run(d scheduleDef) {
	start := time.Now()
	if !d.running.CompareAndSwap(false, true) {
		s.log.Debug("job still running; skipped", logx.String("name", d.name))
		s.record(HistoryItem{Name: d.name, Started: start, Skipped: true})
		return
	}
	defer d.running.Store(false)

	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	root := s.root
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := root, context.CancelFunc(func() {})
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(root, d.timeout)
	}
	defer cancel()

	err := s.call(ctx, d)
	took := time.Since(start)
	it := HistoryItem{Name: d.name, Started: start, Took: took}
	if err != nil {
		it.Err = err.Error()
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", took))
	}
	s.record(it)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobFinished, Data: eventbus.JobFinished{
		Name: d.name,
		Took: took,
		Err:  it.Err,
	}})
}

func (s *Service) call(ctx context.Context, d scheduleDef) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("panic in job", logx.String("name", d.name), logx.Panic(p))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return d.job(ctx)
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()
	if limit <= 0 {
		limit = defaultHistorySize
	}

	s.hmu.Lock()
	s.history = append(s.history, it)
	if over := len(s.history) - limit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}

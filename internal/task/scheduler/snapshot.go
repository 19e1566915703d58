package scheduler

import (
	"sort"
	"time"
)

// Snapshot reports the registered schedules, ordered by next run, and the
// recent run history. Schedules of a stopped scheduler have no Next.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Enabled: s.cfg.Enabled, Timezone: time.Local.String()}
	if s.loc != nil {
		out.Timezone = s.loc.String()
	}
	out.Schedules = make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{ID: d.id, Name: d.name, Kind: d.kind, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out.Schedules = append(out.Schedules, info)
	}
	s.mu.Unlock()

	sort.SliceStable(out.Schedules, func(i, j int) bool {
		a, b := out.Schedules[i].Next, out.Schedules[j].Next
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.Before(b)
	})

	s.hmu.Lock()
	out.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

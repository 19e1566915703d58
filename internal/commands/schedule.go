package commands

import (
	"fmt"
	"math"
	"time"
)

const clockLayout = "15:04"

type slot struct {
	Period
	start, end time.Duration // offset from local midnight
}

type timetable map[time.Weekday][]slot

func compileSchedule(in map[time.Weekday][]Period) (timetable, error) {
	out := make(timetable, len(in))
	for day, periods := range in {
		slots := make([]slot, 0, len(periods))
		for i, p := range periods {
			start, err := clockOffset(p.Start)
			if err != nil {
				return nil, fmt.Errorf("%s period %d: start: %w", day, i+1, err)
			}
			end, err := clockOffset(p.End)
			if err != nil {
				return nil, fmt.Errorf("%s period %d: end: %w", day, i+1, err)
			}
			if end <= start {
				return nil, fmt.Errorf("%s period %d: ends at or before it starts", day, i+1)
			}
			if n := len(slots); n > 0 && start < slots[n-1].start {
				return nil, fmt.Errorf("%s period %d: out of order", day, i+1)
			}
			slots = append(slots, slot{Period: p, start: start, end: end})
		}
		if len(slots) > 0 {
			out[day] = slots
		}
	}
	return out, nil
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func sinceMidnight(t time.Time) time.Duration {
	y, m, d := t.Date()
	return t.Sub(time.Date(y, m, d, 0, 0, 0, 0, t.Location()))
}

func (c *Commands) nextClass() string {
	now := c.clock()
	slots := c.timetable[now.Weekday()]
	if len(slots) == 0 {
		return c.texts.NoClassToday
	}
	at := sinceMidnight(now)
	for _, s := range slots {
		if at < s.start {
			return fmt.Sprintf("🔜 คาบต่อไป : %s\n📍 ห้อง : %s\n⏰ เวลา : %s - %s", s.Subject, s.Room, s.Start, s.End)
		}
		if at < s.end {
			return fmt.Sprintf("⏳ กำลังเรียน : %s\n📍 ห้อง : %s\n⏰ จนถึง : %s", s.Subject, s.Room, s.End)
		}
	}
	return c.texts.NoClassLeft
}

// timeUntilNext counts down to the next period. During a period it skips
// the back-to-back periods of the same subject.
func (c *Commands) timeUntilNext() string {
	now := c.clock()
	slots := c.timetable[now.Weekday()]
	if len(slots) == 0 {
		return c.texts.NoClassToday
	}
	at := sinceMidnight(now)

	current := -1
	for i, s := range slots {
		if s.start <= at && at < s.end {
			current = i
			break
		}
	}

	var target *slot
	if current < 0 {
		for i := range slots {
			if at < slots[i].start {
				target = &slots[i]
				break
			}
		}
		if target == nil {
			return c.texts.NoClassLeft
		}
	} else {
		for i := current + 1; i < len(slots); i++ {
			if slots[i].Subject != slots[current].Subject {
				target = &slots[i]
				break
			}
		}
		if target == nil {
			return c.texts.NoDifferentClass
		}
	}

	minutes := int(math.Ceil((target.start - at).Minutes()))
	left := fmt.Sprintf("%d นาที", minutes)
	if minutes <= 0 {
		left = "น้อยกว่า 1 นาที"
	}
	return fmt.Sprintf("⏰ เหลือเวลาอีก %s\n🔜 คาบถัดไป : %s\n📍 ห้อง : %s", left, target.Subject, target.Room)
}

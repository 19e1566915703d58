package commands

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type exam struct {
	name  string
	dates []time.Time // UTC midnight
}

func compileExams(in []Exam) ([]exam, error) {
	out := make([]exam, 0, len(in))
	for _, e := range in {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("exam without a name")
		}
		x := exam{name: name}
		for _, d := range e.Dates {
			t, err := time.Parse(dateLayout, strings.TrimSpace(d))
			if err != nil {
				return nil, fmt.Errorf("exam %s: %w", name, err)
			}
			x.dates = append(x.dates, t)
		}
		if len(x.dates) == 0 {
			return nil, fmt.Errorf("exam %s: no dates", name)
		}
		out = append(out, x)
	}
	return out, nil
}

// civilDate drops the clock and zone so day arithmetic ignores DST.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Commands) examCountdown() string {
	today := civilDate(c.clock())
	parts := []string{"⏳ *นับถอยหลังสอบ*\n"}
	found := false

	for _, e := range c.exams {
		var next time.Time
		for _, d := range e.dates {
			if !d.Before(today) && (next.IsZero() || d.Before(next)) {
				next = d
			}
		}
		if next.IsZero() {
			continue
		}
		found = true

		days := int(next.Sub(today).Hours() / 24)
		if days == 0 {
			parts = append(parts, fmt.Sprintf("🔥 วันนี้สอบ%s! สู้ๆ!", e.name))
			continue
		}
		all := make([]string, 0, len(e.dates))
		for _, d := range e.dates {
			all = append(all, d.Format("02/01"))
		}
		parts = append(parts, fmt.Sprintf("📌 %s\n   เหลือ %d วัน\n   (สอบวันที่ %s)", e.name, days, strings.Join(all, ", ")))
	}

	if !found {
		return "🎉 ยังไม่มีสอบเร็วๆ นี้ พักผ่อนได้!"
	}
	return strings.Join(parts, "\n\n")
}

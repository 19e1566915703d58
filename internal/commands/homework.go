package commands

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"mtcbot/internal/router"
	"mtcbot/internal/storage"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

const (
	maxSubjectRunes = 100
	maxDetailRunes  = 500
	maxDueRunes     = 50

	dueUnknown = "ไม่ระบุ"
)

const (
	pipeUsage = "⚠️ รูปแบบ: สั่งการบ้าน | วิชา | รายละเอียด | วันส่ง\n" +
		"ตัวอย่าง: สั่งการบ้าน | ฟิสิกส์ | ทำแบบฝึกหัดบทที่ 4 ข้อ 1-5 | วันศุกร์"
	legacyUsage = "⚠️ รูปแบบที่แนะนำ: สั่งการบ้าน | วิชา | รายละเอียด | วันส่ง\n" +
		"ตัวอย่าง: สั่งการบ้าน | ฟิสิกส์ | ทำแบบฝึกหัดบทที่ 4 ข้อ 1-5 | วันศุกร์\n\n" +
		"หรือ: สั่งการบ้าน ฟิสิกส์ ทำแบบฝึกหัด ส่งวันศุกร์"
	storeUnavailable = "⚠️ ระบบฐานข้อมูลยังไม่พร้อมครับ"
)

// Markers that start the due date in the space separated form.
var dueMarkers = []string{"ส่งวัน", "ส่ง ", "due", "deadline"}

// parseHomework reads "<keyword> | subject | detail | due" or the older
// "<keyword> subject detail ส่งวัน due". A non-empty usage means the text
// could not be parsed and usage should be shown instead.
func parseHomework(text, keyword string, today time.Time) (it storage.HomeworkItem, usage string) {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "|") {
		parts := strings.Split(text, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 3 {
			return it, pipeUsage
		}
		it.Subject = truncateRunes(parts[1], maxSubjectRunes)
		it.Detail = truncateRunes(parts[2], maxDetailRunes)
		if len(parts) > 3 {
			it.Due = truncateRunes(parts[3], maxDueRunes)
		}
		switch {
		case it.Subject == "":
			return it, "⚠️ กรุณาระบุชื่อวิชา"
		case it.Detail == "":
			return it, "⚠️ กรุณาระบุรายละเอียดการบ้าน"
		}
		it.Due = normalizeDue(it.Due, today)
		return it, ""
	}

	rest := strings.TrimSpace(afterKeyword(text, keyword))
	if rest == "" {
		return it, legacyUsage
	}
	subject, remaining := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		subject, remaining = rest[:i], strings.TrimSpace(rest[i:])
	}
	detail, due := remaining, ""
	for _, m := range dueMarkers {
		if before, after, ok := strings.Cut(remaining, m); ok {
			detail, due = strings.TrimSpace(before), strings.TrimSpace(after)
			break
		}
	}
	if detail == "" {
		return it, legacyUsage
	}
	it.Subject = truncateRunes(subject, maxSubjectRunes)
	it.Detail = truncateRunes(detail, maxDetailRunes)
	it.Due = normalizeDue(truncateRunes(due, maxDueRunes), today)
	return it, ""
}

var dueLayouts = []string{dateLayout, "2/1/2006", "02/01/2006"}

// normalizeDue rewrites dates it understands to "2006-01-02" so the
// reminder job can find them. Anything else is kept as typed.
func normalizeDue(due string, today time.Time) string {
	due = strings.TrimSpace(due)
	switch due {
	case "":
		return dueUnknown
	case "พรุ่งนี้", "tomorrow":
		return today.AddDate(0, 0, 1).Format(dateLayout)
	case "วันนี้", "today":
		return today.Format(dateLayout)
	}
	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, due); err == nil {
			return t.Format(dateLayout)
		}
	}
	// Day and month only: this year.
	if t, err := time.Parse("2/1", due); err == nil {
		return time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(dateLayout)
	}
	return due
}

func (c *Commands) addHomework(ctx context.Context, in router.Input) (transport.Reply, error) {
	if c.store == nil {
		return transport.Text(storeUnavailable), nil
	}
	it, usage := parseHomework(in.Text, in.Keyword, c.clock())
	if usage != "" {
		return transport.Text(usage), nil
	}
	saved, err := c.store.AddHomework(ctx, it)
	if err != nil {
		return transport.Reply{}, fmt.Errorf("add homework: %w", err)
	}
	c.log.Info("homework added", logx.String("id", saved.ID), logx.String("subject", saved.Subject), logx.String("by", in.Sender))
	return transport.Text(fmt.Sprintf("✅ เพิ่มการบ้านวิชา '%s' สำเร็จแล้วครับ!", saved.Subject)), nil
}

func (c *Commands) listHomework(ctx context.Context) (transport.Reply, error) {
	if c.store == nil {
		return transport.Text(storeUnavailable), nil
	}
	items, err := c.store.ListHomework(ctx)
	if err != nil {
		return transport.Reply{}, fmt.Errorf("list homework: %w", err)
	}
	if len(items) == 0 {
		return transport.Text("🎉 เย้! ตอนนี้ไม่มีการบ้านค้างในระบบครับ"), nil
	}
	entries := make([]string, 0, len(items))
	for _, it := range items {
		entries = append(entries, fmt.Sprintf("📚 *%s*\n📝 %s\n📅 ส่ง: %s\n(ID: %s)", it.Subject, it.Detail, it.Due, lastRunes(it.ID, 4)))
	}
	sep := "\n" + strings.Repeat("-", 30) + "\n"
	return transport.Text("📋 *รายการการบ้านปัจจุบัน*\n\n" + strings.Join(entries, sep)), nil
}

// clearHomework only runs when the message is the keyword alone, so a
// sentence that mentions it ("อย่า ลบงาน นะ") deletes nothing.
func (c *Commands) clearHomework(ctx context.Context, in router.Input) (transport.Reply, error) {
	if !strings.EqualFold(strings.Join(strings.Fields(in.Text), " "), in.Keyword) {
		return transport.Text(fmt.Sprintf("⚠️ ถ้าต้องการลบการบ้านทั้งหมด พิมพ์ '%s' อย่างเดียวครับ", in.Keyword)), nil
	}
	if c.store == nil {
		return transport.Text(storeUnavailable), nil
	}
	n, err := c.store.ClearHomework(ctx)
	if err != nil {
		return transport.Reply{}, fmt.Errorf("clear homework: %w", err)
	}
	c.log.Info("homework cleared", logx.Int("count", n))
	return transport.Text(fmt.Sprintf("🗑️ ลบการบ้านทั้งหมดแล้ว (%d รายการ)", n)), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

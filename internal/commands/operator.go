package commands

import (
	"context"
	"fmt"
	"strings"

	"mtcbot/internal/broadcast"
	"mtcbot/internal/router"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

const announcementTitle = "ประกาศจากผู้ดูแล"

const (
	announceUsage = "⚠️ รูปแบบ: ประกาศ [ข้อความ]\nตัวอย่าง: ประกาศ พรุ่งนี้มีสอบฟิสิกส์"
	urgentUsage   = "⚠️ รูปแบบ: ประกาศด่วน [ข้อความ]\nตัวอย่าง: ประกาศด่วน วันนี้เลิกเรียนเร็ว!"
	reminderUsage = "⚠️ รูปแบบ: เตือนการบ้าน [รายละเอียด]\nตัวอย่าง: เตือนการบ้าน ฟิสิกส์ต้องส่งพรุ่งนี้!"
)

// broadcastWith returns a handler that wraps the text after the keyword
// with render and sends it to every recipient.
func (c *Commands) broadcastWith(usage string, render func(body string) string) router.TextHandler {
	return func(ctx context.Context, in router.Input) (transport.Reply, error) {
		body := afterKeyword(in.Text, in.Keyword)
		if body == "" {
			return transport.Text(usage), nil
		}
		if c.broadcaster == nil {
			return transport.Reply{}, fmt.Errorf("broadcast not configured")
		}
		c.log.Info("operator broadcast", logx.String("operator", in.Sender), logx.String("keyword", in.Keyword))
		res := c.broadcaster.Broadcast(ctx, in.Sender, render(body))
		return transport.Text(res.Summary), nil
	}
}

func (c *Commands) broadcastStats(ctx context.Context) (transport.Reply, error) {
	if c.broadcaster == nil {
		return transport.Reply{}, fmt.Errorf("broadcast not configured")
	}
	s, err := c.broadcaster.Stats(ctx)
	if err != nil {
		return transport.Reply{}, fmt.Errorf("broadcast stats: %w", err)
	}
	return transport.Text(s), nil
}

func (c *Commands) userCount(ctx context.Context) (transport.Reply, error) {
	if c.store == nil {
		return transport.Text(storeUnavailable), nil
	}
	n, err := c.store.CountActive(ctx)
	if err != nil {
		return transport.Reply{}, fmt.Errorf("count recipients: %w", err)
	}
	return transport.Text(fmt.Sprintf("👥 จำนวนผู้ใช้ทั้งหมด: %d คน", n)), nil
}

func announcement(body string) string { return broadcast.Announcement(announcementTitle, body) }

func homeworkReminder(body string) string { return broadcast.Reminder("การบ้าน", body) }

// afterKeyword returns the trimmed text following the first occurrence of
// keyword, compared case-insensitively. It returns "" when keyword is absent.
func afterKeyword(text, keyword string) string {
	if keyword == "" {
		return strings.TrimSpace(text)
	}
	for i := 0; i+len(keyword) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(keyword)], keyword) {
			return strings.TrimSpace(text[i+len(keyword):])
		}
	}
	return ""
}

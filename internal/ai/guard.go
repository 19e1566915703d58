package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxReplyRunes = 3500
	truncatedSuffix      = "...\n\n(ข้อความยาวเกินไป ตัดบางส่วน)"
	defaultIdentityText  = "ผมคือผู้ช่วยประจำห้องเรียน คอยตอบคำถามและช่วยเรื่องตารางเรียน การบ้าน และวันสอบครับ 🤖"
)

var defaultIdentityQueries = []string{"คุณคือใคร", "เป็นใคร", "who are you", "คุณชื่ออะไร", "ชื่ออะไร", "ตัวตน"}

var (
	thaiWeekdays = [...]string{"วันอาทิตย์", "วันจันทร์", "วันอังคาร", "วันพุธ", "วันพฤหัสบดี", "วันศุกร์", "วันเสาร์"}
	thaiMonths   = [...]string{"มกราคม", "กุมภาพันธ์", "มีนาคม", "เมษายน", "พฤษภาคม", "มิถุนายน",
		"กรกฎาคม", "สิงหาคม", "กันยายน", "ตุลาคม", "พฤศจิกายน", "ธันวาคม"}

	googleWord = regexp.MustCompile(`\b[Gg]oogle\b`)
)

type GuardConfig struct {
	// IdentityText answers "who are you" style questions without a model call.
	IdentityText    string
	IdentityQueries []string
	// Brand replaces mentions of the model vendor in replies. Empty keeps them.
	Brand         string
	MaxReplyRunes int
	Location      *time.Location
	Now           func() time.Time
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.IdentityText == "" {
		c.IdentityText = defaultIdentityText
	}
	if len(c.IdentityQueries) == 0 {
		c.IdentityQueries = defaultIdentityQueries
	}
	if c.MaxReplyRunes <= 0 {
		c.MaxReplyRunes = DefaultMaxReplyRunes
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Guard wraps a Responder with the bot's conversational rules.
type Guard struct {
	inner Responder
	cfg   GuardConfig
}

func NewGuard(inner Responder, cfg GuardConfig) *Guard {
	if inner == nil {
		inner = Disabled{}
	}
	return &Guard{inner: inner, cfg: cfg.withDefaults()}
}

func (g *Guard) Generate(ctx context.Context, prompt string) (string, error) {
	lower := strings.ToLower(prompt)
	for _, q := range g.cfg.IdentityQueries {
		if strings.Contains(lower, strings.ToLower(q)) {
			return g.cfg.IdentityText, nil
		}
	}

	text, err := g.inner.Generate(ctx, withDateContext(prompt, g.cfg.Now().In(g.cfg.Location)))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	if g.cfg.Brand != "" {
		text = googleWord.ReplaceAllString(text, g.cfg.Brand)
		text = strings.ReplaceAll(text, "กูเกิล", g.cfg.Brand)
	}
	return truncateRunes(text, g.cfg.MaxReplyRunes), nil
}

func withDateContext(prompt string, now time.Time) string {
	date := fmt.Sprintf("%sที่ %d %s พ.ศ. %d",
		thaiWeekdays[now.Weekday()], now.Day(), thaiMonths[now.Month()-1], now.Year()+543)
	return fmt.Sprintf("(บริบท: วันนี้คือ%s)\n\nคำถาม: %s", date, prompt)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	rs := []rune(s)
	return string(rs[:max]) + truncatedSuffix
}

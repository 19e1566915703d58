package dispatch

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Notices are the fixed replies the dispatcher sends on its own behalf.
type Notices struct {
	InvalidMessage string
	Slowdown       string
	// Banned may contain {seconds}, replaced with the time left on the ban.
	Banned        string
	ActionFailed  string
	AIUnavailable string
}

func DefaultNotices() Notices {
	return Notices{
		InvalidMessage: "🤔 ไม่เข้าใจข้อความครับ ลองพิมพ์ 'คำสั่ง' เพื่อดูสิ่งที่ผมทำได้",
		Slowdown:       "⚠️ ส่งข้อความเร็วเกินไปครับ กรุณารอสักครู่แล้วลองใหม่",
		Banned:         "⛔ คุณถูกระงับชั่วคราวเนื่องจากส่งข้อความมากเกินไป\nกรุณารออีก {seconds} วินาที",
		ActionFailed:   "❌ เกิดข้อผิดพลาดในการทำคำสั่งนี้ กรุณาลองใหม่อีกครั้งครับ",
		AIUnavailable:  "🤖 ขออภัยครับ ตอนนี้ระบบ AI ยังตอบไม่ได้ ลองพิมพ์ 'คำสั่ง' เพื่อดูเมนูแทนนะครับ",
	}
}

// WithDefaults fills blank notices from DefaultNotices.
func (n Notices) WithDefaults() Notices {
	d := DefaultNotices()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&n.InvalidMessage, d.InvalidMessage)
	fill(&n.Slowdown, d.Slowdown)
	fill(&n.Banned, d.Banned)
	fill(&n.ActionFailed, d.ActionFailed)
	fill(&n.AIUnavailable, d.AIUnavailable)
	return n
}

func (n Notices) banned(remaining time.Duration) string {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strings.ReplaceAll(n.Banned, "{seconds}", strconv.Itoa(secs))
}

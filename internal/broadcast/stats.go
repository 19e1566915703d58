package broadcast

import (
	"context"
	"fmt"
	"strings"
)

const statsWindow = 10

// Stats summarizes the directory and recent broadcast history for operators.
func (s *Service) Stats(ctx context.Context) (string, error) {
	hist, err := s.hist.RecentHistory(ctx, statsWindow)
	if err != nil {
		return "", err
	}
	users, err := s.dir.CountActive(ctx)
	if err != nil {
		return "", err
	}

	sent := 0
	for _, h := range hist {
		sent += h.Succeeded
	}

	var b strings.Builder
	b.WriteString("📊 *สถิติ Broadcast*\n\n")
	fmt.Fprintf(&b, "👥 ผู้ใช้ทั้งหมด: %d คน\n", users)
	fmt.Fprintf(&b, "📢 ส่งแล้ว: %d ครั้ง\n", len(hist))
	fmt.Fprintf(&b, "✅ ข้อความทั้งหมด: %d ข้อความ\n\n", sent)
	b.WriteString("📝 *ประวัติล่าสุด:*\n")
	if len(hist) == 0 {
		b.WriteString("ยังไม่มีประวัติ")
		return b.String(), nil
	}
	for i, h := range hist {
		if i == 5 {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s - ส่ง %d คน", h.At.Format("02/01 15:04"), h.Succeeded)
		if h.Failed > 0 {
			fmt.Fprintf(&b, " (ล้มเหลว %d)", h.Failed)
		}
	}
	return b.String(), nil
}

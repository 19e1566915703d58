package broadcast

import (
	"context"
	"strings"

	"mtcbot/internal/storage"
	logx "mtcbot/pkg/logx"
)

const DueLayout = "2006-01-02"

// HomeworkReminder broadcasts the homework due tomorrow in the service's
// location. It does nothing when nothing is due.
func (s *Service) HomeworkReminder(ctx context.Context, hw storage.Homework) (Result, bool, error) {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	tomorrow := s.now().In(loc).AddDate(0, 0, 1).Format(DueLayout)
	items, err := hw.HomeworkDue(ctx, tomorrow)
	if err != nil {
		return Result{}, false, err
	}
	if len(items) == 0 {
		s.log.Debug("no homework due tomorrow", logx.String("due", tomorrow))
		return Result{}, false, nil
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "• "+it.Subject+": "+it.Detail)
	}
	body := "⏰ 📢 เตือนความจำ!\n\nการบ้านที่ต้องส่งพรุ่งนี้:\n" +
		strings.Join(lines, "\n") +
		"\n\nอย่าลืมทำนะครับ! 💪"
	return s.Broadcast(ctx, "scheduler", body), true, nil
}

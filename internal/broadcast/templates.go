package broadcast

import "fmt"

const signature = "— MTC Assistant"

func Announcement(title, body string) string {
	return fmt.Sprintf("📢 *%s*\n\n%s\n\n%s", title, body, signature)
}

func Urgent(body string) string {
	return fmt.Sprintf("🚨 *ด่วน!* 🚨\n\n%s", body)
}

func Reminder(subject, body string) string {
	return fmt.Sprintf("⏰ เตือนความจำ: %s\n\n%s", subject, body)
}

package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mtcbot/internal/broadcast"
	"mtcbot/internal/router"
	"mtcbot/internal/storage"
	"mtcbot/internal/transport"
)

// 2025-11-03 is a Monday.
func at(hhmmss string) func() time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", "2025-11-03 "+hhmmss)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func testContent() Content {
	return Content{
		Links:          Links{Worksheet: "https://w.example", School: "https://s.example"},
		TimetableImage: "https://img.example/t.jpg",
		Schedule: map[time.Weekday][]Period{
			time.Monday: {
				{Subject: "A", Room: "1", Start: "08:30", End: "09:25"},
				{Subject: "A", Room: "1", Start: "09:25", End: "10:20"},
				{Subject: "B", Room: "2", Start: "10:20", End: "11:15"},
			},
		},
		Exams: []Exam{
			{Name: "กลางภาค", Dates: []string{"2025-11-03"}},
			{Name: "ปลายภาค", Dates: []string{"2025-12-15", "2025-12-16"}},
			{Name: "เก่า", Dates: []string{"2025-01-01"}},
		},
	}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, _, body string) broadcast.Result {
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return broadcast.Result{Attempted: 2, Succeeded: 2, Summary: "✅ ส่งสำเร็จ: 2 คน"}
}

func (f *fakeBroadcaster) Stats(context.Context) (string, error) { return "stats", nil }

func newTestCommands(t *testing.T, now func() time.Time) (*Commands, *router.Router, *router.Router, *fakeBroadcaster) {
	t.Helper()
	fb := &fakeBroadcaster{}
	pub, op, c, err := Build(Deps{
		Content:     testContent(),
		Store:       storage.NewMemory(),
		Broadcaster: fb,
		Location:    time.UTC,
		Now:         now,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c, pub, op, fb
}

func run(t *testing.T, r *router.Router, text string) (string, transport.Reply) {
	t.Helper()
	m, ok := r.Resolve(text)
	if !ok {
		return "", transport.Reply{}
	}
	in := router.Input{Sender: "42", Text: text, Keyword: m.Keyword}
	var (
		rep transport.Reply
		err error
	)
	switch h := m.Rule.Handler.(type) {
	case router.TextHandler:
		rep, err = h(context.Background(), in)
	case router.NoArgHandler:
		rep, err = h(context.Background())
	}
	if err != nil {
		t.Fatalf("%s: handler error: %v", text, err)
	}
	return m.Rule.Name, rep
}

func TestRoutersHaveNoUnreachableKeywords(t *testing.T) {
	t.Parallel()
	_, pub, op, _ := newTestCommands(t, at("08:00:00"))
	for _, r := range []*router.Router{pub, op} {
		if s := r.Shadowed(); len(s) != 0 {
			t.Fatalf("Shadowed = %v", s)
		}
	}
}

func TestPublicRouting(t *testing.T) {
	t.Parallel()
	_, pub, _, _ := newTestCommands(t, at("08:00:00"))

	tests := []struct {
		text, rule string
	}{
		{"วิธีสั่งการบ้าน", "homework-howto"},
		{"สั่งการบ้าน | คณิต | ข้อ 1 | พรุ่งนี้", "homework-add"},
		{"การบ้าน", "homework-list"},
		{"ดูการบ้าน", "homework-list"},
		{"ลบการบ้านทั้งหมด", "homework-clear"},
		{"ใบงาน", "worksheet"},
		{"งาน", "worksheet"},
		{"เว็บโรงเรียน", "school"},
		{"ตารางเรียน", "timetable"},
		{"ลา", "absence"},
		{"เช็คเวลา", "time-until"},
		{"คาบต่อไป", "next-class"},
		{"อีกกี่วันสอบ", "exam"},
		{"เปิดเพลง lofi", "music"},
		{"help", "help"},
		{"ทำไมท้องฟ้าเป็นสีฟ้า", ""},
	}
	for _, tt := range tests {
		got, _ := run(t, pub, tt.text)
		if got != tt.rule {
			t.Fatalf("%q routed to %q, want %q", tt.text, got, tt.rule)
		}
	}
}

func TestTimetableIsMedia(t *testing.T) {
	t.Parallel()
	_, pub, _, _ := newTestCommands(t, at("08:00:00"))
	_, rep := run(t, pub, "ตารางเรียน")
	if rep.Kind != transport.ReplyMedia || rep.URL != "https://img.example/t.jpg" {
		t.Fatalf("reply = %+v", rep)
	}
}

func TestMissingLinkGivesEmptyReply(t *testing.T) {
	t.Parallel()
	_, pub, _, _ := newTestCommands(t, at("08:00:00"))
	if _, rep := run(t, pub, "เกรด"); rep.Valid() {
		t.Fatalf("reply = %+v, want invalid", rep)
	}
}

func TestNextClass(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  func() time.Time
		want string
	}{
		{"before first", at("08:00:00"), "🔜 คาบต่อไป : A\n📍 ห้อง : 1\n⏰ เวลา : 08:30 - 09:25"},
		{"during", at("09:00:00"), "⏳ กำลังเรียน : A\n📍 ห้อง : 1\n⏰ จนถึง : 09:25"},
		{"boundary", at("09:25:00"), "⏳ กำลังเรียน : A\n📍 ห้อง : 1\n⏰ จนถึง : 10:20"},
		{"after last", at("12:00:00"), DefaultTexts().NoClassLeft},
		{"no school", func() time.Time { return at("09:00:00")().AddDate(0, 0, -1) }, DefaultTexts().NoClassToday},
	}
	for _, tt := range tests {
		c, _, _, _ := newTestCommands(t, tt.now)
		if got := c.nextClass(); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTimeUntilNext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  func() time.Time
		want string
	}{
		{"skips same subject", at("09:00:00"), "⏰ เหลือเวลาอีก 80 นาที\n🔜 คาบถัดไป : B\n📍 ห้อง : 2"},
		{"rounds up", at("08:29:30"), "⏰ เหลือเวลาอีก 1 นาที\n🔜 คาบถัดไป : A\n📍 ห้อง : 1"},
		{"last subject", at("10:30:00"), DefaultTexts().NoDifferentClass},
		{"after last", at("11:30:00"), DefaultTexts().NoClassLeft},
	}
	for _, tt := range tests {
		c, _, _, _ := newTestCommands(t, tt.now)
		if got := c.timeUntilNext(); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExamCountdown(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newTestCommands(t, at("07:00:00"))
	got := c.examCountdown()
	want := "⏳ *นับถอยหลังสอบ*\n\n\n" +
		"🔥 วันนี้สอบกลางภาค! สู้ๆ!\n\n" +
		"📌 ปลายภาค\n   เหลือ 42 วัน\n   (สอบวันที่ 15/12, 16/12)"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestExamCountdownNothingAhead(t *testing.T) {
	t.Parallel()
	c, err := New(Deps{
		Content:  Content{Exams: []Exam{{Name: "x", Dates: []string{"2024-01-01"}}}},
		Location: time.UTC,
		Now:      at("07:00:00"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.examCountdown(); !strings.HasPrefix(got, "🎉") {
		t.Fatalf("got %q", got)
	}
}

func TestNewRejectsBadContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		c    Content
	}{
		{"bad clock", Content{Schedule: map[time.Weekday][]Period{time.Monday: {{Subject: "A", Start: "8h", End: "09:00"}}}}},
		{"reversed", Content{Schedule: map[time.Weekday][]Period{time.Monday: {{Subject: "A", Start: "09:00", End: "08:00"}}}}},
		{"bad exam date", Content{Exams: []Exam{{Name: "x", Dates: []string{"15/12/2025"}}}}},
		{"exam without dates", Content{Exams: []Exam{{Name: "x"}}}},
	}
	for _, tt := range tests {
		if _, err := New(Deps{Content: tt.c}); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestParseHomework(t *testing.T) {
	t.Parallel()
	today := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name                 string
		text                 string
		subject, detail, due string
		usage                bool
	}{
		{"pipe", "สั่งการบ้าน | ฟิสิกส์ | ทำแบบฝึกหัด 4.1 | วันศุกร์", "ฟิสิกส์", "ทำแบบฝึกหัด 4.1", "วันศุกร์", false},
		{"pipe no due", "สั่งการบ้าน | คณิต | ข้อ 1-5", "คณิต", "ข้อ 1-5", dueUnknown, false},
		{"pipe tomorrow", "สั่งการบ้าน | คณิต | ข้อ 1 | พรุ่งนี้", "คณิต", "ข้อ 1", "2025-11-04", false},
		{"pipe date", "สั่งการบ้าน | คณิต | ข้อ 1 | 7/11/2025", "คณิต", "ข้อ 1", "2025-11-07", false},
		{"pipe day month", "สั่งการบ้าน | คณิต | ข้อ 1 | 20/12", "คณิต", "ข้อ 1", "2025-12-20", false},
		{"pipe too short", "สั่งการบ้าน | คณิต", "", "", "", true},
		{"pipe blank subject", "สั่งการบ้าน |  | ข้อ 1", "", "", "", true},
		{"legacy", "สั่งการบ้าน ฟิสิกส์ ทำแบบฝึกหัด ส่งวันศุกร์", "ฟิสิกส์", "ทำแบบฝึกหัด", "ศุกร์", false},
		{"legacy no due", "สั่งการบ้าน เคมี อ่านบทที่ 2", "เคมี", "อ่านบทที่ 2", dueUnknown, false},
		{"legacy subject only", "สั่งการบ้าน เคมี", "", "", "", true},
		{"keyword only", "สั่งการบ้าน", "", "", "", true},
	}
	for _, tt := range tests {
		it, usage := parseHomework(tt.text, "สั่งการบ้าน", today)
		if (usage != "") != tt.usage {
			t.Fatalf("%s: usage = %q", tt.name, usage)
		}
		if tt.usage {
			continue
		}
		if it.Subject != tt.subject || it.Detail != tt.detail || it.Due != tt.due {
			t.Fatalf("%s: got %+v", tt.name, it)
		}
	}
}

func TestParseHomeworkTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ก", maxDetailRunes+20)
	it, usage := parseHomework("สั่งการบ้าน | "+strings.Repeat("ข", 150)+" | "+long, "สั่งการบ้าน", time.Now())
	if usage != "" {
		t.Fatalf("usage = %q", usage)
	}
	if n := len([]rune(it.Subject)); n != maxSubjectRunes {
		t.Fatalf("subject runes = %d", n)
	}
	if n := len([]rune(it.Detail)); n != maxDetailRunes {
		t.Fatalf("detail runes = %d", n)
	}
}

func TestHomeworkLifecycle(t *testing.T) {
	t.Parallel()
	_, pub, _, _ := newTestCommands(t, at("08:00:00"))

	if _, rep := run(t, pub, "การบ้าน"); !strings.HasPrefix(rep.Text, "🎉") {
		t.Fatalf("empty list = %q", rep.Text)
	}
	_, rep := run(t, pub, "สั่งการบ้าน | ฟิสิกส์ | บทที่ 4 | พรุ่งนี้")
	if rep.Text != "✅ เพิ่มการบ้านวิชา 'ฟิสิกส์' สำเร็จแล้วครับ!" {
		t.Fatalf("add = %q", rep.Text)
	}
	run(t, pub, "สั่งการบ้าน | เคมี | อ่าน | วันศุกร์")

	_, rep = run(t, pub, "ดูการบ้าน")
	if !strings.HasPrefix(rep.Text, "📋 *รายการการบ้านปัจจุบัน*") {
		t.Fatalf("list = %q", rep.Text)
	}
	if strings.Index(rep.Text, "เคมี") > strings.Index(rep.Text, "ฟิสิกส์") {
		t.Fatalf("list is not newest first: %q", rep.Text)
	}
	if !strings.Contains(rep.Text, "📅 ส่ง: 2025-11-04") {
		t.Fatalf("list missing normalized due: %q", rep.Text)
	}

	for _, text := range []string{"อย่า ลบงาน นะ", "clear hw please"} {
		if name, rep := run(t, pub, text); name != "homework-clear" || !strings.HasPrefix(rep.Text, "⚠️") {
			t.Fatalf("%q: %s = %q", text, name, rep.Text)
		}
	}
	if _, rep = run(t, pub, "ดูการบ้าน"); !strings.Contains(rep.Text, "ฟิสิกส์") {
		t.Fatalf("homework cleared by a sentence: %q", rep.Text)
	}

	if _, rep = run(t, pub, "  ลบการบ้านทั้งหมด "); rep.Text != "🗑️ ลบการบ้านทั้งหมดแล้ว (2 รายการ)" {
		t.Fatalf("clear = %q", rep.Text)
	}
}

func TestMusicSearch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text, keyword, want string
	}{
		{"เปิดเพลง Never Gonna", "เปิดเพลง", "https://www.youtube.com/results?search_query=never%20gonna"},
		{"ขอเพลง a+b", "ขอเพลง", "search_query=a%2Bb"},
	}
	for _, tt := range tests {
		rep, err := musicSearch(context.Background(), router.Input{Text: tt.text, Keyword: tt.keyword})
		if err != nil || !strings.Contains(rep.Text, tt.want) {
			t.Fatalf("%q: reply = %q, err = %v", tt.text, rep.Text, err)
		}
	}
	rep, _ := musicSearch(context.Background(), router.Input{Text: "เปิดเพลง", Keyword: "เปิดเพลง"})
	if !strings.HasPrefix(rep.Text, "กรุณาระบุชื่อเพลง") {
		t.Fatalf("blank title reply = %q", rep.Text)
	}
}

func TestOperatorCommands(t *testing.T) {
	t.Parallel()
	_, _, op, fb := newTestCommands(t, at("08:00:00"))

	if _, rep := run(t, op, "ประกาศ"); rep.Text != announceUsage {
		t.Fatalf("usage = %q", rep.Text)
	}
	if _, rep := run(t, op, "ประกาศ พรุ่งนี้มีสอบ"); rep.Text != "✅ ส่งสำเร็จ: 2 คน" {
		t.Fatalf("summary = %q", rep.Text)
	}
	run(t, op, "ประกาศด่วน เลิกเร็ว")
	run(t, op, "เตือนการบ้าน คณิตส่งพรุ่งนี้")

	want := []string{
		broadcast.Announcement(announcementTitle, "พรุ่งนี้มีสอบ"),
		broadcast.Urgent("เลิกเร็ว"),
		broadcast.Reminder("การบ้าน", "คณิตส่งพรุ่งนี้"),
	}
	if len(fb.bodies) != len(want) {
		t.Fatalf("bodies = %q", fb.bodies)
	}
	for i := range want {
		if fb.bodies[i] != want[i] {
			t.Fatalf("body %d = %q, want %q", i, fb.bodies[i], want[i])
		}
	}

	if name, rep := run(t, op, "จำนวนผู้ใช้"); name != "user-count" || rep.Text != "👥 จำนวนผู้ใช้ทั้งหมด: 0 คน" {
		t.Fatalf("user count = %s %q", name, rep.Text)
	}
	if name, _ := run(t, op, "สถิติประกาศ"); name != "broadcast-stats" {
		t.Fatalf("stats routed to %q", name)
	}
}

func TestAfterKeyword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text, kw, want string
	}{
		{"ประกาศ  hello ", "ประกาศ", "hello"},
		{"HELP me", "help", "me"},
		{"nothing", "ประกาศ", ""},
	}
	for _, tt := range tests {
		if got := afterKeyword(tt.text, tt.kw); got != tt.want {
			t.Fatalf("afterKeyword(%q, %q) = %q, want %q", tt.text, tt.kw, got, tt.want)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]time.Weekday{"monday": time.Monday, "Fri": time.Friday, " sunday ": time.Sunday} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Fatalf("expected error")
	}
}

package commands

import (
	"fmt"
	"strings"
	"time"
)

// Content is the static material the public commands hand out.
type Content struct {
	Links          Links
	TimetableImage string
	// Schedule lists each school day's periods in order. Days without an
	// entry have no classes.
	Schedule map[time.Weekday][]Period
	// Exams are shown in declaration order.
	Exams []Exam
	Texts Texts
}

type Links struct {
	Worksheet string
	School    string
	Grade     string
	Absence   string
	Biology   string
	Physics   string
}

// Period is one timetable slot. Start and End use "15:04".
type Period struct {
	Subject string
	Room    string
	Start   string
	End     string
}

// Exam dates use "2006-01-02".
type Exam struct {
	Name  string
	Dates []string
}

type Texts struct {
	Welcome          string
	Help             string
	OperatorHelp     string
	HomeworkHowTo    string
	NoClassToday     string
	NoClassLeft      string
	NoDifferentClass string
}

func DefaultTexts() Texts {
	return Texts{
		Welcome: "👋 สวัสดีครับ! ผมคือ MTC Assistant\n" +
			"ผู้ช่วยอเนกประสงค์ของห้อง ม.4/2\n\n" +
			"พิมพ์ \"คำสั่ง\" เพื่อดูรายการคำสั่งทั้งหมดนะครับ",
		Help: "📖 รายการคำสั่งทั้งหมด\n\n" +
			"📋 คำสั่งพื้นฐาน\n" +
			"- งาน / ใบงาน = ดูใบงาน\n" +
			"- เว็บโรงเรียน = ลิงก์เว็บโรงเรียน\n" +
			"- ตารางเรียน = ดูตารางเรียน\n" +
			"- เกรด = เช็คเกรด\n" +
			"- คาบต่อไป = ดูว่าเรียนอะไรต่อ\n" +
			"- อีกกี่นาที = เช็คเวลาเหลือก่อนคาบถัดไป\n" +
			"- ลา = แบบฟอร์มลา\n" +
			"- สอบ = นับถอยหลังวันสอบ\n\n" +
			"🧪 คำสั่งเฉลย\n" +
			"- ชีวะ = เฉลยชีววิทยา\n" +
			"- ฟิสิกส์ = เฉลยฟิสิกส์\n\n" +
			"🎵 ความบันเทิง\n" +
			"- เปิดเพลง [ชื่อเพลง] = หาเพลงจาก YouTube\n\n" +
			"💾 คำสั่งการบ้าน\n" +
			"- สั่งการบ้าน | วิชา | รายละเอียด | วันส่ง\n" +
			"  ตัวอย่าง: สั่งการบ้าน | ฟิสิกส์ | ทำแบบฝึกหัด 4.1 | วันศุกร์\n" +
			"- การบ้าน / ดูการบ้าน = ดูการบ้านทั้งหมด\n" +
			"- ลบการบ้านทั้งหมด = ล้างข้อมูล\n\n" +
			"🤖 AI\n" +
			"- พิมพ์ข้อความอื่นๆ = ตอบด้วย AI",
		OperatorHelp: "👨‍💼 *คำสั่งแอดมิน*\n\n" +
			"📢 *การประกาศ:*\n" +
			"• ประกาศ [ข้อความ] - ส่งประกาศทั่วไป\n" +
			"• ประกาศด่วน [ข้อความ] - ส่งประกาศด่วน\n" +
			"• เตือนการบ้าน [รายละเอียด] - เตือนเรื่องการบ้าน\n\n" +
			"📊 *สถิติ:*\n" +
			"• สถิติประกาศ - ดูสถิติการส่ง\n" +
			"• จำนวนผู้ใช้ - จำนวนคนที่แอดบอท\n\n" +
			"💡 *ตัวอย่าง:*\n" +
			"ประกาศ พรุ่งนี้มีสอบฟิสิกส์นะครับ\n" +
			"ประกาศด่วน วันนี้เลิกเรียนเร็ว!\n" +
			"เตือนการบ้าน คณิตต้องส่งพรุ่งนี้",
		HomeworkHowTo: "📝 วิธีสั่งการบ้าน (Homework Command)\n\n" +
			"พิมพ์คำสั่งตามรูปแบบนี้เพื่อให้บอทจำงานนะครับ\n" +
			"👉 `สั่งการบ้าน | วิชา | รายละเอียด | วันส่ง`\n\n" +
			"💡 ตัวอย่าง\n" +
			"สั่งการบ้าน | คณิต | แบบฝึกหัดท้ายบท 2 ข้อคู่ | วันศุกร์\n" +
			"สั่งการบ้าน | ฟิสิกส์ | สรุปสูตรบทการเคลื่อนที่ | 20 ต.ค.",
		NoClassToday:     "วันนี้วันหยุดพักผ่อน ไม่มีเรียนครับ! 🎉",
		NoClassLeft:      "วันนี้ไม่มีคาบเรียนแล้วครับ กลับบ้านได้! 🏠",
		NoDifferentClass: "วันนี้ไม่มีคาบเรียนที่ต่างจากคาบปัจจุบันอีกแล้วครับ",
	}
}

// WithDefaults fills blank texts.
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&t.Welcome, d.Welcome)
	fill(&t.Help, d.Help)
	fill(&t.OperatorHelp, d.OperatorHelp)
	fill(&t.HomeworkHowTo, d.HomeworkHowTo)
	fill(&t.NoClassToday, d.NoClassToday)
	fill(&t.NoClassLeft, d.NoClassLeft)
	fill(&t.NoDifferentClass, d.NoDifferentClass)
	return t
}

// ParseWeekday accepts English day names, full or three-letter.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

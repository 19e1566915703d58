// Package commands is the assistant's command set: class links, timetable
// lookups, exam countdown, homework records and the operator broadcasts.
//
// Build registers the rules in priority order. Homework commands come
// before the worksheet link so "การบ้าน" lists homework instead.
package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mtcbot/internal/broadcast"
	"mtcbot/internal/router"
	"mtcbot/internal/storage"
	"mtcbot/internal/transport"
	logx "mtcbot/pkg/logx"
)

// Store is the persistence the commands need.
type Store interface {
	storage.Homework
	CountActive(ctx context.Context) (int, error)
}

// Broadcaster is satisfied by *broadcast.Service.
type Broadcaster interface {
	Broadcast(ctx context.Context, operatorID, body string) broadcast.Result
	Stats(ctx context.Context) (string, error)
}

type Deps struct {
	Content     Content
	Store       Store
	Broadcaster Broadcaster
	// Location is the school's time zone. Defaults to Asia/Bangkok, or UTC
	// when the zone database is missing.
	Location *time.Location
	Now      func() time.Time
	Log      logx.Logger
}

// Commands holds the compiled content shared by the handlers.
type Commands struct {
	links       Links
	image       string
	texts       Texts
	timetable   timetable
	exams       []exam
	store       Store
	broadcaster Broadcaster
	loc         *time.Location
	now         func() time.Time
	log         logx.Logger
}

func New(d Deps) (*Commands, error) {
	tt, err := compileSchedule(d.Content.Schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	exams, err := compileExams(d.Content.Exams)
	if err != nil {
		return nil, fmt.Errorf("exams: %w", err)
	}
	c := &Commands{
		links:       d.Content.Links,
		image:       strings.TrimSpace(d.Content.TimetableImage),
		texts:       d.Content.Texts.WithDefaults(),
		timetable:   tt,
		exams:       exams,
		store:       d.Store,
		broadcaster: d.Broadcaster,
		loc:         d.Location,
		now:         d.Now,
		log:         d.Log,
	}
	if c.loc == nil {
		c.loc = defaultLocation()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c, nil
}

func defaultLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Bangkok"); err == nil {
		return loc
	}
	return time.UTC
}

func (c *Commands) clock() time.Time { return c.now().In(c.loc) }

// Welcome is sent when a user opens the bot.
func (c *Commands) Welcome() transport.Reply { return transport.Text(c.texts.Welcome) }

// Public builds the router every sender uses.
func (c *Commands) Public() (*router.Router, error) {
	return router.NewBuilder().
		NoArg("homework-howto", c.text(c.texts.HomeworkHowTo), "วิธีสั่งการบ้าน").
		Text("homework-add", c.addHomework, "สั่งการบ้าน").
		NoArg("homework-list", c.listHomework, "การบ้าน", "ดูการบ้าน", "homework").
		Text("homework-clear", c.clearHomework, "ลบการบ้านทั้งหมด", "clear hw", "ลบงาน").
		NoArg("worksheet", c.link("📝 ตารางงานอยู่นี่ครับ ", c.links.Worksheet), "งาน", "เช็คงาน", "ใบงาน", "ตารางงาน").
		NoArg("school", c.link("🏫 เว็บไซต์โรงเรียนครับ ", c.links.School), "เว็บโรงเรียน", "เว็บ").
		NoArg("timetable", c.timetableImage, "ตารางเรียน", "ตารางสอน").
		NoArg("grade", c.link("📊 เช็คเกรดได้ที่นี่ครับ ", c.links.Grade), "เกรด", "ดูเกรด").
		NoArg("absence", c.link("📝 ลิงก์แจ้งลาครับ ", c.links.Absence), "ลาป่วย", "ลากิจ", "ลา").
		NoArg("biology", c.link("🧬 เฉลยชีววิทยาครับ ", c.links.Biology), "ชีวะ", "เฉลยชีวะ").
		NoArg("physics", c.link("⚛️ เฉลยฟิสิกส์ครับ ", c.links.Physics), "ฟิสิกส์", "เฉลยฟิสิกส์").
		NoArg("next-class", c.textFunc(c.nextClass), "คาบต่อไป", "เรียนอะไร", "เรียนไรต่อ").
		NoArg("time-until", c.textFunc(c.timeUntilNext), "อีกกี่นาที", "เหลือเวลา", "เช็คเวลา").
		NoArg("exam", c.textFunc(c.examCountdown), "สอบ", "วันสอบ", "อีกกี่วันสอบ").
		Text("music", musicSearch, "เปิดเพลง", "หาเพลง", "ขอเพลง").
		NoArg("help", c.text(c.texts.Help), "คำสั่ง", "help", "ช่วยเหลือ").
		Build()
}

// Operator builds the router consulted first for operators.
func (c *Commands) Operator() (*router.Router, error) {
	return router.NewBuilder().
		Text("urgent", c.broadcastWith(urgentUsage, broadcast.Urgent), "ประกาศด่วน").
		Text("announce", c.broadcastWith(announceUsage, announcement), "ประกาศ").
		Text("homework-reminder", c.broadcastWith(reminderUsage, homeworkReminder), "เตือนการบ้าน").
		NoArg("broadcast-stats", c.broadcastStats, "สถิติประกาศ", "broadcast stats", "stats broadcast").
		NoArg("user-count", c.userCount, "จำนวนผู้ใช้", "user count", "ผู้ใช้").
		NoArg("operator-help", c.text(c.texts.OperatorHelp), "admin", "คำสั่งแอดมิน").
		Build()
}

// Build compiles d and returns the public and operator routers.
func Build(d Deps) (public, operator *router.Router, cmds *Commands, err error) {
	cmds, err = New(d)
	if err != nil {
		return nil, nil, nil, err
	}
	if public, err = cmds.Public(); err != nil {
		return nil, nil, nil, fmt.Errorf("public commands: %w", err)
	}
	if operator, err = cmds.Operator(); err != nil {
		return nil, nil, nil, fmt.Errorf("operator commands: %w", err)
	}
	for _, r := range []*router.Router{public, operator} {
		for _, s := range r.Shadowed() {
			cmds.log.Warn("unreachable keyword", logx.String("detail", s.String()))
		}
	}
	return public, operator, cmds, nil
}

func (c *Commands) text(s string) router.NoArgHandler {
	return func(context.Context) (transport.Reply, error) { return transport.Text(s), nil }
}

func (c *Commands) textFunc(f func() string) router.NoArgHandler {
	return func(context.Context) (transport.Reply, error) { return transport.Text(f()), nil }
}

// link replies with prefix+url. A missing url yields an empty reply, which
// the invoker reports as a failed action.
func (c *Commands) link(prefix, u string) router.NoArgHandler {
	u = strings.TrimSpace(u)
	return func(context.Context) (transport.Reply, error) {
		if u == "" {
			return transport.Reply{}, nil
		}
		return transport.Text(prefix + u), nil
	}
}

func (c *Commands) timetableImage(context.Context) (transport.Reply, error) {
	return transport.Media(c.image, ""), nil
}

const youtubeSearch = "https://www.youtube.com/results?search_query="

func musicSearch(_ context.Context, in router.Input) (transport.Reply, error) {
	title := strings.ToLower(in.Text)
	if kw := strings.ToLower(in.Keyword); kw != "" {
		title = strings.ReplaceAll(title, kw, "")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return transport.Text("กรุณาระบุชื่อเพลงด้วยครับ เช่น 'เปิดเพลง never gonna give you up'"), nil
	}
	q := strings.ReplaceAll(url.QueryEscape(title), "+", "%20")
	return transport.Text(fmt.Sprintf("🎵 ค้นหาเพลง: %s\n👉 %s%s\n\n💡 กดลิงก์เพื่อดูผลการค้นหาใน YouTube", title, youtubeSearch, q)), nil
}

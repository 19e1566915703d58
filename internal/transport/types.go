package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRecipientGone marks a send that will never succeed for this recipient
// (blocked the bot, deleted account, unknown chat).
var ErrRecipientGone = errors.New("recipient unreachable")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	// UpdateStart is a user opening the bot for the first time (/start).
	UpdateStart UpdateKind = "start"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
}

// SenderID is the stable identity used for rate limiting and the
// recipient directory.
func (m *Message) SenderID() string {
	if m == nil || m.FromID == 0 {
		return ""
	}
	return strconv.FormatInt(m.FromID, 10)
}

func (m *Message) Chat() ChatTarget {
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// TargetFor resolves a directory recipient id into a private-chat target.
func TargetFor(recipientID string) (ChatTarget, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid recipient id %q", recipientID)
	}
	return ChatTarget{ChatID: id}, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyMedia
)

// Reply is what a handler produces: a text body or a media reference.
type Reply struct {
	Kind    ReplyKind
	Text    string
	URL     string
	Caption string
}

func Text(s string) Reply { return Reply{Kind: ReplyText, Text: s} }

func Media(url, caption string) Reply {
	return Reply{Kind: ReplyMedia, URL: url, Caption: caption}
}

// Valid reports whether the reply carries something deliverable.
func (r Reply) Valid() bool {
	switch r.Kind {
	case ReplyText:
		return strings.TrimSpace(r.Text) != ""
	case ReplyMedia:
		return strings.TrimSpace(r.URL) != ""
	default:
		return false
	}
}

// Sender is the outbound half of an adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, url, caption string) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// Deliver sends one reply through s.
func Deliver(ctx context.Context, s Sender, to ChatTarget, r Reply) error {
	switch r.Kind {
	case ReplyMedia:
		_, err := s.SendMedia(ctx, to, r.URL, r.Caption)
		return err
	case ReplyText:
		_, err := s.SendText(ctx, to, r.Text, &SendOptions{DisablePreview: false})
		return err
	default:
		return fmt.Errorf("unknown reply kind %d", r.Kind)
	}
}

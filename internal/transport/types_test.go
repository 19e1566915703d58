package transport

import (
	"context"
	"testing"
)

func TestReplyValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		reply Reply
		want  bool
	}{
		{name: "text", reply: Text("hi"), want: true},
		{name: "blank text", reply: Text("  \n"), want: false},
		{name: "media", reply: Media("https://example.com/a.jpg", ""), want: true},
		{name: "media without url", reply: Media(" ", "cap"), want: false},
		{name: "unknown kind", reply: Reply{Kind: 9, Text: "x"}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reply.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetFor(t *testing.T) {
	t.Parallel()
	got, err := TargetFor(" 12345 ")
	if err != nil || got.ChatID != 12345 {
		t.Fatalf("TargetFor = %+v, %v", got, err)
	}
	if _, err := TargetFor("anon-1.2.3.4"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

type fakeSender struct {
	texts  []string
	medias []string
}

func (f *fakeSender) SendText(_ context.Context, to ChatTarget, text string, _ *SendOptions) (MessageRef, error) {
	f.texts = append(f.texts, text)
	return MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) SendMedia(_ context.Context, to ChatTarget, url, _ string) (MessageRef, error) {
	f.medias = append(f.medias, url)
	return MessageRef{ChatID: to.ChatID}, nil
}

func TestDeliverRoutesByKind(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	ctx := context.Background()
	if err := Deliver(ctx, s, ChatTarget{ChatID: 1}, Text("hello")); err != nil {
		t.Fatal(err)
	}
	if err := Deliver(ctx, s, ChatTarget{ChatID: 1}, Media("https://img", "")); err != nil {
		t.Fatal(err)
	}
	if len(s.texts) != 1 || len(s.medias) != 1 {
		t.Fatalf("texts=%v medias=%v", s.texts, s.medias)
	}
}

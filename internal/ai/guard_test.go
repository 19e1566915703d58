package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	logx "mtcbot/pkg/logx"
)

type recorder struct {
	prompts []string
	reply   string
	err     error
}

func (r *recorder) Generate(_ context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return r.reply, r.err
}

func fixedNow() time.Time {
	return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
}

func TestGuardAnswersIdentityWithoutModel(t *testing.T) {
	t.Parallel()
	rec := &recorder{reply: "should not be used"}
	g := NewGuard(rec, GuardConfig{IdentityText: "I am the class bot", Now: fixedNow, Location: time.UTC})

	for _, in := range []string{"คุณคือใคร", "Who are you?", "บอทชื่ออะไรเหรอ"} {
		got, err := g.Generate(context.Background(), in)
		if err != nil || got != "I am the class bot" {
			t.Fatalf("Generate(%q) = %q, %v", in, got, err)
		}
	}
	if len(rec.prompts) != 0 {
		t.Fatalf("model was called %d times", len(rec.prompts))
	}
}

func TestGuardAddsThaiDateContext(t *testing.T) {
	t.Parallel()
	rec := &recorder{reply: "ok"}
	g := NewGuard(rec, GuardConfig{Now: fixedNow, Location: time.UTC})

	if _, err := g.Generate(context.Background(), "พรุ่งนี้เรียนอะไร"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "(บริบท: วันนี้คือวันพุธที่ 15 มกราคม พ.ศ. 2568)\n\nคำถาม: พรุ่งนี้เรียนอะไร"
	if rec.prompts[0] != want {
		t.Fatalf("prompt = %q, want %q", rec.prompts[0], want)
	}
}

func TestGuardRewritesBrand(t *testing.T) {
	t.Parallel()
	rec := &recorder{reply: "I was trained by Google. กูเกิล says hi. googleplex stays."}
	g := NewGuard(rec, GuardConfig{Brand: "Gemini", Now: fixedNow})

	got, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "I was trained by Gemini. Gemini says hi. googleplex stays."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGuardTruncatesLongReplies(t *testing.T) {
	t.Parallel()
	rec := &recorder{reply: strings.Repeat("ก", 50)}
	g := NewGuard(rec, GuardConfig{MaxReplyRunes: 10, Now: fixedNow})

	got, err := g.Generate(context.Background(), "long")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(got, strings.Repeat("ก", 10)+"...") {
		t.Fatalf("got %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 10+utf8.RuneCountInString(truncatedSuffix) {
		t.Fatalf("rune count = %d", n)
	}
}

func TestGuardSurfacesFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("quota")
	tests := []struct {
		name  string
		inner Responder
		want  error
	}{
		{"model error", &recorder{err: boom}, boom},
		{"blank output", &recorder{reply: "  \n"}, ErrEmptyResponse},
		{"disabled", Disabled{}, ErrDisabled},
		{"nil inner", nil, ErrDisabled},
	}
	for _, tt := range tests {
		g := NewGuard(tt.inner, GuardConfig{Now: fixedNow})
		_, err := g.Generate(context.Background(), "question")
		if !errors.Is(err, tt.want) {
			t.Fatalf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), Config{Provider: "llama"}, logxNop()); err == nil {
		t.Fatal("expected error")
	}
	r, err := New(context.Background(), Config{Provider: "none"}, logxNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Generate(context.Background(), "hi"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func logxNop() logx.Logger { return logx.Nop() }

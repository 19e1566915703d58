package router

import (
	"context"
	"strings"
	"testing"

	"mtcbot/internal/transport"
)

func noArg(text string) NoArgHandler {
	return func(context.Context) (transport.Reply, error) { return transport.Text(text), nil }
}

func mustBuild(t *testing.T, b *Builder) *Router {
	t.Helper()
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r
}

func TestResolveWordBoundaries(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().NoArg("go", noArg("go"), "go"))

	tests := []struct {
		in   string
		want bool
	}{
		{"go", true},
		{"go!", true},
		{"let's go now", true},
		{"GO", true},
		{"good", false},
		{"ergo", false},
		{"go_on", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		_, ok := r.Resolve(tt.in)
		if ok != tt.want {
			t.Fatalf("Resolve(%q) matched=%v, want %v", tt.in, ok, tt.want)
		}
	}
}

func TestResolveFirstRuleWins(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().
		NoArg("R1", noArg("1"), "a", "ab").
		NoArg("R2", noArg("2"), "abc"))

	m, ok := r.Resolve("abc ab")
	if !ok || m.Rule.Name != "R1" || m.Keyword != "ab" {
		t.Fatalf("Resolve = %+v, %v; want R1 via ab", m, ok)
	}
	m, ok = r.Resolve("abc")
	if !ok || m.Rule.Name != "R2" {
		t.Fatalf("Resolve(abc) = %+v, %v; want R2", m, ok)
	}
}

func TestResolveSubstringMode(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().Mode(MatchSubstring).
		NoArg("R1", noArg("1"), "a", "ab").
		NoArg("R2", noArg("2"), "abc"))

	m, ok := r.Resolve("abc")
	if !ok || m.Rule.Name != "R1" || m.Keyword != "ab" {
		t.Fatalf("Resolve = %+v, %v; want R1 via ab", m, ok)
	}
}

func TestResolveLongestKeywordFirst(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().NoArg("exam", noArg("x"), "สอบ", "วันสอบ"))

	m, ok := r.Resolve("วันสอบ")
	if !ok || m.Keyword != "วันสอบ" {
		t.Fatalf("Resolve = %+v, %v; want วันสอบ", m, ok)
	}
}

func TestResolveThaiKeywords(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().
		NoArg("grade", noArg("g"), "เกรด", "ดูเกรด").
		Text("music", func(_ context.Context, in Input) (transport.Reply, error) {
			return transport.Text(in.Text), nil
		}, "เปิดเพลง"))

	tests := []struct {
		in, rule string
	}{
		{"เกรด", "grade"},
		{"ขอ ดูเกรด หน่อย", "grade"},
		{"เปิดเพลง lofi", "music"},
		{"เปิดเพลง", "music"},
	}
	for _, tt := range tests {
		m, ok := r.Resolve(tt.in)
		if !ok || m.Rule.Name != tt.rule {
			t.Fatalf("Resolve(%q) = %+v, %v; want %s", tt.in, m, ok, tt.rule)
		}
	}
	if _, ok := r.Resolve("เกรดเฉลี่ย"); ok {
		t.Fatalf("keyword matched inside a longer word")
	}
}

func TestResolveKeepsDeclaredSpelling(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().NoArg("help", noArg("h"), "Help"))
	m, ok := r.Resolve("HELP")
	if !ok || m.Keyword != "Help" {
		t.Fatalf("Resolve = %+v, %v", m, ok)
	}
}

func TestBuildRejectsBadRules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b    *Builder
		want string
	}{
		{"blank keyword", NewBuilder().NoArg("x", noArg("x"), "ok", "  "), "blank keyword"},
		{"no keywords", NewBuilder().NoArg("x", noArg("x")), "no keywords"},
		{"nil handler", NewBuilder().NoArg("x", nil, "x"), "nil handler"},
		{"duplicate", NewBuilder().NoArg("x", noArg("x"), "a").NoArg("x", noArg("x"), "b"), "duplicate name"},
		{"unnamed", NewBuilder().NoArg(" ", noArg("x"), "a"), "without a name"},
	}
	for _, tt := range tests {
		_, err := tt.b.Build()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestShadowed(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().
		NoArg("homework", noArg("h"), "การบ้าน").
		NoArg("worksheet", noArg("w"), "งาน", "การบ้าน", "ดู การบ้าน").
		NoArg("web", noArg("s"), "เว็บ"))

	got := r.Shadowed()
	if len(got) != 2 {
		t.Fatalf("Shadowed = %v, want 2 entries", got)
	}
	for _, s := range got {
		if s.Rule != "worksheet" || s.By != "homework" {
			t.Fatalf("unexpected shadow %v", s)
		}
	}
}

func TestShadowedSubstringMode(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().Mode(MatchSubstring).
		NoArg("web", noArg("w"), "เว็บ").
		NoArg("school", noArg("s"), "เว็บโรงเรียน"))

	got := r.Shadowed()
	if len(got) != 1 || got[0].Keyword != "เว็บโรงเรียน" {
		t.Fatalf("Shadowed = %v", got)
	}
}

func TestRulesPreserveOrder(t *testing.T) {
	t.Parallel()
	r := mustBuild(t, NewBuilder().
		NoArg("b", noArg("b"), "b").
		NoArg("a", noArg("a"), "a"))
	rules := r.Rules()
	if len(rules) != 2 || rules[0].Name != "b" || rules[1].Name != "a" {
		t.Fatalf("Rules = %+v", rules)
	}
}

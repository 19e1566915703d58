// Package router resolves message text to a command rule by keyword.
//
// Rules are tried in registration order and the first rule with any
// matching keyword wins. Inside a rule, keywords are tried longest first.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"mtcbot/internal/transport"
)

// Input is what a TextHandler receives.
type Input struct {
	Sender      string
	DisplayName string
	Text        string
	// Keyword is the keyword that selected the rule, as declared.
	Keyword string
}

// Handler is either a TextHandler or a NoArgHandler. The set is closed.
type Handler interface {
	isHandler()
}

// TextHandler needs the message text.
type TextHandler func(ctx context.Context, in Input) (transport.Reply, error)

// NoArgHandler produces its reply from configuration alone.
type NoArgHandler func(ctx context.Context) (transport.Reply, error)

func (TextHandler) isHandler()  {}
func (NoArgHandler) isHandler() {}

type Rule struct {
	Name     string
	Keywords []string
	Handler  Handler

	// ordered holds folded keywords, longest first; decl maps back to the
	// declared spelling.
	ordered []string
	decl    map[string]string
}

// MatchMode selects how a keyword must sit inside the text.
type MatchMode int

const (
	// MatchWord requires the keyword not to touch another word character
	// (any letter, mark, digit or underscore) on either side.
	MatchWord MatchMode = iota
	// MatchSubstring accepts the keyword anywhere in the text.
	MatchSubstring
)

type Match struct {
	Rule    *Rule
	Keyword string
}

type Router struct {
	mode  MatchMode
	rules []*Rule
}

// Resolve returns the first rule whose keywords match text.
func (r *Router) Resolve(text string) (Match, bool) {
	if r == nil {
		return Match{}, false
	}
	folded := strings.ToLower(strings.TrimSpace(text))
	if folded == "" {
		return Match{}, false
	}
	for _, rule := range r.rules {
		for _, kw := range rule.ordered {
			if contains(folded, kw, r.mode) {
				return Match{Rule: rule, Keyword: rule.decl[kw]}, true
			}
		}
	}
	return Match{}, false
}

// Rules returns the rules in priority order.
func (r *Router) Rules() []Rule {
	if r == nil {
		return nil
	}
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	return out
}

func (r *Router) Mode() MatchMode { return r.mode }

// Shadow is a keyword that can never select its rule.
type Shadow struct {
	Rule    string
	Keyword string
	By      string // earlier rule
	Via     string // earlier rule's keyword
}

func (s Shadow) String() string {
	return fmt.Sprintf("%s: keyword %q is claimed by earlier rule %s (%q)", s.Rule, s.Keyword, s.By, s.Via)
}

// Shadowed lists keywords that are unreachable because an earlier rule
// matches every text containing them.
func (r *Router) Shadowed() []Shadow {
	if r == nil {
		return nil
	}
	var out []Shadow
	for j, rule := range r.rules {
		for _, kw := range rule.ordered {
			if by, via, ok := r.claimedBefore(j, kw); ok {
				out = append(out, Shadow{Rule: rule.Name, Keyword: rule.decl[kw], By: by.Name, Via: by.decl[via]})
			}
		}
	}
	return out
}

func (r *Router) claimedBefore(idx int, kw string) (*Rule, string, bool) {
	for _, earlier := range r.rules[:idx] {
		for _, e := range earlier.ordered {
			if contains(kw, e, r.mode) {
				return earlier, e, true
			}
		}
	}
	return nil, "", false
}

func contains(text, kw string, mode MatchMode) bool {
	if mode == MatchSubstring {
		return strings.Contains(text, kw)
	}
	first, _ := utf8.DecodeRuneInString(kw)
	last, _ := utf8.DecodeLastRuneInString(kw)
	checkLeft, checkRight := isWordRune(first), isWordRune(last)

	for off := 0; off <= len(text)-len(kw); {
		i := strings.Index(text[off:], kw)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(kw)
		leftOK := !checkLeft || start == 0 || !isWordRune(lastRune(text[:start]))
		rightOK := !checkRight || end == len(text) || !isWordRune(firstRune(text[end:]))
		if leftOK && rightOK {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		off = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// Builder collects rules in priority order.
type Builder struct {
	mode  MatchMode
	rules []*Rule
	errs  []error
	names map[string]bool
}

func NewBuilder() *Builder {
	return &Builder{names: map[string]bool{}}
}

// Mode sets the match mode for the built router.
func (b *Builder) Mode(m MatchMode) *Builder {
	b.mode = m
	return b
}

// Text registers a rule whose handler receives the message.
func (b *Builder) Text(name string, h TextHandler, keywords ...string) *Builder {
	if h == nil {
		return b.add(name, nil, keywords)
	}
	return b.add(name, h, keywords)
}

// NoArg registers a rule whose handler takes no input.
func (b *Builder) NoArg(name string, h NoArgHandler, keywords ...string) *Builder {
	if h == nil {
		return b.add(name, nil, keywords)
	}
	return b.add(name, h, keywords)
}

func (b *Builder) add(name string, h Handler, keywords []string) *Builder {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("rule without a name"))
		return b
	case b.names[name]:
		b.errs = append(b.errs, fmt.Errorf("rule %s: duplicate name", name))
		return b
	case h == nil:
		b.errs = append(b.errs, fmt.Errorf("rule %s: nil handler", name))
		return b
	case len(keywords) == 0:
		b.errs = append(b.errs, fmt.Errorf("rule %s: no keywords", name))
		return b
	}
	b.names[name] = true

	rule := &Rule{
		Name:     name,
		Keywords: append([]string(nil), keywords...),
		Handler:  h,
		decl:     make(map[string]string, len(keywords)),
	}
	for _, kw := range keywords {
		f := strings.ToLower(strings.TrimSpace(kw))
		if f == "" {
			b.errs = append(b.errs, fmt.Errorf("rule %s: blank keyword", name))
			continue
		}
		if _, dup := rule.decl[f]; dup {
			continue
		}
		rule.decl[f] = kw
		rule.ordered = append(rule.ordered, f)
	}
	sort.SliceStable(rule.ordered, func(i, j int) bool {
		return utf8.RuneCountInString(rule.ordered[i]) > utf8.RuneCountInString(rule.ordered[j])
	})
	b.rules = append(b.rules, rule)
	return b
}

// Build freezes the rule list.
func (b *Builder) Build() (*Router, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return &Router{mode: b.mode, rules: append([]*Rule(nil), b.rules...)}, nil
}

// Package ai answers messages that no command rule claimed.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "mtcbot/pkg/logx"
)

var (
	// ErrDisabled is returned when no model is configured.
	ErrDisabled = errors.New("ai: disabled")
	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Responder produces a free-form reply for a prompt.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Responder.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Disabled always fails with ErrDisabled.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) { return "", ErrDisabled }

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL points the openai backend at any compatible endpoint.
	BaseURL         string
	SystemPrompt    string
	MaxOutputTokens int
	Timeout         time.Duration

	Guard GuardConfig
}

// New builds the configured backend wrapped in a Guard.
func New(ctx context.Context, cfg Config, log logx.Logger) (Responder, error) {
	var inner Responder
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case "", ProviderNone:
		inner = Disabled{}
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = g
	case ProviderOpenAI:
		o, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		inner = o
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
	log.Info("ai fallback ready", logx.String("provider", providerName(inner)), logx.String("model", cfg.Model))
	return NewGuard(withTimeout(inner, cfg.Timeout), cfg.Guard), nil
}

func providerName(r Responder) string {
	switch r.(type) {
	case *Gemini:
		return ProviderGemini
	case *OpenAI:
		return ProviderOpenAI
	default:
		return ProviderNone
	}
}

func withTimeout(r Responder, d time.Duration) Responder {
	if d <= 0 {
		return r
	}
	return Func(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return r.Generate(ctx, prompt)
	})
}

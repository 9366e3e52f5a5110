// Package generation drives chapter drafts through the validator and into
// the version ledger. The model call itself sits behind Provider.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/logger"
	"github.com/yungbote/quillgate/internal/platform/openai"
)

const (
	RoleUser      = openai.RoleUser
	RoleAssistant = openai.RoleAssistant
)

type Message struct {
	Role    string
	Content string
}

type GenerateRequest struct {
	SystemPrompt string
	Conversation []Message
	// Temperature nil leaves the provider default.
	Temperature *float64
	Timeout     time.Duration
}

// Provider produces one candidate text. Errors are transport or provider
// failures and never carry validation meaning.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

var ErrEmptyGeneration = errors.New("provider returned empty text")

type openAIProvider struct {
	ai  openai.Client
	log *logger.Logger
}

// NewOpenAIProvider wraps a chat-completion client.
func NewOpenAIProvider(ai openai.Client, log *logger.Logger) (Provider, error) {
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &openAIProvider{ai: ai, log: log.With("service", "OpenAIProvider")}, nil
}

func (p *openAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	msgs := make([]openai.Message, 0, len(req.Conversation))
	for _, m := range req.Conversation {
		msgs = append(msgs, openai.Message{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := p.ai.Chat(ctx, openai.ChatRequest{
		System:      req.SystemPrompt,
		Messages:    msgs,
		Temperature: req.Temperature,
		Timeout:     req.Timeout,
	})
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	observability.Current().ObserveGeneration(p.ai.Model(), status, time.Since(start))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyGeneration
	}
	p.log.Debug("generation done", "model", resp.Model, "text", resp.Text, "latency_ms", time.Since(start).Milliseconds())
	return resp.Text, nil
}

// Package openai is the chat-completion client used by chapter generation.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/yungbote/quillgate/internal/platform/envutil"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	System   string
	Messages []Message
	// Temperature nil leaves the model default.
	Temperature *float64
	Timeout     time.Duration
}

type ChatResponse struct {
	Text  string
	Model string
}

type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Model() string
}

type client struct {
	log   *logger.Logger
	api   openai.Client
	model string

	// Models that answered 400 to a temperature parameter; the next call
	// omits it instead of failing again.
	mu     sync.Mutex
	noTemp map[string]time.Time
	ttl    time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(envutil.String("OPENAI_API_KEY", ""))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	return NewClientWithOptions(log, envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(envutil.Int("OPENAI_MAX_RETRIES", 2)),
	)
}

// NewClientWithOptions builds a client from explicit request options.
// OPENAI_BASE_URL is still honored when set.
func NewClientWithOptions(log *logger.Logger, model string, opts ...option.RequestOption) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("missing model")
	}
	if base := strings.TrimSpace(envutil.String("OPENAI_BASE_URL", "")); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	return &client{
		log:    log.With("service", "OpenAIClient", "model", model),
		api:    openai.NewClient(opts...),
		model:  model,
		noTemp: map[string]time.Time{},
		ttl:    envutil.Duration("OPENAI_NO_TEMPERATURE_TTL", 24*time.Hour),
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toMessages(req),
	}
	sendTemp := req.Temperature != nil && !c.temperatureRejected()
	if sendTemp {
		params.Temperature = openai.Float(*req.Temperature)
	}

	var opts []option.RequestOption
	if req.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(req.Timeout))
	}

	completion, err := c.api.Chat.Completions.New(ctx, params, opts...)
	if err != nil && sendTemp && isTemperatureRejection(err) {
		c.rememberNoTemperature()
		c.log.Warn("model rejected temperature; retrying without it")
		params.Temperature = openai.ChatCompletionNewParams{}.Temperature
		completion, err = c.api.Chat.Completions.New(ctx, params, opts...)
	}
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai chat: no choices returned")
	}
	return ChatResponse{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
	}, nil
}

func toMessages(req ChatRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

func (c *client) temperatureRejected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.noTemp[c.model]
	if !ok {
		return false
	}
	if time.Since(at) > c.ttl {
		delete(c.noTemp, c.model)
		return false
	}
	return true
}

func (c *client) rememberNoTemperature() {
	c.mu.Lock()
	c.noTemp[c.model] = time.Now()
	c.mu.Unlock()
}

func isTemperatureRejection(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Error()), "temperature")
}

package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yungbote/quillgate/internal/platform/envutil"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type embedder struct {
	log        *logger.Logger
	api        openai.Client
	model      string
	dimensions int
}

// NewEmbedder reads OPENAI_API_KEY, OPENAI_EMBED_MODEL and OPENAI_EMBED_DIM.
// A zero dimension leaves the model's native size.
func NewEmbedder(log *logger.Logger) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(envutil.String("OPENAI_API_KEY", ""))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	return NewEmbedderWithOptions(log,
		envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		envutil.Int("OPENAI_EMBED_DIM", 0),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(envutil.Int("OPENAI_MAX_RETRIES", 2)),
	)
}

func NewEmbedderWithOptions(log *logger.Logger, model string, dimensions int, opts ...option.RequestOption) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("missing embedding model")
	}
	if dimensions < 0 {
		return nil, fmt.Errorf("invalid embedding dimensions %d", dimensions)
	}
	if base := strings.TrimSpace(envutil.String("OPENAI_BASE_URL", "")); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	return &embedder{
		log:        log.With("service", "OpenAIEmbedder", "model", model),
		api:        openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}, nil
}

func (e *embedder) Model() string { return e.model }

func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range", idx)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	e.log.Debug("embedded texts", "count", len(texts))
	return out, nil
}

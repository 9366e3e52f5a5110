package app

import (
	"context"
	"fmt"
	"time"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/openai"
	"github.com/yungbote/quillgate/internal/platform/qdrant"
)

type pointWriter interface {
	Upsert(ctx context.Context, points []qdrant.Point) error
}

// vectorIngestor embeds a version's content and upserts it keyed by version id,
// so re-ingesting the same version overwrites its point.
type vectorIngestor struct {
	provider string
	embedder openai.Embedder
	points   pointWriter
	metrics  *observability.Metrics
}

func newVectorIngestor(provider string, embedder openai.Embedder, points pointWriter) generation.Ingestor {
	if embedder == nil || points == nil {
		return nil
	}
	return &vectorIngestor{
		provider: provider,
		embedder: embedder,
		points:   points,
		metrics:  observability.Current(),
	}
}

func (v *vectorIngestor) Ingest(ctx context.Context, version *types.ChapterVersion) error {
	if version == nil {
		return fmt.Errorf("nil version")
	}

	start := time.Now()
	vecs, err := v.embedder.Embed(ctx, []string{version.Content})
	v.observe("embed", err, time.Since(start))
	if err != nil {
		return err
	}
	if len(vecs) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}

	start = time.Now()
	err = v.points.Upsert(ctx, []qdrant.Point{{
		ID:     version.ID,
		Vector: vecs[0],
		Payload: map[string]any{
			"chapter_id":   version.ChapterID.String(),
			"seq":          version.Seq,
			"label":        version.Label,
			"content_hash": version.ContentHash,
			"embed_model":  v.embedder.Model(),
		},
	}})
	v.observe("upsert", err, time.Since(start))
	return err
}

func (v *vectorIngestor) observe(operation string, err error, dur time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	v.metrics.ObserveVectorOperation(v.provider, operation, status, dur)
}

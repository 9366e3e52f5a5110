package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/quillgate/internal/domain"
	"github.com/yungbote/quillgate/internal/platform/qdrant"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 2}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "embed-test" }

type fakePoints struct {
	points []qdrant.Point
	err    error
}

func (f *fakePoints) Upsert(_ context.Context, points []qdrant.Point) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func TestVectorIngestorUpsertsByVersionID(t *testing.T) {
	emb := &fakeEmbedder{}
	pts := &fakePoints{}
	ing := newVectorIngestor("qdrant", emb, pts)

	v := &types.ChapterVersion{ID: uuid.New(), ChapterID: uuid.New(), Seq: 3, Label: "v3", Content: "draft", ContentHash: "abc"}
	if err := ing.Ingest(context.Background(), v); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "draft" {
		t.Fatalf("embedded texts: %v", emb.texts)
	}
	if len(pts.points) != 1 {
		t.Fatalf("points: %+v", pts.points)
	}
	p := pts.points[0]
	if p.ID != v.ID || p.Payload["chapter_id"] != v.ChapterID.String() || p.Payload["seq"] != 3 || p.Payload["embed_model"] != "embed-test" {
		t.Fatalf("unexpected point: %+v", p)
	}
}

func TestVectorIngestorPropagatesErrors(t *testing.T) {
	v := &types.ChapterVersion{ID: uuid.New(), Content: "draft"}

	embErr := errors.New("rate limited")
	if err := newVectorIngestor("qdrant", &fakeEmbedder{err: embErr}, &fakePoints{}).Ingest(context.Background(), v); !errors.Is(err, embErr) {
		t.Fatalf("want embed error, got %v", err)
	}
	upErr := errors.New("index down")
	if err := newVectorIngestor("qdrant", &fakeEmbedder{}, &fakePoints{err: upErr}).Ingest(context.Background(), v); !errors.Is(err, upErr) {
		t.Fatalf("want upsert error, got %v", err)
	}
	if newVectorIngestor("qdrant", nil, &fakePoints{}) != nil {
		t.Fatalf("missing embedder should disable ingestion")
	}
}

package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/platform/logger"
)

type fakeQdrant struct {
	size     int
	upserts  []map[string]any
	failWith int
	status   string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/readyz":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Path == "/collections/drafts":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"result": map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}}},
		})
	case r.Method == http.MethodPut && r.URL.Path == "/collections/drafts/points":
		if f.failWith != 0 {
			w.WriteHeader(f.failWith)
			_, _ = w.Write([]byte(`{"status":{"error":"boom"}}`))
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.upserts = append(f.upserts, body)
		status := f.status
		if status == "" {
			status = `"ok"`
		}
		_, _ = w.Write([]byte(`{"status":` + status + `,"result":{"status":"acknowledged"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeQdrant) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), logger.Nop(), Config{URL: srv.URL, Collection: "drafts", VectorDim: 3})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestUpsertRequestShape(t *testing.T) {
	f := &fakeQdrant{size: 3}
	c := newTestClient(t, f)
	id := uuid.New()

	err := c.Upsert(context.Background(), []Point{{ID: id, Vector: []float32{1, 2, 3}, Payload: map[string]any{"seq": 2}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(f.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(f.upserts))
	}
	points, _ := f.upserts[0]["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("points: %v", f.upserts[0])
	}
	p := points[0].(map[string]any)
	if p["id"] != id.String() {
		t.Fatalf("point id: %v", p["id"])
	}
	if p["payload"].(map[string]any)["seq"] != float64(2) {
		t.Fatalf("payload: %v", p["payload"])
	}
}

func TestUpsertValidation(t *testing.T) {
	f := &fakeQdrant{size: 3}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.Upsert(ctx, nil); err != nil {
		t.Fatalf("empty upsert should be a no-op: %v", err)
	}
	var opErr *OperationError
	err := c.Upsert(ctx, []Point{{Vector: []float32{1, 2, 3}}})
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("want validation error for nil id, got %v", err)
	}
	err = c.Upsert(ctx, []Point{{ID: uuid.New(), Vector: []float32{1}}})
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("want validation error for dimension, got %v", err)
	}
	if len(f.upserts) != 0 {
		t.Fatalf("invalid points should not be sent")
	}
}

func TestUpsertSurfacesServerErrors(t *testing.T) {
	f := &fakeQdrant{size: 3}
	c := newTestClient(t, f)

	f.failWith = http.StatusInternalServerError
	var opErr *OperationError
	err := c.Upsert(context.Background(), []Point{{ID: uuid.New(), Vector: []float32{1, 2, 3}}})
	if !errors.As(err, &opErr) || opErr.StatusCode != http.StatusInternalServerError || opErr.Code != OperationErrorRequestFailed {
		t.Fatalf("unexpected error: %v", err)
	}

	f.failWith = 0
	f.status = `{"error":"collection locked"}`
	err = c.Upsert(context.Background(), []Point{{ID: uuid.New(), Vector: []float32{1, 2, 3}}})
	if !errors.As(err, &opErr) || opErr.Message != "collection locked" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClientRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{size: 8})
	t.Cleanup(srv.Close)
	_, err := NewClient(context.Background(), logger.Nop(), Config{URL: srv.URL, Collection: "drafts", VectorDim: 3})
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestEnvelopeStatusError(t *testing.T) {
	cases := map[string]string{
		``:                 "",
		`"ok"`:             "",
		`"OK"`:             "",
		`"degraded"`:       `qdrant status="degraded"`,
		`{"error":"nope"}`: "nope",
		`{"unexpected":1}`: `qdrant status={"unexpected":1}`,
	}
	for raw, want := range cases {
		if got := envelopeStatusError(json.RawMessage(raw)); got != want {
			t.Fatalf("envelopeStatusError(%q) = %q, want %q", raw, got, want)
		}
	}
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/modules/narrative"
)

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", DBDriverSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "gate.db"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("NARRATIVE_CONTEXT_FILE", "")
	t.Setenv("LOG_MODE", "development")
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected invalid driver error")
	}
}

func TestNewWiresSQLiteWithoutGeneration(t *testing.T) {
	sqliteEnv(t)
	gin.SetMode(gin.TestMode)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	ctx := context.Background()
	ch, err := a.Narrative.CreateChapter(ctx, narrative.CreateChapterInput{ProjectID: uuid.New(), ChapterNumber: 1})
	if err != nil {
		t.Fatalf("CreateChapter: %v", err)
	}
	if _, err := a.Narrative.Generate(ctx, narrative.GenerateInput{ChapterID: ch.ID}); err != narrative.ErrGenerationDisabled {
		t.Fatalf("expected generation disabled, got %v", err)
	}

	rec := httptest.NewRecorder()
	a.Server().Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewLoadsContextFile(t *testing.T) {
	sqliteEnv(t)
	path := filepath.Join(t.TempDir(), "context.yaml")
	if err := os.WriteFile(path, []byte("pov:\n  pov_name: 张三\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NARRATIVE_CONTEXT_FILE", path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	ctx := context.Background()
	ch, err := a.Narrative.CreateChapter(ctx, narrative.CreateChapterInput{ProjectID: uuid.New(), ChapterNumber: 2})
	if err != nil {
		t.Fatalf("CreateChapter: %v", err)
	}
	res, err := a.Narrative.ValidateChapter(ctx, ch.ID, "他并不知道的是，远处有人窥视。")
	if err != nil {
		t.Fatalf("ValidateChapter: %v", err)
	}
	if res.OK {
		t.Fatalf("expected pov leak against loaded context")
	}
}

func TestNewFailsOnMissingContextFile(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("NARRATIVE_CONTEXT_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing context file error")
	}
}

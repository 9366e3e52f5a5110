package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/aggregates"
	"github.com/yungbote/quillgate/internal/data/db"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	httpapi "github.com/yungbote/quillgate/internal/http"
	httpH "github.com/yungbote/quillgate/internal/http/handlers"
	"github.com/yungbote/quillgate/internal/modules/narrative"
	"github.com/yungbote/quillgate/internal/modules/narrative/generation"
	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
	"github.com/yungbote/quillgate/internal/observability"
	"github.com/yungbote/quillgate/internal/platform/envutil"
	"github.com/yungbote/quillgate/internal/platform/logger"
	"github.com/yungbote/quillgate/internal/platform/openai"
	"github.com/yungbote/quillgate/internal/platform/qdrant"
	"github.com/yungbote/quillgate/internal/platform/redislock"
)

type App struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Cfg       Config
	Repos     Repos
	Metrics   *observability.Metrics
	Ledger    domainagg.ChapterLedger
	Narrative narrative.Usecases

	redis        *goredis.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the store, lock backend, ledger and optional generation and
// vector collaborators. Generation is enabled only when OPENAI_API_KEY is
// set; vector ingestion additionally needs QDRANT_URL.
func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	gdb, err := openDB(log, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	a.DB = gdb
	a.Repos = wireRepos(gdb, log)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	locker := aggregates.NewLocalChapterLocker()
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := redislock.NewClientFromEnv()
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = rdb
		locker = aggregates.NewRedisChapterLocker(redislock.New(rdb, log, cfg.ChapterLockTTL))
		a.Metrics.StartRedisCollector(runCtx, log, rdb, cfg.RedisMetricsPoll)
		log.Info("chapter lock backend selected", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		log.Info("chapter lock backend selected", "backend", "local")
	}

	if cfg.DBDriver == DBDriverPostgres {
		a.Metrics.StartPostgresCollector(log, gdb, cfg.ServiceName)
	}
	a.Metrics.StartServer(runCtx, log, cfg.MetricsAddr)

	a.Ledger = aggregates.NewChapterLedger(aggregates.ChapterLedgerDeps{
		Base: aggregates.BaseDeps{
			DB:       gdb,
			Log:      log,
			Runner:   aggregates.NewGormTxRunner(gdb),
			Hooks:    aggregates.NewObservabilityHooks(a.Metrics),
			CASGuard: aggregates.NewCASGuard(gdb),
		},
		Chapters: a.Repos.Chapters,
		Versions: a.Repos.Versions,
		Reviews:  a.Repos.Reviews,
		Locker:   locker,
	})

	contexts, err := loadContexts(cfg.ContextFile)
	if err != nil {
		return nil, err
	}

	deps := narrative.UsecasesDeps{
		DB:       gdb,
		Log:      log,
		Chapters: a.Repos.Chapters,
		Versions: a.Repos.Versions,
		Reviews:  a.Repos.Reviews,
		Ledger:   a.Ledger,
		Contexts: contexts,
	}

	if strings.TrimSpace(envutil.String("OPENAI_API_KEY", "")) != "" {
		if err := a.wireGeneration(ctx, &deps); err != nil {
			return nil, err
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; generation disabled")
	}

	a.Narrative = narrative.New(deps)
	ok = true
	return a, nil
}

func (a *App) wireGeneration(ctx context.Context, deps *narrative.UsecasesDeps) error {
	chat, err := openai.NewClient(a.Log)
	if err != nil {
		return fmt.Errorf("init openai client: %w", err)
	}
	provider, err := generation.NewOpenAIProvider(chat, a.Log)
	if err != nil {
		return err
	}
	loop, err := generation.NewLoop(generation.LoopDeps{
		Log:      a.Log,
		Provider: provider,
		Ledger:   a.Ledger,
		Contexts: deps.Contexts,
		Config:   a.Cfg.Generation,
	})
	if err != nil {
		return fmt.Errorf("init generation loop: %w", err)
	}
	deps.Loop = loop

	ingestor, err := a.wireIngestor(ctx)
	if err != nil {
		return err
	}
	retrier, err := generation.NewVectorRetrier(generation.VectorRetrierDeps{
		Log:      a.Log,
		Versions: a.Repos.Versions,
		Ledger:   a.Ledger,
		Ingestor: ingestor,
	})
	if err != nil {
		return err
	}
	deps.Vectors = retrier
	return nil
}

func (a *App) wireIngestor(ctx context.Context) (generation.Ingestor, error) {
	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if !qcfg.Enabled() {
		a.Log.Info("QDRANT_URL not set; vector ingestion disabled")
		return nil, nil
	}
	index, err := qdrant.NewClient(ctx, a.Log, qcfg)
	if err != nil {
		return nil, fmt.Errorf("init qdrant: %w", err)
	}
	embedder, err := openai.NewEmbedder(a.Log)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return newVectorIngestor("qdrant", embedder, index), nil
}

func openDB(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case DBDriverSQLite:
		svc, err := db.NewSQLiteService(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return svc.DB(), nil
	default:
		svc, err := db.NewPostgresService(log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return svc.DB(), nil
	}
}

func loadContexts(path string) (generation.ContextProvider, error) {
	if strings.TrimSpace(path) == "" {
		return generation.NewStaticContextProvider(validation.NarrativeContext{}), nil
	}
	p, err := generation.LoadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("load narrative context: %w", err)
	}
	return p, nil
}

// Server builds the HTTP adapter over the narrative use cases.
func (a *App) Server() *httpapi.Server {
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:              a.Log,
		Metrics:          a.Metrics,
		ServiceName:      a.Cfg.ServiceName,
		HealthHandler:    httpH.NewHealthHandler(a.DB),
		NarrativeHandler: httpH.NewNarrativeHandler(a.Log, a.Narrative),
	})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

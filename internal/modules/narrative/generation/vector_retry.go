package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/data/repos"
	types "github.com/yungbote/quillgate/internal/domain"
	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/normalization"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
	"github.com/yungbote/quillgate/internal/platform/logger"
)

// Ingestor pushes a version's text into a downstream vector store.
type Ingestor interface {
	Ingest(ctx context.Context, v *types.ChapterVersion) error
}

type IngestorFunc func(ctx context.Context, v *types.ChapterVersion) error

func (f IngestorFunc) Ingest(ctx context.Context, v *types.ChapterVersion) error { return f(ctx, v) }

const (
	RetryStatusUpdated = "updated"
	RetryStatusFailed  = "failed"
	RetryStatusSkipped = "skipped"

	RetryReasonNotMarked     = "not_marked_for_retry"
	RetryReasonStoreDisabled = "vector_store_disabled"
	RetryReasonEmptyContent  = "empty_content"
	RetryReasonIngestError   = "ingest_error"
	RetryReasonNotFound      = "not_found"
)

type RetryResult struct {
	VersionID uuid.UUID
	Status    string
	Reason    string
	Err       error
}

type VectorRetrierDeps struct {
	Log      *logger.Logger
	Versions repos.ChapterVersionRepo
	Ledger   domainagg.ChapterLedger
	// Ingestor nil means no vector store is configured.
	Ingestor Ingestor
}

// VectorRetrier re-runs ingestion for versions flagged needs_vector_retry
// and clears the flag once ingestion succeeds.
type VectorRetrier struct {
	deps VectorRetrierDeps
	log  *logger.Logger
}

func NewVectorRetrier(deps VectorRetrierDeps) (*VectorRetrier, error) {
	if deps.Versions == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("vector retrier requires versions repo and ledger")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &VectorRetrier{deps: deps, log: log.With("service", "VectorRetrier")}, nil
}

func (r *VectorRetrier) Retry(ctx context.Context, versionID uuid.UUID) RetryResult {
	v, err := r.deps.Versions.GetByID(dbctx.Context{Ctx: ctx}, versionID)
	if err != nil {
		return RetryResult{VersionID: versionID, Status: RetryStatusFailed, Err: err}
	}
	if v == nil {
		return RetryResult{VersionID: versionID, Status: RetryStatusFailed, Reason: RetryReasonNotFound}
	}
	return r.retry(ctx, v)
}

// Ingest pushes a freshly finalized version. A failed ingest flags the
// version for a later Retry instead of failing the caller.
func (r *VectorRetrier) Ingest(ctx context.Context, versionID uuid.UUID) RetryResult {
	res := RetryResult{VersionID: versionID}
	if r.deps.Ingestor == nil {
		res.Status, res.Reason = RetryStatusSkipped, RetryReasonStoreDisabled
		return res
	}
	v, err := r.deps.Versions.GetByID(dbctx.Context{Ctx: ctx}, versionID)
	if err != nil {
		res.Status, res.Err = RetryStatusFailed, err
		return res
	}
	if v == nil {
		res.Status, res.Reason = RetryStatusFailed, RetryReasonNotFound
		return res
	}
	if normalization.IsBlank(v.Content) {
		res.Status, res.Reason = RetryStatusFailed, RetryReasonEmptyContent
		return res
	}
	if err := r.deps.Ingestor.Ingest(ctx, v); err != nil {
		r.log.Warn("vector ingest failed; flagging for retry", "version_id", v.ID, "error", err)
		res.Status, res.Reason, res.Err = RetryStatusFailed, RetryReasonIngestError, err
		if markErr := r.deps.Ledger.MarkVectorRetry(ctx, v.ID, true); markErr != nil {
			r.log.Error("flag vector retry failed", "version_id", v.ID, "error", markErr)
		}
		return res
	}
	if v.NeedsVectorRetry {
		if err := r.deps.Ledger.MarkVectorRetry(ctx, v.ID, false); err != nil {
			res.Status, res.Err = RetryStatusFailed, err
			return res
		}
	}
	res.Status = RetryStatusUpdated
	return res
}

// RetryPending processes up to limit flagged versions, oldest first.
func (r *VectorRetrier) RetryPending(ctx context.Context, limit int) ([]RetryResult, error) {
	rows, err := r.deps.Versions.ListNeedingVectorRetry(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RetryResult, 0, len(rows))
	for _, v := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, r.retry(ctx, v))
	}
	return out, nil
}

func (r *VectorRetrier) retry(ctx context.Context, v *types.ChapterVersion) RetryResult {
	res := RetryResult{VersionID: v.ID}
	switch {
	case !v.NeedsVectorRetry:
		res.Status, res.Reason = RetryStatusSkipped, RetryReasonNotMarked
		return res
	case r.deps.Ingestor == nil:
		// Nothing will ever ingest it, so drop the flag.
		if err := r.deps.Ledger.MarkVectorRetry(ctx, v.ID, false); err != nil {
			res.Status, res.Err = RetryStatusFailed, err
			return res
		}
		res.Status, res.Reason = RetryStatusSkipped, RetryReasonStoreDisabled
		return res
	case normalization.IsBlank(v.Content):
		res.Status, res.Reason = RetryStatusFailed, RetryReasonEmptyContent
		return res
	}

	if err := r.deps.Ingestor.Ingest(ctx, v); err != nil {
		r.log.Warn("vector ingest failed", "version_id", v.ID, "error", err)
		res.Status, res.Reason, res.Err = RetryStatusFailed, RetryReasonIngestError, err
		return res
	}
	if err := r.deps.Ledger.MarkVectorRetry(ctx, v.ID, false); err != nil {
		res.Status, res.Err = RetryStatusFailed, err
		return res
	}
	r.log.Info("vector ingest retried", "version_id", v.ID, "chapter_id", v.ChapterID)
	res.Status = RetryStatusUpdated
	return res
}

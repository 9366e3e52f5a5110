package aggregates

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/quillgate/internal/domain/aggregates"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
)

// TxRunner is the transaction boundary for ledger writes. fn either commits
// as a whole or leaves no trace.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db          *gorm.DB
	maxAttempts int
	backoff     time.Duration
}

// NewGormTxRunner runs fn in a gorm transaction. Serialization failures and
// deadlocks (mapped to CodeRetryable) re-run fn from scratch up to three
// times; every other error is returned after the first rollback.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db, maxAttempts: 3, backoff: 20 * time.Millisecond}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
		if err == nil || !isTransientTxError(err) || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return err
}

// isTransientTxError is narrower than CodeRetryable: context expiry is
// retryable for the caller but never worth re-running here.
func isTransientTxError(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	if domainagg.CodeOf(err) != "" {
		return false
	}
	return domainagg.IsRetryable(MapError("aggregate.tx", err))
}

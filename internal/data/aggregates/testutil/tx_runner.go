package testutil

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/data/aggregates"
	"github.com/yungbote/quillgate/internal/platform/dbctx"
)

// InjectedTxRunner runs ledger writes with failure injection. With DB set,
// fn runs inside a real transaction that is rolled back on any injected or
// body failure, so tests can assert that nothing leaked. Without DB, fn
// gets a context with no Tx.
type InjectedTxRunner struct {
	mu sync.Mutex

	DB *gorm.DB

	FailBegin  error
	FailCommit error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failCommit := r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}

	var tx *gorm.DB
	if r.DB != nil {
		tx = r.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}
	}
	rollback := func() {
		if tx != nil {
			_ = tx.Rollback().Error
		}
		r.mu.Lock()
		r.RollbackCalls++
		r.mu.Unlock()
	}

	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx, Tx: tx}); err != nil {
			rollback()
			return err
		}
	}
	if failCommit != nil {
		rollback()
		return failCommit
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.CommitCalls++
	r.mu.Unlock()
	return nil
}

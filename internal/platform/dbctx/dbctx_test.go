package dbctx

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ctxKey struct{}

func TestDBPrefersTx(t *testing.T) {
	base, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	if got := (Context{Ctx: ctx}).DB(nil); got != nil {
		t.Fatalf("expected nil without handles")
	}
	got := (Context{Ctx: ctx}).DB(base)
	if got == nil || got.Statement.Context.Value(ctxKey{}) != "v" {
		t.Fatalf("fallback not bound to ctx")
	}

	err = base.Transaction(func(tx *gorm.DB) error {
		dbc := Context{Ctx: ctx, Tx: tx}
		if !dbc.InTx() {
			t.Fatalf("expected InTx")
		}
		if dbc.DB(base).Statement.ConnPool != tx.Statement.ConnPool {
			t.Fatalf("expected tx conn pool")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

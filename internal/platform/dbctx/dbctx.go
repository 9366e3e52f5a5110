package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context and, inside a ledger write, the open
// transaction. Repos run on Tx when set and on their own handle otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// InTx reports whether the caller already owns a transaction.
func (c Context) InTx() bool { return c.Tx != nil }

// DB picks Tx over fallback and binds Ctx to the result. Returns nil when
// both handles are nil.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if db == nil {
		return nil
	}
	if c.Ctx != nil {
		db = db.WithContext(c.Ctx)
	}
	return db
}

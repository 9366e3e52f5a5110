// Package aggregates holds the write-side contracts of the chapter ledger:
// inputs, results, the coded error taxonomy and the ledger interface that
// internal/data/aggregates implements over gorm.
package aggregates

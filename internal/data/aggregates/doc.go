// Package aggregates implements the chapter ledger on top of the table repos
// in internal/data/repos. Every write owns its transaction; callers never pass
// one in.
package aggregates

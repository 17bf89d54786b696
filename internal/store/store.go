// Package store persists plans, members, memberships, payments and sequences
// through GORM. Every method runs against the handle the Store was built
// with, so a Store obtained inside WithTx keeps all reads and writes in the
// same transaction.
package store

import (
	"context"
	"fmt"

	"github.com/router-for-me/GymDesk/internal/billing"
	"gorm.io/gorm"
)

// Store is the GORM-backed repository for the membership engine.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn inside a database transaction. fn receives a Store bound to
// the transaction; returning an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	if errTx == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !billing.IsDomain(errTx) {
		return billing.Persistence("transaction", ctxErr)
	}
	return errTx
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Page is a one-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies defaults: page 1, limit 10, limit capped at 100.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

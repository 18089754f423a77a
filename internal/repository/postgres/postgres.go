package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

type txBeginner interface {
	pgExecutor
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store groups the PostgreSQL repositories and runs them inside transactions.
type Store struct {
	db       txBeginner
	versions *VersionRepository
}

// NewStore wires the repositories backed by the provided pool (or any compatible executor).
func NewStore(db txBeginner) *Store {
	return &Store{
		db:       db,
		versions: NewVersionRepository(db),
	}
}

var _ port.VersionStore = (*Store)(nil)

// Versions exposes the non-transactional version repository for reads.
func (s *Store) Versions() *VersionRepository {
	return s.versions
}

// InTx runs fn inside a read-committed transaction. The transaction commits when fn returns nil and
// rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(repo port.VersionRepository) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin version transaction: %w", err)
	}

	if err := fn(s.versions.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback version transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		// Commit-time serialization failures surface here rather than from fn.
		return fmt.Errorf("commit version transaction: %w", mapWriteError(err))
	}
	return nil
}

// Close releases the underlying pool when the store owns one.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if pool, ok := s.db.(*pgxpool.Pool); ok {
		pool.Close()
	}
}

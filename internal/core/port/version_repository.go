package port

import (
	"context"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

// VersionRepository persists versions keyed by (recordID, versionNumber).
//
// Mutating methods are expected to run inside a transaction obtained from the store's InTx so that
// flag changes, sibling clearing and audit appends commit or fail as one unit.
type VersionRepository interface {
	// LockRecord serialises writers of one record for the rest of the transaction.
	LockRecord(ctx context.Context, recordID string) error
	Create(ctx context.Context, version *domain.Version) error
	Get(ctx context.Context, versionID string) (*domain.Version, error)
	// GetForUpdate loads a version and holds a row lock for the rest of the transaction.
	GetForUpdate(ctx context.Context, versionID string) (*domain.Version, error)
	GetByNumber(ctx context.Context, recordID, versionNumber string) (*domain.Version, error)
	// ListByRecord returns the record's versions ordered by creation time, newest first.
	ListByRecord(ctx context.Context, recordID string, includeArchived bool) ([]domain.Version, error)
	FindActive(ctx context.Context, recordID string) (*domain.Version, error)
	FindPublished(ctx context.Context, recordID string) (*domain.Version, error)
	FindLatest(ctx context.Context, recordID string) (*domain.Version, error)
	// Update writes the version when its stored revision equals version.Revision and bumps the
	// revision. A stale revision yields repository.ErrConcurrentUpdate.
	Update(ctx context.Context, version *domain.Version) error
	// Delete copies the audit trail to the audit archive and removes the version.
	Delete(ctx context.Context, version *domain.Version) error
	ListArchivedAudit(ctx context.Context, recordID string) ([]domain.ArchivedAuditEntry, error)
	Search(ctx context.Context, filter domain.VersionFilter) ([]domain.Version, error)
	ListRecordIDs(ctx context.Context) ([]string, error)
}

// VersionStore executes fn against a transaction-bound repository.
type VersionStore interface {
	InTx(ctx context.Context, fn func(repo VersionRepository) error) error
}

// Package memory implements the version store in process memory. Transactions hold the store lock
// and work on a copy-on-write view that is swapped in only when the callback succeeds, so a failed
// operation never leaves a partial invariant violation behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

// Store is an in-memory version store.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

type state struct {
	versions map[string]*domain.Version
	seq      map[string]uint64
	next     uint64
	archive  []domain.ArchivedAuditEntry
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: &state{
			versions: make(map[string]*domain.Version),
			seq:      make(map[string]uint64),
		},
		now: time.Now,
	}
}

var (
	_ port.VersionRepository = (*Store)(nil)
	_ port.VersionStore      = (*Store)(nil)
)

// InTx runs fn on a staged copy of the store and commits it only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(repo port.VersionRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&txRepo{st: staged, now: s.now}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) read() *txRepo {
	return &txRepo{st: s.state, now: s.now}
}

// LockRecord is a no-op outside a transaction.
func (s *Store) LockRecord(context.Context, string) error { return nil }

// Create inserts a version in its own transaction.
func (s *Store) Create(ctx context.Context, version *domain.Version) error {
	return s.InTx(ctx, func(repo port.VersionRepository) error { return repo.Create(ctx, version) })
}

// Get returns a copy of the version.
func (s *Store) Get(ctx context.Context, versionID string) (*domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Get(ctx, versionID)
}

// GetForUpdate behaves like Get outside a transaction.
func (s *Store) GetForUpdate(ctx context.Context, versionID string) (*domain.Version, error) {
	return s.Get(ctx, versionID)
}

// GetByNumber looks a version up by its record-scoped number.
func (s *Store) GetByNumber(ctx context.Context, recordID, versionNumber string) (*domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetByNumber(ctx, recordID, versionNumber)
}

// ListByRecord lists a record's versions, newest first.
func (s *Store) ListByRecord(ctx context.Context, recordID string, includeArchived bool) ([]domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByRecord(ctx, recordID, includeArchived)
}

// FindActive returns the record's active version.
func (s *Store) FindActive(ctx context.Context, recordID string) (*domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindActive(ctx, recordID)
}

// FindPublished returns the record's published version.
func (s *Store) FindPublished(ctx context.Context, recordID string) (*domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindPublished(ctx, recordID)
}

// FindLatest returns the most recently created version of the record.
func (s *Store) FindLatest(ctx context.Context, recordID string) (*domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().FindLatest(ctx, recordID)
}

// Update writes the version in its own transaction.
func (s *Store) Update(ctx context.Context, version *domain.Version) error {
	return s.InTx(ctx, func(repo port.VersionRepository) error { return repo.Update(ctx, version) })
}

// Delete removes the version in its own transaction.
func (s *Store) Delete(ctx context.Context, version *domain.Version) error {
	return s.InTx(ctx, func(repo port.VersionRepository) error { return repo.Delete(ctx, version) })
}

// ListArchivedAudit returns audit entries preserved from deleted versions of the record.
func (s *Store) ListArchivedAudit(ctx context.Context, recordID string) ([]domain.ArchivedAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListArchivedAudit(ctx, recordID)
}

// Search returns versions matching the filter, newest first.
func (s *Store) Search(ctx context.Context, filter domain.VersionFilter) ([]domain.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Search(ctx, filter)
}

// ListRecordIDs returns every record that owns at least one version.
func (s *Store) ListRecordIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRecordIDs(ctx)
}

func (st *state) clone() *state {
	out := &state{
		versions: make(map[string]*domain.Version, len(st.versions)),
		seq:      make(map[string]uint64, len(st.seq)),
		next:     st.next,
		archive:  append([]domain.ArchivedAuditEntry(nil), st.archive...),
	}
	// Stored versions are never mutated in place, so sharing pointers between states is safe.
	for id, v := range st.versions {
		out.versions[id] = v
	}
	for id, n := range st.seq {
		out.seq[id] = n
	}
	return out
}

// txRepo implements port.VersionRepository over one state.
type txRepo struct {
	st  *state
	now func() time.Time
}

func (r *txRepo) LockRecord(context.Context, string) error { return nil }

func (r *txRepo) Create(_ context.Context, version *domain.Version) error {
	if version == nil {
		return repository.ErrNotFound
	}
	if _, exists := r.st.versions[version.ID]; exists {
		return repository.ErrDuplicate
	}
	for _, existing := range r.st.versions {
		if existing.RecordID == version.RecordID && existing.VersionNumber == version.VersionNumber {
			return repository.ErrDuplicate
		}
	}
	if err := r.checkExclusive(version); err != nil {
		return err
	}

	version.Revision = 1
	r.st.next++
	r.st.seq[version.ID] = r.st.next
	r.st.versions[version.ID] = version.Clone()
	return nil
}

func (r *txRepo) Get(_ context.Context, versionID string) (*domain.Version, error) {
	v, ok := r.st.versions[versionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v.Clone(), nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, versionID string) (*domain.Version, error) {
	return r.Get(ctx, versionID)
}

func (r *txRepo) GetByNumber(_ context.Context, recordID, versionNumber string) (*domain.Version, error) {
	for _, v := range r.st.versions {
		if v.RecordID == recordID && v.VersionNumber == versionNumber {
			return v.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *txRepo) ListByRecord(_ context.Context, recordID string, includeArchived bool) ([]domain.Version, error) {
	return r.collect(func(v *domain.Version) bool {
		return v.RecordID == recordID && (includeArchived || !v.IsArchived)
	}, 0), nil
}

func (r *txRepo) FindActive(_ context.Context, recordID string) (*domain.Version, error) {
	return r.first(func(v *domain.Version) bool { return v.RecordID == recordID && v.IsActive })
}

func (r *txRepo) FindPublished(_ context.Context, recordID string) (*domain.Version, error) {
	return r.first(func(v *domain.Version) bool { return v.RecordID == recordID && v.IsPublished })
}

func (r *txRepo) FindLatest(_ context.Context, recordID string) (*domain.Version, error) {
	return r.first(func(v *domain.Version) bool { return v.RecordID == recordID })
}

func (r *txRepo) Update(_ context.Context, version *domain.Version) error {
	current, ok := r.st.versions[version.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Revision != version.Revision {
		return repository.ErrConcurrentUpdate
	}
	if current.RecordID != version.RecordID || current.VersionNumber != version.VersionNumber {
		for id, existing := range r.st.versions {
			if id != version.ID && existing.RecordID == version.RecordID && existing.VersionNumber == version.VersionNumber {
				return repository.ErrDuplicate
			}
		}
	}
	if err := r.checkExclusive(version); err != nil {
		return err
	}

	version.Revision++
	r.st.versions[version.ID] = version.Clone()
	return nil
}

func (r *txRepo) Delete(_ context.Context, version *domain.Version) error {
	current, ok := r.st.versions[version.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Revision != version.Revision {
		return repository.ErrConcurrentUpdate
	}

	archivedAt := r.now().UTC()
	for _, entry := range version.AuditTrail.Clone() {
		r.st.archive = append(r.st.archive, domain.ArchivedAuditEntry{
			VersionID:     version.ID,
			RecordID:      version.RecordID,
			VersionNumber: version.VersionNumber,
			Entry:         entry,
			ArchivedAt:    archivedAt,
		})
	}
	delete(r.st.versions, version.ID)
	delete(r.st.seq, version.ID)
	return nil
}

func (r *txRepo) ListArchivedAudit(_ context.Context, recordID string) ([]domain.ArchivedAuditEntry, error) {
	out := make([]domain.ArchivedAuditEntry, 0)
	for _, entry := range r.st.archive {
		if entry.RecordID == recordID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *txRepo) Search(_ context.Context, filter domain.VersionFilter) ([]domain.Version, error) {
	return r.collect(filter.Matches, filter.Limit), nil
}

func (r *txRepo) ListRecordIDs(context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, v := range r.st.versions {
		if _, ok := seen[v.RecordID]; ok {
			continue
		}
		seen[v.RecordID] = struct{}{}
		ids = append(ids, v.RecordID)
	}
	sort.Strings(ids)
	return ids, nil
}

// checkExclusive mirrors the partial unique indexes of the SQL schema.
func (r *txRepo) checkExclusive(version *domain.Version) error {
	if !version.IsActive && !(version.IsPublished && !version.IsArchived) {
		return nil
	}
	for id, other := range r.st.versions {
		if id == version.ID || other.RecordID != version.RecordID {
			continue
		}
		if version.IsActive && other.IsActive {
			return repository.ErrConcurrentUpdate
		}
		if version.IsPublished && !version.IsArchived && other.IsPublished && !other.IsArchived {
			return repository.ErrConcurrentUpdate
		}
	}
	return nil
}

func (r *txRepo) sorted() []*domain.Version {
	out := make([]*domain.Version, 0, len(r.st.versions))
	for _, v := range r.st.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.st.seq[out[i].ID] > r.st.seq[out[j].ID]
	})
	return out
}

func (r *txRepo) collect(keep func(*domain.Version) bool, limit int) []domain.Version {
	out := make([]domain.Version, 0)
	for _, v := range r.sorted() {
		if !keep(v) {
			continue
		}
		out = append(out, *v.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *txRepo) first(keep func(*domain.Version) bool) (*domain.Version, error) {
	for _, v := range r.sorted() {
		if keep(v) {
			return v.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

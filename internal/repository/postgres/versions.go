package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

const (
	versionsTable     = "catalog.product_versions"
	auditArchiveTable = "catalog.version_audit_archive"

	// Unique constraint guarding (record_id, version_number); other unique violations come from the
	// exclusivity indexes and signal a lost race.
	versionNumberConstraint = "product_versions_record_id_version_number_key"

	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var versionColumns = []string{
	"id",
	"record_id",
	"version_number",
	"version_data",
	"is_draft",
	"is_active",
	"is_published",
	"is_archived",
	"parent_version_id",
	"child_version_ids",
	"audit_trail",
	"metadata",
	"analytics",
	"created_by",
	"updated_by",
	"published_by",
	"archived_by",
	"created_at",
	"updated_at",
	"published_at",
	"archived_at",
	"revision",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VersionRepository persists product versions in PostgreSQL.
type VersionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewVersionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewVersionRepository(exec pgExecutor) *VersionRepository {
	repo := &VersionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *VersionRepository) WithTx(tx pgx.Tx) *VersionRepository {
	if tx == nil {
		return r
	}
	return &VersionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var _ port.VersionRepository = (*VersionRepository)(nil)

// LockRecord takes a transaction-scoped advisory lock on the record so writers of one record queue up.
func (r *VersionRepository) LockRecord(ctx context.Context, recordID string) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return fmt.Errorf("record id is required")
	}
	if _, err := r.exec.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, recordID); err != nil {
		return fmt.Errorf("lock record %s: %w", recordID, mapWriteError(err))
	}
	return nil
}

// Create inserts a new version row at revision 1.
func (r *VersionRepository) Create(ctx context.Context, version *domain.Version) error {
	if version == nil {
		return fmt.Errorf("version is required")
	}
	values, err := versionValues(version)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(versionsTable).
		Columns(versionColumns...).
		Values(append(values, int64(1))...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert version sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert version: %w", mapWriteError(err))
	}
	version.Revision = 1
	return nil
}

// Get loads a version by id.
func (r *VersionRepository) Get(ctx context.Context, versionID string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"id": versionID}, false)
}

// GetForUpdate loads a version by id and locks its row until the transaction ends.
func (r *VersionRepository) GetForUpdate(ctx context.Context, versionID string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"id": versionID}, true)
}

// GetByNumber loads a version by its record-scoped number.
func (r *VersionRepository) GetByNumber(ctx context.Context, recordID, versionNumber string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"record_id": recordID, "version_number": versionNumber}, false)
}

// ListByRecord returns the record's versions, newest first.
func (r *VersionRepository) ListByRecord(ctx context.Context, recordID string, includeArchived bool) ([]domain.Version, error) {
	where := squirrel.And{squirrel.Eq{"record_id": recordID}}
	if !includeArchived {
		where = append(where, squirrel.Eq{"is_archived": false})
	}
	query := r.builder.Select(versionColumns...).
		From(versionsTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	return r.list(ctx, query)
}

// FindActive returns the record's active version.
func (r *VersionRepository) FindActive(ctx context.Context, recordID string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"record_id": recordID, "is_active": true}, false)
}

// FindPublished returns the record's published version.
func (r *VersionRepository) FindPublished(ctx context.Context, recordID string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"record_id": recordID, "is_published": true}, false)
}

// FindLatest returns the most recently created version of the record.
func (r *VersionRepository) FindLatest(ctx context.Context, recordID string) (*domain.Version, error) {
	return r.getOne(ctx, squirrel.Eq{"record_id": recordID}, false)
}

// Update rewrites the row when its revision still matches and bumps the revision.
func (r *VersionRepository) Update(ctx context.Context, version *domain.Version) error {
	if version == nil {
		return fmt.Errorf("version is required")
	}
	values, err := versionValues(version)
	if err != nil {
		return err
	}

	update := r.builder.Update(versionsTable)
	// Skip id; it is the row key.
	for i, column := range versionColumns[1 : len(versionColumns)-1] {
		update = update.Set(column, values[i+1])
	}
	stmt, args, err := update.
		Set("revision", squirrel.Expr("revision + 1")).
		Where(squirrel.Eq{"id": version.ID, "revision": version.Revision}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update version sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update version: %w", mapWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, version.ID)
	}
	version.Revision++
	return nil
}

// Delete copies the audit trail into the audit archive and removes the row.
func (r *VersionRepository) Delete(ctx context.Context, version *domain.Version) error {
	if version == nil {
		return fmt.Errorf("version is required")
	}

	stmt, args, err := r.builder.Delete(versionsTable).
		Where(squirrel.Eq{"id": version.ID, "revision": version.Revision}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete version sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete version: %w", mapWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, version.ID)
	}

	if len(version.AuditTrail) == 0 {
		return nil
	}

	archivedAt := time.Now().UTC()
	insert := r.builder.Insert(auditArchiveTable).
		Columns("version_id", "record_id", "version_number", "position", "entry", "archived_at")
	for i, entry := range version.AuditTrail {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		insert = insert.Values(version.ID, version.RecordID, version.VersionNumber, i, string(raw), archivedAt)
	}
	stmt, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit archive sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("archive audit trail: %w", mapWriteError(err))
	}
	return nil
}

// ListArchivedAudit returns the audit entries preserved from deleted versions of the record.
func (r *VersionRepository) ListArchivedAudit(ctx context.Context, recordID string) ([]domain.ArchivedAuditEntry, error) {
	stmt, args, err := r.builder.Select("version_id", "record_id", "version_number", "entry", "archived_at").
		From(auditArchiveTable).
		Where(squirrel.Eq{"record_id": recordID}).
		OrderBy("archived_at ASC", "version_id ASC", "position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit archive sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit archive: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ArchivedAuditEntry, 0)
	for rows.Next() {
		var (
			archived domain.ArchivedAuditEntry
			raw      []byte
		)
		if err := rows.Scan(&archived.VersionID, &archived.RecordID, &archived.VersionNumber, &raw, &archived.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan audit archive: %w", err)
		}
		if err := json.Unmarshal(raw, &archived.Entry); err != nil {
			return nil, fmt.Errorf("decode archived audit entry: %w", err)
		}
		out = append(out, archived)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit archive: %w", err)
	}
	return out, nil
}

// Search returns versions matching the filter, newest first.
func (r *VersionRepository) Search(ctx context.Context, filter domain.VersionFilter) ([]domain.Version, error) {
	where := squirrel.And{}
	if len(filter.RecordIDs) > 0 {
		where = append(where, squirrel.Eq{"record_id": filter.RecordIDs})
	}
	if !filter.IncludeArchived {
		where = append(where, squirrel.Eq{"is_archived": false})
	}
	if filter.OnlyPublished {
		where = append(where, squirrel.Eq{"is_published": true})
	}
	if filter.OnlyActive {
		where = append(where, squirrel.Eq{"is_active": true})
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, squirrel.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, squirrel.LtOrEq{"created_at": filter.CreatedTo.UTC()})
	}

	query := r.builder.Select(versionColumns...).
		From(versionsTable).
		OrderBy("created_at DESC", "id DESC")
	if len(where) > 0 {
		query = query.Where(where)
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	return r.list(ctx, query)
}

// ListRecordIDs returns every record that owns at least one version.
func (r *VersionRepository) ListRecordIDs(ctx context.Context) ([]string, error) {
	stmt, args, err := r.builder.Select("DISTINCT record_id").
		From(versionsTable).
		OrderBy("record_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select record ids sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query record ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return ids, nil
}

func (r *VersionRepository) getOne(ctx context.Context, where squirrel.Sqlizer, forUpdate bool) (*domain.Version, error) {
	query := r.builder.Select(versionColumns...).
		From(versionsTable).
		Where(where).
		OrderBy("created_at DESC").
		Limit(1)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select version sql: %w", err)
	}

	version, err := scanVersion(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return version, nil
}

func (r *VersionRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Version, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list versions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Version, 0)
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (r *VersionRepository) missingOrStale(ctx context.Context, versionID string) error {
	var exists bool
	err := r.exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+versionsTable+` WHERE id = $1)`, versionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConcurrentUpdate
}

// versionValues returns column values in versionColumns order, without the trailing revision.
func versionValues(v *domain.Version) ([]any, error) {
	data, err := json.Marshal(v.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal version data: %w", err)
	}
	children := v.ChildVersionIDs
	if children == nil {
		children = []string{}
	}
	childJSON, err := json.Marshal(children)
	if err != nil {
		return nil, fmt.Errorf("marshal child versions: %w", err)
	}
	trail := v.AuditTrail
	if trail == nil {
		trail = domain.AuditTrail{}
	}
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return nil, fmt.Errorf("marshal audit trail: %w", err)
	}
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	analytics, err := json.Marshal(v.Analytics)
	if err != nil {
		return nil, fmt.Errorf("marshal analytics: %w", err)
	}

	return []any{
		v.ID,
		v.RecordID,
		v.VersionNumber,
		string(data),
		v.IsDraft,
		v.IsActive,
		v.IsPublished,
		v.IsArchived,
		optionalString(v.ParentVersionID),
		string(childJSON),
		string(trailJSON),
		string(metadata),
		string(analytics),
		v.CreatedBy,
		v.UpdatedBy,
		optionalString(v.PublishedBy),
		optionalString(v.ArchivedBy),
		v.CreatedAt.UTC(),
		v.UpdatedAt.UTC(),
		optionalTime(v.PublishedAt),
		optionalTime(v.ArchivedAt),
	}, nil
}

func scanVersion(row pgx.Row) (*domain.Version, error) {
	var (
		v                                  domain.Version
		data, children, trail, meta, stats []byte
		parentID, publishedBy, archivedBy  sql.NullString
		publishedAt, archivedAt            sql.NullTime
	)

	if err := row.Scan(
		&v.ID,
		&v.RecordID,
		&v.VersionNumber,
		&data,
		&v.IsDraft,
		&v.IsActive,
		&v.IsPublished,
		&v.IsArchived,
		&parentID,
		&children,
		&trail,
		&meta,
		&stats,
		&v.CreatedBy,
		&v.UpdatedBy,
		&publishedBy,
		&archivedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
		&publishedAt,
		&archivedAt,
		&v.Revision,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}

	for _, field := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"version_data", data, &v.Data},
		{"child_version_ids", children, &v.ChildVersionIDs},
		{"audit_trail", trail, &v.AuditTrail},
		{"metadata", meta, &v.Metadata},
		{"analytics", stats, &v.Analytics},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field.name, err)
		}
	}

	v.ParentVersionID = nullableStringPtr(parentID)
	v.PublishedBy = nullableStringPtr(publishedBy)
	v.ArchivedBy = nullableStringPtr(archivedBy)
	v.PublishedAt = nullableTimePtr(publishedAt)
	v.ArchivedAt = nullableTimePtr(archivedAt)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

// mapWriteError translates constraint and serialization failures into repository sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == versionNumberConstraint {
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: %s", repository.ErrConcurrentUpdate, pgErr.ConstraintName)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", repository.ErrConcurrentUpdate, pgErr.Message)
	}
	return err
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func optionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return (*value).UTC()
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	out := value.Time.UTC()
	return &out
}

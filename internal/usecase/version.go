package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/diff"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/snapshot"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/logger"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

// TracerName names the instrumentation scope of lifecycle spans.
const TracerName = "github.com/AkshayPatil96/e-com-backend-sub002/internal/usecase"

const (
	defaultPointerCacheTTL = 5 * time.Minute
	maxDuplicateAttempts   = 100
)

// VersionTxFunc wraps repository operations in a transaction.
type VersionTxFunc func(ctx context.Context, fn func(repo port.VersionRepository) error) error

// VersionMetrics captures telemetry hooks for lifecycle operations.
type VersionMetrics interface {
	IncOperation(op, outcome string)
	IncRetry(op string)
	IncCacheHit(flag string)
	IncCacheMiss(flag string)
	ObserveDiff(duration time.Duration, changes int)
}

// VersionOptions configures optional behaviours for the service.
type VersionOptions struct {
	Retry         RetryPolicy
	CacheTTL      time.Duration
	AuditKeepLast int
}

// VersionService is the lifecycle controller for product versions. Every mutation runs in a single
// transaction that locks the record, applies the flag change, clears siblings and appends the audit
// entry together.
type VersionService struct {
	repo          port.VersionRepository
	tx            VersionTxFunc
	cache         port.VersionPointerCache
	events        port.EventPublisher
	retry         RetryPolicy
	cacheTTL      time.Duration
	auditKeepLast int
	logger        *zap.Logger
	tracer        trace.Tracer
	now           func() time.Time
	metrics       VersionMetrics
}

// NewVersionService constructs the version service.
func NewVersionService(repo port.VersionRepository, tx VersionTxFunc, cache port.VersionPointerCache, events port.EventPublisher, opts VersionOptions) *VersionService {
	svc := &VersionService{
		repo:          repo,
		tx:            tx,
		cache:         cache,
		events:        events,
		retry:         opts.Retry,
		cacheTTL:      opts.CacheTTL,
		auditKeepLast: opts.AuditKeepLast,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer(TracerName),
		now:           time.Now,
	}
	if svc.retry.MaxRetries == 0 && svc.retry.Backoff == 0 {
		svc.retry = RetryPolicy{MaxRetries: defaultMaxRetries, Backoff: defaultRetryBackoff}
	}
	if svc.cacheTTL <= 0 {
		svc.cacheTTL = defaultPointerCacheTTL
	}
	if svc.auditKeepLast <= 0 {
		svc.auditKeepLast = domain.DefaultAuditRetention
	}
	return svc
}

// WithLogger attaches a structured logger to the service for operational diagnostics.
func (s *VersionService) WithLogger(logger *zap.Logger) *VersionService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *VersionService) WithNow(now func() time.Time) *VersionService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires telemetry observers for lifecycle operations.
func (s *VersionService) WithMetrics(metrics VersionMetrics) *VersionService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithTracer overrides the tracer used for operation spans.
func (s *VersionService) WithTracer(tracer trace.Tracer) *VersionService {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// CreateVersionInput describes a new draft.
type CreateVersionInput struct {
	RecordID      string
	VersionNumber string
	Data          domain.VersionData
	Metadata      domain.VersionMetadata
	Actor         domain.Actor
	Reason        string
}

// CreateVersion validates the snapshot and stores it as a new draft.
func (s *VersionService) CreateVersion(ctx context.Context, in CreateVersionInput) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "CreateVersion", attribute.String("record_id", in.RecordID))
	defer span.End()

	created, err := s.createVersion(ctx, in)
	return created, s.finish(span, "create", err)
}

func (s *VersionService) createVersion(ctx context.Context, in CreateVersionInput) (*domain.Version, error) {
	recordID, err := requireID(in.RecordID, ErrRecordIDRequired)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(in.Actor)
	if err != nil {
		return nil, err
	}
	number, err := domain.ParseVersionNumber(in.VersionNumber)
	if err != nil {
		return nil, err
	}
	if !number.IsCallerAssignable() {
		return nil, domain.NewValidationError(domain.ValidationIssue{
			Field:   "versionNumber",
			Rule:    "reserved",
			Message: fmt.Sprintf("%q uses a suffix reserved for rollback and duplicate", number.Raw),
		})
	}
	if in.Metadata.Source != "" && !in.Metadata.Source.Valid() {
		return nil, domain.NewValidationError(domain.ValidationIssue{
			Field:   "metadata.source",
			Rule:    "oneof",
			Message: fmt.Sprintf("unknown source %q", in.Metadata.Source),
		})
	}

	data, changes, err := s.prepareSnapshot(recordID, in.Data)
	if err != nil {
		return nil, err
	}
	checksum, size, err := snapshot.Digest(data)
	if err != nil {
		return nil, err
	}
	meta := in.Metadata
	meta.Checksum = checksum
	meta.Size = size

	var created *domain.Version
	err = s.runTx(ctx, "create", func(repo port.VersionRepository) error {
		if err := repo.LockRecord(ctx, recordID); err != nil {
			return err
		}
		if _, err := repo.GetByNumber(ctx, recordID, number.Raw); err == nil {
			return domain.NewConflictError("create", "", fmt.Sprintf("version %s already exists for record %s", number.Raw, recordID))
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		version := domain.NewVersion(domain.NewVersionParams{
			RecordID:      recordID,
			VersionNumber: number.Raw,
			Data:          data,
			Metadata:      meta,
			Actor:         actor,
			Reason:        strings.TrimSpace(in.Reason),
			Changes:       append([]domain.FieldChange{{Field: "versionNumber", NewValue: number.Raw}}, changes...),
			At:            s.now(),
		})
		if err := repo.Create(ctx, version); err != nil {
			return err
		}
		created = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, domain.EventVersionCreated, created, nil, actor, in.Reason)
	return created.Clone(), nil
}

// UpdateDraft replaces the snapshot of a version that was never published.
func (s *VersionService) UpdateDraft(ctx context.Context, versionID string, data domain.VersionData, actor domain.Actor, reason string) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "UpdateDraft", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return nil, s.finish(span, "update", err)
	}

	changed := false
	updated, err := s.mutate(ctx, "update", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		normalized, notes, err := s.prepareSnapshot(v.RecordID, data)
		if err != nil {
			return err
		}
		cmp, err := diff.Compare(v.Data, normalized)
		if err != nil {
			return err
		}
		if len(cmp.Changes) == 0 {
			return nil
		}
		checksum, size, err := snapshot.Digest(normalized)
		if err != nil {
			return err
		}
		if err := v.UpdateData(normalized, append(cmp.ToFieldChanges(), notes...), size, checksum, actor, strings.TrimSpace(reason), at); err != nil {
			return err
		}
		changed = true
		return repo.Update(ctx, v)
	})
	if err == nil && changed {
		s.publishLifecycle(ctx, domain.EventVersionUpdated, updated, nil, actor, reason)
	}
	return updated, s.finish(span, "update", err)
}

// Activate makes the version the record's active one, releasing the flag from any sibling in the
// same transaction.
func (s *VersionService) Activate(ctx context.Context, versionID string, actor domain.Actor) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Activate", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return nil, s.finish(span, "activate", err)
	}

	var previous *string
	changed := false
	activated, err := s.mutate(ctx, "activate", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		if err := snapshot.Check(v.Data); err != nil {
			return err
		}
		ok, err := v.Activate(actor, at)
		if err != nil || !ok {
			return err
		}
		sibling, err := s.releaseSibling(ctx, repo, v, domain.FlagActive, actor, at)
		if err != nil {
			return err
		}
		previous = sibling
		changed = true
		return repo.Update(ctx, v)
	})
	if err == nil && changed {
		s.refreshPointer(ctx, activated.RecordID, domain.FlagActive, activated.ID)
		s.publishLifecycle(ctx, domain.EventVersionActivated, activated, previous, actor, "")
	}
	return activated, s.finish(span, "activate", err)
}

// Publish marks the version published, stamps its checksum and releases the published flag from
// any sibling in the same transaction.
func (s *VersionService) Publish(ctx context.Context, versionID string, actor domain.Actor, reason string) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Publish", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return nil, s.finish(span, "publish", err)
	}

	var previous *string
	published, err := s.mutate(ctx, "publish", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		if v.IsPublished {
			return domain.NewConflictError("publish", v.ID, "version is already published")
		}
		if err := snapshot.Check(v.Data); err != nil {
			return err
		}
		checksum, size, err := snapshot.Digest(v.Data)
		if err != nil {
			return err
		}
		if err := v.Publish(actor, strings.TrimSpace(reason), checksum, size, at); err != nil {
			return err
		}
		sibling, err := s.releaseSibling(ctx, repo, v, domain.FlagPublished, actor, at)
		if err != nil {
			return err
		}
		previous = sibling
		return repo.Update(ctx, v)
	})
	if err == nil {
		s.refreshPointer(ctx, published.RecordID, domain.FlagPublished, published.ID)
		s.publishLifecycle(ctx, domain.EventVersionPublished, published, previous, actor, reason)
	}
	return published, s.finish(span, "publish", err)
}

// Archive retires a version that is not active.
func (s *VersionService) Archive(ctx context.Context, versionID string, actor domain.Actor, reason string) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Archive", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return nil, s.finish(span, "archive", err)
	}

	archived, err := s.mutate(ctx, "archive", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		if err := v.Archive(actor, strings.TrimSpace(reason), at); err != nil {
			return err
		}
		return repo.Update(ctx, v)
	})
	if err == nil {
		s.invalidatePointers(ctx, archived.RecordID)
		s.publishLifecycle(ctx, domain.EventVersionArchived, archived, nil, actor, reason)
	}
	return archived, s.finish(span, "archive", err)
}

// Restore brings an archived version back as a draft.
func (s *VersionService) Restore(ctx context.Context, versionID string, actor domain.Actor, reason string) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Restore", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return nil, s.finish(span, "restore", err)
	}

	restored, err := s.mutate(ctx, "restore", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		if err := v.Restore(actor, strings.TrimSpace(reason), at); err != nil {
			return err
		}
		return repo.Update(ctx, v)
	})
	if err == nil {
		s.publishLifecycle(ctx, domain.EventVersionRestored, restored, nil, actor, reason)
	}
	return restored, s.finish(span, "restore", err)
}

// Rollback creates a new draft whose snapshot is copied from target. The new version is numbered
// "<current>-rollback-<unixMillis>" and derived from the current version.
func (s *VersionService) Rollback(ctx context.Context, versionID, targetID string, actor domain.Actor, reason string) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Rollback",
		attribute.String("version_id", versionID),
		attribute.String("target_version_id", targetID),
	)
	defer span.End()

	created, err := s.rollback(ctx, versionID, targetID, actor, reason)
	return created, s.finish(span, "rollback", err)
}

func (s *VersionService) rollback(ctx context.Context, versionID, targetID string, actor domain.Actor, reason string) (*domain.Version, error) {
	versionID, err := requireID(versionID, ErrVersionIDRequired)
	if err != nil {
		return nil, err
	}
	targetID, err = requireID(targetID, ErrVersionIDRequired)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}

	var (
		created *domain.Version
		current *domain.Version
	)
	err = s.runTx(ctx, "rollback", func(repo port.VersionRepository) error {
		source, err := s.lockVersion(ctx, repo, versionID)
		if err != nil {
			return err
		}
		target, err := repo.Get(ctx, targetID)
		if err != nil {
			return err
		}
		if target.RecordID != source.RecordID {
			return domain.NewConflictError("rollback", source.ID, "target version belongs to a different record")
		}

		at := s.now()
		checksum, size, err := snapshot.Digest(target.Data)
		if err != nil {
			return err
		}
		meta := target.Metadata
		meta.Checksum = checksum
		meta.Size = size
		number := domain.RollbackVersionNumber(source.VersionNumber, at.UnixMilli())
		parentID := source.ID

		version := domain.NewVersion(domain.NewVersionParams{
			RecordID:      source.RecordID,
			VersionNumber: number,
			Data:          target.Data,
			Metadata:      meta,
			ParentID:      &parentID,
			Actor:         actor,
			Reason:        strings.TrimSpace(reason),
			Action:        domain.AuditRestored,
			Changes: []domain.FieldChange{
				{Field: "versionNumber", OldValue: source.VersionNumber, NewValue: number},
				{Field: "rolledBackTo", OldValue: source.VersionNumber, NewValue: target.VersionNumber},
			},
			At: at,
		})
		if err := repo.Create(ctx, version); err != nil {
			return err
		}
		source.LinkChild(version.ID, actor, at)
		if err := repo.Update(ctx, source); err != nil {
			return err
		}
		created = version
		current = source
		return nil
	})
	if err != nil {
		return nil, err
	}

	previous := current.VersionNumber
	s.publishLifecycle(ctx, domain.EventVersionRolledBack, created, &previous, actor, reason)
	return created.Clone(), nil
}

// Duplicate clones a version's snapshot into a new draft. Without an explicit number the patch
// component is bumped until a free number is found.
func (s *VersionService) Duplicate(ctx context.Context, versionID, newVersionNumber string, actor domain.Actor) (*domain.Version, error) {
	ctx, span := s.startSpan(ctx, "Duplicate", attribute.String("version_id", versionID))
	defer span.End()

	created, err := s.duplicate(ctx, versionID, newVersionNumber, actor)
	return created, s.finish(span, "duplicate", err)
}

func (s *VersionService) duplicate(ctx context.Context, versionID, newVersionNumber string, actor domain.Actor) (*domain.Version, error) {
	versionID, err := requireID(versionID, ErrVersionIDRequired)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}
	explicit := strings.TrimSpace(newVersionNumber)
	if explicit != "" {
		parsed, err := domain.ParseVersionNumber(explicit)
		if err != nil {
			return nil, err
		}
		if !parsed.IsCallerAssignable() {
			return nil, domain.NewValidationError(domain.ValidationIssue{
				Field:   "versionNumber",
				Rule:    "reserved",
				Message: fmt.Sprintf("%q uses a suffix reserved for rollback and duplicate", explicit),
			})
		}
	}

	var (
		created *domain.Version
		source  *domain.Version
	)
	err = s.runTx(ctx, "duplicate", func(repo port.VersionRepository) error {
		original, err := s.lockVersion(ctx, repo, versionID)
		if err != nil {
			return err
		}

		number := explicit
		if number == "" {
			number, err = s.nextFreeNumber(ctx, repo, original.RecordID, original.VersionNumber)
			if err != nil {
				return err
			}
		} else if _, err := repo.GetByNumber(ctx, original.RecordID, number); err == nil {
			return domain.NewConflictError("duplicate", original.ID, fmt.Sprintf("version %s already exists for record %s", number, original.RecordID))
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		checksum, size, err := snapshot.Digest(original.Data)
		if err != nil {
			return err
		}
		meta := domain.VersionMetadata{
			Size:        size,
			Checksum:    checksum,
			Compression: original.Metadata.Compression,
			Source:      original.Metadata.Source,
			Tags:        original.Metadata.Tags,
			Notes:       original.Metadata.Notes,
		}
		parentID := original.ID
		at := s.now()

		version := domain.NewVersion(domain.NewVersionParams{
			RecordID:      original.RecordID,
			VersionNumber: number,
			Data:          original.Data,
			Metadata:      meta,
			ParentID:      &parentID,
			Actor:         actor,
			Changes: []domain.FieldChange{
				{Field: "versionNumber", NewValue: number},
				{Field: "duplicatedFrom", NewValue: original.VersionNumber},
			},
			At: at,
		})
		if err := repo.Create(ctx, version); err != nil {
			return err
		}
		original.LinkChild(version.ID, actor, at)
		if err := repo.Update(ctx, original); err != nil {
			return err
		}
		created = version
		source = original
		return nil
	})
	if err != nil {
		return nil, err
	}

	previous := source.VersionNumber
	s.publishLifecycle(ctx, domain.EventVersionDuplicated, created, &previous, actor, "")
	return created.Clone(), nil
}

// Delete removes a version that is neither active nor live-published. The final "deleted" entry and
// the rest of the trail are copied to the audit archive in the same transaction.
func (s *VersionService) Delete(ctx context.Context, versionID string, actor domain.Actor, reason string) error {
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return s.finish(span, "delete", err)
	}

	deleted, err := s.mutate(ctx, "delete", versionID, func(repo port.VersionRepository, v *domain.Version, at time.Time) error {
		if _, err := v.MarkDeleted(actor, strings.TrimSpace(reason), at); err != nil {
			return err
		}
		return repo.Delete(ctx, v)
	})
	if err == nil {
		s.invalidatePointers(ctx, deleted.RecordID)
		s.publishLifecycle(ctx, domain.EventVersionDeleted, deleted, nil, actor, reason)
	}
	return s.finish(span, "delete", err)
}

// TrimAuditTrail discards all but the keepLast most recent audit entries. It is the only operation
// that shrinks a trail.
func (s *VersionService) TrimAuditTrail(ctx context.Context, versionID string, keepLast int, actor domain.Actor) (int, error) {
	ctx, span := s.startSpan(ctx, "TrimAuditTrail", attribute.String("version_id", versionID))
	defer span.End()

	actor, err := requireActor(actor)
	if err != nil {
		return 0, s.finish(span, "trim_audit", err)
	}
	if keepLast <= 0 {
		keepLast = s.auditKeepLast
	}

	removed := 0
	trimmed, err := s.mutate(ctx, "trim_audit", versionID, func(repo port.VersionRepository, v *domain.Version, _ time.Time) error {
		removed = v.AuditTrail.Trim(keepLast)
		if removed == 0 {
			return nil
		}
		return repo.Update(ctx, v)
	})
	if err == nil && removed > 0 {
		fields := append([]zap.Field{
			zap.String("version_id", trimmed.ID),
			zap.String("record_id", trimmed.RecordID),
			zap.Int("removed", removed),
			zap.Int("kept", keepLast),
		}, logger.ActorFields(actor)...)
		s.logger.Info("audit trail trimmed", fields...)
		s.publishLifecycle(ctx, domain.EventVersionAuditTrimmed, trimmed, nil, actor, fmt.Sprintf("trimmed %d entries", removed))
	}
	return removed, s.finish(span, "trim_audit", err)
}

// GetVersion loads a version by id.
func (s *VersionService) GetVersion(ctx context.Context, versionID string) (*domain.Version, error) {
	versionID, err := requireID(versionID, ErrVersionIDRequired)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return nil, translateRepoError("get version", err)
	}
	return v, nil
}

// GetVersionHistory lists a record's versions ordered per the query.
func (s *VersionService) GetVersionHistory(ctx context.Context, recordID string, query domain.HistoryQuery) ([]domain.Version, error) {
	recordID, err := requireID(recordID, ErrRecordIDRequired)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListByRecord(ctx, recordID, query.IncludeArchived)
	if err != nil {
		return nil, translateRepoError("version history", err)
	}

	if err := sortHistory(versions, query.SortBy, query.SortOrder); err != nil {
		return nil, err
	}
	if query.Limit > 0 && len(versions) > query.Limit {
		versions = versions[:query.Limit]
	}
	return versions, nil
}

// GetActiveVersion returns the record's active version, consulting the pointer cache first.
func (s *VersionService) GetActiveVersion(ctx context.Context, recordID string) (*domain.Version, error) {
	return s.flagged(ctx, recordID, domain.FlagActive, s.repo.FindActive)
}

// GetPublishedVersion returns the record's published version after verifying its checksum.
func (s *VersionService) GetPublishedVersion(ctx context.Context, recordID string) (*domain.Version, error) {
	v, err := s.flagged(ctx, recordID, domain.FlagPublished, s.repo.FindPublished)
	if err != nil {
		return nil, err
	}
	if !snapshot.ValidateChecksum(v.Data, v.Metadata.Checksum) {
		s.logger.Error("published version failed integrity check",
			zap.String("version_id", v.ID),
			zap.String("record_id", v.RecordID),
			zap.String("checksum", v.Metadata.Checksum),
		)
		return nil, fmt.Errorf("published version %s: %w", v.ID, domain.ErrIntegrity)
	}
	return v, nil
}

// GetLatestVersion returns the most recently created version of the record.
func (s *VersionService) GetLatestVersion(ctx context.Context, recordID string) (*domain.Version, error) {
	recordID, err := requireID(recordID, ErrRecordIDRequired)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.FindLatest(ctx, recordID)
	if err != nil {
		return nil, translateRepoError("latest version", err)
	}
	return v, nil
}

// Lineage is a version with its derivation chain.
type Lineage struct {
	Version   domain.Version
	Ancestors []domain.Version
	Children  []domain.Version
}

// GetLineage walks parent links to the root and resolves direct children. Links to deleted versions
// are skipped.
func (s *VersionService) GetLineage(ctx context.Context, versionID string) (*Lineage, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	lineage := &Lineage{Version: *v}

	seen := map[string]struct{}{v.ID: {}}
	parentID := v.ParentVersionID
	for parentID != nil {
		if _, loop := seen[*parentID]; loop {
			break
		}
		seen[*parentID] = struct{}{}
		parent, err := s.repo.Get(ctx, *parentID)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, translateRepoError("lineage", err)
		}
		lineage.Ancestors = append(lineage.Ancestors, *parent)
		parentID = parent.ParentVersionID
	}

	for _, childID := range v.ChildVersionIDs {
		child, err := s.repo.Get(ctx, childID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, translateRepoError("lineage", err)
		}
		lineage.Children = append(lineage.Children, *child)
	}
	return lineage, nil
}

// AuditQuery filters an audit trail. Zero fields do not filter.
type AuditQuery struct {
	Action domain.AuditAction
	UserID string
	From   time.Time
	To     time.Time
}

// GetAuditTrail returns the version's audit entries matching the query.
func (s *VersionService) GetAuditTrail(ctx context.Context, versionID string, query AuditQuery) (domain.AuditTrail, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	trail := v.Trail().Clone()
	if query.Action != "" {
		if !query.Action.Valid() {
			return nil, domain.NewValidationError(domain.ValidationIssue{Field: "action", Rule: "oneof", Message: fmt.Sprintf("unknown audit action %q", query.Action)})
		}
		trail = trail.ByAction(query.Action)
	}
	if query.UserID != "" {
		trail = trail.ByUser(query.UserID)
	}
	if !query.From.IsZero() || !query.To.IsZero() {
		trail = trail.ByDateRange(query.From, query.To)
	}
	return trail, nil
}

// ListArchivedAudit returns audit entries preserved from deleted versions of the record.
func (s *VersionService) ListArchivedAudit(ctx context.Context, recordID string) ([]domain.ArchivedAuditEntry, error) {
	recordID, err := requireID(recordID, ErrRecordIDRequired)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListArchivedAudit(ctx, recordID)
	if err != nil {
		return nil, translateRepoError("archived audit", err)
	}
	return entries, nil
}

// CompareVersions diffs two stored versions.
func (s *VersionService) CompareVersions(ctx context.Context, fromID, toID string) (domain.VersionComparison, error) {
	from, err := s.GetVersion(ctx, fromID)
	if err != nil {
		return domain.VersionComparison{}, err
	}
	to, err := s.GetVersion(ctx, toID)
	if err != nil {
		return domain.VersionComparison{}, err
	}

	started := s.now()
	cmp, err := diff.CompareVersions(from, to)
	if err != nil {
		return domain.VersionComparison{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDiff(s.now().Sub(started), len(cmp.Changes))
	}
	return cmp, nil
}

// CreateDiffReport renders the comparison of two stored versions as text.
func (s *VersionService) CreateDiffReport(ctx context.Context, fromID, toID string) (string, error) {
	cmp, err := s.CompareVersions(ctx, fromID, toID)
	if err != nil {
		return "", err
	}
	return diff.Report(cmp), nil
}

// IntegrityReport is the outcome of a checksum verification.
type IntegrityReport struct {
	VersionID string
	Expected  string
	Actual    string
	Size      int64
	Valid     bool
}

// VerifyIntegrity recomputes the version's checksum. A mismatch is reported and wrapped in
// domain.ErrIntegrity.
func (s *VersionService) VerifyIntegrity(ctx context.Context, versionID string) (IntegrityReport, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return IntegrityReport{}, err
	}
	checksum, size, err := snapshot.Digest(v.Data)
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{
		VersionID: v.ID,
		Expected:  v.Metadata.Checksum,
		Actual:    checksum,
		Size:      size,
		Valid:     checksum == v.Metadata.Checksum,
	}
	if !report.Valid {
		return report, fmt.Errorf("version %s checksum %s != %s: %w", v.ID, checksum, v.Metadata.Checksum, domain.ErrIntegrity)
	}
	return report, nil
}

// mutate loads the version under the record lock, applies fn and returns a copy of the result.
func (s *VersionService) mutate(ctx context.Context, op, versionID string, fn func(repo port.VersionRepository, v *domain.Version, at time.Time) error) (*domain.Version, error) {
	versionID, err := requireID(versionID, ErrVersionIDRequired)
	if err != nil {
		return nil, err
	}

	var result *domain.Version
	err = s.runTx(ctx, op, func(repo port.VersionRepository) error {
		v, err := s.lockVersion(ctx, repo, versionID)
		if err != nil {
			return err
		}
		if err := fn(repo, v, s.now()); err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// lockVersion takes the record lock before the row lock so writers of one record always queue in
// the same order.
func (s *VersionService) lockVersion(ctx context.Context, repo port.VersionRepository, versionID string) (*domain.Version, error) {
	probe, err := repo.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if err := repo.LockRecord(ctx, probe.RecordID); err != nil {
		return nil, err
	}
	return repo.GetForUpdate(ctx, versionID)
}

// releaseSibling clears the flag on whichever other version of the record holds it.
func (s *VersionService) releaseSibling(ctx context.Context, repo port.VersionRepository, v *domain.Version, flag domain.ExclusiveFlag, actor domain.Actor, at time.Time) (*string, error) {
	find := repo.FindActive
	if flag == domain.FlagPublished {
		find = repo.FindPublished
	}

	holder, err := find(ctx, v.RecordID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if holder.ID == v.ID {
		return nil, nil
	}

	if !holder.ReleaseFlag(flag, actor, fmt.Sprintf("superseded by version %s", v.VersionNumber), at) {
		return nil, nil
	}
	if err := repo.Update(ctx, holder); err != nil {
		return nil, err
	}
	previous := holder.VersionNumber
	return &previous, nil
}

func (s *VersionService) nextFreeNumber(ctx context.Context, repo port.VersionRepository, recordID, from string) (string, error) {
	candidate := from
	for i := 0; i < maxDuplicateAttempts; i++ {
		candidate = domain.NextPatch(candidate)
		_, err := repo.GetByNumber(ctx, recordID, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", domain.NewConflictError("duplicate", "", fmt.Sprintf("no free version number after %s", from))
}

// prepareSnapshot applies primary-image normalisation and structural validation. Corrections are
// logged and returned as audit changes.
func (s *VersionService) prepareSnapshot(recordID string, data domain.VersionData) (domain.VersionData, []domain.FieldChange, error) {
	normalized, notes := snapshot.NormalizePrimaryImage(data)
	changes := make([]domain.FieldChange, 0, len(notes))
	for _, note := range notes {
		s.logger.Info("snapshot auto-corrected", zap.String("record_id", recordID), zap.String("correction", note))
		changes = append(changes, domain.FieldChange{Field: "media.images", NewValue: note})
	}
	if err := snapshot.Check(normalized); err != nil {
		return domain.VersionData{}, nil, err
	}
	return normalized, changes, nil
}

func (s *VersionService) runTx(ctx context.Context, op string, fn func(repo port.VersionRepository) error) error {
	txFn := s.tx
	if txFn == nil {
		txFn = func(ctx context.Context, fn func(repo port.VersionRepository) error) error {
			return fn(s.repo)
		}
	}

	return retryOnConflict(ctx, s.retry, func(attempt int, err error) {
		s.logger.Debug("retrying version operation after concurrent update",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.IncRetry(op)
		}
	}, func() error {
		return translateRepoError(op, txFn(ctx, fn))
	})
}

func (s *VersionService) flagged(ctx context.Context, recordID string, flag domain.ExclusiveFlag, find func(context.Context, string) (*domain.Version, error)) (*domain.Version, error) {
	recordID, err := requireID(recordID, ErrRecordIDRequired)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		versionID, err := s.cache.GetPointer(ctx, recordID, flag)
		switch {
		case err == nil:
			v, getErr := s.repo.Get(ctx, versionID)
			if getErr == nil && v.RecordID == recordID && v.HasFlag(flag) {
				if s.metrics != nil {
					s.metrics.IncCacheHit(string(flag))
				}
				return v, nil
			}
			// Stale pointer; fall through to the store.
		case !errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("version pointer cache lookup failed", zap.String("record_id", recordID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.IncCacheMiss(string(flag))
		}
	}

	v, err := find(ctx, recordID)
	if err != nil {
		return nil, translateRepoError(fmt.Sprintf("find %s version", flag), err)
	}
	s.refreshPointer(ctx, recordID, flag, v.ID)
	return v, nil
}

func (s *VersionService) refreshPointer(ctx context.Context, recordID string, flag domain.ExclusiveFlag, versionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPointer(ctx, recordID, flag, versionID, s.cacheTTL); err != nil {
		s.logger.Warn("failed to update version pointer cache", zap.String("record_id", recordID), zap.Error(err))
	}
}

func (s *VersionService) invalidatePointers(ctx context.Context, recordID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRecord(ctx, recordID); err != nil {
		s.logger.Warn("failed to invalidate version pointer cache", zap.String("record_id", recordID), zap.Error(err))
	}
}

func (s *VersionService) publishLifecycle(ctx context.Context, eventType string, v *domain.Version, previous *string, actor domain.Actor, reason string) {
	if s.events == nil || v == nil {
		return
	}

	action := domain.AuditUpdated
	if last, ok := v.AuditTrail.Last(); ok {
		action = last.Action
	}
	event := domain.VersionLifecycleEvent{
		EventID:         uuid.NewString(),
		EventType:       eventType,
		VersionID:       v.ID,
		RecordID:        v.RecordID,
		VersionNumber:   v.VersionNumber,
		PreviousVersion: previous,
		Action:          action,
		ActorID:         actor.UserID,
		ActorRole:       actor.Role,
		Reason:          strings.TrimSpace(reason),
		Checksum:        v.Metadata.Checksum,
		OccurredAt:      s.now().UTC(),
		Metadata: map[string]any{
			"status":   v.Status(),
			"revision": v.Revision,
		},
	}
	if err := s.events.PublishVersionLifecycle(ctx, event); err != nil {
		s.logger.Warn("failed to publish version lifecycle event",
			zap.String("event_type", eventType),
			zap.String("version_id", v.ID),
			zap.Error(err),
		)
	}
}

func (s *VersionService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "VersionService."+name, trace.WithAttributes(attrs...))
}

func (s *VersionService) finish(span trace.Span, op string, err error) error {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		outcome = "validation"
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		outcome = "concurrency_conflict"
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.IncOperation(op, outcome)
	}
	return err
}

func sortHistory(versions []domain.Version, sortBy, order string) error {
	if sortBy == "" {
		sortBy = domain.SortByCreatedAt
	}
	if order == "" {
		order = domain.SortDesc
	}
	if order != domain.SortAsc && order != domain.SortDesc {
		return domain.NewValidationError(domain.ValidationIssue{Field: "sortOrder", Rule: "oneof", Message: fmt.Sprintf("unknown sort order %q", order)})
	}

	var less func(a, b domain.Version) bool
	switch sortBy {
	case domain.SortByCreatedAt:
		less = func(a, b domain.Version) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case domain.SortByUpdatedAt:
		less = func(a, b domain.Version) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case domain.SortByPublishedAt:
		less = func(a, b domain.Version) bool {
			switch {
			case a.PublishedAt == nil:
				return b.PublishedAt != nil
			case b.PublishedAt == nil:
				return false
			}
			return a.PublishedAt.Before(*b.PublishedAt)
		}
	case domain.SortByVersionNumber:
		less = func(a, b domain.Version) bool {
			return domain.CompareVersionNumbers(a.VersionNumber, b.VersionNumber) < 0
		}
	default:
		return domain.NewValidationError(domain.ValidationIssue{Field: "sortBy", Rule: "oneof", Message: fmt.Sprintf("unknown sort key %q", sortBy)})
	}

	sort.SliceStable(versions, func(i, j int) bool {
		if order == domain.SortAsc {
			return less(versions[i], versions[j])
		}
		return less(versions[j], versions[i])
	})
	return nil
}

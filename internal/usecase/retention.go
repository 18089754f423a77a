package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

// RetentionPolicy selects versions for cleanup.
type RetentionPolicy struct {
	OlderThanDays    int
	KeepMinimum      int
	ExcludePublished bool
	// ExcludeActive is accepted for compatibility only. The active version is always skipped,
	// since archiving it is a conflict.
	ExcludeActive bool
}

// RetentionReport summarises a cleanup run.
type RetentionReport struct {
	Records  int
	Archived []string
	Skipped  int
	Failed   int
}

// RetentionService archives stale versions. It never deletes.
type RetentionService struct {
	repo     port.VersionRepository
	versions *VersionService
	logger   *zap.Logger
	now      func() time.Time
}

// NewRetentionService constructs the retention service on top of the lifecycle controller so every
// archive is audited and transactional.
func NewRetentionService(repo port.VersionRepository, versions *VersionService) *RetentionService {
	return &RetentionService{
		repo:     repo,
		versions: versions,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithLogger attaches a structured logger to the service.
func (s *RetentionService) WithLogger(logger *zap.Logger) *RetentionService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock.
func (s *RetentionService) WithNow(now func() time.Time) *RetentionService {
	if now != nil {
		s.now = now
	}
	return s
}

// CleanupOldVersions archives versions created before the cutoff, keeping the newest KeepMinimum
// live versions of every record untouched. The active version is never archived.
func (s *RetentionService) CleanupOldVersions(ctx context.Context, policy RetentionPolicy) (RetentionReport, error) {
	if policy.OlderThanDays <= 0 {
		return RetentionReport{}, domain.NewValidationError(domain.ValidationIssue{
			Field:   "olderThanDays",
			Rule:    "gt=0",
			Message: "olderThanDays must be positive",
		})
	}
	if policy.KeepMinimum < 0 {
		policy.KeepMinimum = 0
	}
	if !policy.ExcludeActive {
		s.logger.Warn("retention ignores excludeActive=false; active versions are never archived")
	}

	recordIDs, err := s.repo.ListRecordIDs(ctx)
	if err != nil {
		return RetentionReport{}, translateRepoError("cleanup", err)
	}

	cutoff := s.now().Add(-time.Duration(policy.OlderThanDays) * 24 * time.Hour)
	reason := fmt.Sprintf("retention: older than %d days", policy.OlderThanDays)
	report := RetentionReport{Records: len(recordIDs)}

	for _, recordID := range recordIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		versions, err := s.repo.ListByRecord(ctx, recordID, false)
		if err != nil {
			return report, translateRepoError("cleanup", err)
		}
		if len(versions) <= policy.KeepMinimum {
			continue
		}

		for _, v := range versions[policy.KeepMinimum:] {
			if !v.CreatedAt.Before(cutoff) {
				continue
			}
			if v.IsActive || (policy.ExcludePublished && v.IsPublished) {
				report.Skipped++
				continue
			}

			if _, err := s.versions.Archive(ctx, v.ID, domain.SystemActor(), reason); err != nil {
				if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
					report.Skipped++
					continue
				}
				report.Failed++
				s.logger.Warn("retention archive failed",
					zap.String("record_id", recordID),
					zap.String("version_id", v.ID),
					zap.Error(err),
				)
				continue
			}
			report.Archived = append(report.Archived, v.ID)
		}
	}

	s.logger.Info("retention cleanup finished",
		zap.Int("records", report.Records),
		zap.Int("archived", len(report.Archived)),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Time("cutoff", cutoff),
	)
	return report, nil
}

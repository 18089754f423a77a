package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

const (
	defaultTopVersionsLimit = 10
	defaultSummaryFanOut    = 8
	defaultViewWindow       = 30 * time.Minute
)

// AnalyticsMetrics captures telemetry hooks for analytics updates.
type AnalyticsMetrics interface {
	IncAnalyticsEvent(kind, outcome string)
}

// AnalyticsOptions configures the analytics service.
type AnalyticsOptions struct {
	Retry      RetryPolicy
	ViewWindow time.Duration
	FanOut     int
}

// AnalyticsService accumulates per-version counters. Each update is a load, mutate and
// revision-checked save, retried when another writer got there first.
type AnalyticsService struct {
	repo       port.VersionRepository
	tx         VersionTxFunc
	deduper    port.ViewDeduper
	retry      RetryPolicy
	viewWindow time.Duration
	fanOut     int
	logger     *zap.Logger
	now        func() time.Time
	metrics    AnalyticsMetrics
}

// NewAnalyticsService constructs the analytics service. The deduper is optional.
func NewAnalyticsService(repo port.VersionRepository, tx VersionTxFunc, deduper port.ViewDeduper, opts AnalyticsOptions) *AnalyticsService {
	svc := &AnalyticsService{
		repo:       repo,
		tx:         tx,
		deduper:    deduper,
		retry:      opts.Retry,
		viewWindow: opts.ViewWindow,
		fanOut:     opts.FanOut,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	if svc.retry.MaxRetries == 0 && svc.retry.Backoff == 0 {
		svc.retry = RetryPolicy{MaxRetries: defaultMaxRetries, Backoff: defaultRetryBackoff}
	}
	if svc.viewWindow <= 0 {
		svc.viewWindow = defaultViewWindow
	}
	if svc.fanOut <= 0 {
		svc.fanOut = defaultSummaryFanOut
	}
	return svc
}

// WithLogger attaches a structured logger to the service.
func (s *AnalyticsService) WithLogger(logger *zap.Logger) *AnalyticsService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock.
func (s *AnalyticsService) WithNow(now func() time.Time) *AnalyticsService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires telemetry observers.
func (s *AnalyticsService) WithMetrics(metrics AnalyticsMetrics) *AnalyticsService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// TrackView counts a view. Repeated views by the same viewer inside the dedupe window are ignored
// and reported as false.
func (s *AnalyticsService) TrackView(ctx context.Context, versionID, viewerID, source string) (bool, error) {
	if s.deduper != nil && strings.TrimSpace(viewerID) != "" {
		first, err := s.deduper.FirstView(ctx, versionID, viewerID, s.viewWindow)
		if err != nil {
			s.logger.Warn("view dedupe unavailable; counting view", zap.String("version_id", versionID), zap.Error(err))
		} else if !first {
			s.observe(domain.AnalyticsView, "deduplicated")
			return false, nil
		}
	}

	err := s.apply(ctx, domain.AnalyticsView, versionID, func(a *domain.Analytics, at time.Time) error {
		a.TrackView(source, at)
		return nil
	})
	return err == nil, err
}

// TrackDownload counts a download, optionally by format.
func (s *AnalyticsService) TrackDownload(ctx context.Context, versionID, format string) error {
	return s.apply(ctx, domain.AnalyticsDownload, versionID, func(a *domain.Analytics, at time.Time) error {
		a.TrackDownload(format, at)
		return nil
	})
}

// TrackShare counts a share, optionally by platform.
func (s *AnalyticsService) TrackShare(ctx context.Context, versionID, platform string) error {
	return s.apply(ctx, domain.AnalyticsShare, versionID, func(a *domain.Analytics, at time.Time) error {
		a.TrackShare(platform, at)
		return nil
	})
}

// TrackConversion advances the purchase funnel.
func (s *AnalyticsService) TrackConversion(ctx context.Context, versionID string, event domain.ConversionEvent, value float64) error {
	return s.apply(ctx, domain.AnalyticsConversion, versionID, func(a *domain.Analytics, _ time.Time) error {
		return a.TrackConversion(event, value)
	})
}

// TrackRating records a 1..5 rating.
func (s *AnalyticsService) TrackRating(ctx context.Context, versionID string, rating int) error {
	return s.apply(ctx, domain.AnalyticsRating, versionID, func(a *domain.Analytics, at time.Time) error {
		return a.AddRating(rating, at)
	})
}

// UpdatePerformance merges render metrics and scores.
func (s *AnalyticsService) UpdatePerformance(ctx context.Context, versionID string, perf domain.Performance) error {
	return s.apply(ctx, "performance", versionID, func(a *domain.Analytics, _ time.Time) error {
		return a.UpdatePerformance(perf)
	})
}

// ResetAnalytics zeroes the counters, snapshotting them into the historical list first when asked.
func (s *AnalyticsService) ResetAnalytics(ctx context.Context, versionID string, preserveHistorical bool) error {
	return s.apply(ctx, "reset", versionID, func(a *domain.Analytics, at time.Time) error {
		a.Reset(preserveHistorical, at)
		return nil
	})
}

// HandleEvent applies one read-path instrumentation event.
func (s *AnalyticsService) HandleEvent(ctx context.Context, event domain.AnalyticsEvent) error {
	switch event.Kind {
	case domain.AnalyticsView:
		_, err := s.TrackView(ctx, event.VersionID, event.ViewerID, event.Label)
		return err
	case domain.AnalyticsDownload:
		return s.TrackDownload(ctx, event.VersionID, event.Label)
	case domain.AnalyticsShare:
		return s.TrackShare(ctx, event.VersionID, event.Label)
	case domain.AnalyticsConversion:
		return s.TrackConversion(ctx, event.VersionID, event.Conversion, event.Value)
	case domain.AnalyticsRating:
		return s.TrackRating(ctx, event.VersionID, event.Rating)
	}
	return domain.NewValidationError(domain.ValidationIssue{
		Field:   "kind",
		Rule:    "oneof",
		Message: fmt.Sprintf("unknown analytics event kind %q", event.Kind),
	})
}

// GetAnalyticsSummary totals analytics for versions created inside the range. With no record ids
// every record is summarised. Records are loaded concurrently.
func (s *AnalyticsService) GetAnalyticsSummary(ctx context.Context, recordIDs []string, rng domain.DateRange) (domain.AnalyticsSummary, error) {
	if len(recordIDs) == 0 {
		ids, err := s.repo.ListRecordIDs(ctx)
		if err != nil {
			return domain.AnalyticsSummary{}, translateRepoError("analytics summary", err)
		}
		recordIDs = ids
	}

	var (
		mu       sync.Mutex
		byRecord = make(map[string]domain.AnalyticsTotals, len(recordIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, recordID := range recordIDs {
		recordID := strings.TrimSpace(recordID)
		if recordID == "" {
			continue
		}
		g.Go(func() error {
			versions, err := s.repo.ListByRecord(gctx, recordID, true)
			if err != nil {
				return translateRepoError("analytics summary", err)
			}
			var totals domain.AnalyticsTotals
			for i := range versions {
				if rng.Contains(versions[i].CreatedAt) {
					totals.Add(versions[i].Analytics)
				}
			}
			mu.Lock()
			byRecord[recordID] = totals
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.AnalyticsSummary{}, err
	}

	summary := domain.AnalyticsSummary{
		Range:     rng,
		ByRecord:  make(map[string]domain.AnalyticsTotals, len(byRecord)),
		Generated: s.now().UTC(),
	}
	for recordID, totals := range byRecord {
		summary.Totals.Merge(totals)
		totals.Finalize()
		summary.ByRecord[recordID] = totals
	}
	summary.Totals.Finalize()
	return summary, nil
}

// GetTopPerformingVersions ranks non-archived versions created inside the range by the criteria.
func (s *AnalyticsService) GetTopPerformingVersions(ctx context.Context, criteria domain.RankingCriteria, limit int, rng domain.DateRange) ([]domain.VersionRanking, error) {
	if _, err := criteria.Score(domain.Analytics{}); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopVersionsLimit
	}

	versions, err := s.repo.Search(ctx, domain.VersionFilter{CreatedFrom: rng.From, CreatedTo: rng.To})
	if err != nil {
		return nil, translateRepoError("top versions", err)
	}

	rankings := make([]domain.VersionRanking, 0, len(versions))
	created := make(map[string]time.Time, len(versions))
	for _, v := range versions {
		score, _ := criteria.Score(v.Analytics)
		rankings = append(rankings, domain.VersionRanking{
			VersionID:     v.ID,
			RecordID:      v.RecordID,
			VersionNumber: v.VersionNumber,
			Score:         score,
			Analytics:     v.Analytics,
		})
		created[v.ID] = v.CreatedAt
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return created[rankings[i].VersionID].After(created[rankings[j].VersionID])
	})
	if len(rankings) > limit {
		rankings = rankings[:limit]
	}
	return rankings, nil
}

func (s *AnalyticsService) apply(ctx context.Context, kind domain.AnalyticsEventKind, versionID string, fn func(a *domain.Analytics, at time.Time) error) error {
	versionID, err := requireID(versionID, ErrVersionIDRequired)
	if err != nil {
		s.observe(kind, "validation")
		return err
	}

	txFn := s.tx
	if txFn == nil {
		txFn = func(ctx context.Context, fn func(repo port.VersionRepository) error) error {
			return fn(s.repo)
		}
	}
	op := "analytics_" + string(kind)

	err = retryOnConflict(ctx, s.retry, func(attempt int, err error) {
		s.logger.Debug("retrying analytics update after concurrent update",
			zap.String("kind", string(kind)),
			zap.String("version_id", versionID),
			zap.Int("attempt", attempt),
		)
	}, func() error {
		return translateRepoError(op, txFn(ctx, func(repo port.VersionRepository) error {
			v, err := repo.GetForUpdate(ctx, versionID)
			if err != nil {
				return err
			}
			if err := fn(&v.Analytics, s.now()); err != nil {
				return err
			}
			return repo.Update(ctx, v)
		}))
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.Debug("analytics update failed", zap.String("kind", string(kind)), zap.String("version_id", versionID), zap.Error(err))
	}
	s.observe(kind, outcome)
	return err
}

func (s *AnalyticsService) observe(kind domain.AnalyticsEventKind, outcome string) {
	if s.metrics != nil {
		s.metrics.IncAnalyticsEvent(string(kind), outcome)
	}
}

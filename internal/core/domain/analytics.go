package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ConversionEvent is a funnel step tracked for a version.
type ConversionEvent string

const (
	ConversionImpression ConversionEvent = "impression"
	ConversionClick      ConversionEvent = "click"
	ConversionPurchase   ConversionEvent = "purchase"
)

const (
	minRating = 1
	maxRating = 5
)

// Usage counts read-path interactions.
type Usage struct {
	Views             int64            `json:"views"`
	Downloads         int64            `json:"downloads"`
	Shares            int64            `json:"shares"`
	LastAccessed      *time.Time       `json:"lastAccessed,omitempty"`
	ViewsBySource     map[string]int64 `json:"viewsBySource,omitempty"`
	DownloadsByFormat map[string]int64 `json:"downloadsByFormat,omitempty"`
	SharesByPlatform  map[string]int64 `json:"sharesByPlatform,omitempty"`
}

// Conversion tracks the purchase funnel.
type Conversion struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Purchases      int64   `json:"purchases"`
	ConversionRate float64 `json:"conversionRate"`
	Revenue        float64 `json:"revenue"`
}

// Performance holds optional render metrics and 0..100 scores.
type Performance struct {
	LoadTime           *float64 `json:"loadTime,omitempty"`
	RenderTime         *float64 `json:"renderTime,omitempty"`
	SEOScore           *float64 `json:"seoScore,omitempty"`
	AccessibilityScore *float64 `json:"accessibilityScore,omitempty"`
}

// Feedback holds customer ratings.
type Feedback struct {
	Ratings        []int      `json:"ratings,omitempty"`
	AverageRating  float64    `json:"averageRating"`
	ReviewCount    int        `json:"reviewCount"`
	LastReviewDate *time.Time `json:"lastReviewDate,omitempty"`
}

// AnalyticsSnapshot preserves counters captured before a reset.
type AnalyticsSnapshot struct {
	CapturedAt time.Time  `json:"capturedAt"`
	Usage      Usage      `json:"usage"`
	Conversion Conversion `json:"conversion"`
	Feedback   Feedback   `json:"feedback"`
}

// Analytics are the per-version counters. Counters only grow; derived fields are recomputed after
// every update. Historical is an append-only side list.
type Analytics struct {
	Usage       Usage               `json:"usage"`
	Conversion  Conversion          `json:"conversion"`
	Performance Performance         `json:"performance"`
	Feedback    Feedback            `json:"feedback"`
	Historical  []AnalyticsSnapshot `json:"historical,omitempty"`
}

// TrackView counts a view, optionally broken down by traffic source.
func (a *Analytics) TrackView(source string, at time.Time) {
	a.Usage.Views++
	a.Usage.ViewsBySource = incBreakdown(a.Usage.ViewsBySource, source)
	a.touch(at)
}

// TrackDownload counts a download, optionally broken down by format.
func (a *Analytics) TrackDownload(format string, at time.Time) {
	a.Usage.Downloads++
	a.Usage.DownloadsByFormat = incBreakdown(a.Usage.DownloadsByFormat, format)
	a.touch(at)
}

// TrackShare counts a share, optionally broken down by platform.
func (a *Analytics) TrackShare(platform string, at time.Time) {
	a.Usage.Shares++
	a.Usage.SharesByPlatform = incBreakdown(a.Usage.SharesByPlatform, platform)
	a.touch(at)
}

// TrackConversion advances the funnel. Revenue accumulates on purchases only.
func (a *Analytics) TrackConversion(event ConversionEvent, value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return NewValidationError(ValidationIssue{Field: "value", Rule: "gte=0", Message: "conversion value must be a non-negative number"})
	}

	switch event {
	case ConversionImpression:
		a.Conversion.Impressions++
	case ConversionClick:
		a.Conversion.Clicks++
	case ConversionPurchase:
		a.Conversion.Purchases++
		a.Conversion.Revenue += value
	default:
		return NewValidationError(ValidationIssue{
			Field:   "event",
			Rule:    "oneof",
			Message: fmt.Sprintf("unknown conversion event %q", event),
		})
	}

	a.recomputeConversionRate()
	return nil
}

// AddRating appends a 1..5 rating. Out-of-range values are rejected, never clamped.
func (a *Analytics) AddRating(rating int, at time.Time) error {
	if rating < minRating || rating > maxRating {
		return NewValidationError(ValidationIssue{
			Field:   "rating",
			Rule:    "range",
			Message: fmt.Sprintf("rating must be between %d and %d, got %d", minRating, maxRating, rating),
		})
	}

	a.Feedback.Ratings = append(a.Feedback.Ratings, rating)
	ts := at.UTC()
	a.Feedback.LastReviewDate = &ts
	a.recomputeFeedback()
	return nil
}

// UpdatePerformance merges the supplied metrics. Scores must lie in 0..100 and timings must be
// non-negative.
func (a *Analytics) UpdatePerformance(p Performance) error {
	var issues []ValidationIssue
	checkScore := func(field string, v *float64) {
		if v != nil && (*v < 0 || *v > 100) {
			issues = append(issues, ValidationIssue{Field: field, Rule: "range", Message: "score must be between 0 and 100"})
		}
	}
	checkTiming := func(field string, v *float64) {
		if v != nil && *v < 0 {
			issues = append(issues, ValidationIssue{Field: field, Rule: "gte=0", Message: "timing must be non-negative"})
		}
	}
	checkTiming("performance.loadTime", p.LoadTime)
	checkTiming("performance.renderTime", p.RenderTime)
	checkScore("performance.seoScore", p.SEOScore)
	checkScore("performance.accessibilityScore", p.AccessibilityScore)
	if len(issues) > 0 {
		return NewValidationError(issues...)
	}

	if p.LoadTime != nil {
		a.Performance.LoadTime = copyFloat(p.LoadTime)
	}
	if p.RenderTime != nil {
		a.Performance.RenderTime = copyFloat(p.RenderTime)
	}
	if p.SEOScore != nil {
		a.Performance.SEOScore = copyFloat(p.SEOScore)
	}
	if p.AccessibilityScore != nil {
		a.Performance.AccessibilityScore = copyFloat(p.AccessibilityScore)
	}
	return nil
}

// Reset zeroes usage, conversion and feedback counters. With preserveHistorical the current counters
// are appended to Historical first. Performance metrics are kept.
func (a *Analytics) Reset(preserveHistorical bool, at time.Time) {
	if preserveHistorical {
		snapshot := a.Clone()
		a.Historical = append(a.Historical, AnalyticsSnapshot{
			CapturedAt: at.UTC(),
			Usage:      snapshot.Usage,
			Conversion: snapshot.Conversion,
			Feedback:   snapshot.Feedback,
		})
	}
	a.Usage = Usage{}
	a.Conversion = Conversion{}
	a.Feedback = Feedback{}
}

// EngagementScore weights interactions: views 1, downloads 2, shares 3, purchases 5.
func (a Analytics) EngagementScore() float64 {
	return float64(a.Usage.Views) +
		2*float64(a.Usage.Downloads) +
		3*float64(a.Usage.Shares) +
		5*float64(a.Conversion.Purchases)
}

// Clone returns an independent copy.
func (a Analytics) Clone() Analytics {
	out := a
	out.Usage = a.Usage.clone()
	out.Performance = Performance{
		LoadTime:           copyFloat(a.Performance.LoadTime),
		RenderTime:         copyFloat(a.Performance.RenderTime),
		SEOScore:           copyFloat(a.Performance.SEOScore),
		AccessibilityScore: copyFloat(a.Performance.AccessibilityScore),
	}
	out.Feedback = a.Feedback.clone()
	if a.Historical != nil {
		out.Historical = make([]AnalyticsSnapshot, len(a.Historical))
		for i, h := range a.Historical {
			out.Historical[i] = AnalyticsSnapshot{
				CapturedAt: h.CapturedAt,
				Usage:      h.Usage.clone(),
				Conversion: h.Conversion,
				Feedback:   h.Feedback.clone(),
			}
		}
	}
	return out
}

func (a *Analytics) touch(at time.Time) {
	ts := at.UTC()
	a.Usage.LastAccessed = &ts
}

func (a *Analytics) recomputeConversionRate() {
	if a.Conversion.Impressions == 0 {
		a.Conversion.ConversionRate = 0
		return
	}
	a.Conversion.ConversionRate = float64(a.Conversion.Purchases) / float64(a.Conversion.Impressions) * 100
}

func (a *Analytics) recomputeFeedback() {
	a.Feedback.ReviewCount = len(a.Feedback.Ratings)
	if a.Feedback.ReviewCount == 0 {
		a.Feedback.AverageRating = 0
		return
	}
	total := 0
	for _, r := range a.Feedback.Ratings {
		total += r
	}
	mean := float64(total) / float64(a.Feedback.ReviewCount)
	a.Feedback.AverageRating = math.Round(mean*10) / 10
}

func (u Usage) clone() Usage {
	out := u
	if u.LastAccessed != nil {
		ts := *u.LastAccessed
		out.LastAccessed = &ts
	}
	out.ViewsBySource = cloneCounts(u.ViewsBySource)
	out.DownloadsByFormat = cloneCounts(u.DownloadsByFormat)
	out.SharesByPlatform = cloneCounts(u.SharesByPlatform)
	return out
}

func (f Feedback) clone() Feedback {
	out := f
	out.Ratings = append([]int(nil), f.Ratings...)
	if f.LastReviewDate != nil {
		ts := *f.LastReviewDate
		out.LastReviewDate = &ts
	}
	return out
}

func incBreakdown(m map[string]int64, key string) map[string]int64 {
	key = strings.TrimSpace(key)
	if key == "" {
		return m
	}
	if m == nil {
		m = make(map[string]int64)
	}
	m[key]++
	return m
}

func cloneCounts(src map[string]int64) map[string]int64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// DateRange bounds a query; zero times are open ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// AnalyticsTotals sums counters across versions.
type AnalyticsTotals struct {
	Versions       int     `json:"versions"`
	Views          int64   `json:"views"`
	Downloads      int64   `json:"downloads"`
	Shares         int64   `json:"shares"`
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Purchases      int64   `json:"purchases"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversionRate"`
	ReviewCount    int     `json:"reviewCount"`
	AverageRating  float64 `json:"averageRating"`
}

// Add folds one version's analytics into the totals. Derived rates are recomputed by Finalize.
func (t *AnalyticsTotals) Add(a Analytics) {
	t.Versions++
	t.Views += a.Usage.Views
	t.Downloads += a.Usage.Downloads
	t.Shares += a.Usage.Shares
	t.Impressions += a.Conversion.Impressions
	t.Clicks += a.Conversion.Clicks
	t.Purchases += a.Conversion.Purchases
	t.Revenue += a.Conversion.Revenue
	if a.Feedback.ReviewCount > 0 {
		weighted := t.AverageRating*float64(t.ReviewCount) + a.Feedback.AverageRating*float64(a.Feedback.ReviewCount)
		t.ReviewCount += a.Feedback.ReviewCount
		t.AverageRating = weighted / float64(t.ReviewCount)
	}
}

// Merge folds another totals value into t.
func (t *AnalyticsTotals) Merge(o AnalyticsTotals) {
	t.Versions += o.Versions
	t.Views += o.Views
	t.Downloads += o.Downloads
	t.Shares += o.Shares
	t.Impressions += o.Impressions
	t.Clicks += o.Clicks
	t.Purchases += o.Purchases
	t.Revenue += o.Revenue
	if o.ReviewCount > 0 {
		weighted := t.AverageRating*float64(t.ReviewCount) + o.AverageRating*float64(o.ReviewCount)
		t.ReviewCount += o.ReviewCount
		t.AverageRating = weighted / float64(t.ReviewCount)
	}
}

// Finalize recomputes derived fields.
func (t *AnalyticsTotals) Finalize() {
	if t.Impressions > 0 {
		t.ConversionRate = float64(t.Purchases) / float64(t.Impressions) * 100
	} else {
		t.ConversionRate = 0
	}
	t.AverageRating = math.Round(t.AverageRating*10) / 10
}

// AnalyticsSummary is the result of an analytics summary query.
type AnalyticsSummary struct {
	Range     DateRange                  `json:"range"`
	Totals    AnalyticsTotals            `json:"totals"`
	ByRecord  map[string]AnalyticsTotals `json:"byRecord"`
	Generated time.Time                  `json:"generatedAt"`
}

// RankingCriteria selects the metric used to rank versions.
type RankingCriteria string

const (
	RankByViews       RankingCriteria = "views"
	RankByDownloads   RankingCriteria = "downloads"
	RankByShares      RankingCriteria = "shares"
	RankByConversions RankingCriteria = "conversions"
	RankByRevenue     RankingCriteria = "revenue"
	RankByRating      RankingCriteria = "rating"
	RankByEngagement  RankingCriteria = "engagement"
)

// Score extracts the ranking metric from analytics.
func (c RankingCriteria) Score(a Analytics) (float64, error) {
	switch c {
	case RankByViews:
		return float64(a.Usage.Views), nil
	case RankByDownloads:
		return float64(a.Usage.Downloads), nil
	case RankByShares:
		return float64(a.Usage.Shares), nil
	case RankByConversions:
		return a.Conversion.ConversionRate, nil
	case RankByRevenue:
		return a.Conversion.Revenue, nil
	case RankByRating:
		return a.Feedback.AverageRating, nil
	case RankByEngagement, "":
		return a.EngagementScore(), nil
	}
	return 0, NewValidationError(ValidationIssue{Field: "criteria", Rule: "oneof", Message: fmt.Sprintf("unknown ranking criteria %q", c)})
}

// VersionRanking is one entry of a top-performing query.
type VersionRanking struct {
	VersionID     string    `json:"versionId"`
	RecordID      string    `json:"recordId"`
	VersionNumber string    `json:"versionNumber"`
	Score         float64   `json:"score"`
	Analytics     Analytics `json:"analytics"`
}

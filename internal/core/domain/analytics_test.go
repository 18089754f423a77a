package domain

import (
	"errors"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestAnalyticsUsageBreakdowns(t *testing.T) {
	var a Analytics
	a.TrackView("search", auditStart)
	a.TrackView("search", auditStart)
	a.TrackView("", auditStart)
	a.TrackDownload("pdf", auditStart)
	a.TrackShare("twitter", auditStart)

	if a.Usage.Views != 3 || a.Usage.ViewsBySource["search"] != 2 || len(a.Usage.ViewsBySource) != 1 {
		t.Fatalf("unexpected views: %+v", a.Usage)
	}
	if a.Usage.DownloadsByFormat["pdf"] != 1 || a.Usage.SharesByPlatform["twitter"] != 1 {
		t.Fatalf("unexpected breakdowns: %+v", a.Usage)
	}
	if a.Usage.LastAccessed == nil || !a.Usage.LastAccessed.Equal(auditStart) {
		t.Fatalf("expected last accessed to be set, got %v", a.Usage.LastAccessed)
	}
}

func TestAnalyticsConversionRate(t *testing.T) {
	var a Analytics
	for i := 0; i < 4; i++ {
		if err := a.TrackConversion(ConversionImpression, 0); err != nil {
			t.Fatalf("TrackConversion returned error: %v", err)
		}
	}
	if err := a.TrackConversion(ConversionClick, 0); err != nil {
		t.Fatalf("TrackConversion returned error: %v", err)
	}
	if err := a.TrackConversion(ConversionPurchase, 19.5); err != nil {
		t.Fatalf("TrackConversion returned error: %v", err)
	}

	if a.Conversion.ConversionRate != 25 {
		t.Fatalf("expected 25%% conversion, got %v", a.Conversion.ConversionRate)
	}
	if a.Conversion.Revenue != 19.5 {
		t.Fatalf("expected revenue 19.5, got %v", a.Conversion.Revenue)
	}

	if err := a.TrackConversion("refund", 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown event, got %v", err)
	}
	if err := a.TrackConversion(ConversionPurchase, -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative value, got %v", err)
	}
	if a.Conversion.Purchases != 1 {
		t.Fatalf("rejected events must not count, purchases=%d", a.Conversion.Purchases)
	}
}

func TestAnalyticsRatings(t *testing.T) {
	var a Analytics
	for _, r := range []int{5, 4, 4} {
		if err := a.AddRating(r, auditStart); err != nil {
			t.Fatalf("AddRating(%d) returned error: %v", r, err)
		}
	}
	if a.Feedback.AverageRating != 4.3 || a.Feedback.ReviewCount != 3 {
		t.Fatalf("unexpected feedback: %+v", a.Feedback)
	}

	for _, r := range []int{0, 6} {
		if err := a.AddRating(r, auditStart); !errors.Is(err, ErrValidation) {
			t.Fatalf("AddRating(%d) expected ErrValidation, got %v", r, err)
		}
	}
	if a.Feedback.ReviewCount != 3 {
		t.Fatalf("rejected ratings must not be stored, count=%d", a.Feedback.ReviewCount)
	}
}

func TestAnalyticsUpdatePerformance(t *testing.T) {
	var a Analytics
	if err := a.UpdatePerformance(Performance{LoadTime: floatPtr(120), SEOScore: floatPtr(80)}); err != nil {
		t.Fatalf("UpdatePerformance returned error: %v", err)
	}
	if err := a.UpdatePerformance(Performance{AccessibilityScore: floatPtr(90)}); err != nil {
		t.Fatalf("UpdatePerformance returned error: %v", err)
	}
	if *a.Performance.LoadTime != 120 || *a.Performance.SEOScore != 80 || *a.Performance.AccessibilityScore != 90 {
		t.Fatalf("expected merged metrics, got %+v", a.Performance)
	}

	err := a.UpdatePerformance(Performance{LoadTime: floatPtr(-1), SEOScore: floatPtr(101)})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Issues) != 2 {
		t.Fatalf("expected two issues, got %v", err)
	}
	if *a.Performance.SEOScore != 80 {
		t.Fatal("rejected update must not be applied")
	}
}

func TestAnalyticsResetPreservesHistory(t *testing.T) {
	var a Analytics
	a.TrackView("search", auditStart)
	_ = a.AddRating(5, auditStart)
	_ = a.UpdatePerformance(Performance{SEOScore: floatPtr(70)})

	a.Reset(true, auditStart.Add(time.Hour))

	if a.Usage.Views != 0 || a.Feedback.ReviewCount != 0 {
		t.Fatalf("expected counters zeroed, got %+v", a)
	}
	if a.Performance.SEOScore == nil {
		t.Fatal("performance must survive reset")
	}
	if len(a.Historical) != 1 || a.Historical[0].Usage.Views != 1 || a.Historical[0].Feedback.ReviewCount != 1 {
		t.Fatalf("unexpected historical snapshot: %+v", a.Historical)
	}

	a.Reset(false, auditStart.Add(2*time.Hour))
	if len(a.Historical) != 1 {
		t.Fatalf("reset without preservation must not append, got %d", len(a.Historical))
	}
}

func TestAnalyticsCloneIsIndependent(t *testing.T) {
	var a Analytics
	a.TrackView("search", auditStart)
	_ = a.AddRating(3, auditStart)

	clone := a.Clone()
	clone.Usage.ViewsBySource["search"] = 99
	clone.Feedback.Ratings[0] = 1

	if a.Usage.ViewsBySource["search"] != 1 || a.Feedback.Ratings[0] != 3 {
		t.Fatal("clone shares state with the original")
	}
}

func TestRankingCriteriaScore(t *testing.T) {
	a := Analytics{
		Usage:      Usage{Views: 10, Downloads: 2, Shares: 1},
		Conversion: Conversion{Purchases: 1, Revenue: 42, ConversionRate: 12.5},
		Feedback:   Feedback{AverageRating: 4.5},
	}
	cases := map[RankingCriteria]float64{
		RankByViews:       10,
		RankByDownloads:   2,
		RankByShares:      1,
		RankByConversions: 12.5,
		RankByRevenue:     42,
		RankByRating:      4.5,
		RankByEngagement:  10 + 4 + 3 + 5,
		"":                22,
	}
	for criteria, want := range cases {
		got, err := criteria.Score(a)
		if err != nil {
			t.Fatalf("Score(%q) returned error: %v", criteria, err)
		}
		if got != want {
			t.Fatalf("Score(%q) = %v, want %v", criteria, got, want)
		}
	}
	if _, err := RankingCriteria("likes").Score(a); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown criteria, got %v", err)
	}
}

func TestAnalyticsTotals(t *testing.T) {
	var first, second AnalyticsTotals
	first.Add(Analytics{
		Usage:      Usage{Views: 5},
		Conversion: Conversion{Impressions: 6, Purchases: 1, Revenue: 10},
		Feedback:   Feedback{AverageRating: 4, ReviewCount: 2},
	})
	second.Add(Analytics{
		Usage:      Usage{Views: 3},
		Conversion: Conversion{Impressions: 4, Purchases: 1, Revenue: 5},
		Feedback:   Feedback{AverageRating: 2, ReviewCount: 1},
	})
	first.Merge(second)
	first.Finalize()

	if first.Versions != 2 || first.Views != 8 || first.Revenue != 15 {
		t.Fatalf("unexpected totals: %+v", first)
	}
	if first.ConversionRate != 20 {
		t.Fatalf("expected 20%% conversion, got %v", first.ConversionRate)
	}
	if first.AverageRating != 3.3 || first.ReviewCount != 3 {
		t.Fatalf("expected weighted rating 3.3 over 3 reviews, got %v over %d", first.AverageRating, first.ReviewCount)
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{From: auditStart, To: auditStart.Add(time.Hour)}
	if !r.Contains(auditStart) || !r.Contains(auditStart.Add(time.Hour)) {
		t.Fatal("bounds are inclusive")
	}
	if r.Contains(auditStart.Add(-time.Second)) || r.Contains(auditStart.Add(2*time.Hour)) {
		t.Fatal("outside times must be excluded")
	}
	if !(DateRange{}).Contains(auditStart) {
		t.Fatal("open range contains everything")
	}
}

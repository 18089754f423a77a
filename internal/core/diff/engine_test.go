package diff

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

func lampData() domain.VersionData {
	return domain.VersionData{
		Title:       "Lamp",
		Description: "A reading lamp",
		Price:       domain.Price{BasePrice: 25, Currency: "USD"},
		Category:    "lighting",
		Brand:       "Lumen",
		Inventory:   domain.Inventory{SKU: "LAMP-1", Stock: 10, LowStockThreshold: 2},
		SEO:         domain.SEO{Slug: "lamp"},
	}
}

func floatPtr(v float64) *float64 { return &v }

func changeByField(t *testing.T, cmp domain.VersionComparison, field string) domain.Change {
	t.Helper()
	for _, change := range cmp.Changes {
		if change.Field == field {
			return change
		}
	}
	t.Fatalf("no change for %s in %+v", field, cmp.Changes)
	return domain.Change{}
}

func TestCompareIdenticalSnapshots(t *testing.T) {
	cmp, err := Compare(lampData(), lampData())
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if len(cmp.Changes) != 0 {
		t.Fatalf("expected no changes, got %+v", cmp.Changes)
	}
	if cmp.Summary.CompatibilityScore != 100 {
		t.Fatalf("expected score 100, got %d", cmp.Summary.CompatibilityScore)
	}
	if cmp.Summary.Significance != domain.MagnitudePatch {
		t.Fatalf("expected patch magnitude, got %s", cmp.Summary.Significance)
	}
}

func TestCompareScoresBySignificance(t *testing.T) {
	from := lampData()
	to := lampData()
	to.Title = "Desk Lamp"
	to.Description = "A desk lamp"

	cmp, err := Compare(from, to)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if cmp.Summary.TotalChanges != 2 || cmp.Summary.ModifiedFields != 2 {
		t.Fatalf("unexpected summary: %+v", cmp.Summary)
	}
	if got := changeByField(t, cmp, "title").Significance; got != domain.SignificanceHigh {
		t.Fatalf("expected title to be high, got %s", got)
	}
	if got := changeByField(t, cmp, "description").Significance; got != domain.SignificanceMedium {
		t.Fatalf("expected description to be medium, got %s", got)
	}
	if cmp.Summary.CompatibilityScore != 100-15-8 {
		t.Fatalf("expected score 77, got %d", cmp.Summary.CompatibilityScore)
	}
	if cmp.Summary.CriticalChanges != 1 {
		t.Fatalf("expected 1 critical change, got %d", cmp.Summary.CriticalChanges)
	}
	if cmp.Summary.Significance != domain.MagnitudePatch {
		t.Fatalf("expected patch magnitude, got %s", cmp.Summary.Significance)
	}
}

func TestCompareBasePriceIsMajor(t *testing.T) {
	from := lampData()
	to := lampData()
	to.Price.BasePrice = 30

	cmp, err := Compare(from, to)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	change := changeByField(t, cmp, "price.basePrice")
	if change.Type != domain.ChangeModified {
		t.Fatalf("expected modified, got %s", change.Type)
	}
	if cmp.Summary.Significance != domain.MagnitudeMajor {
		t.Fatalf("expected major magnitude, got %s", cmp.Summary.Significance)
	}
}

func TestCompareDocumentsRemovalPenalty(t *testing.T) {
	cmp := CompareDocuments(
		map[string]any{"a": 1, "b": 2},
		map[string]any{"a": 1},
	)
	if cmp.Summary.RemovedFields != 1 {
		t.Fatalf("expected 1 removed field, got %+v", cmp.Summary)
	}
	if cmp.Summary.CompatibilityScore != 100-3-5 {
		t.Fatalf("expected score 92, got %d", cmp.Summary.CompatibilityScore)
	}
	if change := changeByField(t, cmp, "b"); change.OldValue == nil || change.NewValue != nil {
		t.Fatalf("unexpected removed change: %+v", change)
	}
}

func assertMirrored(t *testing.T, forward, backward domain.VersionComparison) {
	t.Helper()
	if len(forward.Changes) != len(backward.Changes) {
		t.Fatalf("change counts differ: %d vs %d", len(forward.Changes), len(backward.Changes))
	}
	inverse := map[domain.ChangeType]domain.ChangeType{
		domain.ChangeAdded:    domain.ChangeRemoved,
		domain.ChangeRemoved:  domain.ChangeAdded,
		domain.ChangeModified: domain.ChangeModified,
	}
	for i, a := range forward.Changes {
		b := backward.Changes[i]
		if a.Field != b.Field {
			t.Fatalf("change %d: fields differ: %s vs %s", i, a.Field, b.Field)
		}
		if b.Type != inverse[a.Type] {
			t.Fatalf("%s: expected %s to invert to %s, got %s", a.Field, a.Type, inverse[a.Type], b.Type)
		}
		if a.Significance != b.Significance {
			t.Fatalf("%s: significance differs: %s vs %s", a.Field, a.Significance, b.Significance)
		}
		if !reflect.DeepEqual(a.OldValue, b.NewValue) || !reflect.DeepEqual(a.NewValue, b.OldValue) {
			t.Fatalf("%s: values not swapped: %+v vs %+v", a.Field, a, b)
		}
	}
	if forward.Summary.TotalChanges != backward.Summary.TotalChanges ||
		forward.Summary.ModifiedFields != backward.Summary.ModifiedFields ||
		forward.Summary.AddedFields != backward.Summary.RemovedFields ||
		forward.Summary.RemovedFields != backward.Summary.AddedFields {
		t.Fatalf("summaries not mirrored: %+v vs %+v", forward.Summary, backward.Summary)
	}
}

func TestCompareIsSymmetric(t *testing.T) {
	a := map[string]any{"title": "Lamp", "price": map[string]any{"basePrice": 10}, "tags": []any{"x"}, "shipping": map[string]any{}}
	b := map[string]any{"title": "Lamp", "price": map[string]any{"basePrice": 12}, "brand": "Lumen", "shipping": map[string]any{"weight": 2}}

	assertMirrored(t, CompareDocuments(a, b), CompareDocuments(b, a))

	from := lampData()
	to := lampData()
	to.Title = "Desk Lamp"
	to.Shipping.Weight = floatPtr(1.5)
	forward, err := Compare(from, to)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	backward, err := Compare(to, from)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	assertMirrored(t, forward, backward)
}

func TestCompareEmptyObjectBecomingFilled(t *testing.T) {
	from := lampData()
	to := lampData()
	to.Shipping.Weight = floatPtr(1.5)

	cmp, err := Compare(from, to)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if len(cmp.Changes) != 1 {
		t.Fatalf("expected a single change, got %+v", cmp.Changes)
	}
	change := cmp.Changes[0]
	if change.Field != "shipping.weight" || change.Type != domain.ChangeAdded || change.Significance != domain.SignificanceMedium {
		t.Fatalf("unexpected change: %+v", change)
	}
	if cmp.Summary.RemovedFields != 0 || cmp.Summary.CompatibilityScore != 100-8 {
		t.Fatalf("expected no removal and score 92, got %+v", cmp.Summary)
	}

	docs := CompareDocuments(map[string]any{"shipping": map[string]any{}}, map[string]any{"shipping": map[string]any{"weight": 2}})
	if docs.Summary.TotalChanges != 1 || docs.Summary.AddedFields != 1 || docs.Summary.CompatibilityScore != 92 {
		t.Fatalf("unexpected document summary: %+v", docs.Summary)
	}

	if none := CompareDocuments(map[string]any{"media": map[string]any{}}, map[string]any{}); len(none.Changes) != 0 {
		t.Fatalf("an empty object carries no fields, got %+v", none.Changes)
	}
}

func TestCompareTreatsArraysAsLeaves(t *testing.T) {
	from := lampData()
	from.Media.Images = []domain.Image{{URL: "https://cdn.example.com/a.jpg", IsPrimary: true}}
	to := lampData()
	to.Media.Images = []domain.Image{
		{URL: "https://cdn.example.com/a.jpg", IsPrimary: true},
		{URL: "https://cdn.example.com/b.jpg"},
	}

	cmp, err := Compare(from, to)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if len(cmp.Changes) != 1 {
		t.Fatalf("expected one change, got %+v", cmp.Changes)
	}
	change := cmp.Changes[0]
	if change.Field != "media.images" || change.Significance != domain.SignificanceMedium {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestCompareScoreFloorsAtZero(t *testing.T) {
	from := make(map[string]any)
	to := make(map[string]any)
	for i := 0; i < 11; i++ {
		key := fmt.Sprintf("title%d", i)
		from[key] = "old"
		to[key] = "new"
	}

	cmp := CompareDocuments(from, to)
	if cmp.Summary.CompatibilityScore != 0 {
		t.Fatalf("expected score floored at 0, got %d", cmp.Summary.CompatibilityScore)
	}
	if cmp.Summary.Significance != domain.MagnitudeMajor {
		t.Fatalf("expected major for more than 10 changes, got %s", cmp.Summary.Significance)
	}
}

func TestSummarizeMinorMagnitude(t *testing.T) {
	changes := make([]domain.Change, 0, 6)
	for i := 0; i < 6; i++ {
		changes = append(changes, domain.Change{
			Field:        fmt.Sprintf("attributes.%d", i),
			Type:         domain.ChangeAdded,
			Significance: domain.SignificanceLow,
		})
	}
	summary := Summarize(changes)
	if summary.Significance != domain.MagnitudeMinor {
		t.Fatalf("expected minor, got %s", summary.Significance)
	}
	if summary.CompatibilityScore != 100-6*3 {
		t.Fatalf("expected score 82, got %d", summary.CompatibilityScore)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]domain.Significance{
		"title":                       domain.SignificanceHigh,
		"price.basePrice":             domain.SignificanceHigh,
		"inventory.sku":               domain.SignificanceHigh,
		"inventory.stock":             domain.SignificanceHigh,
		"inventory.lowStockThreshold": domain.SignificanceMedium,
		"seo.slug":                    domain.SignificanceMedium,
		"shipping.weight":             domain.SignificanceMedium,
		"price.salePrice":             domain.SignificanceLow,
		"seo.metaTitle":               domain.SignificanceLow,
	}
	for path, want := range cases {
		if got := Classify(path); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestCompareRejectsNonObjectSnapshots(t *testing.T) {
	if _, err := Compare([]int{1, 2}, map[string]any{}); err == nil {
		t.Fatal("expected error for array snapshot")
	}
}

func TestCompareVersionsLabels(t *testing.T) {
	from := &domain.Version{VersionNumber: "1.0.0", Data: lampData()}
	toData := lampData()
	toData.Brand = "Lumen Pro"
	to := &domain.Version{VersionNumber: "1.0.1", Data: toData}

	cmp, err := CompareVersions(from, to)
	if err != nil {
		t.Fatalf("CompareVersions returned error: %v", err)
	}
	if cmp.FromVersion != "1.0.0" || cmp.ToVersion != "1.0.1" {
		t.Fatalf("unexpected labels: %s -> %s", cmp.FromVersion, cmp.ToVersion)
	}

	report := Report(cmp)
	for _, want := range []string{
		"Version comparison: 1.0.0 -> 1.0.1",
		"Compatibility score: 85/100",
		"[HIGH]",
		`~ brand: "Lumen" -> "Lumen Pro"`,
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestReportWithoutChanges(t *testing.T) {
	report := Report(domain.VersionComparison{Summary: domain.ComparisonSummary{CompatibilityScore: 100}})
	if !strings.Contains(report, "(from) -> (to)") || !strings.Contains(report, "No differences.") {
		t.Fatalf("unexpected report:\n%s", report)
	}
}

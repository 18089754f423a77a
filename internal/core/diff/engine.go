// Package diff computes field-level differences between version snapshots.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/snapshot"
)

// Field-path classification, matched by substring containment. High is checked before medium.
var (
	highSignificanceFields = []string{
		"price.basePrice",
		"title",
		"category",
		"brand",
		"inventory.sku",
		"inventory.stock",
	}
	mediumSignificanceFields = []string{
		"description",
		"media.images",
		"seo.slug",
		"shipping.weight",
		"inventory.lowStockThreshold",
	}
)

const (
	baseScore        = 100
	highPenalty      = 15
	mediumPenalty    = 8
	lowPenalty       = 3
	removalPenalty   = 5
	majorChangeCount = 10
	minorChangeCount = 5
	majorField       = "price.basePrice"
)

// Compare diffs two arbitrary JSON-compatible snapshots.
func Compare(from, to any) (domain.VersionComparison, error) {
	a, err := toDocument(from)
	if err != nil {
		return domain.VersionComparison{}, fmt.Errorf("normalise from snapshot: %w", err)
	}
	b, err := toDocument(to)
	if err != nil {
		return domain.VersionComparison{}, fmt.Errorf("normalise to snapshot: %w", err)
	}
	return CompareDocuments(a, b), nil
}

// CompareVersions diffs two versions and labels the result with their version numbers.
func CompareVersions(from, to domain.Diffable) (domain.VersionComparison, error) {
	cmp, err := Compare(from.Snapshot(), to.Snapshot())
	if err != nil {
		return domain.VersionComparison{}, err
	}
	cmp.FromVersion = from.DiffLabel()
	cmp.ToVersion = to.DiffLabel()
	return cmp, nil
}

// CompareDocuments diffs two generic documents. Changes are ordered by field path.
func CompareDocuments(from, to map[string]any) domain.VersionComparison {
	leavesA := make(map[string]any)
	leavesB := make(map[string]any)
	flatten("", from, leavesA)
	flatten("", to, leavesB)

	paths := make([]string, 0, len(leavesA)+len(leavesB))
	for path := range leavesA {
		paths = append(paths, path)
	}
	for path := range leavesB {
		if _, ok := leavesA[path]; !ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	changes := make([]domain.Change, 0)
	for _, path := range paths {
		oldValue, inA := leavesA[path]
		newValue, inB := leavesB[path]

		var change domain.Change
		switch {
		case inA && !inB:
			change = domain.Change{Field: path, Type: domain.ChangeRemoved, OldValue: oldValue}
		case !inA && inB:
			change = domain.Change{Field: path, Type: domain.ChangeAdded, NewValue: newValue}
		default:
			if serialize(oldValue) == serialize(newValue) {
				continue
			}
			change = domain.Change{Field: path, Type: domain.ChangeModified, OldValue: oldValue, NewValue: newValue}
		}
		change.Significance = Classify(path)
		changes = append(changes, change)
	}

	return domain.VersionComparison{
		Changes: changes,
		Summary: Summarize(changes),
	}
}

// Classify returns the significance of a field path.
func Classify(path string) domain.Significance {
	for _, field := range highSignificanceFields {
		if strings.Contains(path, field) {
			return domain.SignificanceHigh
		}
	}
	for _, field := range mediumSignificanceFields {
		if strings.Contains(path, field) {
			return domain.SignificanceMedium
		}
	}
	return domain.SignificanceLow
}

// Summarize derives counts, the compatibility score and the magnitude label.
func Summarize(changes []domain.Change) domain.ComparisonSummary {
	summary := domain.ComparisonSummary{TotalChanges: len(changes)}
	score := baseScore
	touchesMajorField := false

	for _, change := range changes {
		switch change.Type {
		case domain.ChangeAdded:
			summary.AddedFields++
		case domain.ChangeRemoved:
			summary.RemovedFields++
			score -= removalPenalty
		case domain.ChangeModified:
			summary.ModifiedFields++
		}

		switch change.Significance {
		case domain.SignificanceCritical, domain.SignificanceHigh:
			summary.CriticalChanges++
			score -= highPenalty
		case domain.SignificanceMedium:
			score -= mediumPenalty
		default:
			score -= lowPenalty
		}

		if strings.Contains(change.Field, majorField) {
			touchesMajorField = true
		}
	}

	if score < 0 {
		score = 0
	}
	summary.CompatibilityScore = score

	switch {
	case summary.TotalChanges > majorChangeCount || touchesMajorField:
		summary.Significance = domain.MagnitudeMajor
	case summary.TotalChanges > minorChangeCount:
		summary.Significance = domain.MagnitudeMinor
	default:
		summary.Significance = domain.MagnitudePatch
	}
	return summary
}

func toDocument(value any) (map[string]any, error) {
	if doc, ok := value.(map[string]any); ok {
		// Normalise nested values too, so typed literals compare like decoded JSON.
		generic, err := snapshot.ToGeneric(doc)
		if err != nil {
			return nil, err
		}
		out, _ := generic.(map[string]any)
		return out, nil
	}
	generic, err := snapshot.ToGeneric(value)
	if err != nil {
		return nil, err
	}
	switch typed := generic.(type) {
	case map[string]any:
		return typed, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("snapshot must be an object, got %T", generic)
	}
}

// flatten collects leaf paths. Objects are descended, so an empty object contributes no path;
// arrays and scalars are leaves.
func flatten(prefix string, node map[string]any, out map[string]any) {
	for key, value := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := value.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		out[path] = value
	}
}

func serialize(value any) string {
	canonical, err := snapshot.Canonicalize(value)
	if err != nil {
		raw, _ := json.Marshal(value)
		return string(raw)
	}
	return string(canonical)
}

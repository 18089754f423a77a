package diff

import (
	"fmt"
	"strings"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

// Report renders a comparison as a human-readable text report.
func Report(cmp domain.VersionComparison) string {
	var b strings.Builder

	from, to := cmp.FromVersion, cmp.ToVersion
	if from == "" {
		from = "(from)"
	}
	if to == "" {
		to = "(to)"
	}

	fmt.Fprintf(&b, "Version comparison: %s -> %s\n", from, to)
	fmt.Fprintf(&b, "Significance: %s\n", cmp.Summary.Significance)
	fmt.Fprintf(&b, "Compatibility score: %d/100\n", cmp.Summary.CompatibilityScore)
	fmt.Fprintf(&b, "Changes: %d total (%d added, %d modified, %d removed, %d critical)\n",
		cmp.Summary.TotalChanges,
		cmp.Summary.AddedFields,
		cmp.Summary.ModifiedFields,
		cmp.Summary.RemovedFields,
		cmp.Summary.CriticalChanges,
	)

	if len(cmp.Changes) == 0 {
		b.WriteString("\nNo differences.\n")
		return b.String()
	}

	for _, level := range []domain.Significance{
		domain.SignificanceCritical,
		domain.SignificanceHigh,
		domain.SignificanceMedium,
		domain.SignificanceLow,
	} {
		section := make([]domain.Change, 0)
		for _, change := range cmp.Changes {
			if change.Significance == level {
				section = append(section, change)
			}
		}
		if len(section) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n[%s]\n", strings.ToUpper(string(level)))
		for _, change := range section {
			switch change.Type {
			case domain.ChangeAdded:
				fmt.Fprintf(&b, "  + %s: %s\n", change.Field, render(change.NewValue))
			case domain.ChangeRemoved:
				fmt.Fprintf(&b, "  - %s: %s\n", change.Field, render(change.OldValue))
			default:
				fmt.Fprintf(&b, "  ~ %s: %s -> %s\n", change.Field, render(change.OldValue), render(change.NewValue))
			}
		}
	}
	return b.String()
}

func render(value any) string {
	if value == nil {
		return "null"
	}
	return serialize(value)
}

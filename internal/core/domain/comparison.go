package domain

// ChangeType classifies a leaf-path difference.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Significance ranks how disruptive a single field change is.
type Significance string

const (
	SignificanceLow      Significance = "low"
	SignificanceMedium   Significance = "medium"
	SignificanceHigh     Significance = "high"
	SignificanceCritical Significance = "critical"
)

// Magnitude is the overall label of a comparison.
type Magnitude string

const (
	MagnitudeMajor Magnitude = "major"
	MagnitudeMinor Magnitude = "minor"
	MagnitudePatch Magnitude = "patch"
)

// Change is one field-level difference between two snapshots.
type Change struct {
	Field        string       `json:"field"`
	Type         ChangeType   `json:"type"`
	OldValue     any          `json:"oldValue,omitempty"`
	NewValue     any          `json:"newValue,omitempty"`
	Significance Significance `json:"significance"`
}

// ComparisonSummary aggregates the changes of a comparison.
type ComparisonSummary struct {
	TotalChanges       int       `json:"totalChanges"`
	AddedFields        int       `json:"addedFields"`
	ModifiedFields     int       `json:"modifiedFields"`
	RemovedFields      int       `json:"removedFields"`
	CriticalChanges    int       `json:"criticalChanges"`
	CompatibilityScore int       `json:"compatibilityScore"`
	Significance       Magnitude `json:"significance"`
}

// VersionComparison is the transient result of diffing two snapshots.
type VersionComparison struct {
	FromVersion string            `json:"fromVersion"`
	ToVersion   string            `json:"toVersion"`
	Changes     []Change          `json:"changes"`
	Summary     ComparisonSummary `json:"summary"`
}

// ToFieldChanges converts comparison changes into audit field changes.
func (c VersionComparison) ToFieldChanges() []FieldChange {
	out := make([]FieldChange, 0, len(c.Changes))
	for _, change := range c.Changes {
		out = append(out, FieldChange{Field: change.Field, OldValue: change.OldValue, NewValue: change.NewValue})
	}
	return out
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Source records how a version entered the system.
type Source string

const (
	SourceManual    Source = "manual"
	SourceImport    Source = "import"
	SourceAPI       Source = "api"
	SourceBulk      Source = "bulk"
	SourceMigration Source = "migration"
)

// Valid reports whether the source is known.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceImport, SourceAPI, SourceBulk, SourceMigration:
		return true
	}
	return false
}

// Actor identifies who performed an operation. Supplied by the calling layer.
type Actor struct {
	UserID    string
	Role      string
	IPAddress string
	UserAgent string
}

// SystemActor attributes operations run by the service itself, such as retention sweeps.
func SystemActor() Actor {
	return Actor{UserID: "system", Role: "system"}
}

// VersionMetadata carries integrity and provenance details.
type VersionMetadata struct {
	Size        int64    `json:"size"`
	Checksum    string   `json:"checksum"`
	Compression string   `json:"compression,omitempty"`
	Source      Source   `json:"source"`
	Tags        []string `json:"tags,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ExclusiveFlag names a flag that at most one version per record may hold.
type ExclusiveFlag string

const (
	FlagActive    ExclusiveFlag = "isActive"
	FlagPublished ExclusiveFlag = "isPublished"
)

// Version is one snapshot of a record plus lifecycle flags, audit trail, metadata and analytics.
// Parent and child links are ID references into the version store, never embedded versions.
type Version struct {
	ID              string          `json:"id"`
	RecordID        string          `json:"recordId"`
	VersionNumber   string          `json:"versionNumber"`
	Data            VersionData     `json:"versionData"`
	IsDraft         bool            `json:"isDraft"`
	IsActive        bool            `json:"isActive"`
	IsPublished     bool            `json:"isPublished"`
	IsArchived      bool            `json:"isArchived"`
	ParentVersionID *string         `json:"parentVersion,omitempty"`
	ChildVersionIDs []string        `json:"childVersions,omitempty"`
	AuditTrail      AuditTrail      `json:"auditTrail"`
	Metadata        VersionMetadata `json:"metadata"`
	Analytics       Analytics       `json:"analytics"`
	CreatedBy       string          `json:"createdBy"`
	UpdatedBy       string          `json:"updatedBy"`
	PublishedBy     *string         `json:"publishedBy,omitempty"`
	ArchivedBy      *string         `json:"archivedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	PublishedAt     *time.Time      `json:"publishedAt,omitempty"`
	ArchivedAt      *time.Time      `json:"archivedAt,omitempty"`
	// Revision is bumped by the store on every write and used for optimistic concurrency checks.
	Revision int64 `json:"revision"`
}

// Validatable exposes a snapshot to the validator.
type Validatable interface {
	Snapshot() VersionData
}

// Diffable exposes a labelled snapshot to the diff engine.
type Diffable interface {
	Validatable
	DiffLabel() string
}

// Auditable exposes the audit trail.
type Auditable interface {
	Trail() AuditTrail
}

var (
	_ Diffable  = (*Version)(nil)
	_ Auditable = (*Version)(nil)
)

// NewVersionParams holds the inputs of a brand-new draft.
type NewVersionParams struct {
	RecordID      string
	VersionNumber string
	Data          VersionData
	Metadata      VersionMetadata
	ParentID      *string
	Actor         Actor
	Reason        string
	Action        AuditAction
	Changes       []FieldChange
	At            time.Time
}

// NewVersion builds a draft with every other flag cleared and a single opening audit entry.
func NewVersion(p NewVersionParams) *Version {
	at := p.At.UTC()
	action := p.Action
	if action == "" {
		action = AuditCreated
	}
	changes := p.Changes
	if len(changes) == 0 {
		changes = []FieldChange{{Field: "versionNumber", NewValue: p.VersionNumber}}
	}
	meta := p.Metadata
	if meta.Source == "" {
		meta.Source = SourceManual
	}
	meta.Tags = append([]string(nil), meta.Tags...)

	v := &Version{
		ID:            uuid.NewString(),
		RecordID:      p.RecordID,
		VersionNumber: p.VersionNumber,
		Data:          p.Data.Clone(),
		IsDraft:       true,
		Metadata:      meta,
		CreatedBy:     p.Actor.UserID,
		UpdatedBy:     p.Actor.UserID,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if p.ParentID != nil {
		parent := *p.ParentID
		v.ParentVersionID = &parent
	}
	v.AuditTrail.Record(action, p.Actor, changes, p.Reason, at)
	return v
}

// Snapshot returns the version data.
func (v *Version) Snapshot() VersionData { return v.Data }

// DiffLabel names the version in comparisons.
func (v *Version) DiffLabel() string { return v.VersionNumber }

// Trail returns the audit trail.
func (v *Version) Trail() AuditTrail { return v.AuditTrail }

// Status returns a single display label derived from the flags.
func (v *Version) Status() string {
	switch {
	case v.IsArchived:
		return "archived"
	case v.IsPublished:
		return "published"
	case v.IsActive:
		return "active"
	default:
		return "draft"
	}
}

// HasFlag reports whether the version currently holds the exclusive flag.
func (v *Version) HasFlag(flag ExclusiveFlag) bool {
	switch flag {
	case FlagActive:
		return v.IsActive
	case FlagPublished:
		return v.IsPublished
	}
	return false
}

// Activate marks the version active. Returns false when it already was.
func (v *Version) Activate(actor Actor, at time.Time) (bool, error) {
	if v.IsArchived {
		return false, NewConflictError("activate", v.ID, "cannot activate an archived version")
	}
	if v.IsActive {
		return false, nil
	}
	v.IsActive = true
	v.touch(actor, at)
	v.AuditTrail.Record(AuditUpdated, actor, []FieldChange{flagChange(FlagActive, false, true)}, "", at)
	return true, nil
}

// ReleaseFlag clears an exclusive flag because a sibling took it over.
func (v *Version) ReleaseFlag(flag ExclusiveFlag, actor Actor, reason string, at time.Time) bool {
	if !v.HasFlag(flag) {
		return false
	}
	switch flag {
	case FlagActive:
		v.IsActive = false
	case FlagPublished:
		v.IsPublished = false
	}
	v.touch(actor, at)
	v.AuditTrail.Record(AuditUpdated, actor, []FieldChange{flagChange(flag, true, false)}, reason, at)
	return true
}

// Publish marks the version published and stamps the integrity metadata of its snapshot.
func (v *Version) Publish(actor Actor, reason, checksum string, size int64, at time.Time) error {
	if v.IsPublished {
		return NewConflictError("publish", v.ID, "version is already published")
	}
	if v.IsArchived {
		return NewConflictError("publish", v.ID, "cannot publish an archived version; restore it first")
	}

	ts := at.UTC()
	by := actor.UserID
	changes := []FieldChange{
		flagChange(FlagPublished, false, true),
		{Field: "isDraft", OldValue: v.IsDraft, NewValue: false},
	}
	if v.Metadata.Checksum != checksum {
		changes = append(changes, FieldChange{Field: "metadata.checksum", OldValue: v.Metadata.Checksum, NewValue: checksum})
	}

	v.IsPublished = true
	v.IsDraft = false
	v.PublishedAt = &ts
	v.PublishedBy = &by
	v.Metadata.Checksum = checksum
	v.Metadata.Size = size
	v.touch(actor, at)
	v.AuditTrail.Record(AuditPublished, actor, changes, reason, at)
	return nil
}

// Archive retires the version. The active version cannot be archived.
func (v *Version) Archive(actor Actor, reason string, at time.Time) error {
	if v.IsActive {
		return NewConflictError("archive", v.ID, "cannot archive the active version")
	}
	if v.IsArchived {
		return NewConflictError("archive", v.ID, "version is already archived")
	}

	ts := at.UTC()
	by := actor.UserID
	changes := []FieldChange{{Field: "isArchived", OldValue: false, NewValue: true}}
	if v.IsPublished {
		changes = append(changes, flagChange(FlagPublished, true, false))
	}

	v.IsArchived = true
	v.IsPublished = false
	v.ArchivedAt = &ts
	v.ArchivedBy = &by
	v.touch(actor, at)
	v.AuditTrail.Record(AuditArchived, actor, changes, reason, at)
	return nil
}

// Restore brings an archived version back as a draft.
func (v *Version) Restore(actor Actor, reason string, at time.Time) error {
	if !v.IsArchived {
		return NewConflictError("restore", v.ID, "version is not archived")
	}

	v.IsArchived = false
	v.IsDraft = true
	v.ArchivedAt = nil
	v.ArchivedBy = nil
	v.touch(actor, at)
	v.AuditTrail.Record(AuditRestored, actor, []FieldChange{
		{Field: "isArchived", OldValue: true, NewValue: false},
		{Field: "isDraft", OldValue: false, NewValue: true},
	}, reason, at)
	return nil
}

// UpdateData replaces the snapshot of a version that was never published.
func (v *Version) UpdateData(data VersionData, changes []FieldChange, size int64, checksum string, actor Actor, reason string, at time.Time) error {
	if v.IsPublished || v.PublishedAt != nil {
		return NewConflictError("update", v.ID, "published versions are immutable; create a new version instead")
	}
	if v.IsArchived {
		return NewConflictError("update", v.ID, "cannot edit an archived version")
	}

	v.Data = data.Clone()
	v.Metadata.Size = size
	v.Metadata.Checksum = checksum
	v.touch(actor, at)
	v.AuditTrail.Record(AuditUpdated, actor, changes, reason, at)
	return nil
}

// CheckDeletable enforces that active versions and live published versions are never deleted.
func (v *Version) CheckDeletable() error {
	if v.IsActive {
		return NewConflictError("delete", v.ID, "cannot delete the active version")
	}
	if v.IsPublished && !v.IsArchived {
		return NewConflictError("delete", v.ID, "cannot delete a published version; archive it first")
	}
	return nil
}

// MarkDeleted appends the final "deleted" entry written before physical removal.
func (v *Version) MarkDeleted(actor Actor, reason string, at time.Time) (AuditEntry, error) {
	if err := v.CheckDeletable(); err != nil {
		return AuditEntry{}, err
	}
	v.touch(actor, at)
	entry := v.AuditTrail.Record(AuditDeleted, actor, []FieldChange{
		{Field: "versionNumber", OldValue: v.VersionNumber},
	}, reason, at)
	return entry, nil
}

// AddChild links a derived version. Duplicate links are ignored.
func (v *Version) AddChild(childID string) {
	for _, id := range v.ChildVersionIDs {
		if id == childID {
			return
		}
	}
	v.ChildVersionIDs = append(v.ChildVersionIDs, childID)
}

// LinkChild links a derived version and records the link as an updated entry. It reports false
// when the child was already linked.
func (v *Version) LinkChild(childID string, actor Actor, at time.Time) bool {
	before := append([]string(nil), v.ChildVersionIDs...)
	v.AddChild(childID)
	if len(v.ChildVersionIDs) == len(before) {
		return false
	}
	after := append([]string(nil), v.ChildVersionIDs...)
	v.touch(actor, at)
	v.AuditTrail.Record(AuditUpdated, actor, []FieldChange{{Field: "childVersions", OldValue: before, NewValue: after}}, "", at)
	return true
}

// Clone returns a deep copy of the version.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	out := *v
	out.Data = v.Data.Clone()
	out.ParentVersionID = copyString(v.ParentVersionID)
	out.ChildVersionIDs = append([]string(nil), v.ChildVersionIDs...)
	out.AuditTrail = v.AuditTrail.Clone()
	out.Metadata.Tags = append([]string(nil), v.Metadata.Tags...)
	out.Analytics = v.Analytics.Clone()
	out.PublishedBy = copyString(v.PublishedBy)
	out.ArchivedBy = copyString(v.ArchivedBy)
	out.PublishedAt = copyTime(v.PublishedAt)
	out.ArchivedAt = copyTime(v.ArchivedAt)
	return &out
}

func (v *Version) touch(actor Actor, at time.Time) {
	v.UpdatedAt = at.UTC()
	if actor.UserID != "" {
		v.UpdatedBy = actor.UserID
	}
}

func flagChange(flag ExclusiveFlag, from, to bool) FieldChange {
	return FieldChange{Field: string(flag), OldValue: from, NewValue: to}
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// HistoryQuery controls version history listings.
type HistoryQuery struct {
	Limit           int
	SortBy          string
	SortOrder       string
	IncludeArchived bool
}

// History sort keys.
const (
	SortByCreatedAt     = "createdAt"
	SortByUpdatedAt     = "updatedAt"
	SortByPublishedAt   = "publishedAt"
	SortByVersionNumber = "versionNumber"
	SortAsc             = "asc"
	SortDesc            = "desc"
)

// VersionFilter selects versions across records for exports, retention and analytics.
type VersionFilter struct {
	RecordIDs       []string
	IncludeArchived bool
	OnlyPublished   bool
	OnlyActive      bool
	CreatedFrom     time.Time
	CreatedTo       time.Time
	Limit           int
}

// Matches applies the filter to a single version.
func (f VersionFilter) Matches(v *Version) bool {
	if len(f.RecordIDs) > 0 {
		found := false
		for _, id := range f.RecordIDs {
			if id == v.RecordID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.IncludeArchived && v.IsArchived {
		return false
	}
	if f.OnlyPublished && !v.IsPublished {
		return false
	}
	if f.OnlyActive && !v.IsActive {
		return false
	}
	return DateRange{From: f.CreatedFrom, To: f.CreatedTo}.Contains(v.CreatedAt)
}

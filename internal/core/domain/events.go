package domain

import "time"

// Lifecycle event types published after a committed version mutation.
const (
	EventVersionCreated      = "version.created"
	EventVersionUpdated      = "version.updated"
	EventVersionActivated    = "version.activated"
	EventVersionPublished    = "version.published"
	EventVersionArchived     = "version.archived"
	EventVersionRestored     = "version.restored"
	EventVersionRolledBack   = "version.rolled_back"
	EventVersionDuplicated   = "version.duplicated"
	EventVersionDeleted      = "version.deleted"
	EventVersionAuditTrimmed = "version.audit.trimmed"
)

// VersionLifecycleEvent represents the payload for version lifecycle messages.
type VersionLifecycleEvent struct {
	EventID         string
	EventType       string
	VersionID       string
	RecordID        string
	VersionNumber   string
	PreviousVersion *string
	Action          AuditAction
	ActorID         string
	ActorRole       string
	Reason          string
	Checksum        string
	OccurredAt      time.Time
	Metadata        map[string]any
}

// AnalyticsEventKind names a read-path instrumentation signal.
type AnalyticsEventKind string

const (
	AnalyticsView       AnalyticsEventKind = "view"
	AnalyticsDownload   AnalyticsEventKind = "download"
	AnalyticsShare      AnalyticsEventKind = "share"
	AnalyticsConversion AnalyticsEventKind = "conversion"
	AnalyticsRating     AnalyticsEventKind = "rating"
)

// AnalyticsEvent is emitted by read-path instrumentation and consumed by the analytics aggregator.
type AnalyticsEvent struct {
	EventID    string             `json:"event_id"`
	Kind       AnalyticsEventKind `json:"kind"`
	VersionID  string             `json:"version_id"`
	ViewerID   string             `json:"viewer_id,omitempty"`
	Label      string             `json:"label,omitempty"`
	Conversion ConversionEvent    `json:"conversion,omitempty"`
	Value      float64            `json:"value,omitempty"`
	Rating     int                `json:"rating,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

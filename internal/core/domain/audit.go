package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates the state-changing operations recorded in a trail.
type AuditAction string

const (
	AuditCreated   AuditAction = "created"
	AuditUpdated   AuditAction = "updated"
	AuditPublished AuditAction = "published"
	AuditArchived  AuditAction = "archived"
	AuditRestored  AuditAction = "restored"
	AuditDeleted   AuditAction = "deleted"
)

// DefaultAuditRetention is the keep-last count used when Trim receives a non-positive value.
const DefaultAuditRetention = 100

// Valid reports whether the action is one of the known audit actions.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreated, AuditUpdated, AuditPublished, AuditArchived, AuditRestored, AuditDeleted:
		return true
	}
	return false
}

// FieldChange records one field transition inside an audit entry.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// AuditEntry is one immutable log record of a state-changing action.
type AuditEntry struct {
	ID        string        `json:"id"`
	Action    AuditAction   `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"userId"`
	UserRole  string        `json:"userRole"`
	Changes   []FieldChange `json:"changes,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
}

// NewAuditEntry stamps a new entry for the actor.
func NewAuditEntry(action AuditAction, actor Actor, changes []FieldChange, reason string, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: at.UTC(),
		UserID:    actor.UserID,
		UserRole:  actor.Role,
		Changes:   append([]FieldChange(nil), changes...),
		Reason:    reason,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	}
}

// AuditTrail is the ordered, append-only log of a version. Entries are never edited; the only way to
// shrink it is Trim.
type AuditTrail []AuditEntry

// Append adds the entry at the end. An entry stamped earlier than the current tail is moved up to the
// tail timestamp so the trail stays ordered by insertion time.
func (t *AuditTrail) Append(entry AuditEntry) AuditEntry {
	if n := len(*t); n > 0 {
		last := (*t)[n-1].Timestamp
		if entry.Timestamp.Before(last) {
			entry.Timestamp = last
		}
	}
	*t = append(*t, entry)
	return entry
}

// Record builds and appends an entry in one step.
func (t *AuditTrail) Record(action AuditAction, actor Actor, changes []FieldChange, reason string, at time.Time) AuditEntry {
	return t.Append(NewAuditEntry(action, actor, changes, reason, at))
}

// Last returns the newest entry.
func (t AuditTrail) Last() (AuditEntry, bool) {
	if len(t) == 0 {
		return AuditEntry{}, false
	}
	return t[len(t)-1], true
}

// ByAction filters entries by action.
func (t AuditTrail) ByAction(action AuditAction) AuditTrail {
	return t.filter(func(e AuditEntry) bool { return e.Action == action })
}

// ByDateRange filters entries whose timestamp falls in [start, end]. A zero bound is open.
func (t AuditTrail) ByDateRange(start, end time.Time) AuditTrail {
	return t.filter(func(e AuditEntry) bool {
		if !start.IsZero() && e.Timestamp.Before(start) {
			return false
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			return false
		}
		return true
	})
}

// ByUser filters entries recorded for the user.
func (t AuditTrail) ByUser(userID string) AuditTrail {
	return t.filter(func(e AuditEntry) bool { return e.UserID == userID })
}

// Trim keeps the keepLast most recent entries and returns how many were discarded.
func (t *AuditTrail) Trim(keepLast int) int {
	if keepLast <= 0 {
		keepLast = DefaultAuditRetention
	}
	if len(*t) <= keepLast {
		return 0
	}

	sorted := append(AuditTrail(nil), (*t)...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	kept := sorted[:keepLast]
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	removed := len(*t) - keepLast
	*t = append(AuditTrail(nil), kept...)
	return removed
}

// Clone returns an independent copy of the trail.
func (t AuditTrail) Clone() AuditTrail {
	if t == nil {
		return nil
	}
	out := make(AuditTrail, len(t))
	for i, entry := range t {
		entry.Changes = append([]FieldChange(nil), entry.Changes...)
		out[i] = entry
	}
	return out
}

func (t AuditTrail) filter(keep func(AuditEntry) bool) AuditTrail {
	out := make(AuditTrail, 0, len(t))
	for _, entry := range t {
		if keep(entry) {
			entry.Changes = append([]FieldChange(nil), entry.Changes...)
			out = append(out, entry)
		}
	}
	return out
}

// ArchivedAuditEntry is an audit entry preserved after its version was physically deleted.
type ArchivedAuditEntry struct {
	VersionID     string     `json:"versionId"`
	RecordID      string     `json:"recordId"`
	VersionNumber string     `json:"versionNumber"`
	Entry         AuditEntry `json:"entry"`
	ArchivedAt    time.Time  `json:"archivedAt"`
}

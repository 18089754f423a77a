package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionKind classifies a version number by the grammar branch it matched.
type VersionKind string

const (
	// KindSemantic is MAJOR.MINOR.PATCH with optional pre-release/build suffix.
	KindSemantic VersionKind = "semantic"
	// KindSimple is v<N>.
	KindSimple VersionKind = "simple"
	// KindRollback is <base>-rollback-<unixMillis>, produced only by rollback.
	KindRollback VersionKind = "rollback"
	// KindCopy is <base>-copy, produced only by duplicate when the base has no patch component.
	KindCopy VersionKind = "copy"
)

var (
	semanticCorePattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)`)
	simplePattern       = regexp.MustCompile(`^v(0|[1-9]\d*)$`)
	rollbackPattern     = regexp.MustCompile(`^(.+)-rollback-(\d+)$`)
	copyPattern         = regexp.MustCompile(`^(.+)-copy$`)
)

// VersionNumber is a parsed version identifier.
type VersionNumber struct {
	Raw  string
	Kind VersionKind
	// Base is the number a rollback or copy was derived from; empty for semantic and simple numbers.
	Base string
	// RolledBackAt is the unix-millisecond suffix of rollback numbers.
	RolledBackAt int64
}

// ParseVersionNumber accepts the semantic and simple forms plus the two lineage suffixes.
func ParseVersionNumber(raw string) (VersionNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VersionNumber{}, NewValidationError(ValidationIssue{Field: "versionNumber", Rule: "required", Message: "version number is required"})
	}

	if m := rollbackPattern.FindStringSubmatch(raw); m != nil {
		if _, err := ParseVersionNumber(m[1]); err != nil {
			return VersionNumber{}, invalidVersionNumber(raw)
		}
		at, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return VersionNumber{}, invalidVersionNumber(raw)
		}
		return VersionNumber{Raw: raw, Kind: KindRollback, Base: m[1], RolledBackAt: at}, nil
	}

	if m := copyPattern.FindStringSubmatch(raw); m != nil {
		if _, err := ParseVersionNumber(m[1]); err != nil {
			return VersionNumber{}, invalidVersionNumber(raw)
		}
		return VersionNumber{Raw: raw, Kind: KindCopy, Base: m[1]}, nil
	}

	if simplePattern.MatchString(raw) {
		return VersionNumber{Raw: raw, Kind: KindSimple}, nil
	}

	if semanticCorePattern.MatchString(raw) && semver.IsValid("v"+raw) {
		return VersionNumber{Raw: raw, Kind: KindSemantic}, nil
	}

	return VersionNumber{}, invalidVersionNumber(raw)
}

// IsCallerAssignable reports whether callers may pick this number directly. Lineage suffixes are
// reserved for rollback and duplicate.
func (n VersionNumber) IsCallerAssignable() bool {
	return n.Kind == KindSemantic || n.Kind == KindSimple
}

// Root walks lineage suffixes back to the semantic or simple number they started from.
func (n VersionNumber) Root() VersionNumber {
	current := n
	for current.Kind == KindRollback || current.Kind == KindCopy {
		parent, err := ParseVersionNumber(current.Base)
		if err != nil {
			return current
		}
		current = parent
	}
	return current
}

// NextPatch increments the patch component of a dotted number. Numbers without a patch component
// get a "-copy" suffix instead.
func NextPatch(raw string) string {
	parsed, err := ParseVersionNumber(raw)
	if err != nil {
		return raw + "-copy"
	}
	root := parsed.Root()
	if root.Kind != KindSemantic {
		return raw + "-copy"
	}
	m := semanticCorePattern.FindStringSubmatch(root.Raw)
	patch, err := strconv.Atoi(m[3])
	if err != nil {
		return raw + "-copy"
	}
	return fmt.Sprintf("%s.%s.%d", m[1], m[2], patch+1)
}

// RollbackVersionNumber derives the number of a rollback created at the given unix millisecond.
func RollbackVersionNumber(current string, unixMillis int64) string {
	return fmt.Sprintf("%s-rollback-%d", current, unixMillis)
}

// CompareVersionNumbers orders version numbers: semantic by semver precedence, simple by N,
// lineage suffixes after their base (rollbacks by timestamp). Mixed kinds fall back to string order.
func CompareVersionNumbers(a, b string) int {
	pa, errA := ParseVersionNumber(a)
	pb, errB := ParseVersionNumber(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}

	ra, rb := pa.Root(), pb.Root()
	if ra.Raw != rb.Raw {
		switch {
		case ra.Kind == KindSemantic && rb.Kind == KindSemantic:
			return semver.Compare("v"+ra.Raw, "v"+rb.Raw)
		case ra.Kind == KindSimple && rb.Kind == KindSimple:
			na, _ := strconv.Atoi(strings.TrimPrefix(ra.Raw, "v"))
			nb, _ := strconv.Atoi(strings.TrimPrefix(rb.Raw, "v"))
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		default:
			return strings.Compare(ra.Raw, rb.Raw)
		}
	}

	// Same root: the plain number sorts first, derived numbers by derivation time or text.
	switch {
	case pa.Kind == pb.Kind && pa.Kind == KindRollback && pa.Base == pb.Base:
		switch {
		case pa.RolledBackAt < pb.RolledBackAt:
			return -1
		case pa.RolledBackAt > pb.RolledBackAt:
			return 1
		}
		return 0
	case len(a) != len(b):
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func invalidVersionNumber(raw string) error {
	return NewValidationError(ValidationIssue{
		Field:   "versionNumber",
		Rule:    "format",
		Message: fmt.Sprintf("%q is not MAJOR.MINOR.PATCH[-pre][+build] or v<N>", raw),
	})
}

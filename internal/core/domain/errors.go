package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input: bad snapshots, version numbers, ratings or scores.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a lifecycle action that is not valid in the version's current state.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing version or record.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity marks a checksum mismatch on data expected to be immutable.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrConcurrencyConflict marks a competing writer detected by the atomic invariant write.
	// It is the only error category eligible for automatic retry.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
)

// ValidationIssue describes one violated rule.
type ValidationIssue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationError carries every violation found, never only the first one.
type ValidationError struct {
	Issues []ValidationIssue
}

// NewValidationError builds a validation error from the supplied issues.
func NewValidationError(issues ...ValidationIssue) *ValidationError {
	return &ValidationError{Issues: append([]ValidationIssue(nil), issues...)}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError reports a lifecycle operation rejected by the state machine.
type ConflictError struct {
	Op        string
	VersionID string
	Reason    string
}

// NewConflictError builds a conflict for the given operation.
func NewConflictError(op, versionID, reason string) *ConflictError {
	return &ConflictError{Op: op, VersionID: versionID, Reason: reason}
}

func (e *ConflictError) Error() string {
	if e.VersionID == "" {
		return fmt.Sprintf("%s: %s: %s", ErrConflict.Error(), e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrConflict.Error(), e.Op, e.VersionID, e.Reason)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

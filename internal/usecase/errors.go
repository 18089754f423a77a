package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

var (
	// ErrRecordIDRequired indicates the record identifier is missing.
	ErrRecordIDRequired = domain.NewValidationError(domain.ValidationIssue{Field: "recordId", Rule: "required", Message: "record id is required"})
	// ErrVersionIDRequired indicates the version identifier is missing.
	ErrVersionIDRequired = domain.NewValidationError(domain.ValidationIssue{Field: "versionId", Rule: "required", Message: "version id is required"})
	// ErrActorRequired indicates the actor responsible for the mutation is missing.
	ErrActorRequired = domain.NewValidationError(domain.ValidationIssue{Field: "actor.userId", Rule: "required", Message: "actor is required"})
)

// translateRepoError lifts repository sentinels into the domain error taxonomy. Domain errors pass
// through untouched.
func translateRepoError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, repository.ErrConcurrentUpdate):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConcurrencyConflict, err)
	case errors.Is(err, repository.ErrDuplicate):
		return domain.NewConflictError(op, "", "version number already exists for this record")
	}
	return err
}

func requireID(id string, missing error) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", missing
	}
	return id, nil
}

func requireActor(actor domain.Actor) (domain.Actor, error) {
	actor.UserID = strings.TrimSpace(actor.UserID)
	if actor.UserID == "" {
		return actor, ErrActorRequired
	}
	actor.Role = strings.TrimSpace(actor.Role)
	return actor, nil
}

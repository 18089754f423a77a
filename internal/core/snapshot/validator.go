// Package snapshot holds the pure checks applied to version data before it may become active or
// published: structural validation, primary-image normalisation and content digests.
package snapshot

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		v.RegisterStructValidation(validatePrice, domain.Price{})
		validate = v
	})
	return validate
}

func validatePrice(sl validator.StructLevel) {
	price, ok := sl.Current().Interface().(domain.Price)
	if !ok || price.SalePrice == nil {
		return
	}
	if *price.SalePrice > price.BasePrice {
		sl.ReportError(price.SalePrice, "salePrice", "SalePrice", "ltebase", "")
	}
}

// Validate checks a proposed snapshot for structural completeness and returns every violation.
// It never mutates the input.
func Validate(data domain.VersionData) []domain.ValidationIssue {
	err := instance().Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []domain.ValidationIssue{{Field: "versionData", Rule: "invalid", Message: err.Error()}}
	}

	issues := make([]domain.ValidationIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		issues = append(issues, domain.ValidationIssue{
			Field:   field,
			Rule:    fe.Tag(),
			Message: describe(field, fe),
		})
	}
	return issues
}

// Check runs Validate and wraps violations into a *domain.ValidationError.
func Check(data domain.VersionData) error {
	if issues := Validate(data); len(issues) > 0 {
		return domain.NewValidationError(issues...)
	}
	return nil
}

// NormalizePrimaryImage enforces exactly one primary image when images exist: with none flagged the
// first is promoted, with several all but the first are demoted. It returns the corrected copy and
// a note per correction so callers can log and audit it.
func NormalizePrimaryImage(data domain.VersionData) (domain.VersionData, []string) {
	out := data.Clone()
	images := out.Media.Images
	if len(images) == 0 {
		return out, nil
	}

	primaries := make([]int, 0, 1)
	for i, img := range images {
		if img.IsPrimary {
			primaries = append(primaries, i)
		}
	}

	var notes []string
	switch {
	case len(primaries) == 0:
		images[0].IsPrimary = true
		notes = append(notes, fmt.Sprintf("promoted media.images[0] (%s) to primary", images[0].URL))
	case len(primaries) > 1:
		for _, idx := range primaries[1:] {
			images[idx].IsPrimary = false
			notes = append(notes, fmt.Sprintf("demoted media.images[%d] (%s) from primary", idx, images[idx].URL))
		}
	}
	return out, notes
}

func fieldPath(namespace string) string {
	// Namespace is "VersionData.price.basePrice"; drop the root type name.
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return fmt.Sprintf("%s must not be empty", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "ltebase":
		return "price.salePrice must not exceed price.basePrice"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

// Export formats.
const (
	ExportJSON = "json"
	ExportCSV  = "csv"
)

var csvHeader = []string{
	"id", "recordId", "versionNumber", "status", "isDraft", "isActive", "isPublished", "isArchived",
	"parentVersion", "createdBy", "createdAt", "updatedAt", "publishedAt", "checksum", "size", "source",
	"views", "downloads", "shares", "purchases", "revenue", "conversionRate", "averageRating", "auditEntries",
}

// ExportService writes versions out for offline analysis.
type ExportService struct {
	repo port.VersionRepository
}

// NewExportService constructs the export service.
func NewExportService(repo port.VersionRepository) *ExportService {
	return &ExportService{repo: repo}
}

// ExportVersionData writes the versions matching filter to w and returns how many were written.
func (s *ExportService) ExportVersionData(ctx context.Context, w io.Writer, filter domain.VersionFilter, format string) (int, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportJSON
	}
	if format != ExportJSON && format != ExportCSV {
		return 0, domain.NewValidationError(domain.ValidationIssue{
			Field:   "format",
			Rule:    "oneof",
			Message: fmt.Sprintf("unsupported export format %q", format),
		})
	}

	versions, err := s.repo.Search(ctx, filter)
	if err != nil {
		return 0, translateRepoError("export", err)
	}

	if format == ExportJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(versions); err != nil {
			return 0, fmt.Errorf("encode export: %w", err)
		}
		return len(versions), nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}
	for i := range versions {
		if err := cw.Write(csvRow(&versions[i])); err != nil {
			return i, fmt.Errorf("write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	return len(versions), nil
}

func csvRow(v *domain.Version) []string {
	parent := ""
	if v.ParentVersionID != nil {
		parent = *v.ParentVersionID
	}
	published := ""
	if v.PublishedAt != nil {
		published = v.PublishedAt.UTC().Format(time.RFC3339)
	}
	a := v.Analytics
	return []string{
		v.ID,
		v.RecordID,
		v.VersionNumber,
		v.Status(),
		strconv.FormatBool(v.IsDraft),
		strconv.FormatBool(v.IsActive),
		strconv.FormatBool(v.IsPublished),
		strconv.FormatBool(v.IsArchived),
		parent,
		v.CreatedBy,
		v.CreatedAt.UTC().Format(time.RFC3339),
		v.UpdatedAt.UTC().Format(time.RFC3339),
		published,
		v.Metadata.Checksum,
		strconv.FormatInt(v.Metadata.Size, 10),
		string(v.Metadata.Source),
		strconv.FormatInt(a.Usage.Views, 10),
		strconv.FormatInt(a.Usage.Downloads, 10),
		strconv.FormatInt(a.Usage.Shares, 10),
		strconv.FormatInt(a.Conversion.Purchases, 10),
		strconv.FormatFloat(a.Conversion.Revenue, 'f', 2, 64),
		strconv.FormatFloat(a.Conversion.ConversionRate, 'f', 2, 64),
		strconv.FormatFloat(a.Feedback.AverageRating, 'f', 1, 64),
		strconv.Itoa(len(v.AuditTrail)),
	}
}

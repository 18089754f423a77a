package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

func sampleVersion() *domain.Version {
	return domain.NewVersion(domain.NewVersionParams{
		RecordID:      "record-1",
		VersionNumber: "1.0.0",
		Data: domain.VersionData{
			Title:       "Desk Lamp",
			Description: "Adjustable lamp",
			Price:       domain.Price{BasePrice: 49.5},
			Category:    "lighting",
			Brand:       "Lumen",
			Inventory:   domain.Inventory{SKU: "LAMP-1", Stock: 10},
			SEO:         domain.SEO{Slug: "desk-lamp"},
		},
		Actor: domain.Actor{UserID: "user-1", Role: "editor"},
		At:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
}

func versionRows(now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(versionColumns).AddRow(
		"version-1",
		"record-1",
		"1.0.0",
		[]byte(`{"title":"Desk Lamp","description":"Adjustable lamp","price":{"basePrice":49.5},"category":"lighting","brand":"Lumen","inventory":{"sku":"LAMP-1","stock":10,"lowStockThreshold":0,"trackInventory":false},"media":{},"seo":{"slug":"desk-lamp"},"shipping":{}}`),
		false,
		true,
		true,
		false,
		nil,
		[]byte(`["version-2"]`),
		[]byte(`[{"id":"entry-1","action":"created","timestamp":"2024-05-01T10:00:00Z","userId":"user-1","userRole":"editor"}]`),
		[]byte(`{"size":120,"checksum":"abc","source":"manual"}`),
		[]byte(`{"usage":{"views":3,"downloads":0,"shares":0},"conversion":{"impressions":0,"clicks":0,"purchases":0,"conversionRate":0,"revenue":0},"performance":{},"feedback":{"averageRating":0,"reviewCount":0}}`),
		"user-1",
		"user-1",
		"user-1",
		nil,
		now,
		now,
		now,
		nil,
		int64(4),
	)
}

func TestVersionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	version := sampleVersion()

	mock.ExpectExec(`INSERT INTO catalog\.product_versions`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), version); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if version.Revision != 1 {
		t.Fatalf("expected revision 1 after create, got %d", version.Revision)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_CreateMapsUniqueViolations(t *testing.T) {
	cases := []struct {
		name       string
		constraint string
		want       error
	}{
		{name: "version number taken", constraint: versionNumberConstraint, want: repository.ErrDuplicate},
		{name: "second active version", constraint: "product_versions_one_active_idx", want: repository.ErrConcurrentUpdate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("pgxmock.NewPool: %v", err)
			}
			defer mock.Close()

			repo := NewVersionRepository(mock)
			mock.ExpectExec(`INSERT INTO catalog\.product_versions`).
				WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: tc.constraint})

			err = repo.Create(context.Background(), sampleVersion())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVersionRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .*FROM catalog\.product_versions WHERE id = \$1`).
		WithArgs("version-1").
		WillReturnRows(versionRows(now))

	version, err := repo.Get(context.Background(), "version-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if version.Data.Title != "Desk Lamp" || version.Data.Price.BasePrice != 49.5 {
		t.Fatalf("unexpected version data: %+v", version.Data)
	}
	if !version.IsActive || !version.IsPublished {
		t.Fatalf("expected active and published flags")
	}
	if len(version.ChildVersionIDs) != 1 || version.ChildVersionIDs[0] != "version-2" {
		t.Fatalf("unexpected children: %v", version.ChildVersionIDs)
	}
	if len(version.AuditTrail) != 1 || version.AuditTrail[0].Action != domain.AuditCreated {
		t.Fatalf("unexpected audit trail: %+v", version.AuditTrail)
	}
	if version.Metadata.Checksum != "abc" || version.Analytics.Usage.Views != 3 {
		t.Fatalf("unexpected metadata or analytics")
	}
	if version.ParentVersionID != nil || version.ArchivedAt != nil {
		t.Fatalf("expected nil parent and archivedAt")
	}
	if version.PublishedBy == nil || *version.PublishedBy != "user-1" {
		t.Fatalf("expected publishedBy to be populated")
	}
	if version.Revision != 4 {
		t.Fatalf("expected revision 4, got %d", version.Revision)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	mock.ExpectQuery(`SELECT .*FROM catalog\.product_versions`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVersionRepository_GetForUpdateLocksRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	mock.ExpectQuery(`SELECT .*FROM catalog\.product_versions WHERE id = \$1 .*FOR UPDATE`).
		WithArgs("version-1").
		WillReturnRows(versionRows(time.Now().UTC()))

	if _, err := repo.GetForUpdate(context.Background(), "version-1"); err != nil {
		t.Fatalf("GetForUpdate returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_UpdateBumpsRevision(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	version := sampleVersion()
	version.Revision = 2

	mock.ExpectExec(`UPDATE catalog\.product_versions SET .*revision = revision \+ 1 WHERE`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Update(context.Background(), version); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if version.Revision != 3 {
		t.Fatalf("expected revision 3, got %d", version.Revision)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_UpdateStaleRevision(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	version := sampleVersion()
	version.Revision = 1

	mock.ExpectExec(`UPDATE catalog\.product_versions`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(version.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	if err := repo.Update(context.Background(), version); !errors.Is(err, repository.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if version.Revision != 1 {
		t.Fatalf("revision must not change on a failed update")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_DeleteArchivesAuditTrail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	version := sampleVersion()
	version.Revision = 3

	mock.ExpectExec(`DELETE FROM catalog\.product_versions WHERE`).
		WithArgs(version.ID, int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO catalog\.version_audit_archive`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Delete(context.Background(), version); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVersionRepository_ListRecordIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewVersionRepository(mock)
	mock.ExpectQuery(`SELECT DISTINCT record_id FROM catalog\.product_versions`).
		WillReturnRows(pgxmock.NewRows([]string{"record_id"}).AddRow("record-1").AddRow("record-2"))

	ids, err := repo.ListRecordIDs(context.Background())
	if err != nil {
		t.Fatalf("ListRecordIDs returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "record-1" || ids[1] != "record-2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestStore_InTxCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("record-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err = store.InTx(context.Background(), func(repo port.VersionRepository) error {
		return repo.LockRecord(context.Background(), "record-1")
	})
	if err != nil {
		t.Fatalf("InTx returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_InTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	sentinel := errors.New("boom")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(port.VersionRepository) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

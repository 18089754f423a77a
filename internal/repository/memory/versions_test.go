package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

func newDraft(recordID, number string, at time.Time) *domain.Version {
	return domain.NewVersion(domain.NewVersionParams{
		RecordID:      recordID,
		VersionNumber: number,
		Data:          domain.VersionData{Title: "Lamp"},
		Actor:         domain.Actor{UserID: "user-1"},
		At:            at,
	})
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	v := newDraft("record-1", "1.0.0", time.Now())

	if err := store.Create(ctx, v); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if v.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", v.Revision)
	}

	got, err := store.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	got.Data.Title = "mutated"

	again, _ := store.Get(ctx, v.ID)
	if again.Data.Title != "Lamp" {
		t.Fatalf("store must hand out copies, got %q", again.Data.Title)
	}
}

func TestStore_DuplicateVersionNumber(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newDraft("record-1", "1.0.0", time.Now())); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	err := store.Create(ctx, newDraft("record-1", "1.0.0", time.Now()))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := store.Create(ctx, newDraft("record-2", "1.0.0", time.Now())); err != nil {
		t.Fatalf("same number on another record must succeed: %v", err)
	}
}

func TestStore_UpdateRejectsStaleRevision(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	v := newDraft("record-1", "1.0.0", time.Now())
	if err := store.Create(ctx, v); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	first, _ := store.Get(ctx, v.ID)
	second, _ := store.Get(ctx, v.ID)

	first.Data.Title = "first"
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	second.Data.Title = "second"
	if err := store.Update(ctx, second); !errors.Is(err, repository.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestStore_ExclusiveFlagsEnforced(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	a := newDraft("record-1", "1.0.0", time.Now())
	b := newDraft("record-1", "1.0.1", time.Now())
	a.IsActive = true
	b.IsActive = true

	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.Create(ctx, b); !errors.Is(err, repository.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate for second active version, got %v", err)
	}
}

func TestStore_InTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	v := newDraft("record-1", "1.0.0", time.Now())
	if err := store.Create(ctx, v); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	sentinel := errors.New("boom")
	err := store.InTx(ctx, func(repo port.VersionRepository) error {
		current, err := repo.GetForUpdate(ctx, v.ID)
		if err != nil {
			return err
		}
		current.IsActive = true
		if err := repo.Update(ctx, current); err != nil {
			return err
		}
		if err := repo.Create(ctx, newDraft("record-1", "2.0.0", time.Now())); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	got, _ := store.Get(ctx, v.ID)
	if got.IsActive || got.Revision != 1 {
		t.Fatalf("rolled back transaction leaked an update: %+v", got)
	}
	versions, _ := store.ListByRecord(ctx, "record-1", true)
	if len(versions) != 1 {
		t.Fatalf("rolled back transaction leaked a create: %d versions", len(versions))
	}
}

func TestStore_ListByRecordNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := newDraft("record-1", "1.0.0", base)
	newer := newDraft("record-1", "1.1.0", base.Add(time.Hour))
	archived := newDraft("record-1", "0.9.0", base.Add(-time.Hour))
	archived.IsArchived = true
	for _, v := range []*domain.Version{older, newer, archived} {
		if err := store.Create(ctx, v); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	live, _ := store.ListByRecord(ctx, "record-1", false)
	if len(live) != 2 || live[0].VersionNumber != "1.1.0" || live[1].VersionNumber != "1.0.0" {
		t.Fatalf("unexpected order: %+v", live)
	}
	all, _ := store.ListByRecord(ctx, "record-1", true)
	if len(all) != 3 {
		t.Fatalf("expected archived version when requested, got %d", len(all))
	}

	latest, err := store.FindLatest(ctx, "record-1")
	if err != nil || latest.VersionNumber != "1.1.0" {
		t.Fatalf("unexpected latest: %v %v", latest, err)
	}
}

func TestStore_DeleteArchivesAudit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	v := newDraft("record-1", "1.0.0", time.Now())
	if err := store.Create(ctx, v); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	current, _ := store.Get(ctx, v.ID)

	if err := store.Delete(ctx, current); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, v.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	archived, err := store.ListArchivedAudit(ctx, "record-1")
	if err != nil {
		t.Fatalf("ListArchivedAudit returned error: %v", err)
	}
	if len(archived) != 1 || archived[0].VersionID != v.ID || archived[0].Entry.Action != domain.AuditCreated {
		t.Fatalf("unexpected archive: %+v", archived)
	}
}

func TestStore_SearchAndRecordIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	published := newDraft("record-b", "1.0.0", time.Now())
	published.IsPublished = true
	for _, v := range []*domain.Version{published, newDraft("record-a", "1.0.0", time.Now())} {
		if err := store.Create(ctx, v); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	hits, err := store.Search(ctx, domain.VersionFilter{OnlyPublished: true})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(hits) != 1 || hits[0].RecordID != "record-b" {
		t.Fatalf("unexpected search hits: %+v", hits)
	}

	ids, _ := store.ListRecordIDs(ctx)
	if len(ids) != 2 || ids[0] != "record-a" || ids[1] != "record-b" {
		t.Fatalf("unexpected record ids: %v", ids)
	}
}

package repo

import (
	"context"
	"testing"
	"time"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestCreateLog_AssignsIDAndTime(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	e := &domain.LogEntry{ChildID: child, UserID: "p1", AuthorRole: domain.RoleParent, Title: "Nap", Tags: domain.StringList{"sleep"}}
	if err := CreateLog(ctx, db, e); err != nil {
		t.Fatalf("CreateLog: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not set: %+v", e)
	}
	got, err := GetLog(ctx, db, e.ID)
	if err != nil || got.Title != "Nap" || len(got.Tags) != 1 {
		t.Fatalf("GetLog: err=%v got=%+v", err, got)
	}
}

func TestCreateLog_UnknownChildRejected(t *testing.T) {
	db := newRepoDB(t)
	e := &domain.LogEntry{ChildID: "nope", UserID: "p1", AuthorRole: domain.RoleParent, Title: "x"}
	if err := CreateLog(context.Background(), db, e); err == nil {
		t.Fatalf("expected foreign key failure")
	}
}

func TestListLogsPage_NewestFirst_TieByID(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	for _, e := range []domain.LogEntry{
		{ID: "b", CreatedAt: t0},
		{ID: "a", CreatedAt: t0},
		{ID: "c", CreatedAt: t0.Add(time.Minute)},
	} {
		e.ChildID, e.UserID, e.AuthorRole, e.Title = child, "p1", domain.RoleParent, "t"
		if err := CreateLog(ctx, db, &e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := ListLogsPage(ctx, db, child, 0, 10)
	if err != nil {
		t.Fatalf("ListLogsPage: %v", err)
	}
	got := []string{page[0].ID, page[1].ID, page[2].ID}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	n, err := CountLogs(ctx, db, child)
	if err != nil || n != 3 {
		t.Fatalf("CountLogs: %d %v", n, err)
	}

	between, err := ListLogsBetween(ctx, db, child, t0.Add(30*time.Second), time.Time{})
	if err != nil || len(between) != 1 || between[0].ID != "c" {
		t.Fatalf("ListLogsBetween: err=%v got=%+v", err, between)
	}
	all, err := ListLogsBetween(ctx, db, child, time.Time{}, time.Time{})
	if err != nil || len(all) != 3 || all[0].ID != "a" {
		t.Fatalf("ListLogsBetween open: err=%v got=%+v", err, all)
	}

	count, maxAt, err := LogsStats(ctx, db, child)
	if err != nil || count != 3 || maxAt == nil || !maxAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("LogsStats: count=%d max=%v err=%v", count, maxAt, err)
	}
}

func TestStats_ZeroRows(t *testing.T) {
	db := newRepoDB(t)
	count, maxAt, err := MessagesStats(context.Background(), db, "none")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0,nil,nil), got (%d,%v,%v)", count, maxAt, err)
	}
}

func TestStats_NoTable(t *testing.T) {
	db := newRepoDB(t)
	if err := db.Migrator().DropTable(&domain.Message{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, _, err := MessagesStats(context.Background(), db, "c1"); err == nil {
		t.Fatalf("expected error when table is missing")
	}
}

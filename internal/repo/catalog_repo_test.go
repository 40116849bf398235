package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestStats_EmptyAndNewest(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	n, newest, err := LogsStats(ctx, db, child)
	if err != nil || n != 0 || newest != nil {
		t.Fatalf("empty timeline: n=%d newest=%v err=%v", n, newest, err)
	}

	t0 := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{t0.Add(time.Hour), t0, t0.Add(30 * time.Minute)} {
		e := &domain.LogEntry{ChildID: child, UserID: "p1", AuthorRole: domain.RoleParent, Title: "entry", CreatedAt: at}
		if err := CreateLog(ctx, db, e); err != nil {
			t.Fatalf("CreateLog %d: %v", i, err)
		}
	}
	n, newest, err = LogsStats(ctx, db, child)
	if err != nil || n != 3 || newest == nil || !newest.Equal(t0.Add(time.Hour)) {
		t.Fatalf("logs stats: n=%d newest=%v err=%v", n, newest, err)
	}

	if _, err := CreateMessage(ctx, db, child, "p1", "Ana", "hi", ""); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	n, newest, err = MessagesStats(ctx, db, child)
	if err != nil || n != 1 || newest == nil {
		t.Fatalf("message stats: n=%d newest=%v err=%v", n, newest, err)
	}
	if n, _, _ := MessagesStats(ctx, db, "other"); n != 0 {
		t.Fatalf("stats leak across children: %d", n)
	}
}

func TestMilestones_CatalogAndUpsert(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	cat, err := ListMilestones(ctx, db)
	if err != nil || len(cat) != len(domain.DefaultMilestones()) {
		t.Fatalf("catalog: err=%v len=%d", err, len(cat))
	}
	if cat[0].ID != "social-smile" || cat[3].ID != "language-first-words" || cat[4].ID != "motor-walks" {
		t.Fatalf("catalog order: %s %s %s", cat[0].ID, cat[3].ID, cat[4].ID)
	}
	if _, err := GetMilestone(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := &domain.MilestoneStatus{ChildID: child, MilestoneID: "motor-sits", Status: domain.MilestoneInProgress, UpdatedBy: "p1"}
	if err := UpsertMilestoneStatus(ctx, db, s); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s2 := &domain.MilestoneStatus{ChildID: child, MilestoneID: "motor-sits", Status: domain.MilestoneAchieved, Notes: "at daycare", UpdatedBy: "t1"}
	if err := UpsertMilestoneStatus(ctx, db, s2); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := ListMilestoneStatuses(ctx, db, child)
	if err != nil || len(got) != 1 {
		t.Fatalf("statuses: err=%v got=%+v", err, got)
	}
	if got[0].Status != domain.MilestoneAchieved || got[0].Notes != "at daycare" || got[0].UpdatedBy != "t1" {
		t.Fatalf("upsert did not overwrite: %+v", got[0])
	}
}

func TestPermissions_SeededMatrixAndSet(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	all, err := ListPermissions(ctx, db)
	if err != nil || len(all) != len(domain.DefaultPermissions()) {
		t.Fatalf("matrix: err=%v len=%d", err, len(all))
	}

	find := func(f domain.Feature) *domain.RolePermission {
		rows, err := ListPermissionsForRole(ctx, db, domain.RoleTeacher)
		if err != nil {
			t.Fatalf("ListPermissionsForRole: %v", err)
		}
		for i := range rows {
			if rows[i].Feature == f {
				return &rows[i]
			}
		}
		return nil
	}
	if p := find(domain.FeatureExportData); p == nil || p.Allowed {
		t.Fatalf("teacher export should be seeded as denied: %+v", p)
	}

	if err := SetPermission(ctx, db, &domain.RolePermission{Role: domain.RoleTeacher, Feature: domain.FeatureExportData, Allowed: true, UpdatedBy: "admin1"}); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if p := find(domain.FeatureExportData); p == nil || !p.Allowed || p.UpdatedBy != "admin1" {
		t.Fatalf("cell not updated: %+v", p)
	}

	// Seeding again keeps the admin edit.
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if p := find(domain.FeatureExportData); p == nil || !p.Allowed {
		t.Fatalf("reseed overwrote edit: %+v", p)
	}
}

func TestProfiles_EnsureAndRoleOnce(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p, err := EnsureProfile(ctx, db, &domain.Profile{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleParent})
	if err != nil || p.Name != "Ana" {
		t.Fatalf("EnsureProfile: p=%+v err=%v", p, err)
	}
	p, err = EnsureProfile(ctx, db, &domain.Profile{ID: "u1", Name: "Someone else", Role: domain.RoleDoctor})
	if err != nil || p.Name != "Ana" || p.Role != domain.RoleParent {
		t.Fatalf("existing profile was overwritten: %+v err=%v", p, err)
	}

	if err := SetProfileRole(ctx, db, "u1", domain.RoleTeacher); err != nil {
		t.Fatalf("SetProfileRole: %v", err)
	}
	if err := SetProfileRole(ctx, db, "u1", domain.RoleDoctor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second role change should fail, got %v", err)
	}
	if err := SetProfileRole(ctx, db, "ghost", domain.RoleDoctor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing profile should fail, got %v", err)
	}
	got, _ := GetProfile(ctx, db, "u1")
	if got.Role != domain.RoleTeacher || !got.RoleSet {
		t.Fatalf("role not stored: %+v", got)
	}

	if _, err := EnsureProfile(ctx, db, &domain.Profile{ID: "u2", Name: "Tom"}); err != nil {
		t.Fatalf("EnsureProfile u2: %v", err)
	}
	list, err := ListProfiles(ctx, db, []string{"u1", "u2", "ghost"})
	if err != nil || len(list) != 2 {
		t.Fatalf("ListProfiles: err=%v got=%+v", err, list)
	}
	if list, err := ListProfiles(ctx, db, nil); err != nil || len(list) != 0 {
		t.Fatalf("empty ids: err=%v got=%+v", err, list)
	}
}

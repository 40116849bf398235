package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestCreateChild_AddsParentMembership(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c := &domain.Child{Name: "Mia", ParentID: "p1", Allergies: domain.StringList{"peanuts"}}
	if err := CreateChild(ctx, db, c); err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not assigned: %+v", c)
	}
	m, err := GetMembership(ctx, db, c.ID, "p1")
	if err != nil {
		t.Fatalf("GetMembership: %v", err)
	}
	if m.Role != domain.RoleParent {
		t.Fatalf("expected parent role, got %q", m.Role)
	}
	got, err := GetChild(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	if len(got.Allergies) != 1 || got.Allergies[0] != "peanuts" {
		t.Fatalf("allergies roundtrip: %+v", got.Allergies)
	}
}

func TestGetChild_NotFound(t *testing.T) {
	db := newRepoDB(t)
	if _, err := GetChild(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListChildrenForUser_OnlyCareTeam(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	a := seedChild(t, db, "p1")
	b := seedChild(t, db, "p2")
	if _, err := AddCareTeamMember(ctx, db, b, "t1", domain.RoleTeacher); err != nil {
		t.Fatalf("AddCareTeamMember: %v", err)
	}

	p1, err := ListChildrenForUser(ctx, db, "p1")
	if err != nil || len(p1) != 1 || p1[0].ID != a {
		t.Fatalf("p1 children: err=%v got=%+v", err, p1)
	}
	t1, err := ListChildrenForUser(ctx, db, "t1")
	if err != nil || len(t1) != 1 || t1[0].ID != b {
		t.Fatalf("t1 children: err=%v got=%+v", err, t1)
	}
	none, err := ListChildrenForUser(ctx, db, "nobody")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no children, got err=%v %+v", err, none)
	}
}

func TestAddCareTeamMember_UpsertsRole(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	id := seedChild(t, db, "p1")

	if _, err := AddCareTeamMember(ctx, db, id, "u2", domain.RoleTeacher); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := AddCareTeamMember(ctx, db, id, "u2", domain.RoleDoctor); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	team, err := ListCareTeam(ctx, db, id)
	if err != nil {
		t.Fatalf("ListCareTeam: %v", err)
	}
	if len(team) != 2 {
		t.Fatalf("expected 2 members, got %d", len(team))
	}
	m, _ := GetMembership(ctx, db, id, "u2")
	if m == nil || m.Role != domain.RoleDoctor {
		t.Fatalf("expected role updated to doctor, got %+v", m)
	}
	ids, err := CareTeamUserIDs(ctx, db, id)
	if err != nil || len(ids) != 2 || ids[0] != "p1" || ids[1] != "u2" {
		t.Fatalf("CareTeamUserIDs: err=%v ids=%v", err, ids)
	}
}

func TestUpdateChildSummary(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	id := seedChild(t, db, "p1")

	if err := UpdateChildSummary(ctx, db, id, "Sleeping well."); err != nil {
		t.Fatalf("UpdateChildSummary: %v", err)
	}
	c, _ := GetChild(ctx, db, id)
	if c.AISummary != "Sleeping well." {
		t.Fatalf("summary not stored: %q", c.AISummary)
	}
	if err := UpdateChildSummary(ctx, db, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfiles_EnsureAndRoleOnce_ChildRepo(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p, err := EnsureProfile(ctx, db, &domain.Profile{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleParent})
	if err != nil || p.Name != "Ana" {
		t.Fatalf("EnsureProfile: err=%v p=%+v", err, p)
	}
	// Second call keeps the stored row.
	p, err = EnsureProfile(ctx, db, &domain.Profile{ID: "u1", Name: "Other", Role: domain.RoleParent})
	if err != nil || p.Name != "Ana" {
		t.Fatalf("EnsureProfile must not overwrite: err=%v p=%+v", err, p)
	}

	if err := SetProfileRole(ctx, db, "u1", domain.RoleTeacher); err != nil {
		t.Fatalf("SetProfileRole: %v", err)
	}
	if err := SetProfileRole(ctx, db, "u1", domain.RoleDoctor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second SetProfileRole should fail with ErrNotFound, got %v", err)
	}
	p, _ = GetProfile(ctx, db, "u1")
	if p.Role != domain.RoleTeacher || !p.RoleSet {
		t.Fatalf("unexpected profile after role set: %+v", p)
	}

	list, err := ListProfiles(ctx, db, []string{"u1", "missing"})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListProfiles: err=%v list=%+v", err, list)
	}
	empty, err := ListProfiles(ctx, db, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListProfiles(nil): err=%v list=%+v", err, empty)
	}
}

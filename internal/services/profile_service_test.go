package services

import (
	"context"
	"errors"
	"testing"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestProfileService_MeCreatesOnce(t *testing.T) {
	s := &ProfileService{DB: newSvcDB(t)}
	ctx := context.Background()
	a := Actor{UserID: "u-new", Name: "Nia", Email: "nia@example.com"}

	p, err := s.Me(ctx, a)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if p.Role != domain.RoleParent || p.RoleSet || p.Email != "nia@example.com" {
		t.Fatalf("profile = %+v", p)
	}
	a.Name = "Changed"
	p, _ = s.Me(ctx, a)
	if p.Name != "Nia" {
		t.Fatalf("existing profile overwritten: %+v", p)
	}
}

func TestProfileService_SetRoleOnce(t *testing.T) {
	s := &ProfileService{DB: newSvcDB(t)}
	ctx := context.Background()
	a := Actor{UserID: "u-new", Name: "Nia"}

	_, err := s.SetRole(ctx, a, domain.RoleAdmin)
	assertValidation(t, err, "role")

	p, err := s.SetRole(ctx, a, domain.RoleTeacher)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if p.Role != domain.RoleTeacher || !p.RoleSet {
		t.Fatalf("profile = %+v", p)
	}
	if _, err := s.SetRole(ctx, a, domain.RoleDoctor); !errors.Is(err, ErrRoleAlreadySet) {
		t.Fatalf("expected ErrRoleAlreadySet, got %v", err)
	}
}

func TestProfileService_PublicHidesEmail(t *testing.T) {
	s := &ProfileService{DB: newSvcDB(t)}
	ctx := context.Background()
	if _, err := s.Me(ctx, Actor{UserID: "u-dana", Name: "Dana", Email: "dana@example.com"}); err != nil {
		t.Fatalf("me: %v", err)
	}

	p, err := s.Public(ctx, Actor{UserID: "u-other"}, "u-dana")
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	if p.Name != "Dana" || p.Email != "" {
		t.Fatalf("profile = %+v", p)
	}
	if _, err := s.Public(ctx, Actor{UserID: "u-other"}, "ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

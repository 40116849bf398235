package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parentrak/parentrak-backend/internal/ai"
	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/email"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.Seed(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

var (
	parent   = Actor{UserID: "u-parent", Role: domain.RoleParent, Name: "Ana", Email: "ana@example.com"}
	teacher  = Actor{UserID: "u-teacher", Role: domain.RoleTeacher, Name: "Tom", Email: "tom@example.com"}
	doctor   = Actor{UserID: "u-doctor", Role: domain.RoleDoctor, Name: "Dr. Lee"}
	outsider = Actor{UserID: "u-out", Role: domain.RoleTeacher, Name: "Eve"}
)

// seedFamily creates profiles for parent/teacher/doctor, a child owned by
// parent and a care team containing teacher and doctor.
func seedFamily(t *testing.T, db *gorm.DB) string {
	t.Helper()
	ctx := context.Background()
	for _, a := range []Actor{parent, teacher, doctor, outsider} {
		if _, err := repo.EnsureProfile(ctx, db, &domain.Profile{ID: a.UserID, Name: a.Name, Email: a.Email, Role: a.Role, RoleSet: true}); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	c := &domain.Child{Name: "Mia", ParentID: parent.UserID}
	if err := repo.CreateChild(ctx, db, c); err != nil {
		t.Fatalf("seed child: %v", err)
	}
	for _, a := range []Actor{teacher, doctor} {
		if _, err := repo.AddCareTeamMember(ctx, db, c.ID, a.UserID, a.Role); err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
	return c.ID
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) byResource(resource string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, ev := range p.events {
		if ev.Resource == resource {
			out = append(out, ev)
		}
	}
	return out
}

// fakeAssistant is a scriptable AI client.
type fakeAssistant struct {
	enabled    bool
	err        error
	insights   []ai.Insight
	transcript string
	translated string
	summary    string
	pdf        []byte

	summarizeCalls int
}

func (f *fakeAssistant) Enabled() bool { return f.enabled }

func (f *fakeAssistant) GenerateInsights(context.Context, []ai.LogInput) ([]ai.Insight, error) {
	return f.insights, f.err
}

func (f *fakeAssistant) Transcribe(context.Context, []byte, string) (string, error) {
	return f.transcript, f.err
}

func (f *fakeAssistant) Translate(_ context.Context, text, target string) (string, error) {
	return f.translated, f.err
}

func (f *fakeAssistant) Summarize(_ context.Context, _ []ai.LogInput, audience string) (string, error) {
	f.summarizeCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary + " for " + audience, nil
}

func (f *fakeAssistant) PDFDigest(context.Context, string, time.Time, time.Time) ([]byte, error) {
	return f.pdf, f.err
}

var errAIDown = fmt.Errorf("%w: test", ai.ErrUnavailable)

// fakeInviter records invitations.
type fakeInviter struct {
	sent []email.Invite
	err  error
}

func (f *fakeInviter) Enabled() bool { return true }

func (f *fakeInviter) SendAppointmentInvite(_ context.Context, inv email.Invite) error {
	f.sent = append(f.sent, inv)
	return f.err
}

func nopLog() zerolog.Logger { return zerolog.Nop() }

func assertValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != field {
		t.Fatalf("expected validation error on %q, got %v", field, err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("validation error should match ErrInvalidInput")
	}
}

package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parentrak/parentrak-backend/internal/config"
	"github.com/parentrak/parentrak-backend/internal/domain"
)

// newRepoDB returns a migrated, seeded, per-test in-memory database.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := Seed(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// seedChild creates a child owned by parentID and returns its id.
func seedChild(t *testing.T, db *gorm.DB, parentID string) string {
	t.Helper()
	c := &domain.Child{Name: "Mia", ParentID: parentID}
	if err := CreateChild(context.Background(), db, c); err != nil {
		t.Fatalf("seed child: %v", err)
	}
	return c.ID
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpen_SQLite_SetsPragmas_Pool_MigratesAndSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := Open(config.DBConfig{Driver: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	var busyMS int
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.Profile{}, &domain.Child{}, &domain.CareTeamMember{}, &domain.LogEntry{},
		&domain.Message{}, &domain.Notification{}, &domain.Appointment{}, &domain.Participant{},
		&domain.Milestone{}, &domain.MilestoneStatus{}, &domain.RolePermission{}, &domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	ctx := context.Background()
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice must not fail nor duplicate.
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("Seed (again): %v", err)
	}
	perms, err := ListPermissions(ctx, db)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if want := len(domain.Roles) * len(domain.Features); len(perms) != want {
		t.Fatalf("expected %d permission rows, got %d", want, len(perms))
	}
	ms, err := ListMilestones(ctx, db)
	if err != nil || len(ms) != len(domain.DefaultMilestones()) {
		t.Fatalf("milestones: err=%v len=%d", err, len(ms))
	}
}

func TestSeed_KeepsAdminEdits(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if err := SetPermission(ctx, db, &domain.RolePermission{
		Role: domain.RoleTeacher, Feature: domain.FeatureExportData, Allowed: true, UpdatedBy: "admin-1",
	}); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	rows, err := ListPermissionsForRole(ctx, db, domain.RoleTeacher)
	if err != nil {
		t.Fatalf("ListPermissionsForRole: %v", err)
	}
	for _, r := range rows {
		if r.Feature == domain.FeatureExportData && (!r.Allowed || r.UpdatedBy != "admin-1") {
			t.Fatalf("admin edit lost after reseed: %+v", r)
		}
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite

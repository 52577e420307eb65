package main

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

func openConfigured(t *testing.T, path string) *gorm.DB {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	gormDB, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { closeDB(gormDB) })
	return gormDB
}

func TestDBMigrate(t *testing.T) {
	path := writeConfig(t, "")
	out, err := runCmd(t, "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 6 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}

	gormDB := openConfigured(t, path)
	for _, table := range []string{"stakeholder_mapping", "active_slack_threads", "deal_resolutions"} {
		if !gormDB.Migrator().HasTable(table) {
			t.Errorf("table %s missing after migrate", table)
		}
	}
}

func TestDBSeed(t *testing.T) {
	path := writeConfig(t, "")
	out, err := runCmd(t, "db", "seed", "-c", path, "--map", "PM=U1", "--map", "SalesRep=U2")
	if err != nil {
		t.Fatalf("db seed: %v", err)
	}
	if !strings.Contains(out, "Seeded 2 stakeholder mappings") {
		t.Errorf("output = %q", out)
	}

	// Re-seeding a role updates it in place.
	if _, err := runCmd(t, "db", "seed", "-c", path, "--map", "PM=U9"); err != nil {
		t.Fatalf("db seed again: %v", err)
	}

	var rows []models.StakeholderMapping
	if err := openConfigured(t, path).Order("role").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Role != "PM" || rows[0].SlackUserID != "U9" {
		t.Errorf("PM mapping = %+v, want U9", rows[0])
	}
}

func TestDBSeed_RequiresMappings(t *testing.T) {
	path := writeConfig(t, "")
	_, err := runCmd(t, "db", "seed", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "--map") {
		t.Errorf("err = %v, want --map requirement", err)
	}
}

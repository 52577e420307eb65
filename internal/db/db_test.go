package db

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DatabaseConfig{
		Host: "db.internal", Port: 3306, User: "dw", Password: "secret", Name: "dealwhisperer",
	})
	if !strings.HasPrefix(dsn, "dw:secret@tcp(db.internal:3306)/dealwhisperer") {
		t.Errorf("MySQLDSN = %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("MySQLDSN missing parseTime=true: %s", dsn)
	}
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "no credentials",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 5432, Name: "dw"},
			want: "host=127.0.0.1 port=5432 dbname=dw sslmode=disable",
		},
		{
			name: "with credentials",
			cfg:  config.DatabaseConfig{Host: "pg", Port: 6543, Name: "dw", User: "u", Password: "p"},
			want: "host=pg port=6543 dbname=dw sslmode=disable user=u password=p",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostgresDSN(tt.cfg); got != tt.want {
				t.Errorf("PostgresDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"sqlite", "sqlite"},
		{"", "sqlite"},
		{"mysql", "mysql"},
		{"postgres", "postgres"},
	}
	for _, tt := range tests {
		d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: "dw", Host: "h", Port: 1})
		if err != nil {
			t.Fatalf("Dialector(%q): %v", tt.driver, err)
		}
		if d.Name() != tt.want {
			t.Errorf("Dialector(%q).Name() = %q, want %q", tt.driver, d.Name(), tt.want)
		}
	}
}

func TestDialector_Unsupported(t *testing.T) {
	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("err = %v, want unsupported driver", err)
	}
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return db
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 6 {
		t.Errorf("AllModels() returned %d models, want 6", got)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := openMemory(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{
		"stakeholder_mapping", "latest_stale_deals", "active_slack_threads",
		"stakeholder_notifications", "stakeholder_responses", "deal_resolutions",
	} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s not created", table)
		}
	}
	// Idempotent.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
}

func TestSeedMappings_Upserts(t *testing.T) {
	db := openMemory(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	if err := SeedMappings(db, map[string]string{"PM": "U1", "SalesRep1": "U2"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SeedMappings(db, map[string]string{"PM": "U9"}); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var rows []models.StakeholderMapping
	db.Order("role").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Role != "PM" || rows[0].SlackUserID != "U9" {
		t.Errorf("PM row = %+v, want U9", rows[0])
	}
}

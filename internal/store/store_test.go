package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.StakeholderMapping{}, &models.StaleDeal{}, &models.ActiveThread{},
		&models.StakeholderNotification{}, &models.StakeholderResponse{}, &models.DealResolution{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestNew_RequiresDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestUpsertMappings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertMappings(ctx, []models.StakeholderMapping{
		{Role: "PM", SlackUserID: "U1", FullName: strPtr("Pat Manager")},
		{Role: "SalesRep1", SlackUserID: "U2"},
	})
	if err != nil {
		t.Fatalf("UpsertMappings: %v", err)
	}
	// Re-assign PM without a name: user changes, name is kept.
	if err := s.UpsertMappings(ctx, []models.StakeholderMapping{{Role: "PM", SlackUserID: "U3"}}); err != nil {
		t.Fatalf("second UpsertMappings: %v", err)
	}

	rows, err := s.ListMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("mappings = %d, want 2", len(rows))
	}
	if rows[0].Role != "PM" || rows[0].SlackUserID != "U3" {
		t.Errorf("PM = %+v, want U3", rows[0])
	}
	if rows[0].FullName == nil || *rows[0].FullName != "Pat Manager" {
		t.Errorf("PM full name = %v, want kept", rows[0].FullName)
	}
}

func TestUpsertMappings_Empty(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertMappings(context.Background(), nil); err != nil {
		t.Errorf("UpsertMappings(nil) = %v", err)
	}
}

func TestReplaceStaleDeals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []models.StaleDeal{{DealID: "Acme", DealName: "Acme"}, {DealID: "Globex", DealName: "Globex"}}
	if err := s.ReplaceStaleDeals(ctx, first); err != nil {
		t.Fatalf("ReplaceStaleDeals: %v", err)
	}
	if err := s.ReplaceStaleDeals(ctx, []models.StaleDeal{{DealID: "Initech", DealName: "Initech"}}); err != nil {
		t.Fatalf("second ReplaceStaleDeals: %v", err)
	}

	rows, err := s.ListStaleDeals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].DealID != "Initech" {
		t.Errorf("stale deals = %+v, want only Initech", rows)
	}
	if rows[0].IdentifiedAt.IsZero() {
		t.Error("IdentifiedAt not set")
	}

	if err := s.ReplaceStaleDeals(ctx, nil); err != nil {
		t.Fatalf("empty replace: %v", err)
	}
	rows, _ = s.ListStaleDeals(ctx)
	if len(rows) != 0 {
		t.Errorf("stale deals after empty replace = %d, want 0", len(rows))
	}
}

func TestActiveThreads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := s.UpsertActiveThread(ctx, models.ActiveThread{ThreadTS: "1.1", DealID: "Acme", DealName: "Acme", ChannelID: "U1", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertActiveThread(ctx, models.ActiveThread{ThreadTS: "2.2", DealID: "Globex", DealName: "Globex", ChannelID: "U2", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	// Same ts rebinds the deal.
	if err := s.UpsertActiveThread(ctx, models.ActiveThread{ThreadTS: "1.1", DealID: "Initech", DealName: "Initech", ChannelID: "U1"}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountActiveThreads(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountActiveThreads = %d, %v; want 2", n, err)
	}

	got, err := s.FindActiveThread(ctx, "1.1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DealID != "Initech" {
		t.Errorf("thread 1.1 deal = %q, want Initech", got.DealID)
	}

	list, err := s.ListActiveThreads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ThreadTS != "2.2" {
		t.Errorf("ListActiveThreads order = %+v, want newest first", list)
	}

	_, err = s.FindActiveThread(ctx, "9.9")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindActiveThread missing err = %v, want ErrNotFound", err)
	}
}

func TestNotificationsAndResponses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := &models.StakeholderNotification{StakeholderID: "U1", StakeholderRole: "PM", DealID: "Acme", MessageTS: "1.1"}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}
	if n.ID == "" {
		t.Fatal("notification id not assigned")
	}

	found, err := s.FindNotificationByMessageTS(ctx, "1.1")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != n.ID {
		t.Errorf("found id = %q, want %q", found.ID, n.ID)
	}
	if _, err := s.FindNotificationByMessageTS(ctx, "0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}

	r := &models.StakeholderResponse{NotificationID: n.ID, ResponseText: "moving forward", ResponseTS: "1.2"}
	if err := s.CreateResponse(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateResponse(ctx, &models.StakeholderResponse{ResponseText: "orphan"}); err == nil {
		t.Error("expected error for response without notification id")
	}

	ns, _ := s.ListNotifications(ctx)
	rs, _ := s.ListResponses(ctx)
	if len(ns) != 1 || len(rs) != 1 {
		t.Errorf("notifications=%d responses=%d, want 1/1", len(ns), len(rs))
	}
}

func TestResolutions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	by := "U1"
	for _, status := range []string{models.StatusActive, models.StatusClosedWon} {
		err := s.CreateResolution(ctx, &models.DealResolution{
			DealID: "Acme", PreviousStatus: models.StatusStalled, NewStatus: status, ResolvedBy: &by,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CreateResolution(ctx, &models.DealResolution{DealID: "Globex", PreviousStatus: models.StatusStalled, NewStatus: models.StatusActive}); err != nil {
		t.Fatal(err)
	}

	rows, err := s.ListResolutions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("resolutions = %d, want 3", len(rows))
	}
	var nilBy int
	for _, r := range rows {
		if r.ResolvedBy == nil {
			nilBy++
		}
	}
	if nilBy != 1 {
		t.Errorf("unattributed resolutions = %d, want 1", nilBy)
	}
}

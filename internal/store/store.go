// Package store persists the correlation state between outbound stale-deal
// notifications and the threaded replies they receive.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the gorm-backed correlation store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open database handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ListMappings returns every stakeholder mapping ordered by role.
func (s *Store) ListMappings(ctx context.Context) ([]models.StakeholderMapping, error) {
	var rows []models.StakeholderMapping
	if err := s.db.WithContext(ctx).Order("role ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	return rows, nil
}

// UpsertMappings writes mappings keyed on role in a single transaction.
// A full_name of nil leaves any stored name untouched.
func (s *Store) UpsertMappings(ctx context.Context, mappings []models.StakeholderMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range mappings {
			m := mappings[i]
			m.UpdatedAt = s.now()
			cols := []string{"slack_user_id", "updated_at"}
			if m.FullName != nil {
				cols = append(cols, "full_name")
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "role"}},
				DoUpdates: clause.AssignmentColumns(cols),
			}).Create(&m).Error; err != nil {
				return fmt.Errorf("store: upsert mapping %q: %w", m.Role, err)
			}
		}
		return nil
	})
}

// ReplaceStaleDeals swaps the whole stale-deal listing for deals.
func (s *Store) ReplaceStaleDeals(ctx context.Context, deals []models.StaleDeal) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.StaleDeal{}).Error; err != nil {
			return err
		}
		if len(deals) == 0 {
			return nil
		}
		rows := make([]models.StaleDeal, len(deals))
		for i, d := range deals {
			rows[i] = models.StaleDeal{DealID: d.DealID, DealName: d.DealName, IdentifiedAt: s.now()}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("store: replace stale deals: %w", err)
	}
	return nil
}

// ListStaleDeals returns the cached stale-deal listing.
func (s *Store) ListStaleDeals(ctx context.Context) ([]models.StaleDeal, error) {
	var rows []models.StaleDeal
	if err := s.db.WithContext(ctx).Order("identified_at DESC, deal_name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list stale deals: %w", err)
	}
	return rows, nil
}

// UpsertActiveThread records the thread rooted at a notification message,
// replacing the deal binding if the thread ts already exists.
func (s *Store) UpsertActiveThread(ctx context.Context, t models.ActiveThread) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"deal_id", "deal_name", "channel_id"}),
	}).Create(&t).Error
	if err != nil {
		return fmt.Errorf("store: upsert thread %s: %w", t.ThreadTS, err)
	}
	return nil
}

// FindActiveThread looks up a thread by its root ts.
func (s *Store) FindActiveThread(ctx context.Context, threadTS string) (*models.ActiveThread, error) {
	var t models.ActiveThread
	if err := s.db.WithContext(ctx).Where("thread_ts = ?", threadTS).First(&t).Error; err != nil {
		return nil, fmt.Errorf("store: find thread %s: %w", threadTS, notFound(err))
	}
	return &t, nil
}

// ListActiveThreads returns all threads, newest first.
func (s *Store) ListActiveThreads(ctx context.Context) ([]models.ActiveThread, error) {
	var rows []models.ActiveThread
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list threads: %w", err)
	}
	return rows, nil
}

// CountActiveThreads returns the number of recorded threads.
func (s *Store) CountActiveThreads(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ActiveThread{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count threads: %w", err)
	}
	return n, nil
}

// CreateNotification inserts a notification row, assigning its id.
func (s *Store) CreateNotification(ctx context.Context, n *models.StakeholderNotification) error {
	if n.SentAt.IsZero() {
		n.SentAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("store: create notification: %w", err)
	}
	return nil
}

// FindNotificationByMessageTS returns the earliest notification whose message
// ts matches.
func (s *Store) FindNotificationByMessageTS(ctx context.Context, messageTS string) (*models.StakeholderNotification, error) {
	var n models.StakeholderNotification
	if err := s.db.WithContext(ctx).Where("message_ts = ?", messageTS).
		Order("sent_at ASC").First(&n).Error; err != nil {
		return nil, fmt.Errorf("store: find notification %s: %w", messageTS, notFound(err))
	}
	return &n, nil
}

// ListNotifications returns all notifications oldest first.
func (s *Store) ListNotifications(ctx context.Context) ([]models.StakeholderNotification, error) {
	var rows []models.StakeholderNotification
	if err := s.db.WithContext(ctx).Order("sent_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	return rows, nil
}

// CreateResponse inserts a stakeholder reply.
func (s *Store) CreateResponse(ctx context.Context, r *models.StakeholderResponse) error {
	if r.NotificationID == "" {
		return fmt.Errorf("store: notification id is required")
	}
	if r.RespondedAt.IsZero() {
		r.RespondedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Omit("Notification").Create(r).Error; err != nil {
		return fmt.Errorf("store: create response: %w", err)
	}
	return nil
}

// ListResponses returns all responses oldest first.
func (s *Store) ListResponses(ctx context.Context) ([]models.StakeholderResponse, error) {
	var rows []models.StakeholderResponse
	if err := s.db.WithContext(ctx).Order("responded_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list responses: %w", err)
	}
	return rows, nil
}

// CreateResolution appends a deal status transition.
func (s *Store) CreateResolution(ctx context.Context, r *models.DealResolution) error {
	if r.ResolvedAt.IsZero() {
		r.ResolvedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("store: create resolution: %w", err)
	}
	return nil
}

// ListResolutions returns all resolutions oldest first.
func (s *Store) ListResolutions(ctx context.Context) ([]models.DealResolution, error) {
	var rows []models.DealResolution
	if err := s.db.WithContext(ctx).Order("resolved_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list resolutions: %w", err)
	}
	return rows, nil
}

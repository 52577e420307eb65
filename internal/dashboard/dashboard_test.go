package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
	"github.com/youneslaaroussi/dealwhisperer/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.StaleDeal{}, &models.ActiveThread{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	st.ReplaceStaleDeals(ctx, []models.StaleDeal{{DealID: "Acme", DealName: "Acme"}})
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	st.UpsertActiveThread(ctx, models.ActiveThread{ThreadTS: "1.1", DealID: "Acme", DealName: "Acme", ChannelID: "D1", CreatedAt: base})
	st.UpsertActiveThread(ctx, models.ActiveThread{ThreadTS: "2.2", DealID: "Acme", DealName: "Acme", ChannelID: "D2", CreatedAt: base.Add(time.Hour)})

	svc, err := NewService(st)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(snap.LatestStaleDeals) != 1 || snap.LatestStaleDeals[0].DealName != "Acme" {
		t.Errorf("stale deals = %+v", snap.LatestStaleDeals)
	}
	if snap.ActiveThreadsCount != 2 || len(snap.ActiveThreads) != 2 {
		t.Fatalf("threads = %d (count %d)", len(snap.ActiveThreads), snap.ActiveThreadsCount)
	}
	if snap.ActiveThreads[0].ThreadTS != "2.2" {
		t.Errorf("threads not newest first: %+v", snap.ActiveThreads)
	}
}

func TestGet_EmptyListsEncodeAsArrays(t *testing.T) {
	svc, _ := NewService(openTestStore(t))
	snap, err := svc.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(snap)
	want := `{"latestStaleDeals":[],"activeThreads":[],"activeThreadsCount":0}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

type failingStore struct{ countErr error }

func (failingStore) ListStaleDeals(context.Context) ([]models.StaleDeal, error) { return nil, nil }
func (failingStore) ListActiveThreads(context.Context) ([]models.ActiveThread, error) {
	return nil, nil
}
func (f failingStore) CountActiveThreads(context.Context) (int64, error) { return 0, f.countErr }

func TestGet_AnyFailureFailsCall(t *testing.T) {
	svc, _ := NewService(failingStore{countErr: errors.New("timeout")})
	if _, err := svc.Get(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Error("expected error")
	}
}

// changingSource returns a new count each time it is advanced.
type changingSource struct {
	mu    sync.Mutex
	count int64
	calls int
}

func (s *changingSource) Get(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == 3 {
		s.count++
	}
	return Snapshot{ActiveThreadsCount: s.count}, nil
}

func TestStreamHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	src := &changingSource{}
	router := gin.New()
	router.GET("/dashboard/events", StreamHandler(src, StreamOpts{
		Interval:  10 * time.Millisecond,
		Heartbeat: time.Hour,
		Log:       log,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/dashboard/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: connected\n") {
		t.Errorf("stream does not start with connected event: %q", body)
	}
	// Unchanged snapshots are suppressed: one for count 0, one for count 1.
	if n := strings.Count(body, "event: snapshot\n"); n != 2 {
		t.Errorf("snapshot events = %d, want 2\n%s", n, body)
	}
	if !strings.Contains(body, `"activeThreadsCount":1`) {
		t.Errorf("changed snapshot not streamed:\n%s", body)
	}
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	writeSSE(&b, "heartbeat", map[string]string{"k": "v"})
	if b.String() != "event: heartbeat\ndata: {\"k\":\"v\"}\n\n" {
		t.Errorf("writeSSE = %q", b.String())
	}
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/domain"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore("file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newTestUser(t *testing.T, s *store.Store, subject string) *domain.User {
	t.Helper()
	u, err := s.InsertUser(context.Background(), domain.ExternalProfile{Subject: subject, Email: subject + "@example.com"}, time.Now())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

func input(id, title string, start time.Time) EventInput {
	return EventInput{
		ID:           id,
		Title:        title,
		StartDate:    start.Format(time.RFC3339),
		EndDate:      start.Add(time.Hour).Format(time.RFC3339),
		CalendarID:   "cal-1",
		CalendarName: "Work",
	}
}

func storedIDs(t *testing.T, s *store.Store, userID int64) map[string]string {
	t.Helper()
	events, err := s.ListEventsByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	out := make(map[string]string, len(events))
	for _, e := range events {
		out[e.ExternalID] = e.Title
	}
	return out
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []domain.CalendarChange
}

func (r *recordingNotifier) Publish(c domain.CalendarChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recordingNotifier) all() []domain.CalendarChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CalendarChange(nil), r.changes...)
}

type auditRecord struct {
	subject, action, resourceID string
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (r *recordingAudit) WriteAudit(subject, action, resource, resourceID, details, ip, userAgent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, auditRecord{subject: subject, action: action, resourceID: resourceID})
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.action
	}
	return out
}

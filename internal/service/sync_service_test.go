package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

var syncBase = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	snapshot := []EventInput{
		input("a", "A", syncBase),
		input("b", "B", syncBase.Add(time.Hour)),
	}

	first, err := svc.Reconcile(ctx, u.ID, u.Subject, snapshot)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	before := storedIDs(t, s, u.ID)

	second, err := svc.Reconcile(ctx, u.ID, u.Subject, snapshot)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if first.EventsUpserted != 2 || second.EventsUpserted != 2 {
		t.Fatalf("upserted = %d, %d, want 2, 2", first.EventsUpserted, second.EventsUpserted)
	}
	if first.EventsInserted != 2 || second.EventsInserted != 0 || second.EventsUpdated != 2 {
		t.Fatalf("insert/update split wrong: %+v then %+v", first, second)
	}
	if second.EventsDeleted != 0 {
		t.Fatalf("second reconcile deleted %d", second.EventsDeleted)
	}
	if n := countRows(t, s, "calendar_events"); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	after := storedIDs(t, s, u.ID)
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Fatalf("state changed: %v -> %v", before, after)
	}
}

func TestReconcileReplacesStoredSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	_, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{
		input("A", "original", syncBase),
		input("B", "B", syncBase),
		input("C", "C", syncBase),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{
		input("A", "modified", syncBase),
		input("D", "D", syncBase),
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got := storedIDs(t, s, u.ID)
	if len(got) != 2 || got["A"] != "modified" || got["D"] != "D" {
		t.Fatalf("stored = %v, want exactly {A: modified, D}", got)
	}
	if res.EventsUpserted != 2 || res.EventsInserted != 1 || res.EventsUpdated != 1 || res.EventsDeleted != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReconcileEmptySnapshotWipes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	other := newTestUser(t, s, "other")
	svc := NewSyncService(s, nil, nil, nil, 0)

	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{input("a", "A", syncBase), input("b", "B", syncBase)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Reconcile(ctx, other.ID, other.Subject, []EventInput{input("a", "A", syncBase)}); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	res, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{})
	if err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if res.EventsUpserted != 0 || res.EventsDeleted != 2 {
		t.Fatalf("result = %+v", res)
	}
	if got := storedIDs(t, s, u.ID); len(got) != 0 {
		t.Fatalf("events left after wipe: %v", got)
	}
	if got := storedIDs(t, s, other.ID); len(got) != 1 {
		t.Fatalf("wipe leaked into another owner: %v", got)
	}

	// Empty snapshot on an empty owner is a no-op.
	res, err = svc.Reconcile(ctx, u.ID, u.Subject, nil)
	if err != nil {
		t.Fatalf("no-op: %v", err)
	}
	if res.EventsUpserted != 0 || res.EventsDeleted != 0 {
		t.Fatalf("no-op result = %+v", res)
	}
}

func TestReconcilePruneCascadesContacts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	withContacts := input("a", "A", syncBase)
	withContacts.Contacts = []ContactInput{
		{ID: "c1", Name: "Ada", Emails: []string{"ada@example.com"}},
		{ID: "c2", Name: "Grace"},
	}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{withContacts, input("b", "B", syncBase)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n := countRows(t, s, "event_contacts"); n != 2 {
		t.Fatalf("contacts = %d, want 2", n)
	}

	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{input("b", "B", syncBase)}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n := countRows(t, s, "event_contacts"); n != 0 {
		t.Fatalf("%d orphan contacts after prune", n)
	}
}

func TestReconcileContactsReplacedOnlyWhenPresent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	ev := input("a", "A", syncBase)
	ev.Contacts = []ContactInput{{ID: "c1", Name: "Ada"}, {ID: "c2", Name: "Grace"}}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{ev}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// No contacts key: stored contacts stay.
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{input("a", "A", syncBase)}); err != nil {
		t.Fatalf("reconcile without contacts: %v", err)
	}
	if n := countRows(t, s, "event_contacts"); n != 2 {
		t.Fatalf("contacts = %d, want untouched 2", n)
	}

	ev.Contacts = []ContactInput{{ID: "c3", Name: "Linus"}}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{ev}); err != nil {
		t.Fatalf("reconcile with contacts: %v", err)
	}
	events, err := s.ListEventsWithContacts(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events[0].Contacts) != 1 || events[0].Contacts[0].Name != "Linus" {
		t.Fatalf("contacts = %+v, want only Linus", events[0].Contacts)
	}

	ev.Contacts = []ContactInput{}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{ev}); err != nil {
		t.Fatalf("reconcile with empty contacts: %v", err)
	}
	if n := countRows(t, s, "event_contacts"); n != 0 {
		t.Fatalf("contacts = %d, want 0 after explicit empty list", n)
	}
}

func TestReconcileIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{input("x", "X", syncBase)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := s.DB().ExecContext(ctx, `
		CREATE TRIGGER fail_on_boom BEFORE INSERT ON calendar_events
		WHEN NEW.title = 'boom'
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err = svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{
		input("a", "A", syncBase),
		input("b", "B", syncBase),
		input("c", "boom", syncBase),
		input("d", "D", syncBase),
	})
	var storageErr *port.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("err = %v, want *port.StorageError", err)
	}

	got := storedIDs(t, s, u.ID)
	if len(got) != 1 || got["x"] != "X" {
		t.Fatalf("partial sync visible: %v", got)
	}
}

func TestReconcileValidationFailsFast(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	bad := input("e3", "", syncBase)
	noDate := input("e5", "E5", syncBase)
	noDate.EndDate = "next tuesday"

	_, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{
		input("e1", "E1", syncBase),
		input("e2", "E2", syncBase),
		bad,
		input("e4", "E4", syncBase),
		noDate,
	})

	var verrs port.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if len(verrs) != 2 || verrs[0].Index != 2 || verrs[0].Field != "title" || verrs[1].Index != 4 || verrs[1].Field != "endDate" {
		t.Fatalf("validation errors = %+v", verrs)
	}
	if n := countRows(t, s, "calendar_events"); n != 0 {
		t.Fatalf("%d events written despite validation failure", n)
	}
}

func TestReconcileUnknownOwner(t *testing.T) {
	s := newTestStore(t)
	svc := NewSyncService(s, nil, nil, nil, 0)

	_, err := svc.Reconcile(context.Background(), 42, "ghost", []EventInput{input("a", "A", syncBase)})
	if !errors.Is(err, port.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if n := countRows(t, s, "calendar_events"); n != 0 {
		t.Fatalf("%d events written for unknown owner", n)
	}
}

func TestReconcileSubjectMismatch(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	_, err := svc.Reconcile(context.Background(), u.ID, "someone-else", []EventInput{input("a", "A", syncBase)})
	if !errors.Is(err, port.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestReconcileDuplicateIDsLastWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	res, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{
		input("a", "first", syncBase),
		input("b", "B", syncBase),
		input("a", "second", syncBase),
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.EventsUpserted != 2 || res.EventsInserted != 2 {
		t.Fatalf("result = %+v", res)
	}
	got := storedIDs(t, s, u.ID)
	if len(got) != 2 || got["a"] != "second" {
		t.Fatalf("stored = %v, want a=second", got)
	}
}

func TestReconcileDuplicateIDsTakeLastContacts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	first := input("a", "first", syncBase)
	first.Contacts = []ContactInput{{ID: "c1", Name: "Ada"}}
	last := input("a", "last", syncBase)

	res, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{first, last})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.EventsUpserted != 1 || res.EventsInserted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if n := countRows(t, s, "event_contacts"); n != 0 {
		t.Fatalf("contacts = %d, want 0: the last occurrence carries none", n)
	}
	if got := storedIDs(t, s, u.ID); got["a"] != "last" {
		t.Fatalf("stored = %v", got)
	}
}

func TestReconcileAllDayKeepsClientDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	tokyo := EventInput{
		ID:        "offsite",
		Title:     "Offsite",
		StartDate: "2025-03-12T00:00:00+09:00",
		EndDate:   "2025-03-13T00:00:00+09:00",
		IsAllDay:  true,
	}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{tokyo}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	e, err := s.GetEvent(ctx, u.ID, "offsite")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !e.StartDate.Equal(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)) ||
		!e.EndDate.Equal(time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("stored span = %s .. %s", e.StartDate, e.EndDate)
	}
}

func TestAllDaySpan(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	la := time.FixedZone("PDT", -7*3600)
	day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end time.Time
		from, to   time.Time
	}{
		{"exclusive midnight east", time.Date(2025, 3, 12, 0, 0, 0, 0, tokyo), time.Date(2025, 3, 13, 0, 0, 0, 0, tokyo), day(3, 12), day(3, 13)},
		{"exclusive midnight west", time.Date(2025, 3, 12, 0, 0, 0, 0, la), time.Date(2025, 3, 14, 0, 0, 0, 0, la), day(3, 12), day(3, 14)},
		{"inclusive end of day", time.Date(2025, 3, 12, 0, 0, 0, 0, tokyo), time.Date(2025, 3, 12, 23, 59, 59, 0, tokyo), day(3, 12), day(3, 13)},
		{"same start and end", day(3, 12), day(3, 12), day(3, 12), day(3, 13)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := allDaySpan(tt.start, tt.end)
			if !from.Equal(tt.from) || !to.Equal(tt.to) || from.Location() != time.UTC {
				t.Fatalf("allDaySpan = %s .. %s, want %s .. %s", from, to, tt.from, tt.to)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-03-12T08:00:00Z",
		"2025-03-12T10:00:00+02:00",
		"2025-03-12T10:00:00 02:00",
		"2025-03-12T08:00:00",
		"2025-03-12T08:00",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseTimestamp(%q) = %s, want %s", in, got, want)
		}
	}
	for _, in := range []string{"", "yesterday", "2025-13-01"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Fatalf("ParseTimestamp(%q) should fail", in)
		}
	}
}

func TestReconcileSnapshotLimit(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 2)

	_, err := svc.Reconcile(context.Background(), u.ID, u.Subject, []EventInput{
		input("a", "A", syncBase), input("b", "B", syncBase), input("c", "C", syncBase),
	})
	var verrs port.ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "events" {
		t.Fatalf("err = %v, want events limit validation error", err)
	}
}

func TestReconcileAcceptsDateOnlyAndFetchedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, nil, nil, nil, 0)

	allDay := EventInput{
		ID:        "holiday",
		Title:     "Holiday",
		StartDate: "2025-12-25",
		EndDate:   "2025-12-26",
		IsAllDay:  true,
		FetchedAt: "2025-12-01T08:00:00.123Z",
	}
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{allDay}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	e, err := s.GetEvent(ctx, u.ID, "holiday")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !e.StartDate.Equal(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)) || !e.IsAllDay {
		t.Fatalf("event = %+v", e)
	}
	if e.FetchedAt == nil {
		t.Fatal("fetchedAt not stored")
	}
	if e.UserSubject != "sub" {
		t.Fatalf("user subject = %q", e.UserSubject)
	}
}

func TestReconcileNotifiesAndAudits(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	svc := NewSyncService(s, nil, notifier, audit, 0)

	if _, err := svc.Reconcile(context.Background(), u.ID, u.Subject, []EventInput{input("a", "A", syncBase)}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	changes := notifier.all()
	if len(changes) != 1 || changes[0].Kind != domain.ChangeSynced || changes[0].Subject != "sub" || changes[0].EventsCount != 1 {
		t.Fatalf("changes = %+v", changes)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != domain.AuditActionSync {
		t.Fatalf("audit = %v", got)
	}

	// Failed syncs publish nothing.
	_, _ = svc.Reconcile(context.Background(), u.ID, u.Subject, []EventInput{{ID: "bad"}})
	if len(notifier.all()) != 1 {
		t.Fatal("failed reconcile published a change")
	}
}

func TestConcurrentReconcilesSerialize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	svc := NewSyncService(s, NewOwnerLocks(), nil, nil, 0)

	const workers = 8
	snapshots := make([][]EventInput, workers)
	for w := range snapshots {
		for i := 0; i <= w; i++ {
			snapshots[w] = append(snapshots[w], input(fmt.Sprintf("w%d-e%d", w, i), "E", syncBase))
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reconcile(ctx, u.ID, u.Subject, snapshots[w]); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent reconcile: %v", err)
	}

	got := storedIDs(t, s, u.ID)
	matched := false
	for _, snap := range snapshots {
		if len(snap) != len(got) {
			continue
		}
		all := true
		for _, in := range snap {
			if _, ok := got[in.ID]; !ok {
				all = false
				break
			}
		}
		if all {
			matched = true
			break
		}
	}
	if !matched {
		t.Fatalf("stored set %v matches no single snapshot", got)
	}
}

func TestReconcileGivesUpWhenCallerLeaves(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	locks := NewOwnerLocks()
	svc := NewSyncService(s, locks, nil, nil, 0)

	unlock, err := locks.Lock(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Reconcile(ctx, u.ID, u.Subject, []EventInput{input("a", "A", syncBase)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := countRows(t, s, "calendar_events"); n != 0 {
		t.Fatalf("events = %d, want 0", n)
	}
}

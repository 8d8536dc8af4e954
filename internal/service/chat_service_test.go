package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

func newChatFixture(t *testing.T, reply string) (*ChatService, *domain.UserContext, *recordingAudit) {
	t.Helper()
	s := newTestStore(t)
	u := newTestUser(t, s, "sub")
	audit := &recordingAudit{}
	chat := NewChatService(
		NewIntentService(&fakeAI{reply: reply}, time.Second),
		NewEventService(s, nil, nil),
		audit,
	)
	return chat, &domain.UserContext{UserID: u.ID, Subject: u.Subject}, audit
}

func TestChatDescribesWithoutExecuting(t *testing.T) {
	chat, uc, audit := newChatFixture(t, validIntent)

	resp, err := chat.Chat(context.Background(), uc, ChatRequest{Message: "lunch with Ada tomorrow"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Executed || resp.Event != nil {
		t.Fatalf("executed without opt-in: %+v", resp)
	}
	if resp.Response != `I'll create "Lunch" on 2025-05-02 at 12:30 with Ada.` {
		t.Fatalf("response = %q", resp.Response)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != domain.AuditActionChat {
		t.Fatalf("audit = %v", got)
	}
}

func TestChatExecutesCreate(t *testing.T) {
	chat, uc, _ := newChatFixture(t, validIntent)

	resp, err := chat.Chat(context.Background(), uc, ChatRequest{
		Message:  "lunch with Ada tomorrow",
		Execute:  true,
		Timezone: "America/New_York",
		Contacts: []ContactInput{{ID: "c-ada", Name: "ada", Emails: []string{"ada@example.com"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !resp.Executed || resp.Event == nil {
		t.Fatalf("not executed: %+v", resp)
	}

	ny, _ := time.LoadLocation("America/New_York")
	wantStart := time.Date(2025, 5, 2, 12, 30, 0, 0, ny)
	if !resp.Event.StartDate.Equal(wantStart) || !resp.Event.EndDate.Equal(wantStart.Add(time.Hour)) {
		t.Fatalf("event times = %v..%v, want %v", resp.Event.StartDate, resp.Event.EndDate, wantStart)
	}
	if len(resp.Event.Contacts) != 1 || resp.Event.Contacts[0].ExternalID != "c-ada" {
		t.Fatalf("contacts = %+v", resp.Event.Contacts)
	}
}

func TestChatQueryIsNeverExecuted(t *testing.T) {
	reply := `{"action":"QUERY","startDate":"2025-05-01","endDate":"2025-05-07","startTime":null,"endTime":null,
		"title":null,"location":null,"contacts":[],"recurrence":null,"notes":null,"isPrivate":false}`
	chat, uc, _ := newChatFixture(t, reply)

	resp, err := chat.Chat(context.Background(), uc, ChatRequest{Message: "what's on this week", Execute: true})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Executed {
		t.Fatal("QUERY intent executed")
	}
	if resp.Response != "Looking up your events from 2025-05-01 to 2025-05-07." {
		t.Fatalf("response = %q", resp.Response)
	}
}

func TestChatValidation(t *testing.T) {
	chat, uc, _ := newChatFixture(t, validIntent)

	var verrs port.ValidationErrors
	if _, err := chat.Chat(context.Background(), uc, ChatRequest{Message: " "}); !errors.As(err, &verrs) {
		t.Fatalf("empty message err = %v", err)
	}
	if _, err := chat.Chat(context.Background(), uc, ChatRequest{Message: "hi", Timezone: "Mars/Olympus"}); !errors.As(err, &verrs) {
		t.Fatalf("bad timezone err = %v", err)
	}
}

func TestEventFromIntentAllDay(t *testing.T) {
	in := &domain.Intent{Action: domain.IntentActionCreate, StartDate: "2025-05-02", EndDate: "2025-05-03", Title: "Trip"}
	ev, err := eventFromIntent(in, time.UTC, nil)
	if err != nil {
		t.Fatalf("eventFromIntent: %v", err)
	}
	if !ev.IsAllDay || ev.StartDate != "2025-05-02T00:00:00Z" || ev.EndDate != "2025-05-04T00:00:00Z" {
		t.Fatalf("event = %+v", ev)
	}

	if _, err := eventFromIntent(&domain.Intent{Action: domain.IntentActionCreate}, time.UTC, nil); err == nil {
		t.Fatal("expected error for missing start date")
	}
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/adapter/store"
	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/service"
)

type staticAI struct{ reply string }

func (a staticAI) ModelName() string { return "static" }

func (a staticAI) Chat(context.Context, string, string, bool) (string, error) { return a.reply, nil }

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore("file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	user, err := s.InsertUser(ctx, domain.ExternalProfile{Subject: "sub"}, time.Now())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	start := time.Now().Add(24 * time.Hour).UTC()
	_, err = service.NewSyncService(s, nil, nil, nil, 0).Reconcile(ctx, user.ID, user.Subject, []service.EventInput{{
		ID:           "a",
		Title:        "Standup",
		StartDate:    start.Format(time.RFC3339),
		EndDate:      start.Add(15 * time.Minute).Format(time.RFC3339),
		CalendarName: "Work",
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	jwtCfg := middleware.JWTConfig{Secret: "secret", Issuer: "tempo", ExpiresIn: time.Hour}
	token, err := middleware.GenerateJWT(user, jwtCfg)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	intent := `{"action":"QUERY","startDate":null,"endDate":null,"startTime":null,"endTime":null,"title":null,"location":null,"contacts":[],"recurrence":null,"notes":null,"isPrivate":false}`
	srv := NewServer(
		service.NewEventService(s, nil, nil),
		service.NewIntentService(staticAI{reply: intent}, time.Second),
		nil,
		jwtCfg,
		"0",
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, token
}

func call(t *testing.T, ts *httptest.Server, token, method string, params any) (int, JSONRPCResponse) {
	t.Helper()
	p, _ := json.Marshal(params)
	body, _ := json.Marshal(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: p})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/mcp", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

func resultText(t *testing.T, r JSONRPCResponse) string {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("rpc error: %+v", r.Error)
	}
	m := r.Result.(map[string]any)
	content := m["content"].([]any)
	return content[0].(map[string]any)["text"].(string)
}

func TestRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)
	status, resp := call(t, ts, "", "tools/list", nil)
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("status = %d, resp = %+v", status, resp)
	}
}

func TestToolsList(t *testing.T) {
	ts, token := newTestServer(t)
	_, resp := call(t, ts, token, "tools/list", nil)
	b, _ := json.Marshal(resp.Result)
	for _, name := range []string{"list_events", "calendar_stats", "parse_intent"} {
		if !strings.Contains(string(b), name) {
			t.Fatalf("tool %s missing from %s", name, b)
		}
	}
}

func TestCallTools(t *testing.T) {
	ts, token := newTestServer(t)

	_, resp := call(t, ts, token, "tools/call", map[string]any{"name": "list_events", "arguments": map[string]string{}})
	if text := resultText(t, resp); !strings.Contains(text, "Standup") {
		t.Fatalf("list_events = %s", text)
	}

	_, resp = call(t, ts, token, "tools/call", map[string]any{"name": "calendar_stats"})
	var stats domain.CalendarStats
	if err := json.Unmarshal([]byte(resultText(t, resp)), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalEvents != 1 || stats.UpcomingEvents != 1 || stats.Calendars["Work"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	_, resp = call(t, ts, token, "tools/call", map[string]any{"name": "parse_intent", "arguments": map[string]string{"message": "what's next"}})
	if text := resultText(t, resp); !strings.Contains(text, `"action":"QUERY"`) {
		t.Fatalf("parse_intent = %s", text)
	}

	_, resp = call(t, ts, token, "tools/call", map[string]any{"name": "nope"})
	if resp.Error == nil {
		t.Fatal("unknown tool should fail")
	}
}

func TestUnknownMethod(t *testing.T) {
	ts, token := newTestServer(t)
	_, resp := call(t, ts, token, "resources/list", nil)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("resp = %+v", resp)
	}
}

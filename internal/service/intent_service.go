package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// intentKeys is the fixed key set every model answer must carry, in prompt order.
var intentKeys = []string{
	"action", "startDate", "endDate", "startTime", "endTime",
	"title", "location", "contacts", "recurrence", "notes", "isPrivate",
}

const intentSystemPrompt = `You are Tempo, a calendar assistant. Convert the user's message into exactly one JSON object and nothing else.
The object must have every one of these keys:
  "action": one of "CREATE", "UPDATE", "DELETE", "QUERY"
  "startDate", "endDate": "YYYY-MM-DD" or null
  "startTime", "endTime": "HH:MM" in 24-hour time or null
  "title": short event title or null
  "location": place name or null
  "contacts": array of contact names from the known contacts list, possibly empty
  "recurrence": "daily", "weekly", "monthly", "yearly" or null
  "notes": free text or null
  "isPrivate": true or false
Resolve relative dates ("tomorrow", "next friday") against the current date given below.`

// IntentService turns chat messages into structured calendar intents through a language model.
type IntentService struct {
	ai      port.AIProvider
	timeout time.Duration
}

// NewIntentService creates an intent translator with the given per-call deadline.
func NewIntentService(ai port.AIProvider, timeout time.Duration) *IntentService {
	return &IntentService{ai: ai, timeout: timeout}
}

// Translate asks the model for an intent. Every failure is a *port.IntentError.
func (s *IntentService) Translate(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.ai.Chat(ctx, intentSystemPrompt, buildIntentPrompt(req), true)
	if err != nil {
		return nil, classifyUpstream(ctx, err)
	}

	return parseIntent(raw)
}

func classifyUpstream(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &port.IntentError{Kind: port.IntentTimeout, Err: err}
	}
	var up *port.UpstreamError
	if errors.As(err, &up) && up.RateLimited() {
		return &port.IntentError{Kind: port.IntentRateLimited, Err: err}
	}
	return &port.IntentError{Kind: port.IntentUpstreamError, Err: err}
}

func buildIntentPrompt(req domain.IntentRequest) string {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s (%s)\n", now.Format(time.DateOnly), now.Weekday())
	fmt.Fprintf(&b, "Current time: %s\n", now.Format("15:04"))
	fmt.Fprintf(&b, "Timezone: %s\n", loc.String())

	if len(req.Roster) > 0 {
		names := make([]string, 0, len(req.Roster))
		for _, c := range req.Roster {
			if c.Name != "" {
				names = append(names, c.Name)
			}
		}
		fmt.Fprintf(&b, "Known contacts: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("Known contacts: none\n")
	}

	fmt.Fprintf(&b, "\nMessage: %s", req.Message)
	return b.String()
}

// parseIntent validates the model's answer in three steps: non-empty, a JSON
// object, then the key set. Values are decoded only after the shape passes.
func parseIntent(raw string) (*domain.Intent, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, &port.IntentError{Kind: port.IntentEmptyOutput}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &port.IntentError{Kind: port.IntentMalformedOutput, Err: err}
	}

	if missing := missingKeys(fields, intentKeys); len(missing) > 0 {
		return nil, &port.IntentError{Kind: port.IntentMissingField, Missing: missing}
	}

	var intent domain.Intent
	if err := json.Unmarshal([]byte(body), &intent); err != nil {
		return nil, &port.IntentError{Kind: port.IntentMalformedOutput, Err: err}
	}

	intent.Action = strings.ToUpper(strings.TrimSpace(intent.Action))
	switch intent.Action {
	case domain.IntentActionCreate, domain.IntentActionUpdate, domain.IntentActionDelete, domain.IntentActionQuery:
	default:
		return nil, &port.IntentError{
			Kind: port.IntentMalformedOutput,
			Err:  fmt.Errorf("unknown action %q", intent.Action),
		}
	}
	if intent.Contacts == nil {
		intent.Contacts = []string{}
	}
	return &intent, nil
}

// missingKeys returns the required keys absent from fields, in required order.
func missingKeys(fields map[string]json.RawMessage, required []string) []string {
	var missing []string
	for _, k := range required {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// stripCodeFence removes a surrounding ``` or ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

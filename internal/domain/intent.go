package domain

import "time"

// Intent actions produced by the language model.
const (
	IntentActionCreate = "CREATE"
	IntentActionUpdate = "UPDATE"
	IntentActionDelete = "DELETE"
	IntentActionQuery  = "QUERY"
)

// Intent is the structured calendar operation parsed from a chat message.
// Date fields are YYYY-MM-DD and time fields HH:MM, both in the caller's timezone.
type Intent struct {
	Action     string   `json:"action"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	StartTime  string   `json:"startTime"`
	EndTime    string   `json:"endTime"`
	Title      string   `json:"title"`
	Location   string   `json:"location"`
	Contacts   []string `json:"contacts"`
	Recurrence string   `json:"recurrence"`
	Notes      string   `json:"notes"`
	IsPrivate  bool     `json:"isPrivate"`
}

// IntentRequest is the input to intent translation.
type IntentRequest struct {
	Message  string
	Now      time.Time
	Location *time.Location
	Roster   []EventContact
}

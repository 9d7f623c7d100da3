package domain

import (
	"strconv"
	"time"
)

// SessionStatus is the lifecycle stage of a practice session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
)

// Question is a single prompt answered during a practice session.
type Question struct {
	ID      string `json:"id"`
	Prompt  string `json:"prompt,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Correct *bool  `json:"correct,omitempty"`
}

// Session is a practice-session record persisted independently of calendar activities.
type Session struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id,omitempty"`
	Number      int               `json:"number"`
	Status      SessionStatus     `json:"status"`
	Date        *time.Time        `json:"date,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
	PlannedDate *time.Time        `json:"planned_date,omitempty"`
	Questions   []Question        `json:"questions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// EffectiveDate is the explicit session date, else the day it was last updated.
func (s *Session) EffectiveDate(loc *time.Location) Date {
	if s == nil {
		return ""
	}
	if s.Date != nil && !s.Date.IsZero() {
		return DateOf(*s.Date, loc)
	}
	return DateOf(s.LastUpdated, loc)
}

// Visible reports whether the session belongs in the calendar view.
func (s *Session) Visible() bool {
	return s != nil && (s.Status == SessionInProgress || s.Status == SessionCompleted)
}

// CalendarEventID returns the legacy activity link stored in metadata.
func (s *Session) CalendarEventID() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return s.Metadata[MetaCalendarEventID]
}

// AsActivity projects the session into the calendar activity shape.
func (s *Session) AsActivity(loc *time.Location) Activity {
	status := StatusInProgress
	if s.Status == SessionCompleted {
		status = StatusCompleted
	}
	number := ""
	if s.Number > 0 {
		number = strconv.Itoa(s.Number)
	}
	return Activity{
		ID:        s.ID,
		UserID:    s.UserID,
		Date:      s.EffectiveDate(loc),
		Type:      ActivityTypeSession,
		Status:    status,
		SessionID: s.ID,
		Title:     "Session #" + strconv.Itoa(s.Number),
		Number:    number,
		UpdatedAt: s.LastUpdated,
	}
}

func (s Session) Clone() Session {
	if s.Date != nil {
		d := *s.Date
		s.Date = &d
	}
	if s.PlannedDate != nil {
		d := *s.PlannedDate
		s.PlannedDate = &d
	}
	if s.Questions != nil {
		qs := make([]Question, len(s.Questions))
		copy(qs, s.Questions)
		for i := range qs {
			if qs[i].Correct != nil {
				c := *qs[i].Correct
				qs[i].Correct = &c
			}
		}
		s.Questions = qs
	}
	if s.Metadata != nil {
		meta := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			meta[k] = v
		}
		s.Metadata = meta
	}
	return s
}

func CloneSessions(items []Session) []Session {
	if items == nil {
		return nil
	}
	out := make([]Session, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

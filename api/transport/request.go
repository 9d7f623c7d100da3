package transport

import (
	"time"

	"github.com/fastygo/studyplanner/domain"
)

// ActivityRequest schedules an activity on a calendar day.
type ActivityRequest struct {
	ID        string            `json:"id"`
	Date      string            `json:"date"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Title     string            `json:"title"`
	Number    string            `json:"number"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata"`
}

// Activity converts the request, validating the date.
func (r ActivityRequest) Activity() (domain.Activity, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return domain.Activity{}, domain.WrapError(domain.ErrCodeInvalid, "invalid activity date", err)
	}
	return domain.Activity{
		ID:        r.ID,
		Date:      date,
		Type:      domain.ActivityType(r.Type),
		Status:    domain.ActivityStatus(r.Status),
		Title:     r.Title,
		Number:    r.Number,
		SessionID: r.SessionID,
		Metadata:  r.Metadata,
	}, nil
}

// SessionRequest creates or updates a practice session.
type SessionRequest struct {
	ID          string            `json:"id"`
	Number      int               `json:"number"`
	Status      string            `json:"status"`
	Date        string            `json:"date"`
	PlannedDate string            `json:"planned_date"`
	Questions   []domain.Question `json:"questions"`
	Metadata    map[string]string `json:"metadata"`
}

// Session converts the request. Dates accept RFC3339 or YYYY-MM-DD in loc.
func (r SessionRequest) Session(loc *time.Location) (domain.Session, error) {
	date, err := parseInstant(r.Date, loc)
	if err != nil {
		return domain.Session{}, domain.WrapError(domain.ErrCodeInvalid, "invalid session date", err)
	}
	planned, err := parseInstant(r.PlannedDate, loc)
	if err != nil {
		return domain.Session{}, domain.WrapError(domain.ErrCodeInvalid, "invalid planned date", err)
	}
	return domain.Session{
		ID:          r.ID,
		Number:      r.Number,
		Status:      domain.SessionStatus(r.Status),
		Date:        date,
		PlannedDate: planned,
		Questions:   r.Questions,
		Metadata:    r.Metadata,
	}, nil
}

func parseInstant(value string, loc *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	date, err := domain.ParseDate(value)
	if err != nil {
		return nil, err
	}
	t, err := date.Time(loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

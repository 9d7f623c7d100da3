package domain

import "time"

// ActivityType classifies a calendar entry.
type ActivityType string

const (
	ActivityTypeSession ActivityType = "session"
	ActivityTypeCustom  ActivityType = "custom"
	ActivityTypeNote    ActivityType = "note"
	// ActivityTypePlanned is written by older clients for planned sessions.
	ActivityTypePlanned ActivityType = "planned"
)

// ActivityStatus is the lifecycle stage of an activity. Notes leave it empty.
type ActivityStatus string

const (
	StatusPlanned    ActivityStatus = "planned"
	StatusInProgress ActivityStatus = "in-progress"
	StatusCompleted  ActivityStatus = "completed"
)

// Priority ranks statuses for collision resolution in the merged day view.
func (s ActivityStatus) Priority() int {
	switch s {
	case StatusPlanned:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

// Metadata keys shared by activities and sessions.
const (
	MetaCalendarEventID = "calendarEventId"
	MetaSessionNumber   = "sessionNumber"
)

// Activity is a schedulable unit shown on a calendar day.
type Activity struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Date      Date              `json:"date"`
	Type      ActivityType      `json:"type"`
	Status    ActivityStatus    `json:"status,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Title     string            `json:"title"`
	Number    string            `json:"number,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Key identifies the activity within a merged day view.
func (a *Activity) Key() string {
	if a.SessionID != "" {
		return a.SessionID
	}
	return a.ID
}

// IsSessionLike reports whether the activity represents a practice session.
func (a *Activity) IsSessionLike() bool {
	return a != nil && (a.Type == ActivityTypeSession || a.Type == ActivityTypePlanned)
}

func (a *Activity) Touch(now time.Time) {
	if a == nil {
		return
	}
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

// Clone returns a deep copy so snapshots never share metadata maps.
func (a Activity) Clone() Activity {
	if a.Metadata != nil {
		meta := make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			meta[k] = v
		}
		a.Metadata = meta
	}
	return a
}

// CloneActivities deep-copies a collection.
func CloneActivities(items []Activity) []Activity {
	if items == nil {
		return nil
	}
	out := make([]Activity, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

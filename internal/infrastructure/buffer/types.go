package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityActivities = "activities"
	EntitySession    = "session"

	OperationReplace = "replace"
	OperationUpsert  = "upsert"
	OperationDelete  = "delete"
)

// Item is a write that could not reach primary storage. Items sharing an ID coalesce: only
// the most recent one is kept, since each carries the full intended state.
type Item struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

// ActivitiesKey is the coalescing key of a user's activity collection.
func ActivitiesKey(userID string) string {
	return EntityActivities + ":" + userID
}

// SessionKey is the coalescing key of one session.
func SessionKey(userID, sessionID string) string {
	return SessionPrefix(userID) + sessionID
}

// SessionPrefix matches every buffered session write of a user.
func SessionPrefix(userID string) string {
	return EntitySession + ":" + userID + ":"
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}

// Package cleanup repairs and prunes the activity collection against the session registry.
package cleanup

import (
	"reflect"

	"github.com/fastygo/studyplanner/domain"
)

// Report summarizes what a sweep changed.
type Report struct {
	Patched int
	Removed int
}

func (r Report) Changed() bool { return r.Patched > 0 || r.Removed > 0 }

// Sweep returns the corrected activity collection. The input is not modified. Applying Sweep
// to its own output with the same sessions returns an equal collection.
func Sweep(activities []domain.Activity, sessions []domain.Session) ([]domain.Activity, Report) {
	var report Report
	out := make([]domain.Activity, 0, len(activities))

	for _, activity := range activities {
		activity = activity.Clone()
		if activity.IsSessionLike() && activity.SessionID == "" {
			if id := findSession(activity.ID, sessions); id != "" {
				activity.SessionID = id
				report.Patched++
			}
		}
		if !keep(activity) {
			report.Removed++
			continue
		}
		out = append(out, activity)
	}
	return out, report
}

// findSession links legacy records created before activities carried a session id.
func findSession(activityID string, sessions []domain.Session) string {
	for i := range sessions {
		if sessions[i].ID == activityID || sessions[i].CalendarEventID() == activityID {
			return sessions[i].ID
		}
	}
	return ""
}

func keep(activity domain.Activity) bool {
	switch {
	case activity.Type == domain.ActivityTypeCustom || activity.Type == domain.ActivityTypeNote:
		return true
	case activity.Status == domain.StatusPlanned || activity.Status == domain.StatusInProgress:
		return true
	case activity.Status == domain.StatusCompleted:
		// the registry is authoritative for completed sessions
		return activity.SessionID != ""
	case activity.IsSessionLike() && activity.SessionID == "":
		return false
	default:
		return true
	}
}

// Equal compares two collections structurally, treating nil and empty as the same.
func Equal(a, b []domain.Activity) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

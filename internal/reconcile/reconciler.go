// Package reconcile merges the activity collection and the session registry into the single
// per-day view shown on the calendar.
package reconcile

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fastygo/studyplanner/domain"
)

// ActivitySource exposes the latest activity snapshot.
type ActivitySource interface {
	Snapshot() []domain.Activity
}

// SessionSource exposes the latest session snapshot.
type SessionSource interface {
	Snapshot() []domain.Session
}

// Reconciler is the only way callers obtain a merged day view; the underlying collections
// stay private to the planner.
type Reconciler struct {
	activities ActivitySource
	sessions   SessionSource
	loc        *time.Location
}

func New(activities ActivitySource, sessions SessionSource, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{activities: activities, sessions: sessions, loc: loc}
}

// View returns the deduplicated, ordered activities for date.
func (r *Reconciler) View(date domain.Date) []domain.Activity {
	var (
		activities []domain.Activity
		sessions   []domain.Session
	)
	if r.activities != nil {
		activities = r.activities.Snapshot()
	}
	if r.sessions != nil {
		sessions = r.sessions.Snapshot()
	}
	return Merge(date, activities, sessions, r.loc)
}

type candidate struct {
	activity domain.Activity
	priority int
}

// Merge combines activities and sessions dated date. At most one record survives per key
// (session id when present, else activity id); on collision the higher status priority wins
// and keeps the slot of the first record seen for that key.
func Merge(date domain.Date, activities []domain.Activity, sessions []domain.Session, loc *time.Location) []domain.Activity {
	var (
		slots []candidate
		byKey = make(map[string]int)
	)

	add := func(activity domain.Activity) {
		c := candidate{activity: activity, priority: activity.Status.Priority()}
		key := activity.Key()
		if idx, ok := byKey[key]; ok {
			if c.priority > slots[idx].priority {
				slots[idx] = c
			}
			return
		}
		byKey[key] = len(slots)
		slots = append(slots, c)
	}

	for _, activity := range activities {
		if activity.Date != date {
			continue
		}
		add(activity.Clone())
	}
	for i := range sessions {
		session := &sessions[i]
		if !session.Visible() || session.EffectiveDate(loc) != date {
			continue
		}
		projected := session.AsActivity(loc)
		if title := session.Metadata["title"]; title != "" {
			projected.Title = title
		}
		add(projected)
	}

	numbered := make([]domain.Activity, 0, len(slots))
	others := make([]domain.Activity, 0)
	for _, slot := range slots {
		if slot.activity.Type == domain.ActivityTypeNote {
			continue
		}
		if slot.activity.IsSessionLike() {
			numbered = append(numbered, slot.activity)
			continue
		}
		others = append(others, slot.activity)
	}

	sort.SliceStable(numbered, func(i, j int) bool {
		return Ordinal(numbered[i]) < Ordinal(numbered[j])
	})

	return append(numbered, others...)
}

var titleOrdinal = regexp.MustCompile(`#(\d+)`)

// Ordinal extracts the sort number of a session-like record: the number field, else a
// "#<digits>" marker in the title, else 0.
func Ordinal(activity domain.Activity) int {
	if n, err := strconv.Atoi(strings.TrimSpace(activity.Number)); err == nil {
		return n
	}
	if match := titleOrdinal.FindStringSubmatch(activity.Title); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			return n
		}
	}
	return 0
}

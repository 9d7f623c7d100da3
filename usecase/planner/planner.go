package planner

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/cleanup"
	"github.com/fastygo/studyplanner/internal/notify"
	"github.com/fastygo/studyplanner/internal/observability"
	"github.com/fastygo/studyplanner/internal/reconcile"
	"github.com/fastygo/studyplanner/internal/state"
	"github.com/fastygo/studyplanner/internal/undo"
	"github.com/fastygo/studyplanner/repository"
)

// Options tune a Planner. Zero values fall back to defaults.
type Options struct {
	UndoWindow   time.Duration
	WriteTimeout time.Duration
	Location     *time.Location
	Now          func() time.Time
	Publisher    notify.Publisher
	Logger       *zap.Logger
}

// Planner is one user's calendar: the activity store, the session registry, the cleanup
// sweeper keeping them consistent and the undo buffer for destructive operations.
type Planner struct {
	userID     string
	activities *state.ActivityStore
	sessions   *state.SessionRegistry
	reconciler *reconcile.Reconciler
	sweeper    *cleanup.Sweeper
	undo       *undo.Buffer
	publisher  notify.Publisher
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
	unsubs    []func()
}

func New(userID string, activities repository.ActivityRepository, sessions repository.SessionRepository, opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Nop{}
	}
	logger := opts.Logger.With(zap.String("user_id", userID))

	activityStore := state.NewActivityStore(userID, activities, logger)
	registry := state.NewSessionRegistry(userID, sessions, opts.Now, logger)

	p := &Planner{
		userID:     userID,
		activities: activityStore,
		sessions:   registry,
		reconciler: reconcile.New(activityStore, registry, opts.Location),
		sweeper:    cleanup.NewSweeper(activityStore, registry, opts.WriteTimeout, logger),
		undo: undo.New(
			undo.WithWindow(opts.UndoWindow),
			undo.WithCommitTimeout(opts.WriteTimeout),
			undo.WithClock(opts.Now),
			undo.WithLogger(logger),
		),
		publisher: opts.Publisher,
		loc:       opts.Location,
		now:       opts.Now,
		logger:    logger,
		listeners: make(map[int]func()),
	}

	p.sweeper.Start()
	p.unsubs = append(p.unsubs,
		activityStore.Subscribe(func() { p.changed("activities") }),
		registry.Subscribe(func() { p.changed("sessions") }),
		p.undo.Subscribe(func() { p.changed("undo") }),
	)
	return p
}

func (p *Planner) UserID() string { return p.userID }

// Load reads both collections. Activities load first so the sweeper's first real pass runs
// once the registry is complete.
func (p *Planner) Load(ctx context.Context) error {
	if err := p.activities.Load(ctx); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "load activities", err)
	}
	if err := p.sessions.Load(ctx); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "load sessions", err)
	}
	return nil
}

// View returns the merged activity list for date.
func (p *Planner) View(date domain.Date) []domain.Activity {
	observability.RecordView()
	return p.reconciler.View(date)
}

func (p *Planner) Session(id string) (domain.Session, error) {
	session, ok := p.sessions.Get(id)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (p *Planner) SessionByNumber(number int) (domain.Session, error) {
	session, ok := p.sessions.GetByNumber(number)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// Sessions lists the registry, used by the session history screen.
func (p *Planner) Sessions() []domain.Session {
	return p.sessions.Snapshot()
}

// Schedule adds an activity to the calendar.
func (p *Planner) Schedule(ctx context.Context, activity domain.Activity) (domain.Activity, error) {
	if activity.Date.IsZero() {
		return domain.Activity{}, domain.NewError(domain.ErrCodeInvalid, "activity date is required")
	}
	switch activity.Type {
	case domain.ActivityTypeSession, domain.ActivityTypePlanned, domain.ActivityTypeCustom:
		if activity.Status == "" {
			activity.Status = domain.StatusPlanned
		}
		if activity.Status.Priority() == 0 {
			return domain.Activity{}, domain.NewError(domain.ErrCodeInvalid, "invalid activity status")
		}
	case domain.ActivityTypeNote:
		activity.Status = ""
	default:
		return domain.Activity{}, domain.NewError(domain.ErrCodeInvalid, "invalid activity type")
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if p.activities.Contains(activity.ID) {
		return domain.Activity{}, domain.NewError(domain.ErrCodeConflict, "activity already exists")
	}
	activity.UserID = p.userID
	activity.Touch(p.now())

	err := p.activities.Update(ctx, func(current []domain.Activity) ([]domain.Activity, bool) {
		return append(current, activity), true
	})
	return activity, err
}

// Promote starts a planned activity: a new in-progress session is created and linked both
// ways (activity.sessionId and session.metadata.calendarEventId).
func (p *Planner) Promote(ctx context.Context, activityID string) (domain.Session, error) {
	activity, ok := p.activities.Get(activityID)
	if !ok {
		return domain.Session{}, domain.ErrActivityNotFound
	}
	if activity.Status != domain.StatusPlanned || activity.Type == domain.ActivityTypeNote {
		return domain.Session{}, domain.NewError(domain.ErrCodeConflict, "only planned activities can be started")
	}

	session := domain.Session{
		ID:       activity.SessionID,
		Status:   domain.SessionInProgress,
		Metadata: map[string]string{domain.MetaCalendarEventID: activity.ID},
	}
	if n, err := strconv.Atoi(strings.TrimSpace(activity.Number)); err == nil && n > 0 {
		session.Number = n
	}
	if day, err := activity.Date.Time(p.loc); err == nil {
		session.Date = &day
	}
	if activity.Title != "" {
		session.Metadata["title"] = activity.Title
	}

	session, err := p.sessions.Upsert(ctx, session)
	if err != nil {
		return session, err
	}

	now := p.now()
	err = p.activities.Update(ctx, func(current []domain.Activity) ([]domain.Activity, bool) {
		for i := range current {
			if current[i].ID != activityID {
				continue
			}
			current[i].SessionID = session.ID
			current[i].Status = domain.StatusInProgress
			current[i].Type = domain.ActivityTypeSession
			current[i].Number = strconv.Itoa(session.Number)
			current[i].Touch(now)
			return current, true
		}
		return current, false
	})
	return session, err
}

// SaveSession creates or updates a session record.
func (p *Planner) SaveSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	if session.Status == "" {
		session.Status = domain.SessionInProgress
	}
	return p.sessions.Upsert(ctx, session)
}

// CompleteSession marks a session completed and moves linked activities along with it.
func (p *Planner) CompleteSession(ctx context.Context, id string) (domain.Session, error) {
	session, ok := p.sessions.Get(id)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session.Status = domain.SessionCompleted
	if session.Date == nil {
		today := p.now()
		session.Date = &today
	}
	session, err := p.sessions.Upsert(ctx, session)
	if err != nil {
		return session, err
	}

	now := p.now()
	err = p.activities.Update(ctx, func(current []domain.Activity) ([]domain.Activity, bool) {
		changed := false
		for i := range current {
			if current[i].SessionID == id && current[i].Status != domain.StatusCompleted {
				current[i].Status = domain.StatusCompleted
				current[i].Touch(now)
				changed = true
			}
		}
		return current, changed
	})
	return session, err
}

// Subscribe registers fn for merged-collection changes. The returned func unsubscribes.
func (p *Planner) Subscribe(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Close commits every pending undo entry and detaches the sweeper.
func (p *Planner) Close(ctx context.Context) error {
	err := p.undo.Flush(ctx)
	p.sweeper.Stop()
	p.mu.Lock()
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	return err
}

func (p *Planner) changed(source string) {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	_ = p.publisher.Publish(context.Background(), notify.Change{UserID: p.userID, Source: source, At: p.now()})
}

package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/api/transport"
	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
	"github.com/fastygo/studyplanner/usecase/planner"
)

// PlannerProvider resolves the planner of an authenticated user.
type PlannerProvider interface {
	For(ctx context.Context, userID string) (*planner.Planner, error)
}

// PlannerHandler serves the calendar, activity, session and undo routes.
type PlannerHandler struct {
	baseHandler
	planners PlannerProvider
	loc      *time.Location
}

func NewPlannerHandler(planners PlannerProvider, loc *time.Location, adapter *httpcontext.Adapter, logger *zap.Logger) *PlannerHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PlannerHandler{
		baseHandler: newBaseHandler(adapter, logger),
		planners:    planners,
		loc:         loc,
	}
}

// serve resolves the caller's planner and hands it to fn together with a request context.
func (h *PlannerHandler) serve(ctx *fasthttp.RequestCtx, fn func(stdCtx context.Context, p *planner.Planner)) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	p, err := h.planners.For(stdCtx, userID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	fn(stdCtx, p)
}

type dayView struct {
	Date       domain.Date       `json:"date"`
	Activities []domain.Activity `json:"activities"`
	Undo       interface{}       `json:"undo,omitempty"`
}

// @Summary Merged activities of a calendar day
// @Tags calendar
// @Router /api/v1/calendar/{date} [get]
func (h *PlannerHandler) Day(ctx *fasthttp.RequestCtx) {
	date, err := domain.ParseDate(pathParam(ctx, "date"))
	if err != nil {
		h.badRequest(ctx, "date must be YYYY-MM-DD")
		return
	}
	h.serve(ctx, func(_ context.Context, p *planner.Planner) {
		view := dayView{Date: date, Activities: p.View(date)}
		if current, ok := p.CurrentUndo(); ok {
			view.Undo = current
		}
		h.respondSuccess(ctx, http.StatusOK, view)
	})
}

// @Summary Merged activities of the day given by ?date
// @Tags activities
// @Router /api/v1/activities [get]
func (h *PlannerHandler) ListActivities(ctx *fasthttp.RequestCtx) {
	date, err := domain.ParseDate(string(ctx.QueryArgs().Peek("date")))
	if err != nil {
		h.badRequest(ctx, "date query parameter must be YYYY-MM-DD")
		return
	}
	h.serve(ctx, func(_ context.Context, p *planner.Planner) {
		h.respondSuccess(ctx, http.StatusOK, p.View(date))
	})
}

// @Summary Schedule an activity
// @Tags activities
// @Router /api/v1/activities [post]
func (h *PlannerHandler) CreateActivity(ctx *fasthttp.RequestCtx) {
	var req transport.ActivityRequest
	if !h.decode(ctx, &req) {
		return
	}
	activity, err := req.Activity()
	if err != nil {
		h.badRequest(ctx, err.Error())
		return
	}
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		created, err := p.Schedule(stdCtx, activity)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusCreated, created)
	})
}

// @Summary Start a planned activity as a session
// @Tags activities
// @Router /api/v1/activities/{id}/promote [post]
func (h *PlannerHandler) PromoteActivity(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		session, err := p.Promote(stdCtx, id)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, session)
	})
}

// @Summary Stage an activity delete
// @Tags activities
// @Router /api/v1/activities/{id} [delete]
func (h *PlannerHandler) DeleteActivity(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		pending, err := p.StageDeleteActivity(stdCtx, id)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusAccepted, pending)
	})
}

// @Summary List sessions, or look one up with ?number
// @Tags sessions
// @Router /api/v1/sessions [get]
func (h *PlannerHandler) ListSessions(ctx *fasthttp.RequestCtx) {
	raw := string(ctx.QueryArgs().Peek("number"))
	number := 0
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(ctx, "number must be a positive integer")
			return
		}
		number = n
	}
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		if number == 0 {
			h.respondSuccess(ctx, http.StatusOK, p.Sessions())
			return
		}
		session, err := p.SessionByNumber(number)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, session)
	})
}

// @Summary Create or update a session
// @Tags sessions
// @Router /api/v1/sessions [post]
func (h *PlannerHandler) SaveSession(ctx *fasthttp.RequestCtx) {
	var req transport.SessionRequest
	if !h.decode(ctx, &req) {
		return
	}
	session, err := req.Session(h.loc)
	if err != nil {
		h.badRequest(ctx, err.Error())
		return
	}
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		status := http.StatusOK
		if session.ID == "" {
			status = http.StatusCreated
		} else if _, err := p.Session(session.ID); err != nil {
			status = http.StatusCreated
		}
		saved, err := p.SaveSession(stdCtx, session)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, status, saved)
	})
}

// @Summary Complete a session
// @Tags sessions
// @Router /api/v1/sessions/{id}/complete [post]
func (h *PlannerHandler) CompleteSession(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		session, err := p.CompleteSession(stdCtx, id)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, session)
	})
}

// @Summary Stage a session delete together with its activities
// @Tags sessions
// @Router /api/v1/sessions/{id} [delete]
func (h *PlannerHandler) DeleteSession(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		pending, err := p.StageDeleteSession(stdCtx, id)
		if err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusAccepted, pending)
	})
}

type undoState struct {
	Current interface{} `json:"current"`
	Pending interface{} `json:"pending"`
}

// @Summary Pending undo entries
// @Tags undo
// @Router /api/v1/undo [get]
func (h *PlannerHandler) PendingUndo(ctx *fasthttp.RequestCtx) {
	h.serve(ctx, func(_ context.Context, p *planner.Planner) {
		state := undoState{Pending: p.PendingUndo()}
		if current, ok := p.CurrentUndo(); ok {
			state.Current = current
		}
		h.respondSuccess(ctx, http.StatusOK, state)
	})
}

// @Summary Undo a staged operation
// @Tags undo
// @Router /api/v1/undo/{id} [post]
func (h *PlannerHandler) Undo(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		if err := p.Undo(stdCtx, id); err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, map[string]string{"undone": id})
	})
}

// @Summary Commit a staged operation now
// @Tags undo
// @Router /api/v1/undo/{id}/commit [post]
func (h *PlannerHandler) Commit(ctx *fasthttp.RequestCtx) {
	id := pathParam(ctx, "id")
	h.serve(ctx, func(stdCtx context.Context, p *planner.Planner) {
		if err := p.Commit(stdCtx, id); err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
		h.respondSuccess(ctx, http.StatusOK, map[string]string{"committed": id})
	})
}

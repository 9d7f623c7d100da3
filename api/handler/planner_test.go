package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/studyplanner/api/handler"
	"github.com/fastygo/studyplanner/api/transport"
	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/internal/infrastructure/monitor"
	"github.com/fastygo/studyplanner/internal/router"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
	"github.com/fastygo/studyplanner/repository/memory"
	"github.com/fastygo/studyplanner/usecase/planner"
)

type staticMonitor struct{ online bool }

func (m staticMonitor) GetStatus() monitor.Status {
	return monitor.Status{Backends: map[string]bool{"postgres": m.online}, Buffer: true}
}

func (m staticMonitor) IsOnline() bool { return m.online }

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code string `json:"code"`
	} `json:"error"`
}

type api struct {
	t       *testing.T
	handler fasthttp.RequestHandler
}

func newAPI(t *testing.T, mem *memory.Store) *api {
	t.Helper()
	manager := planner.NewManager(mem.Activities(), mem.Sessions(), planner.ManagerConfig{
		Options: planner.Options{UndoWindow: time.Hour},
	})
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	asUser := func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if user := string(ctx.Request.Header.Peek("X-Test-User")); user != "" {
				ctx.SetUserValue(httpcontext.UserIDValue, user)
			}
			next(ctx)
		}
	}
	adapter := httpcontext.NewAdapter(time.Second)
	r := router.New(router.Handlers{
		Planner: apiHandler.NewPlannerHandler(manager, time.UTC, adapter, nil),
		Health:  apiHandler.NewHealthHandler(staticMonitor{online: true}, adapter, nil),
	}, asUser, router.Options{EnableMetrics: true})
	return &api{t: t, handler: r.Handler}
}

func (a *api) do(method, uri, body string) (int, envelope) {
	a.t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	ctx.Request.Header.Set("X-Test-User", "u1")
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	a.handler(ctx)

	var env envelope
	if len(ctx.Response.Body()) > 0 && string(ctx.Response.Header.ContentType()) == "application/json" {
		require.NoError(a.t, json.Unmarshal(ctx.Response.Body(), &env))
	}
	return ctx.Response.StatusCode(), env
}

func TestCalendarDayMergesSessionsAndActivities(t *testing.T) {
	mem := memory.NewStore()
	mem.SeedActivities("u1", []domain.Activity{
		{ID: "a2", Date: "2024-01-01", Type: domain.ActivityTypeSession, Status: domain.StatusPlanned, Title: "Quiz #10"},
		{ID: "a1", Date: "2024-01-01", Type: domain.ActivityTypeSession, Status: domain.StatusPlanned, Title: "Quiz #2", SessionID: "s1"},
		{ID: "n1", Date: "2024-01-01", Type: domain.ActivityTypeNote, Title: "bring pencil"},
	})
	when := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	mem.SeedSessions("u1", domain.Session{ID: "s1", Number: 2, Status: domain.SessionCompleted, Date: &when, LastUpdated: when})
	a := newAPI(t, mem)

	status, env := a.do(http.MethodGet, "/api/v1/calendar/2024-01-01", "")
	require.Equal(t, http.StatusOK, status)

	var view struct {
		Activities []domain.Activity `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Activities, 2)
	assert.Equal(t, "s1", view.Activities[0].Key())
	assert.Equal(t, domain.StatusCompleted, view.Activities[0].Status)
	assert.Equal(t, "a2", view.Activities[1].Key())

	status, _ = a.do(http.MethodGet, "/api/v1/calendar/not-a-date", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStagedDeleteCanBeUndoneOverHTTP(t *testing.T) {
	mem := memory.NewStore()
	a := newAPI(t, mem)

	status, env := a.do(http.MethodPost, "/api/v1/activities", `{"id":"a1","date":"2024-01-01","type":"custom","title":"Read"}`)
	require.Equal(t, http.StatusCreated, status)

	status, env = a.do(http.MethodDelete, "/api/v1/activities/a1", "")
	require.Equal(t, http.StatusAccepted, status)
	var pending struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.NotEmpty(t, pending.ID)

	status, env = a.do(http.MethodGet, "/api/v1/activities?date=2024-01-01", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, _ = a.do(http.MethodPost, "/api/v1/undo/"+pending.ID, "")
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodGet, "/api/v1/activities?date=2024-01-01", "")
	require.Equal(t, http.StatusOK, status)
	var items []domain.Activity
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "a1", items[0].ID)

	status, env = a.do(http.MethodPost, "/api/v1/undo/"+pending.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(domain.ErrCodeNotFound), env.Error.Code)

	status, env = a.do(http.MethodGet, "/api/v1/activities", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(domain.ErrCodeInvalid), env.Error.Code)
}

func TestSessionRoutes(t *testing.T) {
	a := newAPI(t, memory.NewStore())

	status, env := a.do(http.MethodPost, "/api/v1/sessions", `{"status":"in-progress","date":"2024-01-02"}`)
	require.Equal(t, http.StatusCreated, status)
	var session domain.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, 1, session.Number)

	status, _ = a.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/complete", "")
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodGet, "/api/v1/sessions?number=1", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, domain.SessionCompleted, session.Status)

	status, _ = a.do(http.MethodPost, "/api/v1/sessions", `{"status":"paused"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(http.MethodDelete, "/api/v1/sessions/"+session.ID, "")
	require.Equal(t, http.StatusAccepted, status)
	status, _ = a.do(http.MethodPost, "/api/v1/undo/session:"+session.ID+"/commit", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(http.MethodGet, "/api/v1/sessions?number=1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutesRequireUser(t *testing.T) {
	a := newAPI(t, memory.NewStore())
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(http.MethodGet)
	ctx.Request.SetRequestURI("/api/v1/undo")
	a.handler(ctx)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t, memory.NewStore())

	status, env := a.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, transport.StatusOK, env.Status)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(http.MethodGet)
	ctx.Request.SetRequestURI("/metrics")
	a.handler(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "studyplanner_")
}

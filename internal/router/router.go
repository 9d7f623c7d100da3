package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/studyplanner/api/handler"
	"github.com/fastygo/studyplanner/internal/middleware"
)

type Handlers struct {
	Planner *apiHandler.PlannerHandler
	Health  *apiHandler.HealthHandler
}

type Options struct {
	EnableMetrics bool
	EnablePprof   bool
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler, opts Options) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if opts.EnableMetrics {
		r.GET("/metrics", handlers.Health.Metrics)
	}
	if opts.EnablePprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	protected := func(route string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return middleware.Instrument(route, authMiddleware(h))
	}

	api := r.Group("/api/v1")

	api.GET("/calendar/{date}", protected("calendar.day", handlers.Planner.Day))

	api.GET("/activities", protected("activities.list", handlers.Planner.ListActivities))
	api.POST("/activities", protected("activities.create", handlers.Planner.CreateActivity))
	api.POST("/activities/{id}/promote", protected("activities.promote", handlers.Planner.PromoteActivity))
	api.DELETE("/activities/{id}", protected("activities.delete", handlers.Planner.DeleteActivity))

	api.GET("/sessions", protected("sessions.list", handlers.Planner.ListSessions))
	api.POST("/sessions", protected("sessions.save", handlers.Planner.SaveSession))
	api.POST("/sessions/{id}/complete", protected("sessions.complete", handlers.Planner.CompleteSession))
	api.DELETE("/sessions/{id}", protected("sessions.delete", handlers.Planner.DeleteSession))

	api.GET("/undo", protected("undo.pending", handlers.Planner.PendingUndo))
	api.POST("/undo/{id}", protected("undo.undo", handlers.Planner.Undo))
	api.POST("/undo/{id}/commit", protected("undo.commit", handlers.Planner.Commit))

	return r
}

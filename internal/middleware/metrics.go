package middleware

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/studyplanner/internal/observability"
)

// Instrument records the latency of every request under route.
func Instrument(route string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		next(ctx)
		observability.RecordRequest(route, ctx.Response.StatusCode(), time.Since(started))
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/api/transport"
	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
	appLogger "github.com/fastygo/studyplanner/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	stdCtx := appLogger.ContextWithUserID(context.Background(), httpcontext.UserID(ctx))
	return context.WithCancel(stdCtx)
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Response) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.OK(data))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		appLogger.FromContext(stdCtx, h.logger).Error("request failed",
			zap.String("path", string(ctx.Path())),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.Fail(code, err.Error()))
}

func (h baseHandler) badRequest(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.Fail(string(domain.ErrCodeInvalid), message))
}

// userID returns the authenticated caller or writes a 401.
func (h baseHandler) userID(ctx *fasthttp.RequestCtx) string {
	userID := httpcontext.UserID(ctx)
	if userID == "" {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.Fail(string(domain.ErrCodeUnauthorized), "missing user id"))
	}
	return userID
}

func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.badRequest(ctx, "invalid payload")
		return false
	}
	return true
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}

var statusByCode = map[domain.ErrorCode]int{
	domain.ErrCodeUnauthorized: http.StatusUnauthorized,
	domain.ErrCodeForbidden:    http.StatusForbidden,
	domain.ErrCodeInvalid:      http.StatusBadRequest,
	domain.ErrCodeNotFound:     http.StatusNotFound,
	domain.ErrCodeConflict:     http.StatusConflict,
	domain.ErrCodeUnavailable:  http.StatusServiceUnavailable,
}

func mapError(err error) (int, string) {
	if code, ok := domain.CodeOf(err); ok {
		if status, known := statusByCode[code]; known {
			return status, string(code)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, string(domain.ErrCodeUnavailable)
	}
	return http.StatusInternalServerError, string(domain.ErrCodeInternal)
}

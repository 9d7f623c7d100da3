package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/studyplanner/api/transport"
	"github.com/fastygo/studyplanner/domain"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
)

// JWTAuth accepts HMAC-signed bearer tokens carrying a user_id claim and exposes the
// caller to handlers through the user_id value and the X-User-ID header.
func JWTAuth(secret, issuer string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				unauthorized(ctx, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				unauthorized(ctx, "invalid token")
				return
			}
			if issuer != "" && !claims.VerifyIssuer(issuer, true) {
				logger.Warn("jwt issuer mismatch", zap.Any("iss", claims["iss"]))
				unauthorized(ctx, "invalid token")
				return
			}

			userID, _ := claims["user_id"].(string)
			if userID == "" {
				userID, _ = claims["sub"].(string)
			}
			if userID == "" {
				unauthorized(ctx, "token has no user")
				return
			}
			ctx.SetUserValue(httpcontext.UserIDValue, userID)
			ctx.Request.Header.Set("X-User-ID", userID)

			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx, message string) {
	body, _ := json.Marshal(transport.Fail(string(domain.ErrCodeUnauthorized), message))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(http.StatusUnauthorized)
	ctx.SetBody(body)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/studyplanner/pkg/httpcontext"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func serve(token string) (*fasthttp.RequestCtx, string) {
	var seen string
	handler := JWTAuth(secret, "studyplanner", nil)(func(ctx *fasthttp.RequestCtx) {
		seen = httpcontext.UserID(ctx)
		ctx.SetStatusCode(http.StatusOK)
	})
	ctx := &fasthttp.RequestCtx{}
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	handler(ctx)
	return ctx, seen
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"user_id": "u1",
		"iss":     "studyplanner",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	ctx, seen := serve(token)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "u1", seen)
}

func TestJWTAuthRejects(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return "" }},
		{"wrong secret", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u1", "iss": "studyplanner"})
		}},
		{"expired", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
				"user_id": "u1", "iss": "studyplanner", "exp": time.Now().Add(-time.Minute).Unix(),
			})
		}},
		{"wrong issuer", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": "u1", "iss": "elsewhere"})
		}},
		{"no user", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"iss": "studyplanner"})
		}},
		{"unsigned", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"user_id": "u1", "iss": "studyplanner"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, seen := serve(tt.token(t))
			assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
			assert.Empty(t, seen)
		})
	}
}

package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/mintbay/mintbay/internal/errors"
)

// callerKey is the gin context key holding the authenticated account.
const callerKey = "caller_account"

// RequireAuth rejects requests without a valid bearer token and records
// the token subject as the caller account.
func RequireAuth(auth *Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			renderError(c, apperr.New(apperr.CodeAuthMissingToken, "missing bearer token"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			renderError(c, apperr.New(apperr.CodeAuthInvalidToken, "malformed authorization header"))
			c.Abort()
			return
		}

		account, err := auth.VerifyToken(parts[1])
		if err != nil {
			renderError(c, err)
			c.Abort()
			return
		}

		c.Set(callerKey, account)
		c.Next()
	}
}

// Caller returns the authenticated account set by RequireAuth.
func Caller(c *gin.Context) string {
	return c.GetString(callerKey)
}

// Trace wraps each request in a server span named after the gin route.
func Trace(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", name),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}

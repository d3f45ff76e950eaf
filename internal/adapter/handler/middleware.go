package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/core/service"
)

type ctxKey int

const claimsKey ctxKey = iota

// RequestLogger writes one access log entry per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		entry := logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": chimiddleware.GetReqID(r.Context()),
			"client_ip":  r.RemoteAddr,
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request processed")
		}
	})
}

// TokenParser turns a bearer token into claims.
type TokenParser interface {
	ParseToken(raw string) (*service.Claims, error)
}

// RequireRole rejects requests without a valid bearer token for one of roles.
func RequireRole(tokens TokenParser, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, domain.ErrUnauthorized)
				return
			}

			claims, err := tokens.ParseToken(strings.TrimSpace(raw))
			if err != nil {
				writeError(w, err)
				return
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				logrus.WithFields(logrus.Fields{
					"email": claims.Email,
					"role":  claims.Role,
					"path":  r.URL.Path,
				}).Warn("forbidden admin request")
				writeError(w, domain.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// ClaimsFrom returns the claims RequireRole stored on the request context.
func ClaimsFrom(ctx context.Context) (*service.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*service.Claims)
	return c, ok
}

package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mohitnawani/taskdeck/internal/domain"
)

type authContextKey string

const contextKeyIdentity authContextKey = "taskdeck-identity"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth is the single authorization gate: it validates the bearer
// token, resolves it to a live account and attaches the identity to the
// request context. Every failure mode yields the same 401.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, *domain.User, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	user, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyIdentity, user)
	return ctx, user, true
}

// identityFromContext extracts the resolved account from context.
func identityFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextKeyIdentity).(*domain.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tacklebox-studio/tacklebox/internal/auth"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

type contextKey int

const (
	ctxSession contextKey = iota // models.Session resolved for the request
)

// SessionFrom returns the session resolved for the request context. A
// context without one is treated as still loading.
func SessionFrom(ctx context.Context) models.Session {
	s, ok := ctx.Value(ctxSession).(models.Session)
	if !ok {
		return models.LoadingSession()
	}
	return s
}

func withSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

// SessionSource resolves the session of an incoming request.
type SessionSource interface {
	SessionFor(r *http.Request) (models.Session, error)
}

// BearerSessions resolves sessions from "Authorization: Bearer <jwt>"
// headers signed with Secret.
type BearerSessions struct {
	Secret []byte
}

// SessionFor implements SessionSource. Requests without a bearer token are
// anonymous.
func (b BearerSessions) SessionFor(r *http.Request) (models.Session, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return models.AnonymousSession(), nil
	}
	return auth.SessionFromToken(strings.TrimSpace(token), b.Secret)
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tacklebox-studio/tacklebox/internal/core"
)

// RequireAccess returns a middleware enforcing req against the request
// session:
//
//	loading  -> 503 with Retry-After
//	redirect -> 302 to the login path
//	denied   -> 403 "access denied"
//	allow    -> next handler
//
// The response never explains which requirement failed.
func (srv *Server) RequireAccess(req core.Requirement) (func(http.Handler) http.Handler, error) {
	guard, err := core.NewGuard(req, srv.levels, srv.events)
	if err != nil {
		return nil, err
	}
	resource := req.Name

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := guard.Evaluate(SessionFrom(r.Context()))
			srv.metrics.guard.WithLabelValues(resource, string(decision)).Inc()

			switch decision {
			case core.DecisionLoading:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			case core.DecisionRedirect:
				http.Redirect(w, r, srv.cfg.LoginPath, http.StatusFound)
			case core.DecisionDenied:
				http.Error(w, "access denied", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}, nil
}

// resolveSession stores the request's session in its context. A token that
// fails verification resolves to an anonymous session.
func (srv *Server) resolveSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := srv.sessions.SessionFor(r)
		if err != nil {
			srv.logger.Debug("rejected session token",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
	})
}

func (srv *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		srv.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"client_ip", r.RemoteAddr,
		)
	})
}

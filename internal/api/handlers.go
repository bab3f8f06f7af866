package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/internal/storage"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}

type healthResponse struct {
	Status        string `json:"status"`
	PolicyVersion string `json:"policy_version,omitempty"`
}

func (srv *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		PolicyVersion: srv.tables.Policy().Version,
	})
}

// preflightRequest names either a task (its current status is looked up)
// or an explicit current status.
type preflightRequest struct {
	TaskID string            `json:"task_id,omitempty"`
	From   models.TaskStatus `json:"from,omitempty"`
	To     models.TaskStatus `json:"to"`
}

type preflightResponse struct {
	Allowed bool              `json:"allowed"`
	Reason  core.ErrorKind    `json:"reason,omitempty"`
	From    models.TaskStatus `json:"from"`
	To      models.TaskStatus `json:"to"`
}

func (srv *Server) preflightHandler(w http.ResponseWriter, r *http.Request) {
	var req preflightRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.To == "" {
		http.Error(w, "to is required", http.StatusBadRequest)
		return
	}

	user := SessionFrom(r.Context()).User

	var result core.TransitionResult
	switch {
	case req.TaskID != "":
		if srv.tasks == nil {
			http.Error(w, "task lookup is not configured", http.StatusNotImplemented)
			return
		}
		var err error
		result, err = srv.tasks.Preflight(r.Context(), user, req.TaskID, req.To)
		if errors.Is(err, storage.ErrTaskNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		if err != nil {
			srv.logger.Error("preflight task lookup failed", "task_id", req.TaskID, "error", err)
			http.Error(w, "task lookup failed", http.StatusBadGateway)
			return
		}
	case req.From != "":
		result = srv.machine.ValidateUserTransition(req.From, req.To, user)
		srv.logPreflight(user, result)
	default:
		http.Error(w, "task_id or from is required", http.StatusBadRequest)
		return
	}

	outcome := "allowed"
	if !result.Allowed {
		outcome = string(result.Reason)
	}
	srv.metrics.preflight.WithLabelValues(outcome).Inc()

	writeJSON(w, http.StatusOK, preflightResponse{
		Allowed: result.Allowed,
		Reason:  result.Reason,
		From:    result.From,
		To:      result.To,
	})
}

func (srv *Server) logPreflight(user models.User, result core.TransitionResult) {
	if srv.events == nil {
		return
	}
	data := map[string]any{
		"old_status": string(result.From),
		"new_status": string(result.To),
	}
	if user != nil {
		data["user_id"] = user.UserID()
		data["role"] = string(user.Role())
	}
	eventType := core.EventTransitionValidated
	if !result.Allowed {
		eventType = core.EventTransitionRejected
		data["reason"] = string(result.Reason)
	}
	if err := srv.events.LogEvent(eventType, data); err != nil {
		srv.logger.Debug("event log write failed", "event", eventType, "error", err)
	}
}

type permissionsResponse struct {
	Role        models.Role `json:"role"`
	Label       string      `json:"label"`
	Permissions []string    `json:"permissions"`
}

func (srv *Server) permissionsHandler(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		http.Error(w, "unknown role", http.StatusNotFound)
		return
	}
	perms := srv.roles.Permissions(role)
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, permissionsResponse{
		Role:        role,
		Label:       role.Label(),
		Permissions: perms,
	})
}

type meResponse struct {
	ID              string      `json:"id"`
	Role            models.Role `json:"role"`
	Label           string      `json:"label"`
	StoredLevel     *int        `json:"stored_level,omitempty"`
	EffectiveLevel  int         `json:"effective_level"`
	Title           string      `json:"title,omitempty"`
	Capabilities    []string    `json:"capabilities"`
	NextUnlockLevel int         `json:"next_unlock_level,omitempty"`
	NextUnlock      []string    `json:"next_unlock,omitempty"`
}

func (srv *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	user := SessionFrom(r.Context()).User
	level := srv.levels.EffectiveLevel(user)

	resp := meResponse{
		ID:             user.UserID(),
		Role:           user.Role(),
		Label:          user.Role().Label(),
		EffectiveLevel: level,
		Capabilities:   []string{},
	}
	if stored, ok := models.StoredLevel(user); ok {
		resp.StoredLevel = &stored
	}
	if user.Role() != models.RoleClient {
		resp.Title = srv.levels.Title(user)
		if caps := srv.levels.Capabilities(level); caps != nil {
			resp.Capabilities = caps
		}
		if next, keys, ok := srv.levels.NextUnlock(level); ok {
			resp.NextUnlockLevel = next
			resp.NextUnlock = keys
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (srv *Server) policyHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, srv.tables.Policy())
}

/*
handlers.go - HTTP API handlers for the leave service

PURPOSE:
  Exposes the leave workflow via REST API. Handles HTTP request/response
  and JSON serialization, and delegates everything else to leave.Service
  and auth.Service. Handlers never make authorization decisions; they
  pass the caller's Principal to the service, which checks it.

ENDPOINTS:
  Auth:
    POST   /api/auth/register          Register (admin may set role/quota)
    POST   /api/auth/login             Email + password -> token
    POST   /api/auth/logout            Stateless, always 204
    GET    /api/auth/me                Current user

  Leaves:
    GET    /api/leaves                 List (admin: all, user: own)
    POST   /api/leaves                 Apply for leave
    GET    /api/leaves/calendar        Approved leave in ?from=&to=
    GET    /api/leaves/{id}            One request
    GET    /api/leaves/{id}/history    Audit trail
    PUT    /api/leaves/{id}            Set status (admin)
    DELETE /api/leaves/{id}            Delete (owner or admin)

  Users:
    GET    /api/users                  List (admin)
    PUT    /api/users/profile          Edit own profile
    GET    /api/users/{id}             One user (admin or self)
    PUT    /api/users/{id}             Edit user / adjust quota (admin)
    DELETE /api/users/{id}             Delete user (admin)

REQUEST FLOW:
  1. Decode body / query
  2. Validate (validator tags)
  3. Call the service with the caller's Principal
  4. Serialize response
  5. Map errors (see errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Leave    *leave.Service
	Auth     *auth.Service
	Validate *validator.Validate
	Logger   *zap.Logger

	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// NewHandler creates a handler. A nil logger or validator gets a default.
func NewHandler(leaveSvc *leave.Service, authSvc *auth.Service, validate *validator.Validate, logger *zap.Logger) *Handler {
	if validate == nil {
		validate = auth.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Leave: leaveSvc, Auth: authSvc, Validate: validate, Logger: logger}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates an account. Anonymous callers always get a plain user.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.Auth.Register(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{Message: "User registered successfully", User: user})
}

// Login exchanges credentials for a token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
		User:      res.User,
	})
}

// Logout is a no-op; tokens are stateless and the client discards them.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Auth.Me(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeaves returns requests newest first. Optional filters:
// ?status=, ?userId= (admin only), ?from=, ?to=.
// GET /api/leaves
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.RequestFilter{
		UserID: q.Get("userId"),
		Status: leave.Status(q.Get("status")),
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from"), "from"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.To, err = optionalDate(q.Get("to"), "to"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views, err := h.Leave.List(r.Context(), PrincipalFrom(r.Context()), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []leave.RequestView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ApplyLeave files a pending request for the caller.
// POST /api/leaves
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		h.writeServiceError(w, r, &leave.ValidationError{Field: "startDate", Message: err.Error()})
		return
	}
	end, err := leave.ParseDate(req.EndDate)
	if err != nil {
		h.writeServiceError(w, r, &leave.ValidationError{Field: "endDate", Message: err.Error()})
		return
	}

	created, err := h.Leave.Apply(r.Context(), PrincipalFrom(r.Context()), leave.ApplyInput{
		StartDate: start,
		EndDate:   end,
		LeaveType: leave.LeaveType(req.LeaveType),
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, LeaveResponse{Message: "Leave application submitted successfully", Leave: created})
}

// Calendar returns the team's approved leave overlapping [from, to].
// GET /api/leaves/calendar?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := optionalDate(q.Get("from"), "from")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	to, err := optionalDate(q.Get("to"), "to")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views, err := h.Leave.Calendar(r.Context(), PrincipalFrom(r.Context()), from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []leave.RequestView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// GetLeave returns one request.
// GET /api/leaves/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.Leave.Get(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// LeaveHistory returns the audit trail of one request, oldest first.
// GET /api/leaves/{id}/history
func (h *Handler) LeaveHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Leave.History(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []leave.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// SetLeaveStatus approves or rejects a request.
// PUT /api/leaves/{id}
func (h *Handler) SetLeaveStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.Leave.SetStatus(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), leave.Status(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveResponse{Message: "Leave status updated successfully", Leave: updated})
}

// DeleteLeave removes a request, refunding it if it was approved.
// DELETE /api/leaves/{id}
func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	if err := h.Leave.Delete(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Leave deleted successfully"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns every user sorted by name.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Leave.ListUsers(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []leave.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns one user.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Leave.GetUser(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser edits a user. Changing annualLeaveQuota moves remaining by
// the same amount.
// PUT /api/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	update := leave.UserUpdate{
		Name:             req.Name,
		Email:            req.Email,
		AnnualLeaveQuota: req.AnnualLeaveQuota,
	}
	if req.Role != nil {
		role := leave.Role(*req.Role)
		update.Role = &role
	}

	user, err := h.Leave.UpdateUser(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "User updated successfully", User: user})
}

// UpdateProfile edits the caller's own name, email, or password.
// PUT /api/users/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req auth.ProfileInput
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.Auth.UpdateProfile(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Message: "Profile updated successfully", User: user})
}

// DeleteUser removes a user and their requests.
// DELETE /api/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Leave.DeleteUser(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether storage is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and runs tag validation. It writes
// the error response itself and reports whether the handler may proceed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := auth.Validate(h.Validate, dst); err != nil {
		h.writeServiceError(w, r, err)
		return false
	}
	return true
}

func optionalDate(raw, field string) (leave.Date, error) {
	if raw == "" {
		return leave.Date{}, nil
	}
	d, err := leave.ParseDate(raw)
	if err != nil {
		return leave.Date{}, &leave.ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

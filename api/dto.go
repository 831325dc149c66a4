/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request bodies carry
  validator tags and are checked before anything reaches the service.
  Responses embed the domain types directly; their JSON tags are the
  public contract (PasswordHash is never serialized).

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Auth:
    LoginResponse (request bodies are auth.RegisterInput, auth.LoginInput,
    auth.ProfileInput)

  Leave:
    ApplyLeaveRequest, SetStatusRequest, LeaveResponse

  Users:
    UpdateUserRequest, UserResponse

SEE ALSO:
  - handlers.go: Uses these types
  - auth/validation.go: validator setup
*/
package api

import (
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ApplyLeaveRequest is the body of POST /api/leaves. Dates are YYYY-MM-DD
// (an RFC 3339 timestamp is accepted and truncated to its date).
type ApplyLeaveRequest struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	LeaveType string `json:"leaveType" validate:"omitempty,oneof=full half"`
	Reason    string `json:"reason" validate:"max=500"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateUserRequest is the admin edit body. Omitted fields are unchanged.
type UpdateUserRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email            *string `json:"email" validate:"omitempty,email,max=255"`
	Role             *string `json:"role" validate:"omitempty,oneof=user admin"`
	AnnualLeaveQuota *int    `json:"annualLeaveQuota" validate:"omitempty,min=0,max=366"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	User      *leave.User `json:"user"`
}

type LeaveResponse struct {
	Message string         `json:"message"`
	Leave   *leave.Request `json:"leave"`
}

type UserResponse struct {
	Message string      `json:"message"`
	User    *leave.User `json:"user"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

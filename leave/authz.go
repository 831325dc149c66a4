package leave

// Action is an operation a Principal may attempt on a resource.
type Action string

const (
	ActionApply       Action = "apply for leave"
	ActionView        Action = "view leave request"
	ActionSetStatus   Action = "change leave status"
	ActionDelete      Action = "delete leave request"
	ActionManageUsers Action = "manage users"
	ActionViewUser    Action = "view user"
	ActionCalendar    Action = "view team calendar"
	ActionProfile     Action = "update profile"
)

// Authorize decides whether p may perform action on a resource owned by
// ownerID. Empty ownerID means the resource has no owner (e.g. the user
// directory). It returns nil or a *ForbiddenError.
func Authorize(p Principal, action Action, ownerID string) error {
	if p.ID == "" || !p.Role.Valid() {
		return &ForbiddenError{Action: action}
	}
	if p.IsAdmin() {
		return nil
	}

	switch action {
	case ActionApply, ActionCalendar:
		return nil
	case ActionView, ActionDelete, ActionViewUser, ActionProfile:
		if ownerID != "" && ownerID == p.ID {
			return nil
		}
	}
	return &ForbiddenError{Action: action}
}

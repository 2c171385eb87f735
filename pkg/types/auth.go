package types

// AuthContext carries the authenticated caller's identity and permission set
// into every service call. It is resolved once by the auth middleware and
// passed explicitly; services never reach back into request state.
type AuthContext struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the caller holds the named permission.
// A nil context holds none.
func (a *AuthContext) HasPermission(perm string) bool {
	if a == nil {
		return false
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Permission names checked by the scheduling routes.
const (
	PermScheduleWrite    = "schedule:write"
	PermAppointmentWrite = "appointment:write"
	PermQueueManage      = "queue:manage"
)

package guard

import (
	"slices"

	"github.com/tasklane/tasklane/internal/principal"
)

// State is the per-mount authorization state.
type State int

const (
	StateUnknown State = iota
	StateAuthorized
	StateUnauthorized
)

func (s State) String() string {
	switch s {
	case StateAuthorized:
		return "authorized"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further event can change the state.
func (s State) Terminal() bool {
	return s != StateUnknown
}

// EventKind enumerates what can happen while a mount is unknown.
type EventKind int

const (
	EventAuthenticated EventKind = iota + 1
	EventUnauthenticated
	EventTimedOut
)

// Event is fed to Reduce.
type Event struct {
	Kind      EventKind
	Principal principal.Principal
}

// Constraint restricts which authenticated principals are authorized.
// The zero value authorizes every authenticated principal.
type Constraint struct {
	RequiredRole principal.Role
	AllowedRoles []principal.Role
}

// Permits reports whether p satisfies the constraint.
func (c Constraint) Permits(p principal.Principal) bool {
	if p == nil {
		return false
	}
	if c.RequiredRole == "" && len(c.AllowedRoles) == 0 {
		return true
	}
	role := p.GetRole()
	if c.RequiredRole != "" && role == c.RequiredRole {
		return true
	}
	return slices.Contains(c.AllowedRoles, role)
}

// Reduce computes the next state. Terminal states absorb every event, and
// anything other than an authenticated, permitted principal denies access.
func Reduce(s State, ev Event, match func(principal.Principal) bool, c Constraint) State {
	if s.Terminal() {
		return s
	}
	switch ev.Kind {
	case EventAuthenticated:
		if ev.Principal == nil {
			return StateUnauthorized
		}
		if match != nil && !match(ev.Principal) {
			return StateUnauthorized
		}
		if !c.Permits(ev.Principal) {
			return StateUnauthorized
		}
		return StateAuthorized
	case EventUnauthenticated, EventTimedOut:
		return StateUnauthorized
	}
	return s
}

// Package principal models the authenticated actors of the marketplace.
//
// A Principal is one of three disjoint variants. Values are only ever
// constructed from a complete profile payload; there is no partially
// authenticated principal.
package principal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrIncomplete is returned when a payload lacks the identity fields.
var ErrIncomplete = errors.New("principal: incomplete payload")

// Principal describes the authenticated actor.
type Principal interface {
	GetID() string
	GetName() string
	GetRole() Role
}

// User is a regular marketplace account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (u *User) GetID() string   { return u.ID }
func (u *User) GetName() string { return u.Name }
func (u *User) GetRole() Role   { return RoleUser }

// Admin is a back-office administrator.
type Admin struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	IsSuperAdmin bool       `json:"is_super_admin"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

func (a *Admin) GetID() string   { return a.ID }
func (a *Admin) GetName() string { return a.Name }
func (a *Admin) GetRole() Role   { return RoleAdmin }

// CustomerServiceAgent is a support agent working the service console.
type CustomerServiceAgent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	AvgRating    float64 `json:"avg_rating"`
	TotalRatings int     `json:"total_ratings"`
	IsOnline     bool    `json:"is_online"`
}

func (c *CustomerServiceAgent) GetID() string   { return c.ID }
func (c *CustomerServiceAgent) GetName() string { return c.Name }
func (c *CustomerServiceAgent) GetRole() Role   { return RoleCustomerService }

// New returns an empty variant for role.
func New(role Role) (Principal, error) {
	switch role {
	case RoleUser:
		return &User{}, nil
	case RoleAdmin:
		return &Admin{}, nil
	case RoleCustomerService:
		return &CustomerServiceAgent{}, nil
	}
	return nil, fmt.Errorf("principal: unknown role %q", role)
}

// Decode parses a bare profile object for role.
func Decode(role Role, data []byte) (Principal, error) {
	p, err := New(role)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("principal: decode %s: %w", role, err)
	}
	if p.GetID() == "" {
		return nil, ErrIncomplete
	}
	return p, nil
}

// DecodeEnvelope parses a login-style body such as {"admin": {...}}.
// A body without the envelope key is read as a bare profile object.
func DecodeEnvelope(role Role, data []byte) (Principal, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("principal: decode envelope: %w", err)
	}
	if raw, ok := envelope[role.Key()]; ok {
		return Decode(role, raw)
	}
	return Decode(role, data)
}

// Envelope wraps p under its role key for JSON responses.
func Envelope(p Principal) map[string]Principal {
	return map[string]Principal{p.GetRole().Key(): p}
}

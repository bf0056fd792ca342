package auth

import (
	"time"

	"github.com/tasklane/tasklane/internal/principal"
)

// Account is the stored identity behind every principal variant.
type Account struct {
	ID                   string
	Role                 principal.Role
	Username             string
	Email                string
	Name                 string
	PasswordHash         string
	IsActive             bool
	IsSuperAdmin         bool
	RequiresVerification bool
	AvgRating            float64
	TotalRatings         int
	IsOnline             bool
	CreatedAt            time.Time
	LastLogin            *time.Time
}

// Principal projects the account onto its role's public profile.
func (a *Account) Principal() principal.Principal {
	switch a.Role {
	case principal.RoleAdmin:
		return &principal.Admin{
			ID:           a.ID,
			Username:     a.Username,
			Name:         a.Name,
			Email:        a.Email,
			IsSuperAdmin: a.IsSuperAdmin,
			IsActive:     a.IsActive,
			CreatedAt:    a.CreatedAt,
			LastLogin:    a.LastLogin,
		}
	case principal.RoleCustomerService:
		return &principal.CustomerServiceAgent{
			ID:           a.ID,
			Name:         a.Name,
			Email:        a.Email,
			AvgRating:    a.AvgRating,
			TotalRatings: a.TotalRatings,
			IsOnline:     a.IsOnline,
		}
	default:
		return &principal.User{
			ID:        a.ID,
			Name:      a.Name,
			Email:     a.Email,
			CreatedAt: a.CreatedAt,
		}
	}
}

// LoginOutcome is the server-side result of a credential check.
type LoginOutcome struct {
	Account *Account
	// Challenge is set when the account must pass step-up verification
	// before a session is issued.
	Challenge bool
}

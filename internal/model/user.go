package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleEmployee        Role = "EMPLOYEE"
	RoleManager         Role = "MANAGER"
	RoleFinanceTeam     Role = "FINANCE_TEAM"
	RoleFinanceApprover Role = "FINANCE_APPROVER"
	RoleSystemAdmin     Role = "SYSTEM_ADMIN"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleEmployee, RoleManager, RoleFinanceTeam, RoleFinanceApprover, RoleSystemAdmin:
		return Role(raw), true
	default:
		return "", false
	}
}

func (r Role) IsSystemAdmin() bool {
	return r == RoleSystemAdmin
}

// CanApprove reports whether the role may hold an approval level at all.
func (r Role) CanApprove() bool {
	switch r {
	case RoleManager, RoleFinanceApprover, RoleSystemAdmin:
		return true
	default:
		return false
	}
}

// CanMakePayments covers batch creation and disbursement (maker side).
func (r Role) CanMakePayments() bool {
	return r == RoleFinanceTeam || r == RoleSystemAdmin
}

// CanAuthorizePayments covers the checker gate.
func (r Role) CanAuthorizePayments() bool {
	return r == RoleFinanceApprover || r == RoleSystemAdmin
}

func (r Role) CanTriggerEscalation() bool {
	return r == RoleFinanceApprover || r == RoleSystemAdmin
}

type User struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	Role               Role
	Department         *string
	ManagerID          *uuid.UUID
	IsActive           bool
	CustomRoleIsSystem bool
	// MaxApprovalLimit is nil for users whose custom role is unlimited.
	// Users without a custom role fall back to the configured default limit.
	MaxApprovalLimit *float64
	HasCustomRole    bool
	CreatedAt        time.Time
}

// IsUniversalApprover reports whether the user may decide any pending approval.
func (u User) IsUniversalApprover() bool {
	return u.Role.IsSystemAdmin() || u.CustomRoleIsSystem
}

// ApprovalLimit resolves the amount ceiling the user may approve.
// defaultLimit applies to legacy roles without a custom role attached.
func (u User) ApprovalLimit(defaultLimit float64) float64 {
	if !u.HasCustomRole {
		return defaultLimit
	}
	if u.MaxApprovalLimit == nil {
		return maxLimit
	}
	return *u.MaxApprovalLimit
}

const maxLimit = 1 << 53

// Principal is the authenticated actor extracted from the access token.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsSystemAdmin() bool {
	return p.Role.IsSystemAdmin()
}

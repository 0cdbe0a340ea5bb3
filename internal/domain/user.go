package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type Role string

const (
	RolePlanner    Role = "planner"
	RoleApprover   Role = "approver"
	RolePurchasing Role = "purchasing"
	RoleAdmin      Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePlanner, RoleApprover, RolePurchasing, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
}

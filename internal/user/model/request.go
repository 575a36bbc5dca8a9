package model

import (
	"time"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" validate:"omitempty,user_role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Name         string      `json:"name" binding:"required"`
	Email        string      `json:"email" binding:"required"`
	Password     string      `json:"password" binding:"required"`
	Role         string      `json:"role" binding:"required" validate:"user_role"`
	OwnedDevices []uuid.UUID `json:"owned_devices"`
}

// UpdateUserRequest supports partial updates; OwnedDevices nil leaves the
// assignment set alone, non-nil replaces it wholesale through the assignment
// manager.
type UpdateUserRequest struct {
	Name         *string      `json:"name"`
	Email        *string      `json:"email"`
	Password     *string      `json:"password"`
	Role         *string      `json:"role" validate:"omitempty,user_role"`
	OwnedDevices *[]uuid.UUID `json:"owned_devices"`
}

type UserResponse struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         Role        `json:"role"`
	IsActive     bool        `json:"is_active"`
	OwnedDevices []uuid.UUID `json:"owned_devices,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type AuthResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

package dto

import (
	"time"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID        uint64           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Phone     string           `json:"phone,omitempty"`
	Role      permissions.Role `json:"role"`
	CreatedAt time.Time        `json:"created_at"`
}

// UserSummaryDTO is the short form embedded in projects, tasks and messages
type UserSummaryDTO struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// ToUserDTOs converts a slice of users
func ToUserDTOs(users []models.User) []UserDTO {
	out := make([]UserDTO, len(users))
	for i, u := range users {
		out[i] = ToUserDTO(u)
	}
	return out
}

// toUserSummary returns nil unless the user was preloaded
func toUserSummary(user *models.User) *UserSummaryDTO {
	if user == nil || user.ID == 0 {
		return nil
	}
	return &UserSummaryDTO{ID: user.ID, Name: user.Name}
}

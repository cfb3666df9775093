package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/permissions"
)

type User struct {
	ID           uint64           `gorm:"primarykey" json:"id"`
	Email        string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string           `gorm:"type:varchar(255);not null" json:"name"`
	Phone        string           `gorm:"type:varchar(50)" json:"phone"`
	PasswordHash string           `gorm:"type:varchar(255);not null" json:"-"`
	Role         permissions.Role `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    gorm.DeletedAt   `gorm:"index" json:"-"`

	// Relations
	Projects []ProjectMember `gorm:"foreignKey:UserID" json:"-"`
}

// Actor is the user as seen by the permission engine.
func (u User) Actor() permissions.Actor {
	return permissions.Actor{UserID: u.ID, Role: u.Role}
}

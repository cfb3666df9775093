package models

import (
	"time"

	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// PermissionConfigID is the primary key of the single configuration row.
const PermissionConfigID = "permissions"

// PermissionConfig persists the role→capability map.
type PermissionConfig struct {
	ID        string                        `gorm:"type:varchar(32);primarykey"`
	Revision  uint64                        `gorm:"not null"`
	Roles     permissions.RoleCapabilityMap `gorm:"serializer:json;type:text;not null"`
	UpdatedBy uint64
	UpdatedAt time.Time
}

func (c PermissionConfig) Config() permissions.Config {
	return permissions.Config{
		Revision:  c.Revision,
		Roles:     c.Roles.Normalize(),
		UpdatedBy: c.UpdatedBy,
		UpdatedAt: c.UpdatedAt,
	}
}

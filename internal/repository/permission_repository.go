package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/retry"
)

// errRevisionMoved is returned when another writer saved between read and write.
var errRevisionMoved = errors.New("permission revision moved")

// GormPermissionStore is the GORM implementation of permissions.Store,
// keeping the configuration in a single row.
type GormPermissionStore struct {
	db *gorm.DB
}

// NewPermissionStore creates a permissions.Store on db
func NewPermissionStore(db *gorm.DB) permissions.Store {
	return &GormPermissionStore{db: db}
}

// Load returns the stored configuration
func (s *GormPermissionStore) Load(ctx context.Context) (permissions.Config, error) {
	return load(s.db.WithContext(ctx))
}

// SeedIfAbsent inserts roles as revision 1 unless a row exists, then re-reads
// so that processes racing to seed all end up with the winner's row
func (s *GormPermissionStore) SeedIfAbsent(ctx context.Context, roles permissions.RoleCapabilityMap) (permissions.Config, error) {
	db := s.db.WithContext(ctx)
	row := models.PermissionConfig{
		ID:        models.PermissionConfigID,
		Revision:  1,
		Roles:     roles,
		UpdatedAt: time.Now(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return permissions.Config{}, fmt.Errorf("seed permission config: %w", err)
	}
	return load(db)
}

// Save replaces the map and bumps the revision. Concurrent saves are
// serialized by a compare-and-swap on the revision.
func (s *GormPermissionStore) Save(ctx context.Context, roles permissions.RoleCapabilityMap, updatedBy uint64) (permissions.Config, error) {
	var saved permissions.Config
	isRace := func(err error) bool { return errors.Is(err, errRevisionMoved) || retry.IsLockConflict(err) }

	err := retry.DoIf(ctx, retry.DefaultConfig(), isRace, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := load(tx)
			if errors.Is(err, permissions.ErrNotConfigured) {
				current = permissions.Config{}
			} else if err != nil {
				return err
			}

			row := models.PermissionConfig{
				ID:        models.PermissionConfigID,
				Revision:  current.Revision + 1,
				Roles:     roles,
				UpdatedBy: updatedBy,
				UpdatedAt: time.Now(),
			}

			if current.Revision == 0 {
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("%w: %v", errRevisionMoved, err)
				}
			} else {
				result := tx.Model(&models.PermissionConfig{}).
					Where("id = ? AND revision = ?", models.PermissionConfigID, current.Revision).
					Select("revision", "roles", "updated_by", "updated_at").
					Updates(&row)
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return errRevisionMoved
				}
			}

			saved = row.Config()
			return nil
		})
	})
	if err != nil {
		return permissions.Config{}, err
	}
	return saved, nil
}

func load(db *gorm.DB) (permissions.Config, error) {
	var row models.PermissionConfig
	err := db.Where("id = ?", models.PermissionConfigID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return permissions.Config{}, permissions.ErrNotConfigured
	}
	if err != nil {
		return permissions.Config{}, err
	}
	return row.Config(), nil
}

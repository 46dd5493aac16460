// Package registry persists the set of live instances. It is the source of
// truth the orchestrator reasons about; reconciliation against the runtime
// happens above this layer.
package registry

import (
	"errors"
	"fmt"

	"github.com/zulandar/drydock/internal/models"
	"github.com/zulandar/drydock/internal/policy"
	"gorm.io/gorm"
)

// Registry wraps the instances table.
type Registry struct {
	db *gorm.DB
}

// New returns a Registry over the given database handle.
func New(gdb *gorm.DB) *Registry {
	return &Registry{db: gdb}
}

// Transaction runs fn with a Registry bound to a database transaction.
// Everything fn does commits or rolls back together.
func (r *Registry) Transaction(fn func(tx *Registry) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Registry{db: tx})
	})
}

// ForChallenge resolves the presence key: the instance this owner holds for
// this specific challenge, or nil.
func (r *Registry) ForChallenge(challengeID uint, scope policy.Scope) (*models.Instance, error) {
	var inst models.Instance
	err := r.db.
		Where("challenge_id = ?", challengeID).
		Where(scope.OwnerField()+" = ?", scope.OwnerID()).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: presence lookup chal=%d: %w", challengeID, err)
	}
	return &inst, nil
}

// AnyForOwner resolves the exclusivity key: any instance held by this owner
// regardless of challenge, or nil.
func (r *Registry) AnyForOwner(scope policy.Scope) (*models.Instance, error) {
	var inst models.Instance
	err := r.db.
		Where(scope.OwnerField()+" = ?", scope.OwnerID()).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: exclusivity lookup owner=%d: %w", scope.OwnerID(), err)
	}
	return &inst, nil
}

// ByInstanceID fetches one row by the runtime-assigned instance ID, or nil.
func (r *Registry) ByInstanceID(instanceID string) (*models.Instance, error) {
	var inst models.Instance
	err := r.db.Where("instance_id = ?", instanceID).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: lookup %s: %w", instanceID, err)
	}
	return &inst, nil
}

// Insert persists a new instance row.
func (r *Registry) Insert(inst *models.Instance) error {
	if err := r.db.Create(inst).Error; err != nil {
		return fmt.Errorf("registry: insert %s: %w", inst.InstanceID, err)
	}
	return nil
}

// Delete removes the row for instanceID. Deleting an absent row is not an
// error; callers that care check existence first.
func (r *Registry) Delete(instanceID string) error {
	if err := r.db.Where("instance_id = ?", instanceID).Delete(&models.Instance{}).Error; err != nil {
		return fmt.Errorf("registry: delete %s: %w", instanceID, err)
	}
	return nil
}

// SetExpiry updates the expiry timestamp for instanceID.
func (r *Registry) SetExpiry(instanceID string, expiresAt int64) error {
	res := r.db.Model(&models.Instance{}).
		Where("instance_id = ?", instanceID).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return fmt.Errorf("registry: set expiry %s: %w", instanceID, res.Error)
	}
	return nil
}

// All returns every live instance row, newest first.
func (r *Registry) All() ([]models.Instance, error) {
	var insts []models.Instance
	if err := r.db.Order("created_at DESC").Find(&insts).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return insts, nil
}

// Expired returns rows whose expiry is at or before now.
func (r *Registry) Expired(now int64) ([]models.Instance, error) {
	var insts []models.Instance
	if err := r.db.Where("expires_at <= ?", now).Find(&insts).Error; err != nil {
		return nil, fmt.Errorf("registry: list expired: %w", err)
	}
	return insts, nil
}

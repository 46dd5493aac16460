// Package challenge holds the challenge catalog: definitions the lifecycle
// orchestrator reads, the capability set each challenge type exposes, and
// the importer that syncs definitions from a GitHub repo.
package challenge

import (
	"errors"
	"fmt"

	"github.com/zulandar/drydock/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog wraps the challenges table.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog returns a Catalog over the given database handle.
func NewCatalog(gdb *gorm.DB) *Catalog {
	return &Catalog{db: gdb}
}

// ByID fetches one challenge, or nil if absent.
func (c *Catalog) ByID(id uint) (*models.Challenge, error) {
	var ch models.Challenge
	err := c.db.First(&ch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("challenge: lookup %d: %w", id, err)
	}
	return &ch, nil
}

// All returns every challenge ordered by name.
func (c *Catalog) All() ([]models.Challenge, error) {
	var chs []models.Challenge
	if err := c.db.Order("name").Find(&chs).Error; err != nil {
		return nil, fmt.Errorf("challenge: list: %w", err)
	}
	return chs, nil
}

// Upsert creates or updates a challenge. A row that already has an ID is
// saved by primary key; a new row is keyed by name so re-imports update in
// place.
func (c *Catalog) Upsert(ch *models.Challenge) error {
	if ch.ID != 0 {
		if err := c.db.Save(ch).Error; err != nil {
			return fmt.Errorf("challenge: upsert %q: %w", ch.Name, err)
		}
		return nil
	}
	result := c.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "image", "port", "command", "volumes",
			"connection_info", "initial", "minimum", "decay",
		}),
	}).Create(ch)
	if result.Error != nil {
		return fmt.Errorf("challenge: upsert %q: %w", ch.Name, result.Error)
	}
	return nil
}

// RecordSolve inserts a solve row for the challenge.
func (c *Catalog) RecordSolve(s *models.Solve) error {
	if err := c.db.Create(s).Error; err != nil {
		return fmt.Errorf("challenge: record solve chal=%d: %w", s.ChallengeID, err)
	}
	return nil
}

// SolveCount returns how many solves a challenge has.
func (c *Catalog) SolveCount(challengeID uint) (int64, error) {
	var n int64
	if err := c.db.Model(&models.Solve{}).Where("challenge_id = ?", challengeID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("challenge: solve count chal=%d: %w", challengeID, err)
	}
	return n, nil
}

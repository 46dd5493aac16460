// Package settings is the durable key/value configuration store consulted on
// every policy-dependent decision. Rows live in the database; an in-memory
// mirror serves reads and is refreshed immediately after each update.
package settings

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zulandar/drydock/internal/models"
	"github.com/zulandar/drydock/internal/policy"
	"gorm.io/gorm"
)

// Setting keys.
const (
	KeySetup      = "setup"
	KeyBaseURL    = "docker_base_url"
	KeyHostname   = "docker_hostname"
	KeyExpiration = "container_expiration" // minutes
	KeyMaxMemory  = "container_maxmemory"  // MB
	KeyMaxCPU     = "container_maxcpu"     // cores
	KeyAssignment = "docker_assignment"
)

// defaults are seeded exactly once at bootstrap; a present key is never
// overwritten.
var defaults = map[string]string{
	KeySetup:      "true",
	KeyBaseURL:    "unix:///var/run/docker.sock",
	KeyHostname:   "",
	KeyExpiration: "45",
	KeyMaxMemory:  "512",
	KeyMaxCPU:     "0.5",
	KeyAssignment: "user",
}

// RequiredKeys are the keys a bulk update must supply, all of them, before
// any row is written.
var RequiredKeys = []string{
	KeyBaseURL,
	KeyHostname,
	KeyExpiration,
	KeyMaxMemory,
	KeyMaxCPU,
	KeyAssignment,
}

// MissingKeyError rejects a bulk update that omits a required key. No row
// has been mutated when it is returned.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("settings: missing required key %q", e.Key)
}

// Snapshot is the typed view of the store the orchestrator works from,
// validated at parse time so downstream code never does stringly lookups.
type Snapshot struct {
	BaseURL     string
	Hostname    string
	TTL         time.Duration
	MaxMemoryMB int64
	MaxCPU      float64
	Mode        policy.Mode
}

// Store wraps the settings table plus its in-memory mirror.
type Store struct {
	db     *gorm.DB
	mu     sync.RWMutex
	mirror map[string]string
}

// NewStore loads the current rows into the mirror.
func NewStore(gdb *gorm.DB) (*Store, error) {
	s := &Store{db: gdb, mirror: make(map[string]string)}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed writes each default key that is absent. Present keys are untouched.
func (s *Store) Seed() error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, val := range defaults {
			var count int64
			if err := tx.Model(&models.Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&models.Setting{Key: key, Value: val}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings: seed: %w", err)
	}
	return s.refresh()
}

// Get returns the mirrored value for key, empty if unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror[key]
}

// All returns a copy of the mirrored settings.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.mirror))
	for k, v := range s.mirror {
		out[k] = v
	}
	return out
}

// Update validates that every required key is present, then writes all
// values in one transaction and refreshes the mirror. A missing key rejects
// the whole update with no mutation.
func (s *Store) Update(values map[string]string) error {
	for _, key := range RequiredKeys {
		if _, ok := values[key]; !ok {
			return &MissingKeyError{Key: key}
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, val := range values {
			res := tx.Model(&models.Setting{}).Where("key = ?", key).Update("value", val)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if err := tx.Create(&models.Setting{Key: key, Value: val}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings: update: %w", err)
	}
	return s.refresh()
}

// Snapshot parses the mirror into a typed, validated view.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minutes, err := strconv.Atoi(s.mirror[KeyExpiration])
	if err != nil || minutes <= 0 {
		return Snapshot{}, fmt.Errorf("settings: %s %q is not a positive integer", KeyExpiration, s.mirror[KeyExpiration])
	}
	memMB, err := strconv.ParseInt(s.mirror[KeyMaxMemory], 10, 64)
	if err != nil || memMB < 0 {
		return Snapshot{}, fmt.Errorf("settings: %s %q is not a non-negative integer", KeyMaxMemory, s.mirror[KeyMaxMemory])
	}
	cpus, err := strconv.ParseFloat(s.mirror[KeyMaxCPU], 64)
	if err != nil || cpus < 0 {
		return Snapshot{}, fmt.Errorf("settings: %s %q is not a non-negative number", KeyMaxCPU, s.mirror[KeyMaxCPU])
	}
	mode, err := policy.ParseMode(s.mirror[KeyAssignment])
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		BaseURL:     s.mirror[KeyBaseURL],
		Hostname:    s.mirror[KeyHostname],
		TTL:         time.Duration(minutes) * time.Minute,
		MaxMemoryMB: memMB,
		MaxCPU:      cpus,
		Mode:        mode,
	}, nil
}

// refresh reloads the mirror from the database.
func (s *Store) refresh() error {
	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		m[row.Key] = row.Value
	}
	s.mu.Lock()
	s.mirror = m
	s.mu.Unlock()
	return nil
}

package challenge

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zulandar/drydock/internal/models"
)

// Type is the capability set a challenge variant exposes. Variants are
// registered under a type tag and dispatched by tag, keeping the hierarchy
// open without inheritance.
type Type interface {
	// Read renders a challenge for the front end.
	Read(ch *models.Challenge) map[string]interface{}

	// Update applies authoring-side field edits.
	Update(ch *models.Challenge, fields map[string]string) error

	// Solve records a correct submission for the owner.
	Solve(ch *models.Challenge, userID, teamID uint) error

	// ComputeValue returns the current point value. The decay curve itself
	// is supplied by the scoring subsystem via ValueFunc.
	ComputeValue(ch *models.Challenge) (int, error)
}

// ValueFunc computes a point value from stored scoring parameters and the
// current solve count.
type ValueFunc func(ch *models.Challenge, solves int64) int

// typeRegistry maps type tags to their capability sets. Registration
// happens per router while lookups run on request goroutines, so the map
// is guarded.
var (
	typeMu       sync.RWMutex
	typeRegistry = map[string]Type{}
)

// RegisterType binds a type tag to its capability set.
func RegisterType(tag string, t Type) {
	typeMu.Lock()
	defer typeMu.Unlock()
	typeRegistry[tag] = t
}

// TypeFor returns the capability set for a tag.
func TypeFor(tag string) (Type, error) {
	typeMu.RLock()
	t, ok := typeRegistry[tag]
	typeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("challenge: unknown type %q", tag)
	}
	return t, nil
}

// ContainerType is the container-backed challenge variant.
type ContainerType struct {
	Catalog *Catalog
	Value   ValueFunc // nil means the stored initial value is used as-is
}

// NewContainerType registers the container variant under its tag.
func NewContainerType(cat *Catalog, value ValueFunc) *ContainerType {
	t := &ContainerType{Catalog: cat, Value: value}
	RegisterType("container", t)
	return t
}

func (t *ContainerType) Read(ch *models.Challenge) map[string]interface{} {
	return map[string]interface{}{
		"id":              ch.ID,
		"name":            ch.Name,
		"type":            ch.Type,
		"image":           ch.Image,
		"port":            ch.Port,
		"command":         ch.Command,
		"connection_info": ch.ConnectionInfo,
		"initial":         ch.Initial,
		"minimum":         ch.Minimum,
		"decay":           ch.Decay,
	}
}

func (t *ContainerType) Update(ch *models.Challenge, fields map[string]string) error {
	for key, val := range fields {
		switch key {
		case "name":
			ch.Name = val
		case "image":
			ch.Image = val
		case "command":
			ch.Command = val
		case "volumes":
			ch.Volumes = val
		case "connection_info":
			ch.ConnectionInfo = val
		case "port", "initial", "minimum", "decay":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("challenge: field %s: %w", key, err)
			}
			switch key {
			case "port":
				ch.Port = n
			case "initial":
				ch.Initial = n
			case "minimum":
				ch.Minimum = n
			case "decay":
				ch.Decay = n
			}
		default:
			return fmt.Errorf("challenge: unknown field %q", key)
		}
	}
	return t.Catalog.Upsert(ch)
}

func (t *ContainerType) Solve(ch *models.Challenge, userID, teamID uint) error {
	return t.Catalog.RecordSolve(&models.Solve{
		ChallengeID: ch.ID,
		UserID:      userID,
		TeamID:      teamID,
		SolvedAt:    time.Now().Unix(),
	})
}

func (t *ContainerType) ComputeValue(ch *models.Challenge) (int, error) {
	if t.Value == nil {
		return ch.Initial, nil
	}
	solves, err := t.Catalog.SolveCount(ch.ID)
	if err != nil {
		return 0, err
	}
	return t.Value(ch, solves), nil
}

// Package lifecycle decides, for a participant/challenge pair, whether an
// instance may be created, reused, renewed, or must be refused or torn
// down, keeping the registry consistent with the runtime as far as a
// fallible external system allows.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/zulandar/drydock/internal/challenge"
	"github.com/zulandar/drydock/internal/driver"
	"github.com/zulandar/drydock/internal/models"
	"github.com/zulandar/drydock/internal/policy"
	"github.com/zulandar/drydock/internal/registry"
	"github.com/zulandar/drydock/internal/settings"
)

// Instance status values returned by Status.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Create result status values.
const (
	ResultCreated        = "created"
	ResultAlreadyRunning = "already_running"
)

// CreateResult is the outcome of Create and Reset.
type CreateResult struct {
	Status   string `json:"status"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Expires  int64  `json:"expires"`
}

// RenewResult is the outcome of Renew.
type RenewResult struct {
	Expires int64 `json:"expires"`
}

// Orchestrator owns the instance lifecycle. All policy parameters (mode,
// TTL, resource caps) are read from the settings store at call time.
type Orchestrator struct {
	reg     *registry.Registry
	catalog *challenge.Catalog
	drv     driver.Driver
	store   *settings.Store
	log     *log.Logger
	locks   ownerLocks
	now     func() time.Time
}

// New wires an Orchestrator. A nil logger falls back to the default logger.
func New(reg *registry.Registry, cat *challenge.Catalog, drv driver.Driver, store *settings.Store, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		reg:     reg,
		catalog: cat,
		drv:     drv,
		store:   store,
		log:     logger,
		now:     time.Now,
	}
}

// scopeFor reads the assignment mode at call time and builds the ownership
// scope for a request.
func (o *Orchestrator) scopeFor(userID, teamID uint) (policy.Scope, settings.Snapshot, error) {
	snap, err := o.store.Snapshot()
	if err != nil {
		return policy.Scope{}, settings.Snapshot{}, &StorageError{Op: "settings", Err: err}
	}
	return policy.Scope{Mode: snap.Mode, UserID: userID, TeamID: teamID}, snap, nil
}

// Status reports running/stopped from the registry alone. It never contacts
// the driver, so it can be stale if the instance died outside the
// orchestrator's awareness.
func (o *Orchestrator) Status(challengeID, userID, teamID uint) (string, error) {
	ch, err := o.catalog.ByID(challengeID)
	if err != nil {
		return "", &StorageError{Op: "challenge lookup", Err: err}
	}
	if ch == nil {
		return "", &NotFoundError{Kind: "challenge", Ref: strconv.Itoa(int(challengeID))}
	}
	scope, _, err := o.scopeFor(userID, teamID)
	if err != nil {
		return "", err
	}
	inst, err := o.reg.ForChallenge(challengeID, scope)
	if err != nil {
		return "", &StorageError{Op: "presence lookup", Err: err}
	}
	if inst != nil {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Create provisions an instance for the owner, or returns the one already
// running. The per-owner lock serialises the check-then-create sequence so
// two concurrent creates cannot both pass the absence checks.
func (o *Orchestrator) Create(ctx context.Context, challengeID, userID, teamID uint) (*CreateResult, error) {
	ch, err := o.catalog.ByID(challengeID)
	if err != nil {
		return nil, &StorageError{Op: "challenge lookup", Err: err}
	}
	if ch == nil {
		return nil, &NotFoundError{Kind: "challenge", Ref: strconv.Itoa(int(challengeID))}
	}

	scope, snap, err := o.scopeFor(userID, teamID)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(scope)
	defer unlock()

	// Presence: is this exact challenge already running for the owner?
	existing, err := o.reg.ForChallenge(challengeID, scope)
	if err != nil {
		return nil, &StorageError{Op: "presence lookup", Err: err}
	}
	var stale *models.Instance
	if existing != nil {
		alive, err := o.drv.IsRunning(ctx, existing.InstanceID)
		if err != nil {
			return nil, &RuntimeError{Op: "liveness check", Err: err}
		}
		if alive {
			o.log.Printf("lifecycle: chal=%d instance %s already running", challengeID, existing.InstanceID)
			return &CreateResult{
				Status:   ResultAlreadyRunning,
				Hostname: o.hostname(ch, snap),
				Port:     existing.Port,
				Expires:  existing.ExpiresAt,
			}, nil
		}
		// The runtime no longer knows this instance. The stale row stays
		// in place until the replacement is ready, then both swap in one
		// transaction below, so a failed creation never loses the row.
		o.log.Printf("lifecycle: chal=%d instance %s dead, replacing stale row", challengeID, existing.InstanceID)
		stale = existing
	}

	// Exclusivity: user/team modes allow one instance overall. A blocking
	// instance is reported, never terminated implicitly. The stale row
	// found above does not block its own replacement.
	if scope.Mode.Exclusive() {
		other, err := o.reg.AnyForOwner(scope)
		if err != nil {
			return nil, &StorageError{Op: "exclusivity lookup", Err: err}
		}
		if other != nil && (stale == nil || other.InstanceID != stale.InstanceID) {
			blocking := strconv.Itoa(int(other.ChallengeID))
			if bc, err := o.catalog.ByID(other.ChallengeID); err == nil && bc != nil {
				blocking = bc.Name
			}
			o.log.Printf("lifecycle: chal=%d create blocked by instance %s (challenge %s)", challengeID, other.InstanceID, blocking)
			return nil, &ConflictError{BlockingChallenge: blocking, InstanceID: other.InstanceID}
		}
	}

	instanceID, err := o.drv.Create(ctx, driver.Spec{
		Image:    ch.Image,
		Port:     ch.Port,
		Command:  ch.Command,
		Volumes:  ch.Volumes,
		MemoryMB: snap.MaxMemoryMB,
		CPUs:     snap.MaxCPU,
	})
	if err != nil {
		return nil, &RuntimeError{Op: "create", Err: err}
	}

	port, err := o.drv.Port(ctx, instanceID)
	if err != nil {
		// The runtime instance is left behind; the reconcile pass cleans
		// up instances the registry never learned about.
		o.log.Printf("lifecycle: chal=%d instance %s created but port unresolved: %v", challengeID, instanceID, err)
		return nil, &RuntimeError{Op: "port lookup", Err: err}
	}

	now := o.now().Unix()
	expires := now + int64(snap.TTL.Seconds())
	inst := &models.Instance{
		InstanceID:  instanceID,
		ChallengeID: challengeID,
		UserID:      userID,
		TeamID:      teamID,
		Port:        port,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
	err = o.reg.Transaction(func(tx *registry.Registry) error {
		if stale != nil {
			if err := tx.Delete(stale.InstanceID); err != nil {
				return err
			}
		}
		return tx.Insert(inst)
	})
	if err != nil {
		o.log.Printf("lifecycle: chal=%d instance %s created but not persisted: %v", challengeID, instanceID, err)
		return nil, &StorageError{Op: "insert", Err: err}
	}

	o.log.Printf("lifecycle: chal=%d instance %s created, port %d, expires %d", challengeID, instanceID, port, expires)
	return &CreateResult{
		Status:   ResultCreated,
		Hostname: o.hostname(ch, snap),
		Port:     port,
		Expires:  expires,
	}, nil
}

// Renew extends the owner's instance for this challenge by one TTL from
// now. It trusts the registry and never contacts the driver.
func (o *Orchestrator) Renew(challengeID, userID, teamID uint) (*RenewResult, error) {
	ch, err := o.catalog.ByID(challengeID)
	if err != nil {
		return nil, &StorageError{Op: "challenge lookup", Err: err}
	}
	if ch == nil {
		return nil, &NotFoundError{Kind: "challenge", Ref: strconv.Itoa(int(challengeID))}
	}
	scope, snap, err := o.scopeFor(userID, teamID)
	if err != nil {
		return nil, err
	}
	inst, err := o.reg.ForChallenge(challengeID, scope)
	if err != nil {
		return nil, &StorageError{Op: "presence lookup", Err: err}
	}
	if inst == nil {
		return nil, &NotFoundError{Kind: "instance", Ref: strconv.Itoa(int(challengeID))}
	}

	expires := o.now().Unix() + int64(snap.TTL.Seconds())
	if err := o.reg.SetExpiry(inst.InstanceID, expires); err != nil {
		return nil, &StorageError{Op: "renew", Err: err}
	}
	o.log.Printf("lifecycle: chal=%d instance %s renewed to %d", challengeID, inst.InstanceID, expires)
	return &RenewResult{Expires: expires}, nil
}

// Stop kills the instance and removes its row. A kill failure retains the
// row so the operation stays retryable; a delete failure after the kill is
// the documented stale-row inconsistency the reconcile pass repairs.
func (o *Orchestrator) Stop(ctx context.Context, instanceID string) error {
	return o.stop(ctx, instanceID, "participant")
}

// AdminKill is Stop without ownership or challenge scoping, recorded with
// an anonymous scope marker.
func (o *Orchestrator) AdminKill(ctx context.Context, instanceID string) error {
	return o.stop(ctx, instanceID, "admin")
}

func (o *Orchestrator) stop(ctx context.Context, instanceID, actor string) error {
	inst, err := o.reg.ByInstanceID(instanceID)
	if err != nil {
		return &StorageError{Op: "lookup", Err: err}
	}
	if inst == nil {
		return &NotFoundError{Kind: "instance", Ref: instanceID}
	}
	if err := o.drv.Kill(ctx, instanceID); err != nil {
		return &RuntimeError{Op: "kill", Err: err}
	}
	if err := o.reg.Delete(instanceID); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	o.log.Printf("lifecycle: instance %s killed and removed (%s)", instanceID, actor)
	return nil
}

// Reset stops the owner's instance for this challenge, if any, then creates
// a fresh one. Not atomic: a failure between the steps leaves the owner
// with no instance, and the caller retries Create.
func (o *Orchestrator) Reset(ctx context.Context, challengeID, userID, teamID uint) (*CreateResult, error) {
	scope, _, err := o.scopeFor(userID, teamID)
	if err != nil {
		return nil, err
	}
	inst, err := o.reg.ForChallenge(challengeID, scope)
	if err != nil {
		return nil, &StorageError{Op: "presence lookup", Err: err}
	}
	if inst != nil {
		if err := o.Stop(ctx, inst.InstanceID); err != nil {
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
		}
	}
	return o.Create(ctx, challengeID, userID, teamID)
}

// Purge kills and removes every registered instance, best-effort. A failure
// on one row is logged and does not abort the rest. Returns how many rows
// were fully removed.
func (o *Orchestrator) Purge(ctx context.Context) (int, error) {
	insts, err := o.reg.All()
	if err != nil {
		return 0, &StorageError{Op: "list", Err: err}
	}
	purged := 0
	for _, inst := range insts {
		if err := o.drv.Kill(ctx, inst.InstanceID); err != nil {
			o.log.Printf("lifecycle: purge kill %s: %v", inst.InstanceID, err)
			continue
		}
		if err := o.reg.Delete(inst.InstanceID); err != nil {
			o.log.Printf("lifecycle: purge delete %s: %v", inst.InstanceID, err)
			continue
		}
		purged++
	}
	o.log.Printf("lifecycle: purge removed %d/%d instances", purged, len(insts))
	return purged, nil
}

// Reconcile diffs registry rows against runtime liveness and deletes rows
// whose instance is gone, repairing drift from the documented
// partial-failure gaps. Returns how many rows were removed.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	insts, err := o.reg.All()
	if err != nil {
		return 0, &StorageError{Op: "list", Err: err}
	}
	removed := 0
	for _, inst := range insts {
		alive, err := o.drv.IsRunning(ctx, inst.InstanceID)
		if err != nil {
			o.log.Printf("lifecycle: reconcile liveness %s: %v", inst.InstanceID, err)
			continue
		}
		if alive {
			continue
		}
		if err := o.reg.Delete(inst.InstanceID); err != nil {
			o.log.Printf("lifecycle: reconcile delete %s: %v", inst.InstanceID, err)
			continue
		}
		o.log.Printf("lifecycle: reconcile removed dead instance %s", inst.InstanceID)
		removed++
	}
	return removed, nil
}

// hostname prefers the challenge's own connection hint over the
// deployment-wide hostname setting.
func (o *Orchestrator) hostname(ch *models.Challenge, snap settings.Snapshot) string {
	if ch.ConnectionInfo != "" {
		return ch.ConnectionInfo
	}
	return snap.Hostname
}

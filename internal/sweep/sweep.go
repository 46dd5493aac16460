// Package sweep reclaims expired instances on a cron schedule. Expiry is
// passive metadata in the lifecycle core; this is the periodic collaborator
// that turns it into terminations, via the orchestrator's public Stop.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/drydock/internal/lifecycle"
	"github.com/zulandar/drydock/internal/notify"
	"github.com/zulandar/drydock/internal/registry"
)

// Opts holds configuration for a Sweeper.
type Opts struct {
	Orchestrator *lifecycle.Orchestrator
	Registry     *registry.Registry
	Schedule     string // 5-field cron expression
	Reconcile    bool   // also diff registry rows against runtime liveness
	Notifier     notify.Notifier
	Log          *log.Logger
	Now          func() time.Time
}

// Sweeper scans the registry for rows past their expiry and stops each one
// independently.
type Sweeper struct {
	orch      *lifecycle.Orchestrator
	reg       *registry.Registry
	schedule  string
	reconcile bool
	notifier  notify.Notifier
	log       *log.Logger
	now       func() time.Time
}

// New validates opts and builds a Sweeper.
func New(opts Opts) (*Sweeper, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("sweep: orchestrator is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("sweep: registry is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "* * * * *"
	}
	if opts.Log == nil {
		opts.Log = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		orch:      opts.Orchestrator,
		reg:       opts.Registry,
		schedule:  opts.Schedule,
		reconcile: opts.Reconcile,
		notifier:  opts.Notifier,
		log:       opts.Log,
		now:       opts.Now,
	}, nil
}

// Run schedules sweeps until ctx is cancelled, then waits for any running
// sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.Once(ctx)
	})
	if err != nil {
		return fmt.Errorf("sweep: schedule %q: %w", s.schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Once performs a single sweep pass and returns how many instances were
// stopped. A failure on one row is logged and does not abort the rest.
func (s *Sweeper) Once(ctx context.Context) int {
	expired, err := s.reg.Expired(s.now().Unix())
	if err != nil {
		s.log.Printf("sweep: list expired: %v", err)
		return 0
	}

	stopped := 0
	for _, inst := range expired {
		err := s.orch.Stop(ctx, inst.InstanceID)
		if err != nil {
			// Another actor may have stopped it between the scan and now.
			var nf *lifecycle.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			s.log.Printf("sweep: stop %s: %v", inst.InstanceID, err)
			continue
		}
		stopped++
		s.post(ctx, notify.Event{
			Title:    "Instance expired",
			Body:     fmt.Sprintf("Instance %s was reclaimed after its TTL ran out.", inst.InstanceID),
			Severity: "info",
			Fields: []notify.Field{
				{Name: "Challenge", Value: strconv.Itoa(int(inst.ChallengeID))},
				{Name: "Port", Value: strconv.Itoa(inst.Port)},
			},
		})
	}
	if stopped > 0 {
		s.log.Printf("sweep: stopped %d expired instances", stopped)
	}

	if s.reconcile {
		if removed, err := s.orch.Reconcile(ctx); err != nil {
			s.log.Printf("sweep: reconcile: %v", err)
		} else if removed > 0 {
			s.log.Printf("sweep: reconcile removed %d dead rows", removed)
		}
	}
	return stopped
}

func (s *Sweeper) post(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Post(ctx, ev); err != nil {
		s.log.Printf("sweep: notify: %v", err)
	}
}

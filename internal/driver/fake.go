package driver

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Driver for tests. Failures are injected per call by
// setting the corresponding error field.
type Fake struct {
	mu        sync.Mutex
	seq       int
	nextPort  int
	instances map[string]*fakeInstance

	CreateErr  error
	KillErr    error
	RunningErr error
	PortErr    error
	ImagesErr  error
	PingErr    error

	ImageTags []string

	CreateCalls  int
	KillCalls    int
	RunningCalls int
}

type fakeInstance struct {
	running bool
	port    int
}

// NewFake returns a Fake allocating host ports from 31000 upwards.
func NewFake() *Fake {
	return &Fake{
		nextPort:  31000,
		instances: make(map[string]*fakeInstance),
	}
}

func (f *Fake) Create(ctx context.Context, spec Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.seq++
	id := fmt.Sprintf("fake-%d", f.seq)
	f.instances[id] = &fakeInstance{running: true, port: f.nextPort}
	f.nextPort++
	return id, nil
}

func (f *Fake) Kill(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.KillCalls++
	if f.KillErr != nil {
		return f.KillErr
	}
	delete(f.instances, instanceID)
	return nil
}

func (f *Fake) IsRunning(ctx context.Context, instanceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RunningCalls++
	if f.RunningErr != nil {
		return false, f.RunningErr
	}
	inst, ok := f.instances[instanceID]
	return ok && inst.running, nil
}

func (f *Fake) Port(ctx context.Context, instanceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PortErr != nil {
		return 0, f.PortErr
	}
	inst, ok := f.instances[instanceID]
	if !ok {
		return 0, fmt.Errorf("driver: no published port for %s", instanceID)
	}
	return inst.port, nil
}

func (f *Fake) Images(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ImagesErr != nil {
		return nil, f.ImagesErr
	}
	return f.ImageTags, nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

// MarkDead flips an instance to not-running without removing it, simulating
// a container that died outside the orchestrator's awareness.
func (f *Fake) MarkDead(instanceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[instanceID]; ok {
		inst.running = false
	}
}

// Exists reports whether the runtime still knows the instance.
func (f *Fake) Exists(instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.instances[instanceID]
	return ok
}

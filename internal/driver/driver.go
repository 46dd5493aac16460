// Package driver defines the runtime driver contract the orchestrator
// consumes, plus the Docker implementation of it.
package driver

import "context"

// Spec describes the instance a driver should create.
type Spec struct {
	Image    string  // image reference
	Port     int     // port exposed inside the instance
	Command  string  // optional start command
	Volumes  string  // JSON object of host-path -> container-path binds
	MemoryMB int64   // memory cap in MB, 0 for unlimited
	CPUs     float64 // CPU cap in cores, 0 for unlimited
}

// Driver creates, kills and inspects instances on an external container
// runtime. All calls are blocking I/O and must honour ctx deadlines; a
// timed-out call is an error, never a success.
type Driver interface {
	// Create provisions and starts a new instance, returning the
	// runtime-assigned instance ID.
	Create(ctx context.Context, spec Spec) (string, error)

	// Kill terminates and removes an instance.
	Kill(ctx context.Context, instanceID string) error

	// IsRunning reports whether the instance is currently alive. A missing
	// instance is not running, not an error.
	IsRunning(ctx context.Context, instanceID string) (bool, error)

	// Port returns the host port published for the instance.
	Port(ctx context.Context, instanceID string) (int, error)

	// Images lists image references available to the runtime.
	Images(ctx context.Context) ([]string, error)

	// Ping reports connectivity to the runtime.
	Ping(ctx context.Context) error
}

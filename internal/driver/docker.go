package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// defaultCallTimeout bounds every Docker API call when the caller's context
// carries no deadline of its own.
const defaultCallTimeout = 30 * time.Second

// Docker drives instances on a Docker engine via its SDK client.
type Docker struct {
	cli     *client.Client
	timeout time.Duration
}

// NewDocker connects a Docker driver to the engine at baseURL
// (e.g. "unix:///var/run/docker.sock" or "tcp://10.0.0.5:2375").
func NewDocker(baseURL string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(baseURL),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("driver: docker client for %s: %w", baseURL, err)
	}
	return &Docker{cli: cli, timeout: defaultCallTimeout}, nil
}

// bound attaches the default call timeout when ctx has no deadline.
func (d *Docker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// Create provisions and starts a container for the spec. The exposed port is
// published to an engine-assigned host port.
func (d *Docker) Create(ctx context.Context, spec Spec) (string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	exposed, err := nat.NewPort("tcp", strconv.Itoa(spec.Port))
	if err != nil {
		return "", fmt.Errorf("driver: port %d: %w", spec.Port, err)
	}

	cfg := &container.Config{
		Image:        spec.Image,
		ExposedPorts: nat.PortSet{exposed: struct{}{}},
	}
	if cmd := strings.TrimSpace(spec.Command); cmd != "" {
		cfg.Cmd = strings.Fields(cmd)
	}

	binds, err := parseVolumes(spec.Volumes)
	if err != nil {
		return "", err
	}

	host := &container.HostConfig{
		AutoRemove: true,
		Binds:      binds,
		PortBindings: nat.PortMap{
			exposed: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
		Resources: container.Resources{
			Memory:   spec.MemoryMB * 1024 * 1024,
			NanoCPUs: int64(spec.CPUs * 1e9),
		},
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, host, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("driver: create from %s: %w", spec.Image, err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Best effort: don't leave the created-but-unstarted container behind.
		_ = d.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("driver: start %s: %w", created.ID, err)
	}
	return created.ID, nil
}

// Kill terminates and removes the container.
func (d *Docker) Kill(ctx context.Context, instanceID string) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	if err := d.cli.ContainerKill(ctx, instanceID, "SIGKILL"); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("driver: kill %s: %w", instanceID, err)
	}
	// AutoRemove usually cleans up; force-remove covers engines where the
	// container lingers after the kill.
	if err := d.cli.ContainerRemove(ctx, instanceID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("driver: remove %s: %w", instanceID, err)
	}
	return nil
}

// IsRunning inspects the container state. A missing container reads as not
// running so stale registry rows can self-heal.
func (d *Docker) IsRunning(ctx context.Context, instanceID string) (bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	info, err := d.cli.ContainerInspect(ctx, instanceID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("driver: inspect %s: %w", instanceID, err)
	}
	return info.State != nil && info.State.Running, nil
}

// Port returns the first host port the engine published for the container.
func (d *Docker) Port(ctx context.Context, instanceID string) (int, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	info, err := d.cli.ContainerInspect(ctx, instanceID)
	if err != nil {
		return 0, fmt.Errorf("driver: inspect %s: %w", instanceID, err)
	}
	if info.NetworkSettings == nil {
		return 0, fmt.Errorf("driver: %s has no network settings", instanceID)
	}
	for _, bindings := range info.NetworkSettings.Ports {
		for _, b := range bindings {
			if b.HostPort == "" {
				continue
			}
			p, err := strconv.Atoi(b.HostPort)
			if err != nil {
				continue
			}
			return p, nil
		}
	}
	return 0, fmt.Errorf("driver: no published port for %s", instanceID)
}

// Images lists the repo tags of every image the engine holds.
func (d *Docker) Images(ctx context.Context) ([]string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	summaries, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("driver: list images: %w", err)
	}
	var tags []string
	for _, s := range summaries {
		tags = append(tags, s.RepoTags...)
	}
	return tags, nil
}

// Ping checks connectivity to the engine.
func (d *Docker) Ping(ctx context.Context) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("driver: ping: %w", err)
	}
	return nil
}

// parseVolumes decodes the challenge volume spec, a JSON object mapping
// host paths to container paths, into Docker bind strings.
func parseVolumes(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(spec), &m); err != nil {
		return nil, fmt.Errorf("driver: parse volumes: %w", err)
	}
	binds := make([]string, 0, len(m))
	for hostPath, containerPath := range m {
		binds = append(binds, hostPath+":"+containerPath)
	}
	return binds, nil
}

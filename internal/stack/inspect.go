package stack

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/kebairia/stackbackup/internal/backup"
)

// projectLabel is set by docker compose on every container it creates.
const projectLabel = "com.docker.compose.project"

// Inspector counts the running containers of a stack.
type Inspector interface {
	Running(ctx context.Context, s backup.Stack) (int, error)
}

// ContainerLister is the subset of the Docker API client used here.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// DockerInspector asks the Docker Engine for the containers of a compose project.
type DockerInspector struct {
	api     ContainerLister
	closer  func() error
	timeout time.Duration
}

var _ Inspector = (*DockerInspector)(nil)

// NewDockerInspector connects using the DOCKER_HOST environment.
func NewDockerInspector() (*DockerInspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error initializing Docker client: %w", err)
	}
	return &DockerInspector{api: cli, closer: cli.Close, timeout: 30 * time.Second}, nil
}

// NewInspectorWithLister wraps an existing lister.
func NewInspectorWithLister(api ContainerLister) *DockerInspector {
	return &DockerInspector{api: api, timeout: 30 * time.Second}
}

// Running implements Inspector.
func (d *DockerInspector) Running(ctx context.Context, s backup.Stack) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	list, err := d.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", projectLabel+"="+ProjectName(s.Path))),
	})
	if err != nil {
		return 0, fmt.Errorf("list containers of %s: %w", s.Name, err)
	}
	running := 0
	for _, c := range list {
		if c.State == "running" {
			running++
		}
	}
	return running, nil
}

// Close releases the Docker client.
func (d *DockerInspector) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}

// ProjectName returns the default compose project name for a stack directory.
func ProjectName(dir string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(dir)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

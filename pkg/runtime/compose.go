package runtime

import (
	"context"
	"fmt"

	"github.com/kernelci/kcidb-deploy/pkg/types"
)

// Compose drives profile-scoped lifecycle transitions through the
// orchestration tool. Failures of the underlying invocation are
// surfaced verbatim; retries belong to the tool itself or to the
// readiness poller, never to this layer.
type Compose struct {
	runner   Runner
	resolver *Resolver

	// ProjectDir is passed as --project-directory when non-empty.
	ProjectDir string
	// EnvFile is the persisted environment configuration handed to the
	// tool as process environment for every managed service.
	EnvFile string
}

// NewCompose creates a compose driver. The resolver is consulted (and
// its result cached) on the first command.
func NewCompose(runner Runner, resolver *Resolver, projectDir, envFile string) *Compose {
	return &Compose{
		runner:     runner,
		resolver:   resolver,
		ProjectDir: projectDir,
		EnvFile:    envFile,
	}
}

// Up builds and starts every service tagged with the profile, detached.
// Safe to repeat: the tool converges to the same running state without
// touching existing data volumes.
func (c *Compose) Up(ctx context.Context, profile types.Profile) error {
	return c.invoke(ctx, profile, "up", "--build", "--detach")
}

// Down stops and removes containers for the profile. Named volumes are
// preserved.
func (c *Compose) Down(ctx context.Context, profile types.Profile) error {
	return c.invoke(ctx, profile, "down")
}

// Destroy stops containers and removes the associated volumes and
// networks. Destructive; the lifecycle controller gates it behind
// confirmation.
func (c *Compose) Destroy(ctx context.Context, profile types.Profile) error {
	return c.invoke(ctx, profile, "down", "--volumes", "--remove-orphans")
}

// Status lists the profile's services and their container state.
func (c *Compose) Status(ctx context.Context, profile types.Profile) error {
	return c.invoke(ctx, profile, "ps")
}

func (c *Compose) invoke(ctx context.Context, profile types.Profile, verb string, extra ...string) error {
	access, err := c.resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	name := "docker"
	args := []string{"compose"}
	if access == AccessEscalated {
		name = "sudo"
		args = []string{"docker", "compose"}
	}
	if c.ProjectDir != "" {
		args = append(args, "--project-directory", c.ProjectDir)
	}
	if c.EnvFile != "" {
		args = append(args, "--env-file", c.EnvFile)
	}
	args = append(args, "--profile", profile.String(), verb)
	args = append(args, extra...)

	if err := c.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("compose %s failed for profile %s: %w", verb, profile, err)
	}
	return nil
}

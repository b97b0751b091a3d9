package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/kernelci/kcidb-deploy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeArgs(t *testing.T) {
	tests := []struct {
		name string
		call func(ctx context.Context, c *Compose) error
		want string
	}{
		{
			name: "up builds and detaches",
			call: func(ctx context.Context, c *Compose) error {
				return c.Up(ctx, types.ProfileSelfHosted)
			},
			want: "docker compose --project-directory /srv/kcidb --env-file /srv/kcidb/.env --profile self-hosted up --build --detach",
		},
		{
			name: "down preserves volumes",
			call: func(ctx context.Context, c *Compose) error {
				return c.Down(ctx, types.ProfileSelfHosted)
			},
			want: "docker compose --project-directory /srv/kcidb --env-file /srv/kcidb/.env --profile self-hosted down",
		},
		{
			name: "destroy removes volumes and orphans",
			call: func(ctx context.Context, c *Compose) error {
				return c.Destroy(ctx, types.ProfileCloudSQL)
			},
			want: "docker compose --project-directory /srv/kcidb --env-file /srv/kcidb/.env --profile google-cloud-sql down --volumes --remove-orphans",
		},
		{
			name: "status lists services",
			call: func(ctx context.Context, c *Compose) error {
				return c.Status(ctx, types.ProfileSelfHosted)
			},
			want: "docker compose --project-directory /srv/kcidb --env-file /srv/kcidb/.env --profile self-hosted ps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			compose := NewCompose(runner, NewResolver(runner), "/srv/kcidb", "/srv/kcidb/.env")

			require.NoError(t, tt.call(context.Background(), compose))
			// calls[0] is the access probe
			require.Len(t, runner.calls, 2)
			assert.Equal(t, tt.want, runner.calls[1])
		})
	}
}

func TestComposeEscalated(t *testing.T) {
	runner := newFakeRunner()
	runner.failing["docker info"] = errors.New("permission denied")
	compose := NewCompose(runner, NewResolver(runner), "", "")

	require.NoError(t, compose.Up(context.Background(), types.ProfileSelfHosted))
	last := runner.calls[len(runner.calls)-1]
	assert.Equal(t, "sudo docker compose --profile self-hosted up --build --detach", last)
}

func TestComposeSurfacesToolFailure(t *testing.T) {
	runner := newFakeRunner()
	toolErr := errors.New("exit status 17")
	runner.failing["docker compose"] = toolErr
	compose := NewCompose(runner, NewResolver(runner), "", "")

	err := compose.Up(context.Background(), types.ProfileSelfHosted)
	require.Error(t, err)
	assert.ErrorIs(t, err, toolErr)
}

func TestComposeFailsWithoutRuntimeAccess(t *testing.T) {
	runner := newFakeRunner()
	runner.failing["docker info"] = errors.New("not found")
	runner.failing["sudo -n docker info"] = errors.New("not found")
	compose := NewCompose(runner, NewResolver(runner), "", "")

	err := compose.Up(context.Background(), types.ProfileSelfHosted)
	assert.ErrorIs(t, err, ErrNoRuntimeAccess)
}

package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelci/kcidb-deploy/pkg/envstore"
	"github.com/kernelci/kcidb-deploy/pkg/types"
)

type fakeCompose struct {
	calls []string
	fail  map[string]error
}

func (f *fakeCompose) invoke(verb string, profile types.Profile) error {
	f.calls = append(f.calls, verb+" "+profile.String())
	if f.fail != nil {
		if err, ok := f.fail[verb]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeCompose) Up(_ context.Context, p types.Profile) error      { return f.invoke("up", p) }
func (f *fakeCompose) Down(_ context.Context, p types.Profile) error    { return f.invoke("down", p) }
func (f *fakeCompose) Destroy(_ context.Context, p types.Profile) error { return f.invoke("destroy", p) }
func (f *fakeCompose) Status(_ context.Context, p types.Profile) error  { return f.invoke("status", p) }

type testEnv struct {
	controller *Controller
	compose    *fakeCompose
	store      *envstore.Store
	filterPath string
}

func newTestController(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	compose := &fakeCompose{}
	store := envstore.New(filepath.Join(dir, ".env"))
	cfg := &Config{
		Profile:    types.ProfileSelfHosted,
		Compose:    compose,
		Store:      store,
		Confirmer:  &StaticConfirmer{Answer: true},
		FilterPath: filepath.Join(dir, "filters.yaml"),
		Logger:     zerolog.Nop(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return &testEnv{
		controller: New(cfg),
		compose:    compose,
		store:      store,
		filterPath: cfg.FilterPath,
	}
}

func TestRunBootstrapsEnvironment(t *testing.T) {
	env := newTestController(t, nil)

	require.NoError(t, env.controller.Run(context.Background()))

	cfg, err := env.store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg[envstore.KeyPostgresPassword])
	assert.NotEmpty(t, cfg[envstore.KeyPSPass])
	assert.NotEmpty(t, cfg[envstore.KeyJWTSecret])
	assert.NotEqual(t, envstore.JWTSecretPlaceholder, cfg[envstore.KeyJWTSecret])
	assert.Contains(t, cfg[envstore.KeyPGURI], "host=db")
	assert.Contains(t, cfg[envstore.KeyPGURI], "dbname=kcidb")

	_, err = os.Stat(env.filterPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"up self-hosted"}, env.compose.calls)
}

// run, down, run again: same running state, no reconfiguration.
func TestRunDownRunKeepsConfiguration(t *testing.T) {
	env := newTestController(t, nil)
	ctx := context.Background()

	require.NoError(t, env.controller.Run(ctx))
	first, err := env.store.Load()
	require.NoError(t, err)

	// Simulate the operator customizing the filter config.
	custom := []byte("myorigin:\n  - type: build\n")
	require.NoError(t, os.WriteFile(env.filterPath, custom, 0644))

	require.NoError(t, env.controller.Down(ctx))
	require.NoError(t, env.controller.Run(ctx))

	second, err := env.store.Load()
	require.NoError(t, err)
	assert.Equal(t, first, second, "no duplicate secret generation across run/down/run")

	data, err := os.ReadFile(env.filterPath)
	require.NoError(t, err)
	assert.Equal(t, custom, data, "filter config is user-owned after seeding")

	assert.Equal(t, []string{"up self-hosted", "down self-hosted", "up self-hosted"}, env.compose.calls)
}

func TestRunPrunesStaleDomain(t *testing.T) {
	ctx := context.Background()

	withDomain := newTestController(t, func(cfg *Config) { cfg.Domain = "kcidb.example.org" })
	require.NoError(t, withDomain.controller.Run(ctx))
	value, ok, err := withDomain.store.Get(envstore.KeyACMEDomain)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kcidb.example.org", value)

	// Same store, next run without the domain: the key is removed,
	// not merely ignored.
	without := New(&Config{
		Profile:    types.ProfileSelfHosted,
		Compose:    withDomain.compose,
		Store:      withDomain.store,
		Confirmer:  &StaticConfirmer{Answer: true},
		FilterPath: withDomain.filterPath,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, without.Run(ctx))
	_, ok, err = withDomain.store.Get(envstore.KeyACMEDomain)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfileSwitchReconcilesURI(t *testing.T) {
	ctx := context.Background()
	env := newTestController(t, nil)
	require.NoError(t, env.controller.Run(ctx))

	cloud := New(&Config{
		Profile:    types.ProfileCloudSQL,
		Compose:    env.compose,
		Store:      env.store,
		Confirmer:  &StaticConfirmer{Answer: true},
		FilterPath: env.filterPath,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, cloud.Run(ctx))

	uri, _, err := env.store.Get(envstore.KeyPGURI)
	require.NoError(t, err)
	assert.Contains(t, uri, "host=cloudsql-proxy")
}

func TestCleanDeclinedHasNoSideEffects(t *testing.T) {
	env := newTestController(t, func(cfg *Config) {
		cfg.Confirmer = &StaticConfirmer{Answer: false}
	})
	ctx := context.Background()
	require.NoError(t, env.controller.Run(ctx))
	env.compose.calls = nil

	performed, err := env.controller.Clean(ctx)
	require.NoError(t, err)
	assert.False(t, performed)

	// Configuration untouched, no orchestration calls issued.
	assert.Empty(t, env.compose.calls)
	exists, err := env.store.Exists()
	require.NoError(t, err)
	assert.True(t, exists)
	_, err = os.Stat(env.filterPath)
	assert.NoError(t, err)
}

func TestCleanConfirmedRemovesEverything(t *testing.T) {
	env := newTestController(t, nil)
	ctx := context.Background()
	require.NoError(t, env.controller.Run(ctx))

	performed, err := env.controller.Clean(ctx)
	require.NoError(t, err)
	assert.True(t, performed)

	assert.Contains(t, env.compose.calls, "destroy self-hosted")
	exists, err := env.store.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = os.Stat(env.filterPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunSurfacesComposeFailure(t *testing.T) {
	toolErr := errors.New("exit status 1")
	env := newTestController(t, func(cfg *Config) {
		cfg.Compose = &fakeCompose{fail: map[string]error{"up": toolErr}}
	})

	err := env.controller.Run(context.Background())
	assert.ErrorIs(t, err, toolErr)
}

func TestTerminalConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact token", "yes\n", true},
		{"token with surrounding space", "  yes  \n", true},
		{"anything else", "y\n", false},
		{"empty input", "\n", false},
		{"eof without newline", "yes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			confirmer := &TerminalConfirmer{In: strings.NewReader(tt.input), Out: &out}
			ok, err := confirmer.Confirm("confirm: ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "confirm: ", out.String())
		})
	}
}

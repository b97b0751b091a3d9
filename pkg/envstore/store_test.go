package envstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), ".env"))
}

func TestEnsureExistsCreatesOnce(t *testing.T) {
	store := newTestStore(t)

	secret, err := NewSecret()
	require.NoError(t, err)
	defaults := []Entry{
		{Key: KeyPostgresPassword, Value: secret},
		{Key: KeyJWTSecret, Value: JWTSecretPlaceholder},
	}

	first, err := store.EnsureExists(defaults)
	require.NoError(t, err)
	assert.Equal(t, secret, first[KeyPostgresPassword])

	// Repeated invocations leave secret fields unchanged.
	other, err := NewSecret()
	require.NoError(t, err)
	second, err := store.EnsureExists([]Entry{{Key: KeyPostgresPassword, Value: other}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureExistsOwnerOnlyPermissions(t *testing.T) {
	store := newTestStore(t)
	_, err := store.EnsureExists([]Entry{{Key: KeyPSPass, Value: "x"}})
	require.NoError(t, err)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRotatePlaceholderSecret(t *testing.T) {
	store := newTestStore(t)
	_, err := store.EnsureExists([]Entry{{Key: KeyJWTSecret, Value: JWTSecretPlaceholder}})
	require.NoError(t, err)

	rotated, err := store.RotatePlaceholderSecret(KeyJWTSecret, JWTSecretPlaceholder)
	require.NoError(t, err)
	assert.True(t, rotated)

	value, ok, err := store.Get(KeyJWTSecret)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, JWTSecretPlaceholder, value)
	assert.Len(t, value, SecretBytes*2) // hex-encoded

	// Once rotated the value is immutable across runs.
	again, err := store.RotatePlaceholderSecret(KeyJWTSecret, JWTSecretPlaceholder)
	require.NoError(t, err)
	assert.False(t, again)

	after, _, err := store.Get(KeyJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, value, after)
}

func TestRotatePlaceholderSecretAddsMissingKey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.EnsureExists(nil)
	require.NoError(t, err)

	rotated, err := store.RotatePlaceholderSecret(KeyJWTSecret, JWTSecretPlaceholder)
	require.NoError(t, err)
	assert.True(t, rotated)

	_, ok, err := store.Get(KeyJWTSecret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPruneKey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.EnsureExists([]Entry{
		{Key: KeyACMEDomain, Value: "kcidb.example.org"},
		{Key: KeyPSPass, Value: "x"},
	})
	require.NoError(t, err)

	// Absent key is a no-op returning false.
	found, err := store.PruneKey("NO_SUCH_KEY")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.PruneKey(KeyACMEDomain)
	require.NoError(t, err)
	assert.True(t, found)

	_, ok, err := store.Get(KeyACMEDomain)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unrelated keys survive the rewrite.
	_, ok, err = store.Get(KeyPSPass)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertReplacesInPlace(t *testing.T) {
	store := newTestStore(t)
	_, err := store.EnsureExists([]Entry{
		{Key: "A", Value: "1"},
		{Key: "B", Value: "2"},
	})
	require.NoError(t, err)

	require.NoError(t, store.Upsert("A", "updated"))
	require.NoError(t, store.Upsert("C", "3"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "A=updated\nB=2\nC=3\n", string(data))
}

func TestLoadMalformedIsConfigError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("POSTGRES_PASSWORD=ok\ngarbage line\n"), 0600))

	_, err := store.Load()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, store.Path(), cfgErr.Path)
}

func TestLoadSkipsCommentsAndBlanks(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("# managed by kcidb-deploy\n\nPS_PASS=x\n"), 0600))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PS_PASS": "x"}, cfg)
}

func TestPGURI(t *testing.T) {
	uri := PGURI("kcidb", "kcidb", "s3cret", "db", 5432)
	assert.Equal(t, "postgresql:dbname=kcidb user=kcidb password=s3cret host=db port=5432", uri)

	dsn, err := DSN(uri)
	require.NoError(t, err)
	assert.Equal(t, "dbname=kcidb user=kcidb password=s3cret host=db port=5432", dsn)

	_, err = DSN("mysql:whatever")
	assert.Error(t, err)
}

func TestNewSecretLengthAndUniqueness(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, a, SecretBytes*2)
	assert.NotEqual(t, a, b)
}

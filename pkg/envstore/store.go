package envstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Well-known configuration keys. The file is handed to the
// orchestration tool as process environment for every managed service,
// so the names must match what the services read.
const (
	KeyPostgresPassword = "POSTGRES_PASSWORD"
	KeyPSPass           = "PS_PASS"
	KeyPGURI            = "PG_URI"
	KeyJWTSecret        = "JWT_SECRET"
	KeyACMEDomain       = "ACME_DOMAIN"
)

// JWTSecretPlaceholder is the insecure default the REST ingress warns
// about. A stored secret equal to this value must be rotated before
// any service starts.
const JWTSecretPlaceholder = "secret"

// SecretBytes is the number of random bytes in a generated secret;
// secrets are persisted hex-encoded.
const SecretBytes = 32

// ConfigError reports a persisted store that exists but cannot be
// used: unreadable, truncated or malformed. It is fatal; the caller
// must not proceed with partial configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("environment config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Entry is a single KEY=VALUE line. Order is preserved across targeted
// mutations so the file stays diffable.
type Entry struct {
	Key   string
	Value string
}

// Store reads and writes the persistent environment configuration.
// It is the single writer of the file; every mutation happens under an
// exclusive file lock and is written atomically.
type Store struct {
	path string
}

// New creates a store for the configuration file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the persisted file.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the persisted store is present.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &ConfigError{Path: s.path, Err: err}
}

// EnsureExists writes the store with the given entries if it is
// absent; if present it is returned unchanged. The file is created
// with owner-only permissions because it carries secret material.
func (s *Store) EnsureExists(defaults []Entry) (map[string]string, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := s.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.write(defaults); err != nil {
			return nil, err
		}
	}
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	return toMap(entries), nil
}

// Load reads the persisted store into a key/value map.
func (s *Store) Load() (map[string]string, error) {
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	return toMap(entries), nil
}

// Get returns the value for key and whether it is present.
func (s *Store) Get(key string) (string, bool, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", false, err
	}
	v, ok := cfg[key]
	return v, ok, nil
}

// Upsert sets key to value, replacing an existing entry in place or
// appending a new one.
func (s *Store) Upsert(key, value string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return s.write(entries)
}

// PruneKey deletes key if present and reports whether it was. Stale
// optional keys are removed rather than ignored: a leftover value can
// silently re-enable behavior the active profile does not want.
func (s *Store) PruneKey(key string) (bool, error) {
	unlock, err := s.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	entries, err := s.read()
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.Key == key {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false, nil
	}
	return true, s.write(kept)
}

// RotatePlaceholderSecret regenerates the value for key when it is
// missing or equals placeholder, and reports whether rotation
// occurred. Values that are not exactly the placeholder are never
// touched, so the operation is idempotent once rotated.
func (s *Store) RotatePlaceholderSecret(key, placeholder string) (bool, error) {
	unlock, err := s.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	entries, err := s.read()
	if err != nil {
		return false, err
	}
	for i := range entries {
		if entries[i].Key != key {
			continue
		}
		if entries[i].Value != placeholder {
			return false, nil
		}
		secret, err := NewSecret()
		if err != nil {
			return false, err
		}
		entries[i].Value = secret
		return true, s.write(entries)
	}
	secret, err := NewSecret()
	if err != nil {
		return false, err
	}
	entries = append(entries, Entry{Key: key, Value: secret})
	return true, s.write(entries)
}

// Remove deletes the persisted store. Only the destructive teardown
// path calls this.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &ConfigError{Path: s.path, Err: err}
	}
	return nil
}

// NewSecret returns a cryptographically random, hex-encoded secret.
func NewSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// PGURI builds the connection URI consumed verbatim by the database
// provisioner and the downstream services.
func PGURI(dbname, user, password, host string, port int) string {
	return fmt.Sprintf("postgresql:dbname=%s user=%s password=%s host=%s port=%d",
		dbname, user, password, host, port)
}

// DSN converts a PGURI-shaped connection URI into the keyword/value
// data source name the database driver understands.
func DSN(uri string) (string, error) {
	const prefix = "postgresql:"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("connection URI %q does not start with %q", uri, prefix)
	}
	return strings.TrimPrefix(uri, prefix), nil
}

// read parses the store. An absent file reads as empty; a present but
// unreadable or malformed file is a ConfigError.
func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ConfigError{Path: s.path, Err: err}
	}
	var entries []Entry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, &ConfigError{
				Path: s.path,
				Err:  fmt.Errorf("malformed line %d: %q", i+1, line),
			}
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

// write persists entries atomically: temp file in the same directory,
// owner-only permissions, then rename over the target.
func (s *Store) write(entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s=%s\n", e.Key, e.Value)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &ConfigError{Path: s.path, Err: err}
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return &ConfigError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}
	return nil
}

// lock takes an exclusive flock on a sidecar lock file for the
// duration of a mutation.
func (s *Store) lock() (func(), error) {
	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, &ConfigError{Path: s.path, Err: err}
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, &ConfigError{Path: s.path, Err: err}
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

func toMap(entries []Entry) map[string]string {
	cfg := make(map[string]string, len(entries))
	for _, e := range entries {
		cfg[e.Key] = e.Value
	}
	return cfg
}

package runtime

import (
	"context"
	"errors"
	"sync"
)

// Access describes how the invoking principal can drive the container
// runtime.
type Access int

const (
	// AccessDirect means the runtime answers without escalation
	// (the caller is root or in the docker group).
	AccessDirect Access = iota
	// AccessEscalated means commands must be prefixed with sudo.
	AccessEscalated
)

func (a Access) String() string {
	if a == AccessEscalated {
		return "escalated"
	}
	return "direct"
}

// ErrNoRuntimeAccess is returned when neither direct nor escalated
// invocation of the container runtime succeeds: the runtime is absent
// or the caller has no usable permission path.
var ErrNoRuntimeAccess = errors.New("no usable path to the container runtime")

// Resolver probes the container runtime once and caches the result for
// the remainder of the process, so later commands do not re-probe.
type Resolver struct {
	runner Runner

	once   sync.Once
	access Access
	err    error
}

// NewResolver creates a resolver using the given runner for probes.
func NewResolver(runner Runner) *Resolver {
	return &Resolver{runner: runner}
}

// Resolve determines the access path to the container runtime. The
// only side effects are the two probe invocations; the classification
// is cached after the first call.
func (r *Resolver) Resolve(ctx context.Context) (Access, error) {
	r.once.Do(func() {
		r.access, r.err = r.probe(ctx)
	})
	return r.access, r.err
}

func (r *Resolver) probe(ctx context.Context) (Access, error) {
	// A no-op runtime query; only the exit status matters.
	if err := r.runner.RunQuiet(ctx, "docker", "info"); err == nil {
		return AccessDirect, nil
	}
	// -n keeps sudo from hanging on a password prompt when run
	// non-interactively.
	if err := r.runner.RunQuiet(ctx, "sudo", "-n", "docker", "info"); err == nil {
		return AccessEscalated, nil
	}
	return 0, ErrNoRuntimeAccess
}

/*
Package lifecycle is the top-level orchestrator for the deployment.

The Controller exposes the run, down and clean operations over a
deployment profile, composing the privilege-resolved compose driver and
the environment store. run materializes and repairs configuration
before starting services; down is non-destructive; clean is gated
behind an exact-token confirmation and is the only path that deletes
volumes and configuration.

State machine per profile:

	Absent -> Starting -> Running -> (Stopping -> Absent | Destroying -> Absent)

Operations are single-flow and not expected to execute concurrently
against the same deployment; the orchestration tool's container naming
is the mutual-exclusion boundary. Nothing is cached across process
restarts: every invocation re-reads the environment store.
*/
package lifecycle

/*
Package runtime resolves how the container runtime can be driven and
issues profile-scoped commands to the orchestration tool.

The Resolver probes `docker info` directly and, failing that, under
non-interactive sudo; the classification is cached for the process so
every later command uses the same path. Compose wraps the profile
lifecycle verbs (up, down, destructive down, ps) and surfaces tool
failures verbatim.

Both are built on the Runner interface so tests can substitute a fake
command executor.
*/
package runtime

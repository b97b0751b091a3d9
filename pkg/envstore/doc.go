/*
Package envstore materializes and repairs the persistent environment
configuration shared by every managed service.

The store is a line-oriented KEY=VALUE file created with owner-only
permissions on first run. Secrets are defaulted once and never
regenerated, with one exception: a secret still equal to its known
insecure placeholder is rotated on every invocation until it no longer
is. Optional keys are pruned, not ignored, when the mode that needs
them is not selected.

All mutations are targeted (single-key upsert or delete), performed
under an exclusive file lock and written atomically. A store that
exists but cannot be parsed is a ConfigError and fatal to the caller.
*/
package envstore

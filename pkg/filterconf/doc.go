// Package filterconf seeds and parses the log-analysis worker's
// filter configuration: a YAML mapping from submission origin to the
// report types (build/test) to process, with optional path globs for
// tests. The file is seeded from an embedded template on first run and
// user-owned thereafter.
package filterconf

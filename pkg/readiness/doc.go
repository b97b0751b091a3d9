/*
Package readiness blocks a bootstrap flow until its database target
accepts connections.

A Checker performs one lightweight probe; WaitUntilReady retries it at
a fixed interval up to a bounded number of attempts, sleeping (not
spinning) in between, and is cancellable through the context. Failure
is a TimeoutError, a recoverable condition the caller may retry from.
*/
package readiness

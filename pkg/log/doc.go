/*
Package log provides structured logging using zerolog.

A single global logger is initialized once from the command line
(level, console or JSON output) and packages derive child loggers via
WithComponent, WithProfile and WithDatabase so every line carries the
context it was emitted under.
*/
package log

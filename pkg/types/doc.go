/*
Package types defines the core data structures shared by the deployment
bootstrap: deployment profiles, database role tiers, provisioning
results, and the service/volume names the orchestration tool schedules
under.

These types carry no behavior beyond validation and derivation helpers;
all state lives in the environment store and in the database itself.
*/
package types

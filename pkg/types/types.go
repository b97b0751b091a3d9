package types

import "fmt"

// Profile selects which set of compose services a lifecycle operation
// applies to. Profiles are mutually exclusive: self-hosted runs a local
// PostgreSQL container and its initializer, google-cloud-sql runs the
// Cloud SQL auth proxy instead.
type Profile string

const (
	ProfileSelfHosted Profile = "self-hosted"
	ProfileCloudSQL   Profile = "google-cloud-sql"
)

// DefaultProfile is used when no profile flag is given.
const DefaultProfile = ProfileSelfHosted

// ParseProfile validates a profile name from the command line.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileSelfHosted, ProfileCloudSQL:
		return Profile(s), nil
	}
	return "", fmt.Errorf("unknown profile %q (expected %q or %q)",
		s, ProfileSelfHosted, ProfileCloudSQL)
}

func (p Profile) String() string {
	return string(p)
}

// DatabaseHost returns the in-network hostname services reach the
// database through under this profile.
func (p Profile) DatabaseHost() string {
	if p == ProfileCloudSQL {
		return ServiceCloudProxy
	}
	return ServiceDatabase
}

// RoleTier is one of the three privilege tiers on the application
// database. Downstream services authenticate as exactly one tier.
type RoleTier string

const (
	// TierOwner owns the schema and has full DDL/DML.
	TierOwner RoleTier = "owner"
	// TierEditor can read and write all existing objects and create
	// new ones, but cannot manage roles.
	TierEditor RoleTier = "editor"
	// TierViewer is read-only: CONNECT, schema USAGE, SELECT and EXECUTE.
	TierViewer RoleTier = "viewer"
)

// Role is a database account to be provisioned.
type Role struct {
	Name     string
	Password string
	Tier     RoleTier
}

// ProvisionResult reports what a provisioning run actually did.
type ProvisionResult string

const (
	// Provisioned means the database, roles and grants were created
	// from scratch and the schema migration ran.
	Provisioned ProvisionResult = "provisioned"
	// AlreadyProvisioned means the completion marker was found and no
	// mutating statement was issued.
	AlreadyProvisioned ProvisionResult = "already-provisioned"
	// Repaired means the database existed without a completion marker
	// (an earlier run died mid-way) and grants were re-applied.
	Repaired ProvisionResult = "repaired"
)

// Application database identity. Downstream services authenticate as
// one of the three fixed role names; the viewer is a public read-only
// tier with a well-known password.
const (
	DatabaseName   = "kcidb"
	DatabasePort   = 5432
	OwnerRoleName  = "kcidb"
	EditorRoleName = "kcidb_editor"
	ViewerRoleName = "kcidb_viewer"
	ViewerPassword = "kcidb_viewer"
)

// Compose service names. The lifecycle controller never talks to these
// directly; they are the names the orchestration tool schedules under
// and the hostnames services use to reach each other.
const (
	ServiceIngress    = "kcidb-restd"
	ServiceIngester   = "ingester"
	ServiceLogspec    = "logspec-worker"
	ServiceDatabase   = "db"
	ServiceDBInit     = "db-init"
	ServiceCloudProxy = "cloudsql-proxy"
)

// Named volumes owned by the orchestration tool. down preserves all of
// them; only clean removes them.
const (
	VolumeDBData = "db-data"
	VolumeSpool  = "spool"
	VolumeCache  = "cache"
	VolumeState  = "state"
)

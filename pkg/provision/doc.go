/*
Package provision idempotently prepares the application database: the
owning role, a read-write editor role, a read-only viewer role, scoped
grants, schema ownership transfer and the schema migration.

The idempotence boundary is checked before any mutating statement:
a database whose completion marker is present is reported as already
provisioned with nothing issued. A database that exists without the
marker is the residue of an interrupted run; roles and grants are
re-applied (creation tolerates duplicates) and the migration re-driven,
so the sequence converges instead of silently reporting success.

Statement ordering is load-bearing: roles and the database are created
before any grant, and schema ownership is transferred before editor
grants, because grants on objects owned by the wrong role are rejected.
*/
package provision

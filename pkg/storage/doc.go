/*
Package storage provides BoltDB-backed persistence for the worker's local check
history.

Two buckets are kept in <dataDir>/satellite-operations.db:

	checks       source ID  → last resolved CheckRecord
	directives   message ID → CheckRecord of a directive awaiting its response

Directive records are written when a directive is registered with the
correlator and removed when the directive resolves. Records left over after a
restart are the directives abandoned at shutdown; the worker reports and clears
them at startup but never persists a status for them.

Together the two buckets drive the "checked recently" window: a Source is
skipped while it has a resolved check or a pending directive inside the
window. An attempt that resolved nothing leaves no record.

All values are JSON encoded. Writes use db.Update, reads db.View.
*/
package storage

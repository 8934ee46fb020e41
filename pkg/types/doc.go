/*
Package types defines the domain model shared by the Satellite operations worker.

It holds the inventory entities referenced by an availability check (Source and
its default Endpoint), the fixed taxonomy of unavailable reasons, the receptor
node connection states, and the lifecycle states of a single check:

	not_started → validating → checking_network → directive_sent → resolved
	                   │               │                                ▲
	                   └───────────────┴──── (immediate resolution) ────┘

Every UnavailableReason maps to exactly one human readable message which is
persisted as availability_status_error. Reasons are never conflated.
*/
package types

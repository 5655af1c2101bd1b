// Package session owns the per-connection reliability primitives.
//
// Ownership boundary:
// - control and audio sequence counters
// - the pending-ack table, retransmission and stale-drop policy
// - split message reassembly
// - session timing defaults and dial retry backoff
//
// Nothing here is safe for concurrent use on its own; the client session
// serializes every call under its lock. The pending-ack table is the one
// exception and carries its own mutex so status snapshots can read it.
package session

// Package store holds the canonical client-side view of a
// conversation: connection status, ordered chat messages, the live
// reasoning trace, streaming accumulation, and pending clarifications.
//
// The store is the single source of truth for anything a frontend
// renders. All writes go through named mutators, each of which runs
// atomically under the store lock and bumps a version counter.
// Readers take immutable snapshots; subscribers get a coalesced
// change signal rather than a per-mutation event stream.
//
// Derived reads (HasDrawing, IsWaitingForUser, CanSendQuery) are
// computed from snapshot fields and never stored.
package store

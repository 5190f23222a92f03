// Package chat routes decoded envelopes into store mutations and
// exposes the user-facing conversation operations.
//
// The Dispatcher is the single entry point for inbound messages: one
// handler per envelope type, each only mutating the store (plus one
// best-effort history fetch on session attach). The Service carries
// the outbound side: submitting queries, answering clarifications,
// and cancelling the in-flight turn.
package chat

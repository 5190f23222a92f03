// Package stub is an in-process stand-in for the Groundplan
// reasoning service, used for local development and integration
// tests. It serves the same REST and stream contracts the real
// service does, backed by in-memory state, and answers queries with
// scripted reasoning traces and token streams.
//
// The stub reuses the client's own protocol and REST types, so a
// contract change breaks both sides of the wire in the same commit.
package stub

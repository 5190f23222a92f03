// Package client owns the stream connection to the reasoning
// service: the WebSocket lifecycle, keep-alive pings, and the
// reconnection schedule.
//
// The Manager runs a four-state machine (disconnected, connecting,
// connected, error) mirrored into the store. One read loop per
// physical connection decodes frames, fans each envelope out to feed
// subscribers, and hands it to the dispatcher in arrival order.
// Unclean closes trigger exponential backoff reconnection with the
// bearer credential re-resolved at every attempt; Disconnect is the
// only call that cancels a pending retry.
package client

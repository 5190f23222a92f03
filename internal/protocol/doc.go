// Package protocol defines the wire envelope exchanged with the
// reasoning service and the codec between raw frames and typed
// payloads.
//
// Every frame is a JSON envelope {"type": string, "payload": object}.
// Decode resolves the payload into its concrete struct based on the
// type tag, so the rest of the client never touches raw JSON.
//
// Message Types (Client → Server):
//   - query: Submit a user question
//   - clarification_response: Answer a pending clarification
//   - cancel: Abort the in-flight query
//   - ping: Keep-alive probe
//
// Message Types (Server → Client):
//   - connected: Session accepted, context metadata follows
//   - reasoning_step: Agent progress for one pipeline node
//   - token: Single streamed answer fragment
//   - tokens: Batched answer fragments
//   - clarification_request: Agent needs user input to proceed
//   - calculation: Intermediate numeric result
//   - context_updated: Drawing context version changed
//   - response_complete: Final answer with citations
//   - error: Application-level failure
//   - pong: Keep-alive reply
//
// Example Usage:
//
//	env, err := protocol.Decode(frame)
//	if err != nil {
//		// malformed or unknown frame, drop it
//	}
//	switch p := env.Payload.(type) {
//	case *protocol.TokenPayload:
//		// append p.Chunk
//	}
package protocol

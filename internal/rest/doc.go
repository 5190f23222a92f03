/*
Package rest is the HTTP collaborator for the planning service's
non-streaming surface: session lifecycle, drawing context upload, and
conversation history.

Every call goes through one shared transport that applies rate
limiting, transport-level retries, a circuit breaker, and per-request
correlation ids. Responses outside 2xx map to *APIError carrying the
service's detail message.
*/
package rest

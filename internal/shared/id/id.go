// Package id generates prefixed, k-sortable identifiers.
//
// Identifiers are ULIDs carrying a short type prefix (sess_*, req_*),
// so they sort by creation time and read unambiguously in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies an advisory session.
type SessionID string

// RequestID identifies one REST request, for log correlation.
type RequestID string

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
)

// Generator produces ULIDs from a guarded entropy source. Construct
// with NewGenerator and inject where identifiers are minted.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy returns a generator with a custom entropy
// source, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Session returns a fresh session identifier.
func (g *Generator) Session() SessionID {
	return SessionID(g.prefixed(SessionPrefix))
}

// Request returns a fresh request identifier.
func (g *Generator) Request() RequestID {
	return RequestID(g.prefixed(RequestPrefix))
}

func (g *Generator) prefixed(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.generate().String())
}

func (g *Generator) generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// Raw strips the type prefix, if any, and returns the bare ULID text.
func Raw(id string) string {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// IsValid reports whether id is a ULID, with or without a prefix.
func IsValid(id string) bool {
	_, err := ulid.Parse(Raw(id))
	return err == nil
}

// Timestamp extracts the creation time embedded in id.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(Raw(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

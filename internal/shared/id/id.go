// Package id provides centralized ID generation for the game host.
//
// IDs are prefixed ULIDs: lexicographically sortable, unique across
// services, and readable in logs (play_*, sess_*, surf_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PlayerID identifies one open player view.
type PlayerID string

// SessionID identifies one play attempt.
type SessionID string

// SurfaceID identifies a sandboxed rendering surface.
type SurfaceID string

const (
	PlayerPrefix  = "play"
	SessionPrefix = "sess"
	SurfacePrefix = "surf"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewPlayerID generates a new player view ID.
func NewPlayerID() PlayerID {
	return PlayerID(Default().GenerateWithPrefix(PlayerPrefix))
}

// NewSessionID generates a new play attempt ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewSurfaceID generates a new surface ID.
func NewSurfaceID() SurfaceID {
	return SurfaceID(Default().GenerateWithPrefix(SurfacePrefix))
}

func (id PlayerID) String() string  { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id SurfaceID) String() string { return string(id) }

// IsValid checks whether the portion after the prefix parses as a ULID.
func IsValid(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			s = s[i+1:]
			break
		}
	}
	_, err := ulid.Parse(s)
	return err == nil
}

package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Supported strategies
const (
	StrategyUUID = "uuid"
	StrategyULID = "ulid"
)

// UUIDGenerator issues random version 4 UUIDs
type UUIDGenerator struct{}

// Generate returns a new UUID string
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// ULIDGenerator issues lexicographically sortable ids that increase within a millisecond
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator creates a ULID generator backed by crypto/rand
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate returns a new ULID string
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Generator is implemented by both strategies
type Generator interface {
	Generate() string
}

// New returns the generator for strategy; an empty strategy selects uuid
func New(strategy string) (Generator, error) {
	switch strategy {
	case "", StrategyUUID:
		return UUIDGenerator{}, nil
	case StrategyULID:
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}

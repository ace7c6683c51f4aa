package payment

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator issues TX-<YYYYMMDDHHMMSS>-<ULID> identifiers. The ULID
// entropy is monotonic so ids minted in the same millisecond stay unique
// and ordered.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *IDGenerator) New(now time.Time) string {
	now = now.UTC()

	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()

	return "TX-" + now.Format("20060102150405") + "-" + id.String()
}

package submission

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process Ledger substitute for cmd/standalone,
// where there is no catalog database to back a real Ledger. Its Record
// signature matches Ledger's so both satisfy the same interface in
// internal/handlers.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]int
}

// NewMemoryLedger builds an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]int)}
}

// Record increments and returns the seen count for (cardID, sourceURL).
func (m *MemoryLedger) Record(ctx context.Context, cardID, sourceURL string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cardID + "|" + sourceURL
	m.seen[key]++
	return m.seen[key], nil
}

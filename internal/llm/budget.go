package llm

import (
	"context"
	"sync"
	"time"
)

// Budget limits calls to the wrapped client per UTC day.
type Budget struct {
	mu    sync.Mutex
	next  Client
	limit int
	used  int
	day   string
	now   func() time.Time
}

var _ Client = (*Budget)(nil)

// NewBudget wraps next with a daily limit. A limit of zero or less means unlimited.
func NewBudget(next Client, limit int) *Budget {
	return &Budget{next: next, limit: limit, now: time.Now}
}

// Generate implements Generator.
func (b *Budget) Generate(ctx context.Context, req Request) (string, error) {
	if !b.take() {
		return "", ErrBudgetExhausted
	}
	return b.next.Generate(ctx, req)
}

// Close implements Client.
func (b *Budget) Close() error {
	return b.next.Close()
}

// Used returns the number of calls made today.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.used
}

func (b *Budget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return true
	}
	b.rollover()
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

func (b *Budget) rollover() {
	today := b.now().UTC().Format(time.DateOnly)
	if today != b.day {
		b.day = today
		b.used = 0
	}
}

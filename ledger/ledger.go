// Package ledger keeps the set of torrent ids the bot has already acquired so
// they are never fetched twice. Entries are only ever added.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Ledger is an in-memory id set backed by a Store. Record only buffers ids;
// Save pushes them to the store.
//
// The bot goroutine is the only writer. The lock exists for the status API,
// which reads membership concurrently.
type Ledger struct {
	mu      sync.RWMutex
	store   Store
	ids     map[string]struct{}
	order   []string
	pending []string
	log     zerolog.Logger
}

// Open loads every id from store. Missing backing data yields an empty
// ledger; unreadable data is an error.
func Open(ctx context.Context, store Store, log zerolog.Logger) (*Ledger, error) {
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	l := &Ledger{
		store: store,
		ids:   make(map[string]struct{}, len(ids)),
		log:   log.With().Str("component", "ledger").Logger(),
	}
	for _, id := range ids {
		l.add(id)
	}

	l.log.Info().Int("ids", len(l.order)).Msg("Ledger loaded")
	return l, nil
}

func (l *Ledger) add(id string) bool {
	if _, ok := l.ids[id]; ok {
		return false
	}
	l.ids[id] = struct{}{}
	l.order = append(l.order, id)
	return true
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Record adds id. Recording a known id is a no-op.
func (l *Ledger) Record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.add(id) {
		l.pending = append(l.pending, id)
	}
}

// Dirty reports whether ids were recorded since the last Save.
func (l *Ledger) Dirty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending) > 0
}

// Save persists ids recorded since the last Save. On failure they stay
// pending and the next Save retries them.
func (l *Ledger) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}
	if err := l.store.Append(ctx, l.pending); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	l.log.Debug().Int("ids", len(l.pending)).Msg("Ledger saved")
	l.pending = nil
	return nil
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// IDs returns every recorded id in recording order.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Close closes the backing store. It does not save.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Package livequery turns table writes into re-evaluated query snapshots.
//
// A Broker receives the names of tables that changed. Subscribers register
// interest in a set of tables and are signalled whenever one of them is
// written. Watch builds on that to deliver a fresh query result after every
// relevant write. GORM callbacks installed by Attach feed the broker, so every
// write that goes through the store is observed.
package livequery

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Broker fans table-change notifications out to subscribers.
// The zero value is not usable; call NewBroker.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	tables map[string]struct{}
	signal chan struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*subscriber)}
}

// Publish signals every subscriber interested in any of tables.
// Signals coalesce: a subscriber that has not consumed the previous signal
// is not signalled twice.
func (b *Broker) Publish(tables ...string) {
	if b == nil || len(tables) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		for _, t := range tables {
			if _, ok := s.tables[t]; ok {
				select {
				case s.signal <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

// Subscribe registers interest in tables. The returned channel receives a
// value after a write to any of them; cancel releases the subscription.
func (b *Broker) Subscribe(tables ...string) (<-chan struct{}, func()) {
	s := &subscriber{
		tables: make(map[string]struct{}, len(tables)),
		signal: make(chan struct{}, 1),
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.signal, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Transaction runs fn inside a database transaction and publishes the tables
// written by fn only after the commit succeeded, so subscribers never
// re-evaluate against uncommitted rows. fn must use the ctx it is given for
// the writes to be collected. A nil broker runs a plain transaction.
func (b *Broker) Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if b == nil {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error { return fn(ctx, tx) })
	}
	if pendingFrom(ctx) != nil {
		// Nested: the outermost call publishes.
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error { return fn(ctx, tx) })
	}
	ctx, p := withPending(ctx)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error { return fn(ctx, tx) })
	if err != nil {
		return err
	}
	b.Publish(p.drain()...)
	return nil
}

type pendingKey struct{}

type pending struct {
	mu     sync.Mutex
	tables map[string]struct{}
}

func withPending(ctx context.Context) (context.Context, *pending) {
	p := &pending{tables: make(map[string]struct{})}
	return context.WithValue(ctx, pendingKey{}, p), p
}

func pendingFrom(ctx context.Context) *pending {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(pendingKey{}).(*pending)
	return p
}

func (p *pending) add(tables ...string) {
	p.mu.Lock()
	for _, t := range tables {
		p.tables[t] = struct{}{}
	}
	p.mu.Unlock()
}

func (p *pending) drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.tables))
	for t := range p.tables {
		out = append(out, t)
	}
	p.tables = make(map[string]struct{})
	return out
}

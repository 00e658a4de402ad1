package executor

import (
	"github.com/pdferret/pdferret/pkg/docmodel"
)

// Batch is a keyed map of work items that remembers insertion order. Serial
// stages see items in this order; parallel stages make no ordering promise.
type Batch struct {
	keys  []string
	items map[string]docmodel.Item
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{items: map[string]docmodel.Item{}}
}

// Put inserts or replaces the item under key. Insertion order is recorded
// on first insert.
func (b *Batch) Put(key string, item docmodel.Item) {
	if _, ok := b.items[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.items[key] = item
}

// Get returns the item under key.
func (b *Batch) Get(key string) (docmodel.Item, bool) {
	it, ok := b.items[key]
	return it, ok
}

// Keys returns the keys in insertion order.
func (b *Batch) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Len returns the number of items.
func (b *Batch) Len() int { return len(b.keys) }

// Failures maps item keys to their failure record.
type Failures map[string]*docmodel.ProcessingError

// splitEvery partitions keys into consecutive slices of at most n.
func splitEvery(keys []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	var out [][]string
	for len(keys) > 0 {
		take := n
		if take > len(keys) {
			take = len(keys)
		}
		out = append(out, keys[:take])
		keys = keys[take:]
	}
	return out
}

package backend

import "sync"

// base carries the identity and training state shared by all variants.
// The RWMutex serializes Learn against concurrent Suggest calls: model
// state is mutated in place, so training takes the write lock while
// suggesting takes the read lock.
type base struct {
	id   string
	kind string
	mu   sync.RWMutex

	trained bool
}

func newBase(id, kind string) base {
	return base{id: id, kind: kind}
}

// ID returns the backend identifier.
func (b *base) ID() string { return b.id }

// Kind returns the algorithm family tag.
func (b *base) Kind() string { return b.kind }

// IsTrained reports whether the backend has been trained.
func (b *base) IsTrained() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.trained
}

// markTrained must be called with the write lock held.
func (b *base) markTrained() {
	b.trained = true
}

package cart

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registry lazily opens one Store per cart owner over a shared KV.
type Registry struct {
	kv     KV
	prefix string
	logger *zerolog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry constructs a registry. prefix is prepended to every storage key.
func NewRegistry(kv KV, prefix string, logger *zerolog.Logger) *Registry {
	if logger == nil {
		logger = &nopLogger
	}
	return &Registry{kv: kv, prefix: prefix, logger: logger, stores: make(map[string]*Store)}
}

// Open returns the loaded cart of owner. A store whose load failed is
// discarded so the next Open retries instead of serving an empty cart that
// would overwrite the persisted one.
func (r *Registry) Open(ctx context.Context, owner string) (*Store, error) {
	if !ValidOwner(owner) {
		return nil, ErrInvalidOwner
	}
	r.mu.Lock()
	store, ok := r.stores[owner]
	if !ok {
		logger := r.logger.With().Str("cart_owner", owner).Logger()
		store = NewStore(r.kv, KeysFor(r.prefix, owner), &logger)
		r.stores[owner] = store
	}
	r.mu.Unlock()

	if err := store.Load(ctx); err != nil {
		r.mu.Lock()
		if r.stores[owner] == store {
			delete(r.stores, owner)
		}
		r.mu.Unlock()
		return nil, err
	}
	return store, nil
}

// Len reports the number of open carts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

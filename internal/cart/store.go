package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/homestay-pricing/internal/obs"
)

// ErrInvalidItem is returned when an item is missing identifiers.
var ErrInvalidItem = errors.New("cart: invalid item")

const persistTimeout = 5 * time.Second

var nopLogger = zerolog.Nop()

// Store holds the items of one cart. Every item shares one homestay and each
// room appears at most once. The cart is loaded from its KV once and written
// back in full after every mutation.
type Store struct {
	kv     KV
	keys   Keys
	logger *zerolog.Logger

	loadOnce sync.Once
	loadErr  error
	ready    chan struct{}

	mu         sync.RWMutex
	items      []Item
	homeStayID int64
	version    uint64

	persistMu sync.Mutex
	written   uint64
}

type snapshot struct {
	version    uint64
	items      []Item
	homeStayID int64
}

// NewStore constructs a store over kv. Until Load completes the cart reads
// as empty and mutations block.
func NewStore(kv KV, keys Keys, logger *zerolog.Logger) *Store {
	if logger == nil {
		logger = &nopLogger
	}
	return &Store{
		kv:     kv,
		keys:   keys,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Load reads the persisted cart. Only the first call does any work; later
// calls return its result. A failed load leaves the cart empty.
func (s *Store) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		defer close(s.ready)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		s.loadErr = s.load(ctx)
		if s.loadErr != nil {
			s.logger.Error().Err(s.loadErr).Str("key", s.keys.Items).Msg("cart load failed")
		}
	})
	return s.loadErr
}

func (s *Store) load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.keys.Items)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	var items []Item
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			s.logger.Warn().Err(err).Str("key", s.keys.Items).Msg("discarding unreadable cart")
			items = nil
		}
	}
	items = dedupe(items)

	var homeStayID int64
	if len(items) > 0 {
		homeStayID = items[0].HomeStayID
		stored, ok, err := s.kv.Get(ctx, s.keys.HomeStay)
		if err != nil {
			return fmt.Errorf("load cart homestay: %w", err)
		}
		if ok {
			if id, err := strconv.ParseInt(stored, 10, 64); err == nil && id != homeStayID {
				s.logger.Warn().Int64("stored", id).Int64("items", homeStayID).Msg("cart homestay disagrees with items, using items")
			}
		}
		items = slices.DeleteFunc(items, func(it Item) bool { return it.HomeStayID != homeStayID })
	}

	s.mu.Lock()
	s.items = items
	s.homeStayID = homeStayID
	s.mu.Unlock()
	return nil
}

// dedupe keeps the first item of every room.
func dedupe(items []Item) []Item {
	seen := make(map[int64]struct{}, len(items))
	return slices.DeleteFunc(items, func(it Item) bool {
		if _, ok := seen[it.RoomID]; ok {
			return true
		}
		seen[it.RoomID] = struct{}{}
		return false
	})
}

// Loaded reports whether Load has completed.
func (s *Store) Loaded() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Store) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add appends it to the cart. It reports false, without error, when the item
// belongs to another homestay than the cart or its room is already present.
// The first item of an empty cart sets the cart's homestay.
func (s *Store) Add(ctx context.Context, it Item) (bool, error) {
	if it.RoomID == 0 || it.HomeStayID == 0 {
		obs.ObserveCartMutation("add", "invalid")
		return false, ErrInvalidItem
	}
	if err := s.waitReady(ctx); err != nil {
		return false, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	s.mu.Lock()
	if len(s.items) > 0 && s.homeStayID != it.HomeStayID {
		s.mu.Unlock()
		obs.ObserveCartMutation("add", "rejected")
		return false, nil
	}
	if s.indexLocked(it.RoomID) >= 0 {
		s.mu.Unlock()
		obs.ObserveCartMutation("add", "duplicate")
		return false, nil
	}
	s.items = append(s.items, it)
	s.homeStayID = it.HomeStayID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	obs.ObserveCartMutation("add", "ok")
	return true, s.persist(ctx, snap)
}

// Remove drops the item of roomID if present.
func (s *Store) Remove(ctx context.Context, roomID int64) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if idx := s.indexLocked(roomID); idx >= 0 {
		s.items = slices.Delete(s.items, idx, idx+1)
	}
	if len(s.items) == 0 {
		s.homeStayID = 0
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	obs.ObserveCartMutation("remove", "ok")
	return s.persist(ctx, snap)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.items = nil
	s.homeStayID = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	obs.ObserveCartMutation("clear", "ok")
	return s.persist(ctx, snap)
}

// Items returns a copy of every item in insertion order.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// ByParams returns the items matching f in insertion order.
func (s *Store) ByParams(f Filter) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	return out
}

// Count returns the number of items matching f.
func (s *Store) Count(f Filter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if f.Match(it) {
			n++
		}
	}
	return n
}

// Has reports whether roomID is in the cart.
func (s *Store) Has(roomID int64) bool {
	_, ok := s.Get(roomID)
	return ok
}

// Get returns the item of roomID.
func (s *Store) Get(roomID int64) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(roomID); idx >= 0 {
		return s.items[idx], true
	}
	return Item{}, false
}

// HomeStayID returns the cart's homestay. It reports false for an empty cart.
func (s *Store) HomeStayID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.homeStayID, len(s.items) > 0
}

func (s *Store) indexLocked(roomID int64) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.RoomID == roomID })
}

func (s *Store) snapshotLocked() snapshot {
	s.version++
	return snapshot{version: s.version, items: slices.Clone(s.items), homeStayID: s.homeStayID}
}

// persist writes snap unless a newer snapshot has already been written.
// Writes outlive the caller's context so a dropped request cannot leave the
// stored cart half-written.
func (s *Store) persist(ctx context.Context, snap snapshot) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if snap.version <= s.written {
		return nil
	}
	s.written = snap.version

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.write(ctx, snap); err != nil {
		obs.ObserveCartPersistFailure()
		s.logger.Error().Err(err).Str("key", s.keys.Items).Int("items", len(snap.items)).Msg("cart persist failed")
		return err
	}
	return nil
}

func (s *Store) write(ctx context.Context, snap snapshot) error {
	items := snap.items
	if items == nil {
		items = []Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.keys.Items, string(payload)); err != nil {
		return fmt.Errorf("persist cart items: %w", err)
	}
	if len(snap.items) == 0 {
		if err := s.kv.Delete(ctx, s.keys.HomeStay); err != nil {
			return fmt.Errorf("clear cart homestay: %w", err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, s.keys.HomeStay, strconv.FormatInt(snap.homeStayID, 10)); err != nil {
		return fmt.Errorf("persist cart homestay: %w", err)
	}
	return nil
}

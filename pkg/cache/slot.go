package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSlotName is used when neither the caller nor the configuration names a slot.
const DefaultSlotName = "downloader"

// Slot is the in-memory view of one persisted slot. Inserts are add-if-absent.
type Slot struct {
	name    string
	backend Backend
	logger  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry

	// persistMu orders saves against clears.
	persistMu sync.Mutex
}

func newSlot(name string, backend Backend, entries []*Entry) *Slot {
	s := &Slot{
		name:    name,
		backend: backend,
		logger:  log.With().Str("component", "cache-slot").Str("slot", name).Logger(),
		entries: make(map[string]*Entry, len(entries)),
	}
	for _, e := range entries {
		if _, ok := s.entries[e.ID]; !ok {
			s.entries[e.ID] = e
		}
	}
	SlotEntries.WithLabelValues(name).Set(float64(len(s.entries)))
	return s
}

// Name returns the slot name.
func (s *Slot) Name() string {
	return s.name
}

// Get returns the entry stored under id.
func (s *Slot) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Has reports whether id is present.
func (s *Slot) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Add inserts e unless an entry with the same id exists. Returns true if inserted.
func (s *Slot) Add(e *Entry) bool {
	if e == nil || e.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return false
	}
	s.entries[e.ID] = e
	SlotEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
	return true
}

// Len returns the number of entries.
func (s *Slot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns the entries ordered by CachedAt, then id.
func (s *Slot) Entries() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CachedAt.Equal(out[j].CachedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CachedAt.Before(out[j].CachedAt)
	})
	return out
}

// Save writes the current entries to the backend.
func (s *Slot) Save(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	entries := s.Entries()
	if err := s.backend.Save(ctx, s.name, entries); err != nil {
		return fmt.Errorf("save slot %q: %w", s.name, err)
	}
	s.logger.Debug().Int("entries", len(entries)).Msg("Slot saved")
	return nil
}

// clear drops every entry, in memory and in the backend. Holders of the
// slot see it empty, so a later Save cannot bring the entries back.
func (s *Slot) clear(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.backend.Clear(ctx, s.name); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
	SlotEntries.WithLabelValues(s.name).Set(0)
	return nil
}

// Slots is the process-wide registry of loaded slots. Each slot is loaded from
// the backend at most once and then shared.
type Slots struct {
	backend     Backend
	defaultName string
	logger      zerolog.Logger

	mu    sync.Mutex
	slots map[string]*Slot

	saves sync.WaitGroup
}

// NewSlots creates a registry. An empty defaultName falls back to DefaultSlotName.
func NewSlots(backend Backend, defaultName string) *Slots {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	if normalizeSlot(defaultName) == "" {
		defaultName = DefaultSlotName
	}
	return &Slots{
		backend:     backend,
		defaultName: normalizeSlot(defaultName),
		logger:      log.With().Str("component", "cache-slots").Logger(),
		slots:       make(map[string]*Slot),
	}
}

// DefaultName returns the slot used for an empty name.
func (r *Slots) DefaultName() string {
	return r.defaultName
}

// Open returns the slot called name, loading it on first use.
func (r *Slots) Open(ctx context.Context, name string) (*Slot, error) {
	name = r.resolveName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.slots[name]; ok {
		return slot, nil
	}

	entries, err := r.backend.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	slot := newSlot(name, r.backend, entries)
	r.slots[name] = slot
	r.logger.Info().
		Str("slot", name).
		Int("entries", slot.Len()).
		Msg("Cache slot loaded")
	return slot, nil
}

// SaveAsync flushes slot in the background. The returned channel receives the
// result and is then closed.
func (r *Slots) SaveAsync(slot *Slot) <-chan error {
	done := make(chan error, 1)
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()
		defer close(done)

		err := slot.Save(context.Background())
		if err != nil {
			r.logger.Warn().Err(err).Str("slot", slot.Name()).Msg("Async slot save failed")
		}
		done <- err
	}()
	return done
}

// Wait blocks until every pending SaveAsync has finished.
func (r *Slots) Wait() {
	r.saves.Wait()
}

// Clear drops every entry of the slot, both in memory and in the backend.
// A loaded slot stays registered and is emptied in place.
func (r *Slots) Clear(ctx context.Context, name string) error {
	name = r.resolveName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.slots[name]; ok {
		if err := slot.clear(ctx); err != nil {
			return err
		}
	} else {
		if err := r.backend.Clear(ctx, name); err != nil {
			return err
		}
		SlotEntries.WithLabelValues(name).Set(0)
	}
	r.logger.Info().Str("slot", name).Msg("Cache slot cleared")
	return nil
}

// Close waits for pending saves and closes the backend.
func (r *Slots) Close() error {
	r.Wait()
	return r.backend.Close()
}

func (r *Slots) resolveName(name string) string {
	if name = normalizeSlot(name); name == "" {
		return r.defaultName
	}
	return name
}

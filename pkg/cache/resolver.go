package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tier names the cache tier a hit was served from.
type Tier string

const (
	// TierStore is the persisted slot store.
	TierStore Tier = "store"

	// TierFile is the download directory.
	TierFile Tier = "file"
)

// Hit is a successful cache lookup.
type Hit struct {
	Entry *Entry
	Tier  Tier

	// Image is nil when Entry.Data could not be decoded.
	Image *imaging.Image
}

// Resolver looks tasks up in the tiers selected by its policy and writes
// network results back to them.
type Resolver struct {
	policy  Policy
	slot    *Slot
	files   *FileTier
	decoder imaging.Decoder
	logger  zerolog.Logger
}

// NewResolver creates a resolver. slot is required for store policies and
// files for file policies.
func NewResolver(policy Policy, slot *Slot, files *FileTier, decoder imaging.Decoder) (*Resolver, error) {
	if policy.UsesStore() && slot == nil {
		return nil, fmt.Errorf("cache policy %q requires a slot", policy)
	}
	if policy.UsesFiles() && files == nil {
		return nil, fmt.Errorf("cache policy %q requires a download directory", policy)
	}
	if decoder == nil {
		decoder = imaging.StdDecoder{}
	}

	logger := log.With().Str("component", "cache-resolver").Str("policy", string(policy)).Logger()
	if slot != nil {
		logger = logger.With().Str("slot", slot.Name()).Logger()
	}

	return &Resolver{
		policy:  policy,
		slot:    slot,
		files:   files,
		decoder: decoder,
		logger:  logger,
	}, nil
}

// Policy returns the active policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Slot returns the slot consulted by the resolver, or nil.
func (r *Resolver) Slot() *Slot {
	return r.slot
}

// Resolve looks id up. Returns ErrCacheMiss when no consulted tier has it.
func (r *Resolver) Resolve(ctx context.Context, id, url string) (*Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch r.policy {
	case PolicyStore:
		if entry, ok := r.slot.Get(id); ok {
			return r.hit(entry, TierStore), nil
		}

	case PolicyFile:
		if entry, ok := r.readFile(id, url); ok {
			return r.hit(entry, TierFile), nil
		}

	case PolicyBoth:
		if entry, ok := r.readFile(id, url); ok {
			if r.slot.Add(entry) {
				CacheWrites.WithLabelValues(string(TierStore)).Inc()
				r.logger.Debug().Str("task_id", id).Msg("Backfilled store from file")
			}
			return r.hit(entry, TierFile), nil
		}
		if entry, ok := r.slot.Get(id); ok {
			if err := r.files.Write(id, entry.Data); err != nil {
				r.logger.Warn().Err(err).Str("task_id", id).Msg("File backfill failed")
			} else {
				CacheWrites.WithLabelValues(string(TierFile)).Inc()
				r.logger.Debug().Str("task_id", id).Msg("Backfilled file from store")
			}
			return r.hit(entry, TierStore), nil
		}

	default:
		return nil, fmt.Errorf("unknown cache policy %q", r.policy)
	}

	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Store writes a freshly fetched resource to every tier of the policy.
func (r *Resolver) Store(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	var errs []error
	if r.policy.UsesFiles() {
		if err := r.files.Write(entry.ID, entry.Data); err != nil {
			errs = append(errs, err)
		} else {
			CacheWrites.WithLabelValues(string(TierFile)).Inc()
		}
	}
	if r.policy.UsesStore() {
		if r.slot.Add(entry) {
			CacheWrites.WithLabelValues(string(TierStore)).Inc()
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) readFile(id, url string) (*Entry, bool) {
	if !r.files.Exists(id) {
		return nil, false
	}
	data, err := r.files.Read(id)
	if err != nil {
		r.logger.Warn().Err(err).Str("task_id", id).Msg("Cached file unreadable, treating as miss")
		return nil, false
	}
	return NewEntry(id, url, data), true
}

func (r *Resolver) hit(entry *Entry, tier Tier) *Hit {
	CacheHits.WithLabelValues(string(tier)).Inc()

	img, err := entry.Image(r.decoder)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		r.logger.Warn().Err(err).Str("task_id", entry.ID).Msg("Cached bytes did not decode")
	}

	r.logger.Debug().
		Str("task_id", entry.ID).
		Str("tier", string(tier)).
		Msg("Cache hit")

	return &Hit{Entry: entry, Tier: tier, Image: img}
}

// Package cache resolves fetch tasks against local caches before any network I/O.
//
// Two tiers are available:
//
//   - Store tier: named slots of persisted records ({id, url, data, cached_at}).
//     A slot is loaded once per process from its Backend (badger or Redis),
//     kept in memory, and flushed back asynchronously.
//   - File tier: one plain file per id inside a download directory.
//
// The Policy picks which tiers a Resolver consults and writes:
//
//   - PolicyStore: slot lookup only.
//   - PolicyFile: file lookup only.
//   - PolicyBoth: file first, then slot; a hit in one tier backfills the other.
//
// # Basic Usage
//
//	backend, err := cache.OpenBadgerBackend("/var/lib/batchfetch/slots")
//	if err != nil {
//		return err
//	}
//	slots := cache.NewSlots(backend, "downloader")
//	slot, err := slots.Open(ctx, "")
//	if err != nil {
//		return err
//	}
//
//	resolver, err := cache.NewResolver(cache.PolicyBoth, slot, cache.NewFileTier(dir), imaging.StdDecoder{})
//	hit, err := resolver.Resolve(ctx, id, url)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from network, then resolver.Store(...)
//	}
//
// # Metrics
//
//   - batchfetch_cache_hits_total{tier} - Cache hits by tier
//   - batchfetch_cache_misses_total - Lookups that missed every consulted tier
//   - batchfetch_cache_writes_total{tier} - Writes and backfills by tier
//   - batchfetch_cache_errors_total{operation} - Backend and file errors
//   - batchfetch_cache_slot_entries{slot} - Entries held per loaded slot
package cache

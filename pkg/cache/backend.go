package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates no consulted tier holds the requested id
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a persisted record is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Backend persists the records of named slots.
type Backend interface {
	// Load returns every record stored under slot. A slot that was never
	// saved loads as empty.
	Load(ctx context.Context, slot string) ([]*Entry, error)

	// Save writes entries under slot. Records already present are overwritten
	// with identical content; records absent from entries are left untouched.
	Save(ctx context.Context, slot string, entries []*Entry) error

	// Clear removes every record of slot.
	Clear(ctx context.Context, slot string) error

	// Close releases backend resources.
	Close() error
}

func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	return &e, nil
}

package cache

import (
	"sync"
	"time"

	"github.com/Sternrassler/batch-fetcher/pkg/imaging"
)

// Entry is one cached resource.
type Entry struct {
	// ID identifies the resource; one entry per ID.
	ID string `json:"id"`

	// URL the bytes were fetched from
	URL string `json:"url"`

	// Data is the raw response body
	Data []byte `json:"data"`

	// CachedAt is when the entry was first stored
	CachedAt time.Time `json:"cached_at"`

	decodeOnce sync.Once
	image      *imaging.Image
	decodeErr  error
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(id, url string, data []byte) *Entry {
	return &Entry{
		ID:       id,
		URL:      url,
		Data:     data,
		CachedAt: time.Now(),
	}
}

// Image decodes Data on first call and returns the same result afterwards.
func (e *Entry) Image(dec imaging.Decoder) (*imaging.Image, error) {
	e.decodeOnce.Do(func() {
		if dec == nil {
			dec = imaging.StdDecoder{}
		}
		e.image, e.decodeErr = dec.Decode(e.Data)
	})
	return e.image, e.decodeErr
}

// Size returns the number of raw bytes held by the entry.
func (e *Entry) Size() int {
	return len(e.Data)
}

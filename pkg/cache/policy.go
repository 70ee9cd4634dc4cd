package cache

import (
	"fmt"
	"strings"
)

// Policy selects which cache tiers are consulted and written.
type Policy string

const (
	// PolicyStore uses the persisted slot store only.
	PolicyStore Policy = "store"

	// PolicyFile uses the file tier only.
	PolicyFile Policy = "file"

	// PolicyBoth consults the file tier, then the store, backfilling either way.
	PolicyBoth Policy = "both"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicyStore

// ParsePolicy parses a policy name. "memory" and "savegame" are accepted as
// aliases of the store tier.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "store", "memory", "savegame":
		return PolicyStore, nil
	case "file", "localfile":
		return PolicyFile, nil
	case "both":
		return PolicyBoth, nil
	default:
		return "", fmt.Errorf("unknown cache policy %q", s)
	}
}

// UsesStore reports whether the policy reads or writes the slot store.
func (p Policy) UsesStore() bool {
	return p == PolicyStore || p == PolicyBoth
}

// UsesFiles reports whether the policy reads or writes the file tier.
func (p Policy) UsesFiles() bool {
	return p == PolicyFile || p == PolicyBoth
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

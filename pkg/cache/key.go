package cache

import (
	"fmt"
	"strings"
)

// keyPrefix namespaces every persisted record.
const keyPrefix = "batchfetch"

// slotKey is the Redis hash holding all records of a slot.
//
// Example:
//
//	batchfetch:slot:downloader
func slotKey(slot string) string {
	return fmt.Sprintf("%s:slot:%s", keyPrefix, normalizeSlot(slot))
}

// recordPrefix is the badger key prefix shared by all records of a slot. The
// slot name is length-prefixed so no slot's prefix covers another's, e.g.
// "a" and "a:b".
func recordPrefix(slot string) []byte {
	slot = normalizeSlot(slot)
	return []byte(fmt.Sprintf("%s:slot:%d:%s:", keyPrefix, len(slot), slot))
}

// recordKey is the badger key of one record.
//
// Example:
//
//	batchfetch:slot:10:downloader:avatar-42
func recordKey(slot, id string) []byte {
	return append(recordPrefix(slot), id...)
}

func normalizeSlot(slot string) string {
	return strings.TrimSpace(slot)
}

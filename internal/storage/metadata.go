package storage

import (
	"sort"
	"strings"
	"time"
)

// itemSep separates service and item key in the items and index buckets.
// Neither part may contain it.
const itemSep = 0x00

// ItemEntry is the unencrypted index record for a stored item
type ItemEntry struct {
	Service  string    `json:"service"`
	Key      string    `json:"key"`
	Backend  string    `json:"backend"`
	Size     int       `json:"size"` // Envelope length in bytes
	Modified time.Time `json:"modified"`
}

// ItemID builds the bucket key for an item
func ItemID(service, key string) []byte {
	id := make([]byte, 0, len(service)+1+len(key))
	id = append(id, service...)
	id = append(id, itemSep)
	return append(id, key...)
}

// ValidName reports whether s can be used as a service or item key
func ValidName(s string) bool {
	return strings.IndexByte(s, itemSep) < 0
}

// SortEntries orders entries by service, then key
func SortEntries(entries []ItemEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Service != entries[j].Service {
			return entries[i].Service < entries[j].Service
		}
		return entries[i].Key < entries[j].Key
	})
}

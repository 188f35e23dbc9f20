// Package shard computes partition keys for the sharded parent index.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest supported shard count; shard suffixes are two hex digits.
const MaxShards = 256

// ParentPK computes the partition key under which a child is indexed.
// With numShards=1, every child of a parent lands in shard "00".
// With numShards>1, children are spread by a hash of childKey.
func ParentPK(parentKey, childKey string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", parentKey)
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	h := fnv.New32a()
	h.Write([]byte(childKey))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", parentKey, shard)
}

// ParentPKs returns every partition key a parent's children may live under,
// in shard order.
func ParentPKs(parentKey string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	out := make([]string, numShards)
	for i := range out {
		out[i] = fmt.Sprintf("%s#%02x", parentKey, i)
	}
	return out
}

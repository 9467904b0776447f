package shard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Shard is a ledger partition index. Keys map onto the full int64 space.
type Shard int64

// Of derives the shard a key (typically a destination address) lives in.
func Of(key []byte) Shard {
	return Shard(int64(murmur3.Sum64(key)))
}

// Set is an unordered collection of shards.
type Set map[Shard]struct{}

// NewSet builds a set from the given shards.
func NewSet(shards ...Shard) Set {
	s := make(Set, len(shards))
	for _, sh := range shards {
		s[sh] = struct{}{}
	}
	return s
}

func (s Set) Add(sh Shard) {
	s[sh] = struct{}{}
}

func (s Set) Contains(sh Shard) bool {
	_, ok := s[sh]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Sorted returns the shards in ascending order.
func (s Set) Sorted() []Shard {
	out := make([]Shard, 0, len(s))
	for sh := range s {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, sh := range s.Sorted() {
		parts = append(parts, fmt.Sprintf("%d", sh))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Range is the inclusive span of shards a node serves.
type Range struct {
	Low  Shard `json:"low"`
	High Shard `json:"high"`
}

// FullRange covers every shard.
func FullRange() Range {
	return Range{Low: Shard(-1 << 63), High: Shard(1<<63 - 1)}
}

func (r Range) Valid() bool {
	return r.Low <= r.High
}

func (r Range) Contains(sh Shard) bool {
	return sh >= r.Low && sh <= r.High
}

// ContainsAll reports whether every shard of s is served. An empty set is
// trivially served.
func (r Range) ContainsAll(s Set) bool {
	for sh := range s {
		if !r.Contains(sh) {
			return false
		}
	}
	return true
}

// Intersects reports whether at least one shard of s is served.
func (r Range) Intersects(s Set) bool {
	if len(s) == 0 {
		return true
	}
	for sh := range s {
		if r.Contains(sh) {
			return true
		}
	}
	return false
}

func (r Range) String() string {
	return fmt.Sprintf("[%d..%d]", r.Low, r.High)
}

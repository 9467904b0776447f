package shard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultVNodesPerMember is the default number of virtual nodes per member.
	// A higher number improves distribution balance but increases ring size.
	DefaultVNodesPerMember = 64
)

// VNode is a virtual position on the ring owned by one member.
type VNode struct {
	Token    uint64
	MemberID string
}

// Ring is a consistent hashing ring over opaque member ids. It is used to
// spread requests deterministically across equally suitable peers.
type Ring struct {
	mu              sync.RWMutex
	vnodes          []VNode // sorted by token
	members         map[string]struct{}
	vnodesPerMember int
}

// NewRing creates a new consistent hashing ring.
func NewRing(vnodesPerMember int) *Ring {
	if vnodesPerMember <= 0 {
		vnodesPerMember = DefaultVNodesPerMember
	}
	return &Ring{
		vnodes:          make([]VNode, 0),
		members:         make(map[string]struct{}),
		vnodesPerMember: vnodesPerMember,
	}
}

// Add places a member on the ring. Adding a known member is a no-op.
func (r *Ring) Add(memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[memberID]; exists {
		return
	}
	r.members[memberID] = struct{}{}

	for i := 0; i < r.vnodesPerMember; i++ {
		r.vnodes = append(r.vnodes, VNode{
			Token:    hashKey(fmt.Sprintf("%s-%d", memberID, i)),
			MemberID: memberID,
		})
	}

	sort.Slice(r.vnodes, func(i, j int) bool {
		return r.vnodes[i].Token < r.vnodes[j].Token
	})
}

// Remove takes a member and its vnodes off the ring.
func (r *Ring) Remove(memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[memberID]; !exists {
		return
	}
	delete(r.members, memberID)

	kept := make([]VNode, 0, len(r.vnodes))
	for _, vn := range r.vnodes {
		if vn.MemberID != memberID {
			kept = append(kept, vn)
		}
	}
	r.vnodes = kept
}

// Locate returns the member owning key, or false on an empty ring.
func (r *Ring) Locate(key []byte) (string, bool) {
	order := r.Order(key, 1)
	if len(order) == 0 {
		return "", false
	}
	return order[0], true
}

// Order walks the ring clockwise from key's token and returns up to n
// distinct members. n <= 0 returns every member.
func (r *Ring) Order(key []byte, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.members) == 0 {
		return nil
	}
	if n <= 0 || n > len(r.members) {
		n = len(r.members)
	}

	token := murmur3.Sum64(key)
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].Token >= token
	})
	if idx == len(r.vnodes) {
		idx = 0
	}

	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for steps := 0; len(out) < n && steps < len(r.vnodes); steps++ {
		vn := r.vnodes[idx]
		if _, ok := seen[vn.MemberID]; !ok {
			seen[vn.MemberID] = struct{}{}
			out = append(out, vn.MemberID)
		}
		idx = (idx + 1) % len(r.vnodes)
	}
	return out
}

// Members returns all member ids in ascending order.
func (r *Ring) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// hashKey generates a token for a string key.
func hashKey(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}

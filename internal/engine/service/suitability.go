package service

import (
	"fmt"
	"strings"

	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

// ShardMatch controls how a node's shard space is compared with the shards a
// request needs.
type ShardMatch string

const (
	// ShardMatchAll requires the node to serve every required shard.
	ShardMatchAll ShardMatch = "all"
	// ShardMatchAny requires the node to serve at least one required shard.
	ShardMatchAny ShardMatch = "any"
	// ShardMatchSkip ignores shard space entirely (bootstrap, offline).
	ShardMatchSkip ShardMatch = "skip"
)

// ParseShardMatch maps a config value to a ShardMatch; empty means all.
func ParseShardMatch(s string) (ShardMatch, error) {
	switch ShardMatch(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShardMatchAll:
		return ShardMatchAll, nil
	case ShardMatchAny:
		return ShardMatchAny, nil
	case ShardMatchSkip:
		return ShardMatchSkip, nil
	}
	return "", fmt.Errorf("unknown shard match %q", s)
}

// SuitabilityPolicy decides whether a node can serve a find-node request.
// The zero value is the default policy: all shards and the expected config
// when the request carries one.
type SuitabilityPolicy struct {
	Shards          ShardMatch
	SkipConfigCheck bool
}

func (p SuitabilityPolicy) checksShards() bool {
	return p.Shards != ShardMatchSkip
}

func (p SuitabilityPolicy) checksConfig(req domain.FindANodeRequestAction) bool {
	return !p.SkipConfigCheck && req.ExpectedConfig != nil
}

// IsSuitable reports whether ns can be selected for req. Every enabled check
// needs its information to be known.
func (p SuitabilityPolicy) IsSuitable(ns domain.NodeState, req domain.FindANodeRequestAction) bool {
	if p.checksShards() {
		if ns.ShardSpace == nil || !p.shardsMatch(*ns.ShardSpace, req.RequiredShards) {
			return false
		}
	}
	if p.checksConfig(req) {
		if ns.Config == nil || *ns.Config != *req.ExpectedConfig {
			return false
		}
	}
	return true
}

// NeedsMoreInfo reports whether shard space or network config is unknown.
func (p SuitabilityPolicy) NeedsMoreInfo(ns domain.NodeState) bool {
	return ns.ShardSpace == nil || ns.Config == nil
}

// MayBeSuitable is IsSuitable over partial knowledge: unknown fields pass, so
// only nodes already known to mismatch are rejected.
func (p SuitabilityPolicy) MayBeSuitable(ns domain.NodeState, req domain.FindANodeRequestAction) bool {
	if p.checksShards() && ns.ShardSpace != nil && !p.shardsMatch(*ns.ShardSpace, req.RequiredShards) {
		return false
	}
	if p.checksConfig(req) && ns.Config != nil && *ns.Config != *req.ExpectedConfig {
		return false
	}
	return true
}

func (p SuitabilityPolicy) shardsMatch(space shard.Range, required shard.Set) bool {
	if p.Shards == ShardMatchAny {
		return required.Len() == 0 || space.Intersects(required)
	}
	return space.ContainsAll(required)
}

// PeerSelector picks one node out of a non-empty list of suitable candidates.
// Candidates arrive in network-state order.
type PeerSelector interface {
	Select(candidates []domain.Node, req domain.FindANodeRequestAction) domain.Node
}

// FirstSelector picks the first candidate.
type FirstSelector struct{}

func (FirstSelector) Select(candidates []domain.Node, _ domain.FindANodeRequestAction) domain.Node {
	return candidates[0]
}

// PreferenceSelector picks the earliest preferred node among the candidates.
// Callers must guarantee that the preference list covers every possible
// candidate; a candidate set without any preferred node is a
// misconfiguration and panics.
type PreferenceSelector struct {
	Preferred []domain.Node
}

func (s PreferenceSelector) Select(candidates []domain.Node, _ domain.FindANodeRequestAction) domain.Node {
	present := make(map[domain.Node]struct{}, len(candidates))
	for _, c := range candidates {
		present[c] = struct{}{}
	}
	for _, p := range s.Preferred {
		if _, ok := present[p]; ok {
			return p
		}
	}
	panic(fmt.Sprintf("preference selector: none of %v is among candidates %v", s.Preferred, candidates))
}

// RingSelector spreads requests over equally suitable nodes by placing the
// candidates on a consistent-hash ring keyed by the request id.
type RingSelector struct {
	VNodesPerMember int
}

func (s RingSelector) Select(candidates []domain.Node, req domain.FindANodeRequestAction) domain.Node {
	if len(candidates) == 1 {
		return candidates[0]
	}

	ring := shard.NewRing(s.VNodesPerMember)
	byID := make(map[string]domain.Node, len(candidates))
	for _, c := range candidates {
		id := c.String()
		byID[id] = c
		ring.Add(id)
	}

	owner, ok := ring.Locate([]byte(req.ID))
	if !ok {
		return candidates[0]
	}
	return byID[owner]
}

// NewPeerSelector builds a selector by name: first, preference or ring.
func NewPeerSelector(name string, preferred []domain.Node) (PeerSelector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return FirstSelector{}, nil
	case "preference":
		if len(preferred) == 0 {
			return nil, fmt.Errorf("preference selector needs preferred nodes")
		}
		return PreferenceSelector{Preferred: preferred}, nil
	case "ring":
		return RingSelector{VNodesPerMember: shard.DefaultVNodesPerMember}, nil
	}
	return nil, fmt.Errorf("unknown selector %q", name)
}

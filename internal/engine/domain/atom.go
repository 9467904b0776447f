package domain

import (
	"encoding/json"
)

// AtomID is the ledger identifier of a signed atom.
type AtomID string

// Atom is a signed transaction in its canonical encoding. The engine never
// looks inside Payload; identifier and shards are derived by an AtomInspector.
type Atom struct {
	Payload      []byte   `json:"payload"`
	Destinations [][]byte `json:"destinations,omitempty"`
}

// AtomStatus is the status vocabulary of the submission protocol.
type AtomStatus string

const (
	AtomDoesNotExist                  AtomStatus = "DOES_NOT_EXIST"
	AtomPendingVerification           AtomStatus = "PENDING_CM_VERIFICATION"
	AtomPendingDependencyVerification AtomStatus = "PENDING_DEPENDENCY_VERIFICATION"
	AtomMissingDependency             AtomStatus = "MISSING_DEPENDENCY"
	AtomConflictLoser                 AtomStatus = "CONFLICT_LOSER"
	AtomEvictedInvalid                AtomStatus = "EVICTED_INVALID_ATOM"
	AtomEvictedConflictLoser          AtomStatus = "EVICTED_CONFLICT_LOSER"
	AtomEvictedFailedVerification     AtomStatus = "EVICTED_FAILED_CM_VERIFICATION"
	AtomStored                        AtomStatus = "STORED"
)

func (s AtomStatus) Stored() bool {
	return s == AtomStored
}

func (s AtomStatus) Evicted() bool {
	switch s {
	case AtomEvictedInvalid, AtomEvictedConflictLoser, AtomEvictedFailedVerification:
		return true
	}
	return false
}

// Pending reports whether the node is still working on the atom.
func (s AtomStatus) Pending() bool {
	return s == AtomPendingVerification || s == AtomPendingDependencyVerification
}

// AtomStatusEvent is one status notification. Reason is forwarded unmodified.
type AtomStatusEvent struct {
	Status AtomStatus      `json:"status"`
	Reason json.RawMessage `json:"data,omitempty"`
}

// SubmitOptions tune one submission.
type SubmitOptions struct {
	// Node pins the submission to a node; nil lets the engine pick one.
	Node                 *Node
	CompleteOnStoredOnly bool
}

// SubmitResult is the outcome of one submission. A nil Err means stored.
type SubmitResult struct {
	// Status is the last status observed, empty when none arrived.
	Status AtomStatus `json:"status,omitempty"`
	Err    error      `json:"-"`
}

func (r SubmitResult) Succeeded() bool {
	return r.Err == nil
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrSubmitTimeout     = errors.New("atom submission timed out")
	ErrAtomRejected      = errors.New("atom not stored")
	ErrNoSuitableNode    = errors.New("no suitable node found")
	ErrConnectionFailed  = errors.New("connection to node failed")
	ErrConnectionLost    = errors.New("connection to node lost")
	ErrControllerStopped = errors.New("network controller stopped")
)

// RejectedError reports a definitive not-stored status.
type RejectedError struct {
	Status AtomStatus
	Reason json.RawMessage
}

func (e *RejectedError) Error() string {
	if len(e.Reason) == 0 {
		return fmt.Sprintf("%v: %s", ErrAtomRejected, e.Status)
	}
	return fmt.Sprintf("%v: %s: %s", ErrAtomRejected, e.Status, string(e.Reason))
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrAtomRejected
}

package service

import (
	"context"
	"fmt"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

// ActionBus is the part of the controller a caller-facing façade needs.
type ActionBus interface {
	Dispatch(action domain.Action)
	ObserveActions() (<-chan domain.Action, func())
	State() domain.NetworkState
}

// Submitter implements port.NetworkService by dispatching request actions and
// awaiting the terminal action carrying the same correlation id.
type Submitter struct {
	bus            ActionBus
	ids            port.IDGenerator
	expectedConfig *domain.NetworkConfig
}

var _ port.NetworkService = (*Submitter)(nil)

func NewSubmitter(bus ActionBus, ids port.IDGenerator, expectedConfig *domain.NetworkConfig) *Submitter {
	return &Submitter{bus: bus, ids: ids, expectedConfig: expectedConfig}
}

// Submit returns the submission outcome. The error is non-nil only when the
// outcome could not be awaited; a failed submission is reported in the result.
func (s *Submitter) Submit(ctx context.Context, atom domain.Atom, opts domain.SubmitOptions) (domain.SubmitResult, error) {
	id, err := s.nextID()
	if err != nil {
		return domain.SubmitResult{}, err
	}

	actions, stop := s.bus.ObserveActions()
	defer stop()

	if opts.Node != nil {
		s.bus.Dispatch(domain.SubmitAtomSendAction{
			ID:                   id,
			Atom:                 atom,
			Node:                 *opts.Node,
			CompleteOnStoredOnly: opts.CompleteOnStoredOnly,
		})
	} else {
		s.bus.Dispatch(domain.SubmitAtomRequestAction{
			ID:                   id,
			Atom:                 atom,
			CompleteOnStoredOnly: opts.CompleteOnStoredOnly,
		})
	}
	logger.Debugw("Submission dispatched", "correlation_id", string(id))

	for {
		select {
		case <-ctx.Done():
			return domain.SubmitResult{}, ctx.Err()
		case action, ok := <-actions:
			if !ok {
				return domain.SubmitResult{}, domain.ErrControllerStopped
			}
			if done, ok := action.(domain.SubmitAtomCompletedAction); ok && done.ID == id {
				return done.Result, nil
			}
		}
	}
}

func (s *Submitter) FindNode(ctx context.Context, shards shard.Set) (domain.Node, error) {
	id, err := s.nextID()
	if err != nil {
		return domain.Node{}, err
	}

	actions, stop := s.bus.ObserveActions()
	defer stop()

	s.bus.Dispatch(domain.FindANodeRequestAction{ID: id, RequiredShards: shards, ExpectedConfig: s.expectedConfig})

	for {
		select {
		case <-ctx.Done():
			return domain.Node{}, ctx.Err()
		case action, ok := <-actions:
			if !ok {
				return domain.Node{}, domain.ErrControllerStopped
			}
			switch a := action.(type) {
			case domain.FindANodeResultAction:
				if a.Request.ID == id {
					return a.Node, nil
				}
			case domain.FindANodeErrorAction:
				if a.Request.ID == id {
					return domain.Node{}, a.Err
				}
			}
		}
	}
}

func (s *Submitter) Nodes() []domain.NodeState {
	return s.bus.State().Nodes()
}

func (s *Submitter) nextID() (domain.CorrelationID, error) {
	id, err := s.ids.NextString()
	if err != nil {
		return "", fmt.Errorf("failed to generate correlation id: %w", err)
	}
	return domain.CorrelationID(id), nil
}

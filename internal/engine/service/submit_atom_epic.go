package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"go.uber.org/atomic"
)

const (
	defaultSubmitTimeout  = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultCancelTimeout  = 5 * time.Second
)

// SubmitConfig holds submission deadlines. Zero durations take defaults.
type SubmitConfig struct {
	// Timeout bounds subscribe, submit and waiting for a terminal status.
	Timeout time.Duration
	// ConnectTimeout bounds waiting for the node connection.
	ConnectTimeout time.Duration
	// CancelTimeout bounds the status-subscription cancel sent on cleanup.
	CancelTimeout time.Duration
	// ExpectedConfig is attached to find-node requests issued for unpinned
	// submissions.
	ExpectedConfig *domain.NetworkConfig
}

// SubmitAtomEpic drives every submission to exactly one
// SubmitAtomCompletedAction. Unpinned requests are resolved through a
// FindANodeRequestAction carrying the submission's correlation id.
type SubmitAtomEpic struct {
	cfg       SubmitConfig
	inspector port.AtomInspector
	connector Connector
	client    AtomClient
	ids       port.IDGenerator
	metrics   *metrics.Collector
}

// NewSubmitAtomEpic wires the epic to its collaborators. ids supplies the
// status subscriber ids; m may be nil.
func NewSubmitAtomEpic(cfg SubmitConfig, inspector port.AtomInspector, connector Connector, client AtomClient, ids port.IDGenerator, m *metrics.Collector) *SubmitAtomEpic {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSubmitTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = defaultCancelTimeout
	}
	return &SubmitAtomEpic{
		cfg:       cfg,
		inspector: inspector,
		connector: connector,
		client:    client,
		ids:       ids,
		metrics:   m,
	}
}

func (e *SubmitAtomEpic) Name() string { return "submit_atom" }

func (e *SubmitAtomEpic) Run(ctx context.Context, updates <-chan Update, emit Emitter) error {
	s := &submitRun{
		epic:     e,
		ctx:      ctx,
		emit:     emit,
		waiting:  make(map[domain.CorrelationID]chan domain.Action),
		inFlight: make(map[domain.CorrelationID]struct{}),
		finished: make(chan domain.CorrelationID),
		stop:     make(chan struct{}),
	}
	defer func() {
		close(s.stop)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-s.finished:
			delete(s.inFlight, id)
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			s.handle(u.Action)
		}
	}
}

type submitRun struct {
	epic *SubmitAtomEpic
	ctx  context.Context
	emit Emitter

	// waiting holds unpinned submissions awaiting their find-node outcome.
	waiting  map[domain.CorrelationID]chan domain.Action
	inFlight map[domain.CorrelationID]struct{}
	finished chan domain.CorrelationID
	stop     chan struct{}
	wg       sync.WaitGroup
}

func (s *submitRun) handle(action domain.Action) {
	switch a := action.(type) {
	case domain.SubmitAtomRequestAction:
		s.resolve(a)
	case domain.SubmitAtomSendAction:
		s.send(a)
	case domain.FindANodeResultAction:
		s.route(a.Request.ID, a)
	case domain.FindANodeErrorAction:
		s.route(a.Request.ID, a)
	}
}

func (s *submitRun) resolve(a domain.SubmitAtomRequestAction) {
	if _, busy := s.waiting[a.ID]; busy {
		return
	}
	if _, busy := s.inFlight[a.ID]; busy {
		return
	}

	shards, err := s.epic.inspector.RequiredShards(a.Atom)
	if err != nil {
		s.epic.completed(s.emit, a.ID, domain.Node{}, domain.SubmitResult{Err: fmt.Errorf("derive required shards: %w", err)})
		return
	}

	found := make(chan domain.Action, 1)
	s.waiting[a.ID] = found

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.emit(domain.FindANodeRequestAction{
			ID:             a.ID,
			RequiredShards: shards,
			ExpectedConfig: s.epic.cfg.ExpectedConfig,
		})

		select {
		case <-s.ctx.Done():
		case <-s.stop:
		case outcome := <-found:
			switch o := outcome.(type) {
			case domain.FindANodeResultAction:
				s.emit(domain.SubmitAtomSendAction{
					ID:                   a.ID,
					Atom:                 a.Atom,
					Node:                 o.Node,
					CompleteOnStoredOnly: a.CompleteOnStoredOnly,
				})
			case domain.FindANodeErrorAction:
				s.epic.completed(s.emit, a.ID, domain.Node{}, domain.SubmitResult{Err: o.Err})
			}
		}
	}()
}

func (s *submitRun) route(id domain.CorrelationID, outcome domain.Action) {
	found, ok := s.waiting[id]
	if !ok {
		return
	}
	delete(s.waiting, id)
	found <- outcome
}

func (s *submitRun) send(a domain.SubmitAtomSendAction) {
	if _, busy := s.inFlight[a.ID]; busy {
		logger.Warnw("Ignoring duplicate submission", "correlation_id", string(a.ID))
		return
	}
	s.inFlight[a.ID] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.epic.submit(s.ctx, a, s.emit)

		select {
		case s.finished <- a.ID:
		case <-s.stop:
		}
	}()
}

// submit runs one submission to completion. Cleanup order is fixed: cancel
// the status subscription, close the connection if this submission opened
// it, then emit the completion.
func (e *SubmitAtomEpic) submit(ctx context.Context, a domain.SubmitAtomSendAction, emit Emitter) {
	done := atomic.NewBool(false)
	complete := func(result domain.SubmitResult) {
		if done.CompareAndSwap(false, true) {
			e.completed(emit, a.ID, a.Node, result)
		}
	}

	atomID, err := e.inspector.Identifier(a.Atom)
	if err != nil {
		complete(domain.SubmitResult{Err: fmt.Errorf("derive atom identifier: %w", err)})
		return
	}

	logger.Infow("Submitting atom", "correlation_id", string(a.ID), "atom_id", string(atomID), "node", a.Node.String())

	sub, opened := e.connector.Connect(a.Node)
	defer sub.Cancel()

	if err := e.waitConnected(ctx, sub); err != nil {
		if opened {
			e.connector.Close(a.Node)
		}
		complete(domain.SubmitResult{Err: err})
		return
	}

	subscriberID, err := e.nextSubscriberID()
	if err != nil {
		if opened {
			e.connector.Close(a.Node)
		}
		complete(domain.SubmitResult{Err: err})
		return
	}

	subCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	result := e.track(subCtx, ctx, a, atomID, subscriberID, sub, emit)
	cancel()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), e.cfg.CancelTimeout)
	if err := e.client.CancelAtomStatus(cancelCtx, a.Node, subscriberID); err != nil {
		logger.Warnw("Failed to cancel atom status subscription", "correlation_id", string(a.ID), "subscriber_id", subscriberID, "error", err.Error())
	}
	cancelCancel()

	if opened {
		e.connector.Close(a.Node)
	}
	complete(result)
}

// track subscribes, submits and waits for the terminal status event.
func (e *SubmitAtomEpic) track(ctx, parent context.Context, a domain.SubmitAtomSendAction, atomID domain.AtomID, subscriberID string, sub *StatusSubscription, emit Emitter) domain.SubmitResult {
	events, err := e.client.SubscribeAtomStatus(ctx, a.Node, atomID, subscriberID)
	if err != nil {
		return domain.SubmitResult{Err: callError(ctx, parent, err)}
	}
	if err := e.client.SubmitAtom(ctx, a.Node, a.Atom); err != nil {
		return domain.SubmitResult{Err: callError(ctx, parent, err)}
	}

	var last domain.AtomStatus
	statuses := sub.C
	for {
		select {
		case <-ctx.Done():
			return domain.SubmitResult{Status: last, Err: callError(ctx, parent, ctx.Err())}

		case ev, ok := <-events:
			if !ok {
				return domain.SubmitResult{Status: last, Err: domain.ErrConnectionLost}
			}
			last = ev.Status
			emit(domain.SubmitAtomStatusAction{ID: a.ID, Node: a.Node, Event: ev})

			if ev.Status.Stored() {
				return domain.SubmitResult{Status: ev.Status}
			}
			if !a.CompleteOnStoredOnly {
				return domain.SubmitResult{Status: ev.Status, Err: &domain.RejectedError{Status: ev.Status, Reason: ev.Reason}}
			}

		case st, ok := <-statuses:
			if !ok || st.Terminal() || st == domain.StatusClosing {
				return domain.SubmitResult{Status: last, Err: domain.ErrConnectionLost}
			}
		}
	}
}

func (e *SubmitAtomEpic) waitConnected(ctx context.Context, sub *StatusSubscription) error {
	timer := time.NewTimer(e.cfg.ConnectTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, ctx.Err())
		case <-timer.C:
			return fmt.Errorf("%w: timed out after %s", domain.ErrConnectionFailed, e.cfg.ConnectTimeout)
		case st, ok := <-sub.C:
			if !ok {
				return domain.ErrConnectionFailed
			}
			switch st {
			case domain.StatusConnected:
				return nil
			case domain.StatusFailed, domain.StatusDisconnected, domain.StatusClosing:
				return fmt.Errorf("%w: connection %s", domain.ErrConnectionFailed, st)
			}
		}
	}
}

func (e *SubmitAtomEpic) nextSubscriberID() (string, error) {
	id, err := e.ids.NextString()
	if err != nil {
		return "", fmt.Errorf("failed to generate subscriber id: %w", err)
	}
	return id, nil
}

func (e *SubmitAtomEpic) completed(emit Emitter, id domain.CorrelationID, node domain.Node, result domain.SubmitResult) {
	outcome := submitOutcome(result)
	if result.Succeeded() {
		logger.Infow("Atom stored", "correlation_id", string(id), "node", node.String())
	} else {
		logger.Warnw("Atom submission failed", "correlation_id", string(id), "node", node.String(), "outcome", outcome, "error", result.Err.Error())
	}
	e.metrics.SubmissionCompleted(outcome)
	emit(domain.SubmitAtomCompletedAction{ID: id, Node: node, Result: result})
}

// callError maps a failed call under the submission deadline to the
// submission's error vocabulary.
func callError(ctx, parent context.Context, err error) error {
	if parent.Err() != nil {
		return domain.ErrControllerStopped
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrSubmitTimeout
	}
	if errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}
	return err
}

func submitOutcome(result domain.SubmitResult) string {
	switch {
	case result.Err == nil:
		return "stored"
	case errors.Is(result.Err, domain.ErrSubmitTimeout):
		return "timeout"
	case errors.Is(result.Err, domain.ErrAtomRejected):
		return "rejected"
	case errors.Is(result.Err, domain.ErrNoSuitableNode):
		return "no_suitable_node"
	case errors.Is(result.Err, domain.ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(result.Err, domain.ErrConnectionLost):
		return "connection_lost"
	}
	return "error"
}

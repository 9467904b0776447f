package domain

import (
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

// Kind names an action variant. It is used for logging and metrics.
type Kind string

const (
	KindDiscoverMoreNodes       Kind = "discover_more_nodes"
	KindDiscoverMoreNodesError  Kind = "discover_more_nodes_error"
	KindNodesDiscovered         Kind = "nodes_discovered"
	KindGetNodeInfoRequest      Kind = "get_node_info_request"
	KindGetNodeInfoResult       Kind = "get_node_info_result"
	KindGetNetworkConfigRequest Kind = "get_network_config_request"
	KindGetNetworkConfigResult  Kind = "get_network_config_result"
	KindNodeRequestFailed       Kind = "node_request_failed"
	KindConnect                 Kind = "connect"
	KindCloseConnection         Kind = "close_connection"
	KindConnectionStatusChanged Kind = "connection_status_changed"
	KindFindANodeRequest        Kind = "find_a_node_request"
	KindFindANodeResult         Kind = "find_a_node_result"
	KindFindANodeError          Kind = "find_a_node_error"
	KindSubmitAtomRequest       Kind = "submit_atom_request"
	KindSubmitAtomSend          Kind = "submit_atom_send"
	KindSubmitAtomStatus        Kind = "submit_atom_status"
	KindSubmitAtomCompleted     Kind = "submit_atom_completed"
)

// CorrelationID ties the actions of one request together.
type CorrelationID string

// Action is the closed set of events and commands flowing through the
// controller. Only types in this package implement it; consumers switch on
// the concrete type.
type Action interface {
	Kind() Kind
	sealed()
}

// NodeAction is implemented by actions concerning one node.
type NodeAction interface {
	Action
	Target() Node
}

// Correlated is implemented by actions belonging to one request.
type Correlated interface {
	Action
	Correlation() CorrelationID
}

type action struct{}

func (action) sealed() {}

// DiscoverMoreNodesAction asks discovery for more candidates.
type DiscoverMoreNodesAction struct{ action }

func (DiscoverMoreNodesAction) Kind() Kind { return KindDiscoverMoreNodes }

type DiscoverMoreNodesErrorAction struct {
	action
	Err error
}

func (DiscoverMoreNodesErrorAction) Kind() Kind { return KindDiscoverMoreNodesError }

type NodesDiscoveredAction struct {
	action
	Nodes []DiscoveredNode
}

func (NodesDiscoveredAction) Kind() Kind { return KindNodesDiscovered }

// GetNodeInfoRequestAction asks for a node's shard space. ID is the
// correlation id of the request that needed it and is echoed on the result.
type GetNodeInfoRequestAction struct {
	action
	ID   CorrelationID
	Node Node
}

func (GetNodeInfoRequestAction) Kind() Kind                   { return KindGetNodeInfoRequest }
func (a GetNodeInfoRequestAction) Target() Node               { return a.Node }
func (a GetNodeInfoRequestAction) Correlation() CorrelationID { return a.ID }

type GetNodeInfoResultAction struct {
	action
	ID   CorrelationID
	Node Node
	Info NodeInfo
}

func (GetNodeInfoResultAction) Kind() Kind                   { return KindGetNodeInfoResult }
func (a GetNodeInfoResultAction) Target() Node               { return a.Node }
func (a GetNodeInfoResultAction) Correlation() CorrelationID { return a.ID }

type GetNetworkConfigRequestAction struct {
	action
	ID   CorrelationID
	Node Node
}

func (GetNetworkConfigRequestAction) Kind() Kind                   { return KindGetNetworkConfigRequest }
func (a GetNetworkConfigRequestAction) Target() Node               { return a.Node }
func (a GetNetworkConfigRequestAction) Correlation() CorrelationID { return a.ID }

type GetNetworkConfigResultAction struct {
	action
	ID     CorrelationID
	Node   Node
	Config NetworkConfig
}

func (GetNetworkConfigResultAction) Kind() Kind                   { return KindGetNetworkConfigResult }
func (a GetNetworkConfigResultAction) Target() Node               { return a.Node }
func (a GetNetworkConfigResultAction) Correlation() CorrelationID { return a.ID }

// NodeRequestFailedAction reports a failed info or config call.
type NodeRequestFailedAction struct {
	action
	ID     CorrelationID
	Node   Node
	Method string
	Err    error
}

func (NodeRequestFailedAction) Kind() Kind                   { return KindNodeRequestFailed }
func (a NodeRequestFailedAction) Target() Node               { return a.Node }
func (a NodeRequestFailedAction) Correlation() CorrelationID { return a.ID }

type ConnectAction struct {
	action
	Node Node
}

func (ConnectAction) Kind() Kind     { return KindConnect }
func (a ConnectAction) Target() Node { return a.Node }

type CloseConnectionAction struct {
	action
	Node Node
}

func (CloseConnectionAction) Kind() Kind     { return KindCloseConnection }
func (a CloseConnectionAction) Target() Node { return a.Node }

// ConnectionStatusChangedAction is emitted by the connection manager for
// every status transition of a connection.
type ConnectionStatusChangedAction struct {
	action
	Node   Node
	Status ConnectionStatus
}

func (ConnectionStatusChangedAction) Kind() Kind     { return KindConnectionStatusChanged }
func (a ConnectionStatusChangedAction) Target() Node { return a.Node }

type FindANodeRequestAction struct {
	action
	ID             CorrelationID
	RequiredShards shard.Set
	// ExpectedConfig, when set, must equal the node's network config.
	ExpectedConfig *NetworkConfig
}

func (FindANodeRequestAction) Kind() Kind                   { return KindFindANodeRequest }
func (a FindANodeRequestAction) Correlation() CorrelationID { return a.ID }

type FindANodeResultAction struct {
	action
	Node    Node
	Request FindANodeRequestAction
}

func (FindANodeResultAction) Kind() Kind                   { return KindFindANodeResult }
func (a FindANodeResultAction) Target() Node               { return a.Node }
func (a FindANodeResultAction) Correlation() CorrelationID { return a.Request.ID }

type FindANodeErrorAction struct {
	action
	Request FindANodeRequestAction
	Err     error
}

func (FindANodeErrorAction) Kind() Kind                   { return KindFindANodeError }
func (a FindANodeErrorAction) Correlation() CorrelationID { return a.Request.ID }

// SubmitAtomRequestAction submits an atom to a node the engine picks.
type SubmitAtomRequestAction struct {
	action
	ID                   CorrelationID
	Atom                 Atom
	CompleteOnStoredOnly bool
}

func (SubmitAtomRequestAction) Kind() Kind                   { return KindSubmitAtomRequest }
func (a SubmitAtomRequestAction) Correlation() CorrelationID { return a.ID }

// SubmitAtomSendAction submits an atom to a resolved node.
type SubmitAtomSendAction struct {
	action
	ID                   CorrelationID
	Atom                 Atom
	Node                 Node
	CompleteOnStoredOnly bool
}

func (SubmitAtomSendAction) Kind() Kind                   { return KindSubmitAtomSend }
func (a SubmitAtomSendAction) Target() Node               { return a.Node }
func (a SubmitAtomSendAction) Correlation() CorrelationID { return a.ID }

type SubmitAtomStatusAction struct {
	action
	ID    CorrelationID
	Node  Node
	Event AtomStatusEvent
}

func (SubmitAtomStatusAction) Kind() Kind                   { return KindSubmitAtomStatus }
func (a SubmitAtomStatusAction) Target() Node               { return a.Node }
func (a SubmitAtomStatusAction) Correlation() CorrelationID { return a.ID }

// SubmitAtomCompletedAction is the single terminal action of a submission.
type SubmitAtomCompletedAction struct {
	action
	ID     CorrelationID
	Node   Node
	Result SubmitResult
}

func (SubmitAtomCompletedAction) Kind() Kind                   { return KindSubmitAtomCompleted }
func (a SubmitAtomCompletedAction) Correlation() CorrelationID { return a.ID }

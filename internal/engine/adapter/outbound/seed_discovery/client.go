package seed_discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
)

const (
	livePeersMethod       = "/ledger.network.v1.NetworkService/GetLivePeers"
	defaultRequestTimeout = 2 * time.Second
	maxBackoff            = time.Minute
)

var ErrNoSeeds = errors.New("no seeds configured")

// PeerClient asks one seed for the peers it currently sees.
type PeerClient interface {
	GetLivePeers(ctx context.Context) (*structpb.Struct, error)
}

type ClientFactory func(addr string) (PeerClient, error)

type grpcPeerClient struct {
	conn *grpc.ClientConn
}

func (c *grpcPeerClient) GetLivePeers(ctx context.Context) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, livePeersMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// livePeers is the payload of a GetLivePeers answer. Shard bounds travel as
// decimal strings since struct values are doubles.
type livePeers struct {
	Peers []struct {
		Addr       string `json:"addr"`
		ShardSpace *struct {
			Low  int64 `json:"low,string"`
			High int64 `json:"high,string"`
		} `json:"shardSpace,omitempty"`
		Universe *domain.NetworkConfig `json:"universe,omitempty"`
	} `json:"peers"`
}

// SeedDiscovery polls a list of seeds over gRPC. Every eligible seed is asked
// at once and the first answer wins; failing seeds back off exponentially.
type SeedDiscovery struct {
	seeds          []string
	clients        map[string]PeerClient
	conns          map[string]*grpc.ClientConn
	targetBackoff  map[string]time.Time
	targetFails    map[string]int
	mu             sync.RWMutex
	backoffBase    time.Duration
	requestTimeout time.Duration
	clientFactory  ClientFactory
}

var _ port.NodeDiscovery = (*SeedDiscovery)(nil)

func NewSeedDiscovery(seeds []string, backoffBase time.Duration) *SeedDiscovery {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &SeedDiscovery{
		seeds:          seeds,
		clients:        make(map[string]PeerClient),
		conns:          make(map[string]*grpc.ClientConn),
		targetBackoff:  make(map[string]time.Time),
		targetFails:    make(map[string]int),
		backoffBase:    backoffBase,
		requestTimeout: defaultRequestTimeout,
	}
}

func (d *SeedDiscovery) LoadNodes(ctx context.Context) ([]domain.DiscoveredNode, error) {
	if len(d.seeds) == 0 {
		return nil, ErrNoSeeds
	}

	now := time.Now()
	targets := make([]string, 0, len(d.seeds))
	for _, s := range d.seeds {
		if !d.shouldSkipTarget(s, now) {
			targets = append(targets, s)
		}
	}
	// Every seed backing off: ask them all anyway.
	if len(targets) == 0 {
		targets = append(targets, d.seeds...)
	}

	type pollResult struct {
		addr  string
		nodes []domain.DiscoveredNode
	}

	resultChan := make(chan pollResult, len(targets))
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	for _, addr := range targets {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			nodes, err := d.peersFrom(pollCtx, a)
			if err == nil {
				d.recordTargetSuccess(a)
				select {
				case resultChan <- pollResult{addr: a, nodes: nodes}:
					cancel()
				case <-pollCtx.Done():
				}
				return
			}
			if isIgnorablePollError(err) && pollCtx.Err() != nil {
				return
			}
			d.recordTargetFailure(a)
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
			logger.Debugw("Failed to load peers from seed", "addr", a, "error", err.Error())
		}(addr)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case result := <-resultChan:
		logger.Debugw("Loaded peers from seed", "addr", result.addr, "count", len(result.nodes))
		return result.nodes, nil
	case <-done:
		// A success may have landed just before the last failure.
		select {
		case result := <-resultChan:
			return result.nodes, nil
		default:
		}
		if firstErr == nil {
			firstErr = errors.New("no seed answered")
		}
		return nil, fmt.Errorf("load peers from seeds: %w", firstErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases every gRPC connection.
func (d *SeedDiscovery) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr := range d.clients {
		d.dropClientLocked(addr)
	}
}

func (d *SeedDiscovery) peersFrom(ctx context.Context, addr string) ([]domain.DiscoveredNode, error) {
	client, err := d.getClient(addr)
	if err != nil {
		return nil, err
	}

	tCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	resp, err := client.GetLivePeers(tCtx)
	if err != nil {
		return nil, err
	}
	return decodePeers(resp)
}

func decodePeers(resp *structpb.Struct) ([]domain.DiscoveredNode, error) {
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode peers: %w", err)
	}
	var payload livePeers
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode peers: %w", err)
	}

	out := make([]domain.DiscoveredNode, 0, len(payload.Peers))
	for _, p := range payload.Peers {
		if !isUsableNodeAddr(p.Addr) {
			logger.Warnw("Ignoring unusable peer addr", "addr", p.Addr)
			continue
		}
		node, err := domain.ParseNode(p.Addr)
		if err != nil {
			logger.Warnw("Ignoring malformed peer addr", "addr", p.Addr, "error", err.Error())
			continue
		}

		dn := domain.DiscoveredNode{Node: node, Config: p.Universe}
		if p.ShardSpace != nil {
			space := shard.Range{Low: shard.Shard(p.ShardSpace.Low), High: shard.Shard(p.ShardSpace.High)}
			if space.Valid() {
				dn.ShardSpace = &space
			}
		}
		out = append(out, dn)
	}
	return out, nil
}

func (d *SeedDiscovery) getClient(addr string) (PeerClient, error) {
	d.mu.RLock()
	client, ok := d.clients[addr]
	d.mu.RUnlock()
	if ok {
		return client, nil
	}

	var (
		newClient PeerClient
		newConn   *grpc.ClientConn
		err       error
	)
	if d.clientFactory != nil {
		newClient, err = d.clientFactory(addr)
	} else {
		newConn, err = grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err == nil {
			newClient = &grpcPeerClient{conn: newConn}
		}
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[addr]; ok {
		if newConn != nil {
			_ = newConn.Close()
		}
		return client, nil
	}

	d.clients[addr] = newClient
	if newConn != nil {
		d.conns[addr] = newConn
	}
	return newClient, nil
}

// SetClientFactory replaces the gRPC client constructor.
func (d *SeedDiscovery) SetClientFactory(f ClientFactory) {
	d.clientFactory = f
}

func isIgnorablePollError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	code := status.Code(err)
	return code == codes.Canceled || code == codes.DeadlineExceeded
}

// isUsableNodeAddr rejects empty and wildcard hosts a node may report for its
// own bind address.
func isUsableNodeAddr(addr string) bool {
	addr = strings.TrimSpace(addr)
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if addr == "" {
		return false
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}

	ip := net.ParseIP(host)
	if ip != nil && ip.IsUnspecified() {
		return false
	}
	return true
}

func (d *SeedDiscovery) shouldSkipTarget(addr string, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	next, ok := d.targetBackoff[addr]
	return ok && now.Before(next)
}

func (d *SeedDiscovery) recordTargetFailure(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.targetFails[addr]++
	failCount := d.targetFails[addr]
	if failCount > 6 {
		failCount = 6
	}
	backoff := d.backoffBase * time.Duration(1<<failCount)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	d.targetBackoff[addr] = time.Now().Add(backoff)
	d.dropClientLocked(addr)
}

func (d *SeedDiscovery) recordTargetSuccess(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targetFails, addr)
	delete(d.targetBackoff, addr)
}

func (d *SeedDiscovery) dropClientLocked(addr string) {
	if conn, ok := d.conns[addr]; ok {
		_ = conn.Close()
		delete(d.conns, addr)
	}
	delete(d.clients, addr)
}

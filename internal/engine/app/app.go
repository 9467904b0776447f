package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	httpHandler "github.com/anthanhphan/ledger-netengine/internal/engine/adapter/inbound/http"
	"github.com/anthanhphan/ledger-netengine/internal/engine/adapter/outbound/atomcodec"
	"github.com/anthanhphan/ledger-netengine/internal/engine/adapter/outbound/seed_discovery"
	"github.com/anthanhphan/ledger-netengine/internal/engine/adapter/outbound/wsrpc"
	"github.com/anthanhphan/ledger-netengine/internal/engine/config"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/metrics"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/internal/engine/service"
	"github.com/anthanhphan/ledger-netengine/pkg/gossip"
	"github.com/anthanhphan/ledger-netengine/pkg/idgen"
	"github.com/anthanhphan/ledger-netengine/pkg/resilience"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg        *config.Config
	server     *httpHandler.Server
	controller *service.Controller
	manager    *service.ConnectionManager
	membership *gossip.Membership
	seeds      *seed_discovery.SeedDiscovery
	redis      *redis.Client
	IDGen      *idgen.Snowflake
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Initialize Redis and Snowflake IDGen
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	idGen, err := idgen.New(cfg.App.NodeID, idgen.NewRedisClock(redisClient, 0))
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to init snowflake: %w", err)
	}

	a := &App{
		cfg:   cfg,
		redis: redisClient,
		IDGen: idGen,
	}
	if err := a.build(); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg
	m := metrics.New()
	a.controller = service.NewController(m)

	// 4. Discovery sources
	discovery, err := a.buildDiscovery()
	if err != nil {
		return err
	}

	// 5. Connections
	transport := wsrpc.NewTransport(wsrpc.Config{
		Path:       cfg.Connection.Path,
		PingPeriod: ms(cfg.Connection.PingPeriodMS),
		PongWait:   ms(cfg.Connection.PongWaitMS),
		WriteWait:  ms(cfg.Connection.WriteWaitMS),
	})
	a.manager, err = service.NewConnectionManager(transport, a.controller.Dispatch, service.ConnectionManagerConfig{
		DialTimeout:      ms(cfg.Connection.DialTimeoutMS),
		BreakerCacheSize: cfg.Connection.BreakerCacheSize,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Connection.BreakerFailureThreshold,
			OpenTimeout:      ms(cfg.Connection.BreakerOpenTimeoutMS),
		},
	}, m)
	if err != nil {
		return fmt.Errorf("failed to init connection manager: %w", err)
	}
	client := service.NewNodeClient(a.manager)

	// 6. Selection
	shardMatch, err := service.ParseShardMatch(cfg.Network.ShardMatch)
	if err != nil {
		return err
	}
	preferred, err := parseNodes(cfg.Network.PreferredNodes)
	if err != nil {
		return fmt.Errorf("invalid preferred nodes: %w", err)
	}
	selector, err := service.NewPeerSelector(cfg.Network.Selector, preferred)
	if err != nil {
		return err
	}
	onTimeout, err := service.ParseTimeoutPolicy(cfg.FindNode.OnTimeout)
	if err != nil {
		return err
	}
	expected := expectedConfig(cfg.Network)

	// 7. Epics
	a.controller.Register(
		service.NewDiscoveryEpic(discovery, ms(cfg.Discovery.TimeoutMS)),
		service.NewConnectionEpic(a.manager),
		service.NewNodeInfoEpic(client, service.NodeInfoConfig{
			Timeout: ms(cfg.NodeInfo.TimeoutMS),
			Workers: cfg.NodeInfo.Workers,
		}),
		service.NewFindNodeEpic(service.FindNodeConfig{
			WaitForConnection:   ms(cfg.FindNode.WaitForConnectionMS),
			OnTimeout:           onTimeout,
			MaxAttempts:         cfg.FindNode.MaxAttempts,
			MaxParallelConnects: cfg.FindNode.MaxParallelConnects,
		}, service.SuitabilityPolicy{
			Shards:          shardMatch,
			SkipConfigCheck: cfg.Network.SkipConfigCheck,
		}, selector, m),
		service.NewSubmitAtomEpic(service.SubmitConfig{
			Timeout:        ms(cfg.Submission.TimeoutMS),
			ConnectTimeout: ms(cfg.Submission.ConnectTimeoutMS),
			CancelTimeout:  ms(cfg.Submission.CancelTimeoutMS),
			ExpectedConfig: expected,
		}, atomcodec.Inspector{}, a.manager, client, a.IDGen, m),
	)

	// 8. HTTP Server
	submitter := service.NewSubmitter(a.controller, a.IDGen, expected)
	a.server = httpHandler.NewServer(cfg, submitter, m.Registry())
	return nil
}

func (a *App) buildDiscovery() (port.NodeDiscovery, error) {
	cfg := a.cfg
	var sources []port.NodeDiscovery

	for _, mode := range cfg.Discovery.Modes {
		switch strings.ToLower(strings.TrimSpace(mode)) {
		case "static":
			static, err := service.NewStaticDiscovery(cfg.Discovery.StaticNodes)
			if err != nil {
				return nil, fmt.Errorf("invalid static nodes: %w", err)
			}
			sources = append(sources, static)
		case "seeds":
			a.seeds = seed_discovery.NewSeedDiscovery(cfg.Discovery.Seeds, ms(cfg.Discovery.SeedBackoffMS))
			sources = append(sources, a.seeds)
		case "gossip":
			name := cfg.Gossip.Name
			if name == "" {
				name = fmt.Sprintf("netengine-%d", cfg.App.NodeID)
			}
			// The engine joins as an observer: it learns ledger nodes but is
			// never offered as one.
			membership, err := gossip.NewMembership(name, cfg.Gossip.BindAddr, cfg.Gossip.Port, gossip.Meta{Role: gossip.RoleObserver})
			if err != nil {
				return nil, err
			}
			a.membership = membership
			sources = append(sources, service.NewMembershipDiscovery(membership))
		default:
			return nil, fmt.Errorf("unknown discovery mode %q", mode)
		}
	}

	switch len(sources) {
	case 0:
		return nil, fmt.Errorf("no discovery mode configured")
	case 1:
		return sources[0], nil
	}
	return service.NewMultiDiscovery(sources...), nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start controller and epics
	controllerErrCh := make(chan error, 1)
	go func() {
		controllerErrCh <- a.controller.Run(ctx)
	}()

	if a.membership != nil && len(a.cfg.Gossip.Seeds) > 0 {
		if err := a.membership.Join(a.cfg.Gossip.Seeds); err != nil {
			logger.Warnw("Failed to join gossip cluster", "error", err.Error())
		}
	}

	// Start HTTP
	logger.Infow("Network engine starting", "addr", a.cfg.Server.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("Network engine HTTP server exited unexpectedly", "error", err.Error())
	case err := <-controllerErrCh:
		runErr = fmt.Errorf("network controller stopped: %w", err)
		logger.Errorw("Network controller exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down network engine")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var errs error
	if err := a.server.Stop(shutdownCtx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	cancel()
	if err := a.release(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if errs != nil {
		logger.Errorw("Network engine shutdown error", "error", errs.Error())
		if runErr == nil {
			runErr = errs
		}
	}

	return runErr
}

// release closes every outbound resource.
func (a *App) release() error {
	var errs error
	if a.manager != nil {
		if err := a.manager.Shutdown(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("connections: %w", err))
		}
	}
	if a.membership != nil {
		if err := a.membership.Leave(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("gossip leave: %w", err))
		}
	}
	if a.seeds != nil {
		a.seeds.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errs
}

func parseNodes(addrs []string) ([]domain.Node, error) {
	nodes := make([]domain.Node, 0, len(addrs))
	for _, addr := range addrs {
		n, err := domain.ParseNode(addr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func expectedConfig(cfg config.NetworkConfig) *domain.NetworkConfig {
	if cfg.UniverseName == "" {
		return nil
	}
	return &domain.NetworkConfig{Magic: cfg.UniverseMagic, Name: cfg.UniverseName}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

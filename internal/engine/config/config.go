package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds network engine configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	App        AppConfig        `json:"app" yaml:"app"`
	Network    NetworkConfig    `json:"network" yaml:"network"`
	FindNode   FindNodeConfig   `json:"find_node" yaml:"find_node"`
	Submission SubmissionConfig `json:"submission" yaml:"submission"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	NodeInfo   NodeInfoConfig   `json:"node_info" yaml:"node_info"`
	Discovery  DiscoveryConfig  `json:"discovery" yaml:"discovery"`
	Gossip     GossipConfig     `json:"gossip" yaml:"gossip"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Logger     logger.Config    `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// BodyLimit caps submitted atom size in bytes.
	BodyLimit int `json:"body_limit" yaml:"body_limit"`
}

type AppConfig struct {
	NodeID int64 `json:"node_id" yaml:"node_id"`
}

type NetworkConfig struct {
	// UniverseName and UniverseMagic identify the expected network. An empty
	// name disables the check.
	UniverseName    string   `json:"universe_name" yaml:"universe_name"`
	UniverseMagic   int64    `json:"universe_magic" yaml:"universe_magic"`
	ShardMatch      string   `json:"shard_match" yaml:"shard_match"` // "all", "any", "skip"
	SkipConfigCheck bool     `json:"skip_config_check" yaml:"skip_config_check"`
	Selector        string   `json:"selector" yaml:"selector"` // "first", "preference", "ring"
	PreferredNodes  []string `json:"preferred_nodes" yaml:"preferred_nodes"`
}

type FindNodeConfig struct {
	WaitForConnectionMS int    `json:"wait_for_connection_ms" yaml:"wait_for_connection_ms"`
	OnTimeout           string `json:"on_timeout" yaml:"on_timeout"` // "retry_discovery", "fail"
	MaxAttempts         int    `json:"max_attempts" yaml:"max_attempts"`
	MaxParallelConnects int    `json:"max_parallel_connects" yaml:"max_parallel_connects"`
}

type SubmissionConfig struct {
	TimeoutMS            int  `json:"timeout_ms" yaml:"timeout_ms"`
	ConnectTimeoutMS     int  `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	CancelTimeoutMS      int  `json:"cancel_timeout_ms" yaml:"cancel_timeout_ms"`
	CompleteOnStoredOnly bool `json:"complete_on_stored_only" yaml:"complete_on_stored_only"`
}

type ConnectionConfig struct {
	Path                    string `json:"path" yaml:"path"`
	DialTimeoutMS           int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	PingPeriodMS            int    `json:"ping_period_ms" yaml:"ping_period_ms"`
	PongWaitMS              int    `json:"pong_wait_ms" yaml:"pong_wait_ms"`
	WriteWaitMS             int    `json:"write_wait_ms" yaml:"write_wait_ms"`
	BreakerFailureThreshold int    `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold"`
	BreakerOpenTimeoutMS    int    `json:"breaker_open_timeout_ms" yaml:"breaker_open_timeout_ms"`
	BreakerCacheSize        int    `json:"breaker_cache_size" yaml:"breaker_cache_size"`
}

type NodeInfoConfig struct {
	TimeoutMS int `json:"timeout_ms" yaml:"timeout_ms"`
	Workers   int `json:"workers" yaml:"workers"`
}

type DiscoveryConfig struct {
	// Modes lists the sources to merge: "static", "seeds", "gossip".
	Modes         []string `json:"modes" yaml:"modes"`
	StaticNodes   []string `json:"static_nodes" yaml:"static_nodes"`
	Seeds         []string `json:"seeds" yaml:"seeds"`
	TimeoutMS     int      `json:"timeout_ms" yaml:"timeout_ms"`
	SeedBackoffMS int      `json:"seed_backoff_ms" yaml:"seed_backoff_ms"`
}

type GossipConfig struct {
	Name     string   `json:"name" yaml:"name"`
	BindAddr string   `json:"bind_addr" yaml:"bind_addr"`
	Port     int      `json:"port" yaml:"port"`
	Seeds    []string `json:"seeds" yaml:"seeds"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8090",
			BodyLimit: 4 * 1024 * 1024,
		},
		App: AppConfig{
			NodeID: 1,
		},
		Network: NetworkConfig{
			ShardMatch: "all",
			Selector:   "first",
		},
		FindNode: FindNodeConfig{
			WaitForConnectionMS: 5000,
			OnTimeout:           "retry_discovery",
			MaxAttempts:         3,
		},
		Submission: SubmissionConfig{
			TimeoutMS:        60000,
			ConnectTimeoutMS: 10000,
			CancelTimeoutMS:  5000,
		},
		Connection: ConnectionConfig{
			Path:                    "/rpc",
			DialTimeoutMS:           10000,
			PingPeriodMS:            30000,
			PongWaitMS:              60000,
			WriteWaitMS:             10000,
			BreakerFailureThreshold: 3,
			BreakerOpenTimeoutMS:    10000,
			BreakerCacheSize:        1024,
		},
		NodeInfo: NodeInfoConfig{
			TimeoutMS: 5000,
			Workers:   4,
		},
		Discovery: DiscoveryConfig{
			Modes:         []string{"static"},
			StaticNodes:   []string{"ws://localhost:8080"},
			TimeoutMS:     10000,
			SeedBackoffMS: 1000,
		},
		Gossip: GossipConfig{
			BindAddr: "0.0.0.0",
			Port:     7946,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "engine", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		// The logger is not initialised before the config is known.
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

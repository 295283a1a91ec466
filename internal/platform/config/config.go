// Package config loads server configuration from the environment, optionally
// layered over a YAML file named by DIDGATE_CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "didgate/pkg/platform/strings"
	"didgate/pkg/platform/validation"
)

// Registry backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendEthereum = "ethereum"
)

// DefaultGateways is the read order used when none is configured.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	ShutdownGrace  time.Duration
	MaxUploadBytes int64
	TrustedProxies []netip.Prefix

	ContentStore ContentStoreConfig
	Registry     RegistryConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
}

// ContentStoreConfig configures the pinning API and read gateways.
type ContentStoreConfig struct {
	APIURL        string        `yaml:"api_url"`
	Credential    string        `yaml:"-"`
	Gateways      []string      `yaml:"gateways"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

// RegistryConfig selects and configures the registry backend.
type RegistryConfig struct {
	Backend         string        `yaml:"backend"`
	RPCURL          string        `yaml:"rpc_url"`
	ContractAddress string        `yaml:"contract_address"`
	ChainID         int64         `yaml:"chain_id"`
	SignerKey       string        `yaml:"-"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures identity event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// fileConfig is the YAML overlay. Secrets are never read from the file.
type fileConfig struct {
	ContentStore *ContentStoreConfig `yaml:"content_store"`
	Registry     *RegistryConfig     `yaml:"registry"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           ":8080",
		Environment:    "development",
		ShutdownGrace:  15 * time.Second,
		MaxUploadBytes: validation.MaxImageBytes,
		ContentStore: ContentStoreConfig{
			Gateways:      append([]string(nil), DefaultGateways...),
			FetchTimeout:  15 * time.Second,
			UploadTimeout: 60 * time.Second,
		},
		Registry: RegistryConfig{
			Backend:     BackendMemory,
			ChainID:     31,
			DialTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "identity.events"},
	}

	if path := os.Getenv("DIDGATE_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Server{}, err
		}
	}

	var errs []error
	setString(&cfg.Addr, "DIDGATE_ADDR")
	setString(&cfg.Environment, "ENVIRONMENT")
	errs = append(errs,
		setDuration(&cfg.ShutdownGrace, "DIDGATE_SHUTDOWN_GRACE"),
		setInt64(&cfg.MaxUploadBytes, "DIDGATE_MAX_UPLOAD_BYTES"),
	)
	if raw := os.Getenv("TRUSTED_PROXIES"); raw != "" {
		for _, p := range pstrings.SplitList(raw, ",") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
				continue
			}
			cfg.TrustedProxies = append(cfg.TrustedProxies, prefix)
		}
	}

	setString(&cfg.ContentStore.Credential, "PINATA_JWT")
	setString(&cfg.ContentStore.APIURL, "PINATA_API_URL")
	if raw, ok := os.LookupEnv("IPFS_GATEWAYS"); ok {
		cfg.ContentStore.Gateways = pstrings.SplitList(raw, ",")
	}
	errs = append(errs,
		setDuration(&cfg.ContentStore.FetchTimeout, "IPFS_FETCH_TIMEOUT"),
		setDuration(&cfg.ContentStore.UploadTimeout, "PINATA_UPLOAD_TIMEOUT"),
	)

	setString(&cfg.Registry.Backend, "REGISTRY_BACKEND")
	setString(&cfg.Registry.RPCURL, "REGISTRY_RPC_URL")
	setString(&cfg.Registry.ContractAddress, "REGISTRY_CONTRACT_ADDRESS")
	setString(&cfg.Registry.SignerKey, "REGISTRY_SIGNER_KEY")
	errs = append(errs,
		setInt64(&cfg.Registry.ChainID, "REGISTRY_CHAIN_ID"),
		setDuration(&cfg.Registry.DialTimeout, "REGISTRY_DIAL_TIMEOUT"),
	)

	setString(&cfg.Redis.URL, "REDIS_URL")
	errs = append(errs,
		setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE"),
		setInt(&cfg.Redis.MinIdleConns, "REDIS_MIN_IDLE_CONNS"),
		setDuration(&cfg.Redis.DialTimeout, "REDIS_DIAL_TIMEOUT"),
		setDuration(&cfg.Redis.ReadTimeout, "REDIS_READ_TIMEOUT"),
		setDuration(&cfg.Redis.WriteTimeout, "REDIS_WRITE_TIMEOUT"),
	)

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		cfg.Kafka.Brokers = pstrings.SplitList(raw, ",")
	}
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints. A missing pinning credential is
// not a configuration error: publication refuses to start without one.
func (s Server) Validate() error {
	var errs []error
	if len(s.ContentStore.Gateways) == 0 {
		errs = append(errs, errors.New("IPFS_GATEWAYS: at least one gateway is required"))
	}
	switch s.Registry.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL: required by the redis registry backend"))
		}
	case BackendEthereum:
		if s.Registry.RPCURL == "" {
			errs = append(errs, errors.New("REGISTRY_RPC_URL: required by the ethereum registry backend"))
		}
		if s.Registry.ContractAddress == "" {
			errs = append(errs, errors.New("REGISTRY_CONTRACT_ADDRESS: required by the ethereum registry backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("REGISTRY_BACKEND: unknown backend %q", s.Registry.Backend))
	}
	if s.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("DIDGATE_MAX_UPLOAD_BYTES: must be positive"))
	}
	return errors.Join(errs...)
}

func (s *Server) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if cs := fc.ContentStore; cs != nil {
		if cs.APIURL != "" {
			s.ContentStore.APIURL = cs.APIURL
		}
		if cs.Gateways != nil {
			s.ContentStore.Gateways = pstrings.Clean(cs.Gateways)
		}
		if cs.FetchTimeout != 0 {
			s.ContentStore.FetchTimeout = cs.FetchTimeout
		}
		if cs.UploadTimeout != 0 {
			s.ContentStore.UploadTimeout = cs.UploadTimeout
		}
	}
	if reg := fc.Registry; reg != nil {
		if reg.Backend != "" {
			s.Registry.Backend = reg.Backend
		}
		if reg.RPCURL != "" {
			s.Registry.RPCURL = reg.RPCURL
		}
		if reg.ContractAddress != "" {
			s.Registry.ContractAddress = reg.ContractAddress
		}
		if reg.ChainID != 0 {
			s.Registry.ChainID = reg.ChainID
		}
		if reg.DialTimeout != 0 {
			s.Registry.DialTimeout = reg.DialTimeout
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultGateways, cfg.ContentStore.Gateways)
	assert.Equal(t, BackendMemory, cfg.Registry.Backend)
	assert.Empty(t, cfg.ContentStore.Credential, "a missing credential is not a config error")
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "identity.events", cfg.Kafka.Topic)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DIDGATE_ADDR", ":9090")
	t.Setenv("PINATA_JWT", "token")
	t.Setenv("IPFS_GATEWAYS", "https://g1.example/ipfs/, https://g2.example/ipfs/,https://g1.example/ipfs/")
	t.Setenv("IPFS_FETCH_TIMEOUT", "3s")
	t.Setenv("REGISTRY_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "token", cfg.ContentStore.Credential)
	assert.Equal(t, []string{"https://g1.example/ipfs/", "https://g2.example/ipfs/"}, cfg.ContentStore.Gateways)
	assert.Equal(t, 3*time.Second, cfg.ContentStore.FetchTimeout)
	assert.Equal(t, BackendRedis, cfg.Registry.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.TrustedProxies, 1)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "empty gateway list", env: map[string]string{"IPFS_GATEWAYS": " , "}, want: "IPFS_GATEWAYS"},
		{name: "bad duration", env: map[string]string{"IPFS_FETCH_TIMEOUT": "soon"}, want: "IPFS_FETCH_TIMEOUT"},
		{name: "unknown backend", env: map[string]string{"REGISTRY_BACKEND": "postgres"}, want: "REGISTRY_BACKEND"},
		{name: "redis backend without url", env: map[string]string{"REGISTRY_BACKEND": "redis"}, want: "REDIS_URL"},
		{name: "ethereum backend without contract", env: map[string]string{"REGISTRY_BACKEND": "ethereum", "REGISTRY_RPC_URL": "http://node"}, want: "REGISTRY_CONTRACT_ADDRESS"},
		{name: "bad chain id", env: map[string]string{"REGISTRY_CHAIN_ID": "rsk"}, want: "REGISTRY_CHAIN_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnvConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "didgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
content_store:
  gateways:
    - https://file-gateway.example/ipfs/
  fetch_timeout: 4s
registry:
  backend: ethereum
  rpc_url: https://public-node.testnet.rsk.co
  contract_address: "0x1111111111111111111111111111111111111111"
  chain_id: 31
`), 0o600))
	t.Setenv("DIDGATE_CONFIG_FILE", path)
	t.Setenv("REGISTRY_RPC_URL", "http://localhost:4444")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://file-gateway.example/ipfs/"}, cfg.ContentStore.Gateways)
	assert.Equal(t, 4*time.Second, cfg.ContentStore.FetchTimeout)
	assert.Equal(t, BackendEthereum, cfg.Registry.Backend)
	assert.Equal(t, "http://localhost:4444", cfg.Registry.RPCURL, "environment wins over the file")
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.Registry.ContractAddress)
}

func TestFromEnvMissingConfigFile(t *testing.T) {
	t.Setenv("DIDGATE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := FromEnv()
	assert.Error(t, err)
}

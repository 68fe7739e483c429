package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]string{"-env_file", ""})
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Engine.Symbols)
	assert.Equal(t, 10, cfg.Engine.SnapshotDepth)
	assert.Equal(t, "best_ask", cfg.Engine.TriggerReference)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Redis.SnapshotTTL)
	assert.Equal(t, KafkaClientKafkaGo, cfg.Kafka.Client)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := LoadConfig([]string{"-env_file", "", "-grpc_port", "6000", "-http_port", "9090", "-symbols", "BTC-USDT, ETH-USDT"})
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, cfg.Engine.Symbols)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_addr: ":7070"
engine:
  symbols: ["SOL-USDT"]
  snapshot_depth: 5
  trigger_reference: side
redis:
  enabled: true
  addr: "redis:6379"
  snapshot_ttl: 30s
kafka:
  enabled: true
  client: sarama
  topic: trades
`)
	envPath := writeFile(t, ".env", "MATCHBOOK_KAFKA_TOPIC=from-dotenv\nMATCHBOOK_REDIS_DB=3\n")
	t.Setenv("MATCHBOOK_SERVER_HTTP_ADDR", ":7171")

	cfg, err := LoadConfig([]string{"-config", path, "-env_file", envPath})
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Unsetenv("MATCHBOOK_KAFKA_TOPIC")
		os.Unsetenv("MATCHBOOK_REDIS_DB")
	})

	assert.Equal(t, ":7171", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"SOL-USDT"}, cfg.Engine.Symbols)
	assert.Equal(t, 5, cfg.Engine.SnapshotDepth)
	assert.Equal(t, "side", cfg.Engine.TriggerReference)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Redis.SnapshotTTL)
	assert.Equal(t, KafkaClientSarama, cfg.Kafka.Client)
	assert.Equal(t, "from-dotenv", cfg.Kafka.Topic)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]string{"-config", "/does/not/exist.yaml"})
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "server: [")
	_, err = LoadConfig([]string{"-config", bad, "-env_file", ""})
	assert.Error(t, err)

	invalid := writeFile(t, "invalid.yaml", "kafka:\n  enabled: true\n  client: nats\n")
	_, err = LoadConfig([]string{"-config", invalid, "-env_file", ""})
	assert.ErrorContains(t, err, "kafka.client")

	_, err = LoadConfig([]string{"-unknown"})
	assert.Error(t, err)
}

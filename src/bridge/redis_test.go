package bridge

import (
	"encoding/json"
	"testing"

	"github.com/orchestra-mcp/copilot-socket/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcastTarget records messages forwarded from the bridge.
type mockBroadcastTarget struct {
	received []*types.Message
}

func (m *mockBroadcastTarget) BroadcastToLocal(msg *types.Message) {
	m.received = append(m.received, msg)
}

func TestRedisEnvelopeRoundTrip(t *testing.T) {
	msg := types.NewMessage("insight_update", map[string]any{
		"dashboard": "sales",
		"rows":      float64(42),
	})

	env := redisEnvelope{
		InstanceID: "node-1",
		Message:    msg,
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var out redisEnvelope
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "node-1", out.InstanceID)
	assert.Equal(t, msg.ID, out.Message.ID)
	assert.Equal(t, "insight_update", out.Message.Type)
	assert.Equal(t, "sales", out.Message.Data["dashboard"])
	assert.Equal(t, float64(42), out.Message.Data["rows"])
	assert.Equal(t, msg.Timestamp, out.Message.Timestamp)
	assert.Equal(t, msg.MaxRetries, out.Message.MaxRetries)
}

func TestHandleRedisMessageSkipsOwnInstance(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, testLogger())

	env := redisEnvelope{
		InstanceID: rb.instanceID,
		Message:    types.NewMessage("noop", nil),
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	rb.handleRedisMessage(&redis.Message{Payload: string(payload)})
	assert.Empty(t, target.received)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "copilot:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_WS_PREFIX", "test:ws:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnvDefaults(t *testing.T) {
	// No env vars set, should return defaults.
	cfg := RedisConfigFromEnv()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "copilot:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB) // falls back to default
}

func TestRedisBridgeAvailableFalseBeforeStart(t *testing.T) {
	target := &mockBroadcastTarget{}
	cfg := DefaultRedisConfig()
	rb := NewRedisBridge(cfg, target, testLogger())
	assert.False(t, rb.Available())
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	target := &mockBroadcastTarget{}
	cfg := DefaultRedisConfig()
	b1 := NewRedisBridge(cfg, target, testLogger())
	b2 := NewRedisBridge(cfg, target, testLogger())
	assert.NotEqual(t, b1.instanceID, b2.instanceID)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

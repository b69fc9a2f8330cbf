package redis

import (
	"context"
	"testing"

	"payment-reconciler/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAddr(t *testing.T) {
	cfg := config.RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestAsynqOpt(t *testing.T) {
	opt := AsynqOpt(config.RedisConfig{Host: "localhost", Port: 6379, Password: "pw", DB: 2})
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
}

func TestNewClient(t *testing.T) {
	s, _ := newTestClient(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: atoiPort(t, s.Port())}

	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	s, _ := newTestClient(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: atoiPort(t, s.Port())}
	s.Close()

	_, err := NewClient(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

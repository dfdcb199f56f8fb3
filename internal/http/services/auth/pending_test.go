package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// deleteFailCache envuelve un cache y fuerza la falla de los deletes,
// simulando un backend Redis caído a mitad del canje.
type deleteFailCache struct {
	cache.Client
	deleteErr error
}

func (c *deleteFailCache) Delete(ctx context.Context, key string) error {
	return c.deleteErr
}

func pendingTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.PendingTTL = "5m"
	return cfg
}

func TestPendingTake_IsSingleUse(t *testing.T) {
	cfg := pendingTestConfig()
	p := newPendingStore(cache.NewMemory("test", time.Minute), cfg)
	ctx := context.Background()

	pendingID, err := p.put(ctx, &PendingLogin{
		UserID:   "u1",
		Username: "alice",
		State:    "state-nonce",
		Stage:    StageMfaRedirected,
	})
	require.NoError(t, err)

	pl, err := p.take(ctx, pendingID)
	require.NoError(t, err)
	require.Equal(t, "alice", pl.Username)

	_, err = p.take(ctx, pendingID)
	require.ErrorIs(t, err, ErrNoSession, "un pending canjeado no puede canjearse de nuevo")
}

func TestPendingTake_DeleteFailureIsLogged(t *testing.T) {
	cfg := pendingTestConfig()
	failing := &deleteFailCache{
		Client:    cache.NewMemory("test", time.Minute),
		deleteErr: fmt.Errorf("dial tcp: connection refused"),
	}
	p := newPendingStore(failing, cfg)

	pendingID, err := p.put(context.Background(), &PendingLogin{
		Username: "alice",
		State:    "state-nonce",
		Stage:    StageMfaRedirected,
	})
	require.NoError(t, err)

	obs, logs := observer.New(zap.WarnLevel)
	ctx := logger.ToContext(context.Background(), zap.New(obs))

	// La falla del delete no corta el login en curso, pero tiene que
	// quedar registrada: el pending sigue vivo hasta su TTL.
	pl, err := p.take(ctx, pendingID)
	require.NoError(t, err)
	require.Equal(t, "alice", pl.Username)
	require.Equal(t, 1, logs.FilterMessage("pending login delete failed").Len())
}

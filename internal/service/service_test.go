package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"spacedrift/internal/ratelimit"
	"spacedrift/internal/records"
	"spacedrift/internal/server"
)

func setEnv(t *testing.T, redisURL string) {
	t.Helper()
	t.Setenv("PORT", "0")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("REDIS_URL", redisURL)
	t.Setenv("LOG_LEVEL", "error")
}

func modules(populate ...any) fx.Option {
	return fx.Options(
		FxLogger,
		LoggerModule,
		ConfigModule,
		StorageModule,
		HubModule,
		HttpModule,
		fx.Populate(populate...),
	)
}

func TestAppStartsWithoutRedis(t *testing.T) {
	setEnv(t, "")

	var (
		hub   *server.Hub
		store records.Store
	)
	app := fxtest.New(t, modules(&hub, &store))
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, hub)
	_, isFile := store.(*records.FileStore)
	assert.True(t, isFile)
	assert.Equal(t, server.Stats{}, hub.Stats())
}

func TestAppUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	setEnv(t, "redis://"+mr.Addr())

	var (
		limiter *ratelimit.Limiter
		svc     *records.Service
		store   records.Store
	)
	app := fxtest.New(t, modules(&limiter, &svc, &store))
	app.RequireStart()
	defer app.RequireStop()

	_, isFallback := store.(*records.FallbackStore)
	assert.True(t, isFallback)

	ctx := context.Background()
	assert.True(t, limiter.CheckOnce(ctx, "peer:a:find", time.Second))
	assert.False(t, limiter.CheckOnce(ctx, "peer:a:find", time.Second))
	assert.True(t, mr.Exists("rl:peer:a:find"))

	score := 42.0
	_, err := svc.SubmitScore(ctx, records.ScoreSubmission{PlayerID: "p1", Name: "Ann", Score: &score})
	require.NoError(t, err)
	items, err := mr.List("leaderboard:list")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestInvalidRedisURLFailsStartup(t *testing.T) {
	setEnv(t, "not-a-url://")

	app := fx.New(modules())
	assert.Error(t, app.Err())
}

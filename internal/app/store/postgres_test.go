package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roomchat/internal/app/db"
	"roomchat/internal/configs"
)

// TestPostgresStore needs a disposable database; the schema is reset before and after.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ROOMCHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ROOMCHAT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	cfg := configs.Default().Database
	cfg.DSN = dsn
	cfg.MinConns = 1
	cfg.ConnectTimeout = 10 * time.Second

	pool, err := db.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Reset(ctx, pool))
	require.NoError(t, db.Migrate(ctx, pool))
	t.Cleanup(func() { _ = db.Reset(ctx, pool) })

	exerciseStore(t, NewPostgres(pool))
}

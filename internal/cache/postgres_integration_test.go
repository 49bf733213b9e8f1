//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"perfkit/internal/storage"
)

func TestSQLStore_PostgreSQL(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("perfkit"),
		postgres.WithUsername("perfkit"),
		postgres.WithPassword("perfkit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	st, err := storage.NewPostgreSQL(ctx, storage.PostgreSQLConfig{URL: url})
	require.NoError(t, err)

	s, err := NewSQLStore(ctx, st, 3)
	require.NoError(t, err)
	defer s.Close()

	runStoreConformance(t, s)
}

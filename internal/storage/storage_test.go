package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQL_UnknownType(t *testing.T) {
	for _, typ := range []string{"cassandra", TypeMongoDB} {
		_, err := OpenSQL(context.Background(), Config{Type: typ})
		require.ErrorContains(t, err, "unknown SQL storage type", typ)
	}
}

func TestOpenSQL_PostgreSQLRequiresURL(t *testing.T) {
	_, err := OpenSQL(context.Background(), Config{Type: TypePostgreSQL})
	require.ErrorContains(t, err, "URL is required")
}

func TestSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "perfkit.db")
	store, err := OpenSQL(context.Background(), Config{Type: TypeSQLite, SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, TypeSQLite, store.Type())
	assert.FileExists(t, path)
}

func TestSQLite_QueryRow(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "rows.db")})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	n, err := store.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?), (?, ?)`, "a", "1", "b", "2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var v string
	require.NoError(t, store.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "b").Scan(&v))
	assert.Equal(t, "2", v)

	err = store.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "missing").Scan(&v)
	require.Error(t, err)
	assert.True(t, store.IsNoRows(err))
}

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Exec(context.Background(), `CREATE TABLE IF NOT EXISTS test_entries (id TEXT PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	const goroutines = 10
	const insertsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)

	for i := range goroutines {
		wg.Go(func() {
			for j := range insertsPerGoroutine {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := store.Exec(ctx, `INSERT INTO test_entries (id, data) VALUES (?, ?)`,
					fmt.Sprintf("%d-%d", i, j), "payload")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d: %w", i, j, err)
				}
			}
		})
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	var count int
	require.NoError(t, store.QueryRow(context.Background(), "SELECT COUNT(*) FROM test_entries").Scan(&count))
	assert.Equal(t, goroutines*insertsPerGoroutine, count)
}

func TestNewMongoDB_RequiresURL(t *testing.T) {
	_, err := NewMongoDB(context.Background(), MongoDBConfig{})
	require.ErrorContains(t, err, "URL is required")
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT $1, $2 FROM t WHERE a = $3", rebind("SELECT ?, ? FROM t WHERE a = ?"))
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
}

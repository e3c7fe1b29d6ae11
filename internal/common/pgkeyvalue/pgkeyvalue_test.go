package pgkeyvalue

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

const postgresUrlEnv = "RENDERBENCH_TEST_POSTGRES_URL"

// withDatabase connects to the postgres instance named by RENDERBENCH_TEST_POSTGRES_URL and hands the
// action a fresh table name, which is dropped afterwards. The test is skipped if no instance is configured.
func withDatabase(t *testing.T, action func(db *pgxpool.Pool, tableName string)) {
	url := os.Getenv(postgresUrlEnv)
	if url == "" {
		t.Skipf("%s not set", postgresUrlEnv)
	}
	ctx := runcontext.Background()
	db, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	tableName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	defer func() {
		_, err := db.Exec(ctx, "DROP TABLE IF EXISTS "+tableName)
		assert.NoError(t, err)
	}()
	action(db, tableName)
}

func TestNew_InvalidArguments(t *testing.T) {
	ctx := runcontext.Background()
	var target *benchmarkerrors.ErrInvalidArgument

	_, err := New(ctx, nil, "reports")
	assert.ErrorAs(t, err, &target)
}

func TestStoreLoad(t *testing.T) {
	withDatabase(t, func(db *pgxpool.Pool, tableName string) {
		ctx := runcontext.Background()
		fakeClock := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		store, err := NewWithClock(ctx, db, tableName, fakeClock)
		require.NoError(t, err)

		require.NoError(t, store.Store(ctx, "run-1", []byte(`{"status":"completed"}`)))

		kv, err := store.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "run-1", kv.Key)
		assert.Equal(t, []byte(`{"status":"completed"}`), kv.Value)
		assert.True(t, fakeClock.Now().Equal(kv.Inserted))

		// The store is write-once.
		var exists *benchmarkerrors.ErrAlreadyExists
		err = store.Store(ctx, "run-1", []byte(`{}`))
		assert.ErrorAs(t, err, &exists)

		var notFound *benchmarkerrors.ErrNotFound
		_, err = store.Load(ctx, "run-2")
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestCleanup(t *testing.T) {
	withDatabase(t, func(db *pgxpool.Pool, tableName string) {
		ctx := runcontext.Background()
		fakeClock := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		store, err := NewWithClock(ctx, db, tableName, fakeClock)
		require.NoError(t, err)

		require.NoError(t, store.Store(ctx, "old", []byte{0x1}))
		fakeClock.Step(2 * time.Hour)
		require.NoError(t, store.Store(ctx, "new", []byte{0x2}))

		deleted, err := store.Cleanup(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		var notFound *benchmarkerrors.ErrNotFound
		_, err = store.Load(ctx, "old")
		assert.ErrorAs(t, err, &notFound)
		_, err = store.Load(ctx, "new")
		assert.NoError(t, err)
	})
}

// Package pgkeyvalue is a write-once key-value store backed by postgres. renderbench uses it to
// archive the final report of each run under the run id.
package pgkeyvalue

import (
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/logging"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type KeyValue struct {
	Key      string    `db:"key"`
	Value    []byte    `db:"value"`
	Inserted time.Time `db:"inserted"`
}

// PGKeyValueStore is a key-value store backed by postgres.
// The store is write-once, i.e., writing to an existing key returns an error of type *benchmarkerrors.ErrAlreadyExists.
// Keys can only be deleted by running the cleanup function.
type PGKeyValueStore struct {
	// Postgres connection.
	db *pgxpool.Pool
	// Name of the postgres table used for storage.
	tableName string
	// Used to set inserted time
	clock clock.Clock
}

func New(ctx *runcontext.Context, db *pgxpool.Pool, tableName string) (*PGKeyValueStore, error) {
	return NewWithClock(ctx, db, tableName, clock.RealClock{})
}

func NewWithClock(ctx *runcontext.Context, db *pgxpool.Pool, tableName string, clk clock.Clock) (*PGKeyValueStore, error) {
	if db == nil {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if !tableNamePattern.MatchString(tableName) {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "TableName",
			Value:   tableName,
			Message: "TableName must be a non-empty sql identifier",
		})
	}
	if err := createTableIfNotExists(ctx, db, tableName); err != nil {
		return nil, errors.WithStack(err)
	}
	return &PGKeyValueStore{
		db:        db,
		tableName: tableName,
		clock:     clk,
	}, nil
}

// Store inserts value under key.
func (c *PGKeyValueStore) Store(ctx *runcontext.Context, key string, value []byte) error {
	sql := fmt.Sprintf("INSERT INTO %s (key, value, inserted) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING", c.tableName)
	tag, err := c.db.Exec(ctx, sql, key, value, c.clock.Now().UTC())
	if err != nil {
		return errors.WithStack(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.WithStack(&benchmarkerrors.ErrAlreadyExists{
			Type:  "key",
			Value: key,
		})
	}
	return nil
}

// Load returns the value stored under key, or an error of type *benchmarkerrors.ErrNotFound.
func (c *PGKeyValueStore) Load(ctx *runcontext.Context, key string) (*KeyValue, error) {
	row := c.db.QueryRow(ctx, fmt.Sprintf("SELECT key, value, inserted FROM %s WHERE key = $1", c.tableName), key)
	kv := &KeyValue{}
	if err := row.Scan(&kv.Key, &kv.Value, &kv.Inserted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(&benchmarkerrors.ErrNotFound{
				Type:  "key",
				Value: key,
			})
		}
		return nil, errors.WithStack(err)
	}
	return kv, nil
}

func createTableIfNotExists(ctx *runcontext.Context, db *pgxpool.Pool, tableName string) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		    key TEXT PRIMARY KEY,
		    value BYTEA,
		    inserted TIMESTAMP not null
	);`, tableName))
	return err
}

// Cleanup removes all key-value pairs older than lifespan.
func (c *PGKeyValueStore) Cleanup(ctx *runcontext.Context, lifespan time.Duration) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE (inserted <= $1);", c.tableName)
	tag, err := c.db.Exec(ctx, sql, c.clock.Now().UTC().Add(-lifespan))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return tag.RowsAffected(), nil
}

// CleanupAndLog runs Cleanup, logging rather than returning failures. Archiving is best-effort,
// so a failed cleanup must not fail the run.
func (c *PGKeyValueStore) CleanupAndLog(ctx *runcontext.Context, lifespan time.Duration) {
	if lifespan <= 0 {
		return
	}
	start := c.clock.Now()
	deleted, err := c.Cleanup(ctx, lifespan)
	if err != nil {
		logging.WithStacktrace(ctx.Log, err).WithField("delay", c.clock.Since(start)).Warn("archive cleanup failed")
		return
	}
	ctx.Log.WithField("deleted", deleted).WithField("delay", c.clock.Since(start)).Debug("archive cleanup succeeded")
}

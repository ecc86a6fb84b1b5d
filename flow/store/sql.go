package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dshills/flowlaws/flow"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	// SQLite uses modernc.org/sqlite. The DSN is a file path or ":memory:".
	SQLite Dialect = "sqlite"
	// MySQL uses github.com/go-sql-driver/mysql.
	MySQL Dialect = "mysql"
	// Postgres uses github.com/lib/pq.
	Postgres Dialect = "postgres"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(string(SQLite), sqlx.QUESTION)
}

var schemas = map[Dialect]string{
	SQLite: `
		CREATE TABLE IF NOT EXISTS flow_aggregates (
			ns TEXT NOT NULL,
			agg_key TEXT NOT NULL,
			agg_value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (ns, agg_key)
		)`,
	MySQL: `
		CREATE TABLE IF NOT EXISTS flow_aggregates (
			ns VARCHAR(64) NOT NULL,
			agg_key VARCHAR(255) NOT NULL,
			agg_value LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (ns, agg_key)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	Postgres: `
		CREATE TABLE IF NOT EXISTS flow_aggregates (
			ns VARCHAR(64) NOT NULL,
			agg_key VARCHAR(255) NOT NULL,
			agg_value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (ns, agg_key)
		)`,
}

// Backend is a shared SQL connection holding the flow_aggregates table.
//
// Many SQLStores can live on one Backend; each owns a namespace of rows, so
// trials sharing a database never see each other's aggregates.
//
// Example:
//
//	b, err := store.Open(store.SQLite, filepath.Join(dir, "agg.db"))
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//	st := store.NewSQLStore[string, int](b)
type Backend struct {
	db      *sqlx.DB
	dialect Dialect

	// mu serializes read-modify-write merges.
	mu     sync.Mutex
	closed bool
}

// Open connects to dsn and creates the aggregate table if needed.
func Open(dialect Dialect, dsn string) (*Backend, error) {
	schema, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sqlx.Connect(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	ctx := context.Background()
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)

		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create flow_aggregates table: %w", err)
	}

	return &Backend{db: db, dialect: dialect}, nil
}

// Dialect returns the backend's dialect.
func (b *Backend) Dialect() Dialect { return b.dialect }

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.db.PingContext(ctx)
}

// Close closes the connection. Further operations return ErrClosed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *Backend) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// SQLStore is a Store persisted in a Backend's flow_aggregates table.
//
// Keys and values are stored as JSON, so K and V must round-trip through
// encoding/json. A key's JSON text must fit in 255 bytes on MySQL and Postgres.
type SQLStore[K comparable, V any] struct {
	b         *Backend
	namespace string
}

// NewSQLStore creates an empty store in a fresh namespace of b.
func NewSQLStore[K comparable, V any](b *Backend) *SQLStore[K, V] {
	return &SQLStore[K, V]{
		b:         b,
		namespace: uuid.NewString(),
	}
}

// Namespace returns the row namespace owned by the store.
func (s *SQLStore[K, V]) Namespace() string { return s.namespace }

// Merge implements flow.Store. The whole batch is applied in one transaction.
func (s *SQLStore[K, V]) Merge(ctx context.Context, batch []flow.Pair[K, V], plus func(V, V) V) error {
	if len(batch) == 0 {
		return nil
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.closed {
		return ErrClosed
	}

	tx, err := s.b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQ := tx.Rebind("SELECT agg_value FROM flow_aggregates WHERE ns = ? AND agg_key = ?")
	updateQ := tx.Rebind("UPDATE flow_aggregates SET agg_value = ?, updated_at = ? WHERE ns = ? AND agg_key = ?")
	insertQ := tx.Rebind("INSERT INTO flow_aggregates (ns, agg_key, agg_value, updated_at) VALUES (?, ?, ?, ?)")
	now := time.Now().UTC()

	for _, kv := range batch {
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return fmt.Errorf("failed to encode key %v: %w", kv.Key, err)
		}

		var raw string
		err = tx.GetContext(ctx, &raw, selectQ, s.namespace, string(key))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			val, err := json.Marshal(kv.Value)
			if err != nil {
				return fmt.Errorf("failed to encode value for key %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, insertQ, s.namespace, string(key), string(val), now); err != nil {
				return fmt.Errorf("failed to insert key %s: %w", key, err)
			}
		case err != nil:
			return fmt.Errorf("failed to read key %s: %w", key, err)
		default:
			var prev V
			if err := json.Unmarshal([]byte(raw), &prev); err != nil {
				return fmt.Errorf("failed to decode value for key %s: %w", key, err)
			}
			val, err := json.Marshal(plus(prev, kv.Value))
			if err != nil {
				return fmt.Errorf("failed to encode value for key %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, updateQ, string(val), now, s.namespace, string(key)); err != nil {
				return fmt.Errorf("failed to update key %s: %w", key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	if err := s.b.check(); err != nil {
		return zero, false, err
	}

	k, err := json.Marshal(key)
	if err != nil {
		return zero, false, fmt.Errorf("failed to encode key %v: %w", key, err)
	}

	var raw string
	q := s.b.db.Rebind("SELECT agg_value FROM flow_aggregates WHERE ns = ? AND agg_key = ?")
	err = s.b.db.GetContext(ctx, &raw, q, s.namespace, string(k))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read key %s: %w", k, err)
	}

	var v V
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, false, fmt.Errorf("failed to decode value for key %s: %w", k, err)
	}
	return v, true, nil
}

// Keys implements Store.
func (s *SQLStore[K, V]) Keys(ctx context.Context) ([]K, error) {
	if err := s.b.check(); err != nil {
		return nil, err
	}

	var raws []string
	q := s.b.db.Rebind("SELECT agg_key FROM flow_aggregates WHERE ns = ? ORDER BY agg_key")
	if err := s.b.db.SelectContext(ctx, &raws, q, s.namespace); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keys := make([]K, 0, len(raws))
	for _, raw := range raws {
		var k K
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			return nil, fmt.Errorf("failed to decode key %s: %w", raw, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Drop deletes every row of the store's namespace.
func (s *SQLStore[K, V]) Drop(ctx context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.closed {
		return ErrClosed
	}

	q := s.b.db.Rebind("DELETE FROM flow_aggregates WHERE ns = ?")
	if _, err := s.b.db.ExecContext(ctx, q, s.namespace); err != nil {
		return fmt.Errorf("failed to drop namespace %s: %w", s.namespace, err)
	}
	return nil
}

// Package sqlstore implements the labstock persistence contract on top of
// database/sql. Each RunInTransaction maps to one SQL transaction; rules are
// evaluated against the uncommitted rows and a blocking result rolls back.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"labstock/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

//go:embed migrations
var migrations embed.FS

// Store persists labstock records in relational tables.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
	nowFn   func() time.Time
	// mu serializes writers; the workflow is read-modify-write on stock.
	mu sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// Open migrates db to the latest schema and wraps it in a Store. The store
// takes ownership of db and closes it on Close.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if _, err := Migrate(ctx, db, dialect); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate applies pending goose migrations for dialect and returns the
// number of migrations applied.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) (int, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate %s: %w", dialect.Name, err)
	}
	return len(results), nil
}

// SchemaVersion reports the current migration version of db.
func SchemaVersion(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, dialect.Migrations)
	if err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", dialect.Name, err)
	}
	provider, err := goose.NewProvider(dialect.goose, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect the store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside one SQL transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
				err = fmt.Errorf("rollback: %w", rbErr)
			}
		}
	}()

	tx := &transaction{
		view: view{ctx: ctx, q: sqlTx, d: s.dialect},
		now:  s.nowFn().UTC().Truncate(time.Microsecond),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		r, err := s.engine.Evaluate(ctx, tx.view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = r
		if r.HasBlocking() {
			return r, domain.RuleViolationError{Result: r}
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return result, nil
}

// View executes fn against a consistent read of the database.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(view{ctx: ctx, q: sqlTx, d: s.dialect})
}

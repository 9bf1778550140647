// Package tinysql is the public entry point for the embedded database: it
// owns a single connection's pager and schema catalog, parses SQL text
// into statements, and dispatches them through the executor, adding the
// transaction-control semantics (BEGIN/COMMIT/ROLLBACK, autocommit) that
// sit above the storage engine rather than inside it.
package tinysql

import (
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/executor"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// Re-exported types so callers never need to import internal packages.
type (
	ColType = catalog.ColType
	Value   = codec.Value
	Result  = executor.Result
	Kind    = dberr.Kind
)

const (
	IntType  = catalog.ColInt
	RealType = catalog.ColReal
	TextType = catalog.ColText
)

const (
	ResultDDL          = executor.ResultDDL
	ResultRowsAffected = executor.ResultRowsAffected
	ResultRows         = executor.ResultRows
)

// Option configures a DB at Open time.
type Option func(*pager.Config)

// WithMaxPages sets the buffer pool's page capacity.
func WithMaxPages(n int) Option {
	return func(c *pager.Config) { c.MaxPages = n }
}

// DB is a single-connection handle over one database file. It is not safe
// for concurrent use from multiple goroutines, matching the spec's
// single-writer, single-active-connection model.
type DB struct {
	p     *pager.Pager
	cat   *catalog.Catalog
	inTxn bool
}

// Open opens (or creates) the database file at path and loads its schema
// catalog, replaying any committed-but-unapplied WAL transaction first.
func Open(path string, opts ...Option) (*DB, error) {
	var cfg pager.Config
	for _, o := range opts {
		o(&cfg)
	}
	p, err := pager.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return &DB{p: p, cat: cat}, nil
}

// Close closes the underlying file handles. Any statements buffered in an
// open explicit transaction that were never committed are lost, matching
// the pager's WAL-atomicity guarantee.
func (db *DB) Close() error {
	return db.p.Close()
}

// ParseSQL splits sql on top-level statement boundaries and parses each
// one into a Statement.
func ParseSQL(sql string) ([]sqlparse.Statement, error) {
	return sqlparse.ParseAll(sql)
}

// Exec parses sql (which may contain multiple ;-separated statements) and
// runs each one in turn, returning one Result per statement. Execution
// stops at the first error; the returned slice holds the results of the
// statements that ran successfully before it.
func (db *DB) Exec(sql string) ([]Result, error) {
	stmts, err := sqlparse.ParseAll(sql)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(stmts))
	for _, stmt := range stmts {
		res, err := db.execOne(stmt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (db *DB) execOne(stmt sqlparse.Statement) (Result, error) {
	switch stmt.(type) {
	case *sqlparse.Begin:
		return db.begin()
	case *sqlparse.Commit:
		return db.commit()
	case *sqlparse.Rollback:
		return db.rollback()
	default:
		return db.execStatement(stmt)
	}
}

func (db *DB) begin() (Result, error) {
	if db.inTxn {
		return Result{}, dberr.New(dberr.KindTransaction, "BEGIN: a transaction is already active")
	}
	db.inTxn = true
	return Result{Kind: ResultDDL}, nil
}

func (db *DB) commit() (Result, error) {
	if !db.inTxn {
		return Result{}, dberr.New(dberr.KindTransaction, "COMMIT: no active transaction")
	}
	db.inTxn = false
	if err := db.p.Commit(); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

func (db *DB) rollback() (Result, error) {
	if !db.inTxn {
		return Result{}, dberr.New(dberr.KindTransaction, "ROLLBACK: no active transaction")
	}
	db.inTxn = false
	if err := db.discardBufferedState(); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

// discardBufferedState reopens the pager's in-memory view of the file and
// reloads the catalog from it, discarding every dirty/spilled page that
// was never committed. Used for explicit ROLLBACK and to undo a failed
// autocommit statement's partial writes.
func (db *DB) discardBufferedState() error {
	if err := db.p.Rollback(); err != nil {
		return err
	}
	return db.cat.Reload()
}

// execStatement runs one non-transaction-control statement and, outside an
// explicit transaction, commits it immediately (autocommit); a failed
// autocommit statement discards any buffered writes it made before
// failing, since partial writes must never become visible.
func (db *DB) execStatement(stmt sqlparse.Statement) (Result, error) {
	res, err := executor.Execute(db.p, db.cat, stmt)
	if err != nil {
		if !db.inTxn {
			db.discardBufferedState()
		}
		return Result{}, err
	}
	if !db.inTxn {
		if cerr := db.p.Commit(); cerr != nil {
			return Result{}, cerr
		}
	}
	return res, nil
}

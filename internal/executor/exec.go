package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// ResultKind tags which shape a Result carries.
type ResultKind int

const (
	ResultDDL ResultKind = iota
	ResultRowsAffected
	ResultRows
)

// Result is the uniform envelope every executed statement produces.
type Result struct {
	Kind         ResultKind
	RowsAffected int64
	Columns      []string
	Rows         [][]codec.Value
}

// Execute runs one parsed statement against the pager/catalog and returns
// its result envelope. Transaction-control statements (BEGIN/COMMIT/
// ROLLBACK) are handled by the caller, not here, since they operate on the
// pager/session rather than the schema.
func Execute(p *pager.Pager, cat *catalog.Catalog, stmt sqlparse.Statement) (Result, error) {
	switch s := stmt.(type) {
	case *sqlparse.CreateTable:
		return execCreateTable(cat, s)
	case *sqlparse.DropTable:
		return execDropTable(cat, s)
	case *sqlparse.CreateIndex:
		return execCreateIndex(cat, s)
	case *sqlparse.DropIndex:
		return execDropIndex(cat, s)
	case *sqlparse.Insert:
		n, err := Insert(p, cat, s)
		return Result{Kind: ResultRowsAffected, RowsAffected: n}, err
	case *sqlparse.Update:
		n, err := Update(p, cat, s)
		return Result{Kind: ResultRowsAffected, RowsAffected: n}, err
	case *sqlparse.Delete:
		n, err := Delete(p, cat, s)
		return Result{Kind: ResultRowsAffected, RowsAffected: n}, err
	case *sqlparse.Select:
		cols, rows, err := Select(p, cat, s)
		if err != nil {
			return Result{}, err
		}
		vals := make([][]codec.Value, len(rows))
		for i, r := range rows {
			vals[i] = r.Vals
		}
		return Result{Kind: ResultRows, Columns: cols, Rows: vals}, nil
	default:
		return Result{}, dberr.New(dberr.KindUnsupported, "unsupported statement type %T", stmt)
	}
}

func execCreateTable(cat *catalog.Catalog, s *sqlparse.CreateTable) (Result, error) {
	cols := make([]catalog.ColumnDef, len(s.Cols))
	for i, c := range s.Cols {
		cols[i] = catalog.ColumnDef{Name: c.Name, Type: c.Type}
	}
	if _, err := cat.CreateTable(s.Name, cols); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

func execDropTable(cat *catalog.Catalog, s *sqlparse.DropTable) (Result, error) {
	if err := cat.DropTable(s.Name); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

func execCreateIndex(cat *catalog.Catalog, s *sqlparse.CreateIndex) (Result, error) {
	if s.IfNotExists {
		if _, ok := cat.Index(s.Name); ok {
			return Result{Kind: ResultDDL}, nil
		}
	}
	if _, err := cat.CreateIndex(s.Name, s.Table, s.Columns, s.Unique); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

func execDropIndex(cat *catalog.Catalog, s *sqlparse.DropIndex) (Result, error) {
	if err := cat.DropIndex(s.Name); err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultDDL}, nil
}

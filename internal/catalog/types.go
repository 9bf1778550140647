// Package catalog maintains the schema catalog: a B+tree rooted at the
// pager header's SchemaRoot, keyed by sequential object id, holding table,
// index, and stats entries. It rebuilds the in-memory name-indexed views
// tables and indexes are looked up through once on open, mirroring the
// spec's catalog-load-on-open design.
package catalog

import "github.com/SimonWaldherr/tinysql-core/internal/pager"

// ColType is a declared column type. The engine is otherwise dynamically
// typed at the value level (NULL|INT|REAL|TEXT); ColType is only a
// declaration hint carried through from CREATE TABLE.
type ColType byte

const (
	ColInt ColType = iota
	ColReal
	ColText
)

func (c ColType) String() string {
	switch c {
	case ColInt:
		return "INT"
	case ColReal:
		return "REAL"
	case ColText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// ColumnDef names and types one column of a table.
type ColumnDef struct {
	Name string
	Type ColType
}

// TableDef is the in-memory and persisted view of one table.
type TableDef struct {
	ID      uint64
	Name    string
	Root    pager.PageNum
	Columns []ColumnDef

	// nextRowid is not persisted: catalog load leaves it at zero, and the
	// first NextRowid call recomputes it from the largest rowid stored in
	// the table's heap (found by scanning every key).
	nextRowid int64
}

func (t *TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if equalFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// IndexDef is the in-memory and persisted view of one secondary index.
type IndexDef struct {
	ID      uint64
	Name    string
	Table   string
	Root    pager.PageNum
	Columns []string
	Unique  bool
}

// Stats holds planner-facing cardinality estimates for one index,
// established by CREATE INDEX's backfill scan and kept current afterward
// by incremental Catalog.AdjustStats calls from the executor's DML paths.
type Stats struct {
	RowCount     int64
	DistinctKeys int64
	// PrefixDistinctCounts[i] estimates distinct values of the first i+1
	// index columns, used by the planner's IndexPrefixRange selectivity
	// model for composite indexes.
	PrefixDistinctCounts []int64
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

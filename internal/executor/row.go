// Package executor runs planned statements: DDL against the schema
// catalog, DML against table heaps and their indexes, and SELECT through
// a small set of row-producing and row-transforming operators (scan,
// filter, project, join, sort, limit, aggregate) named after the
// Volcano-style pipeline the spec describes. Data-source operators read
// the B+tree a key at a time but return fully materialized row slices,
// and everything downstream of them processes those slices, which keeps
// the join/sort/aggregate logic straightforward. No operator streams
// rows one at a time to the next, including large table/index scans.
package executor

import (
	"strings"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
)

// ColRef names one column in a Row's schema, optionally table-qualified.
type ColRef struct {
	Table string
	Name  string
}

// Row is one tuple flowing through the pipeline, carrying its table
// rowid (meaningful only before a join combines multiple tables) and its
// column schema alongside the values so joins and qualified references
// can be resolved.
type Row struct {
	Rowid int64
	Cols  []ColRef
	Vals  []codec.Value
}

func (r Row) clone() Row {
	vals := make([]codec.Value, len(r.Vals))
	copy(vals, r.Vals)
	return Row{Rowid: r.Rowid, Cols: r.Cols, Vals: vals}
}

// concatRow builds the combined row produced by a join.
func concatRow(l, r Row) Row {
	cols := make([]ColRef, 0, len(l.Cols)+len(r.Cols))
	vals := make([]codec.Value, 0, len(l.Vals)+len(r.Vals))
	cols = append(cols, l.Cols...)
	cols = append(cols, r.Cols...)
	vals = append(vals, l.Vals...)
	vals = append(vals, r.Vals...)
	return Row{Rowid: l.Rowid, Cols: cols, Vals: vals}
}

// Resolve finds the value for a (possibly qualified) column reference.
// An unqualified name matching more than one column is an error per the
// spec's "ambiguous unqualified refs are an error".
func (r Row) Resolve(table, name string) (codec.Value, bool, error) {
	var found *int
	for i, c := range r.Cols {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if table != "" && !strings.EqualFold(c.Table, table) {
			continue
		}
		if found != nil {
			return codec.Value{}, false, ambiguousErr(name)
		}
		idx := i
		found = &idx
	}
	if found == nil {
		return codec.Value{}, false, nil
	}
	return r.Vals[*found], true, nil
}

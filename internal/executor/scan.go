package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/btree"
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/planner"
)

func rowSchema(table, alias string, cols []catalog.ColumnDef) []ColRef {
	refs := make([]ColRef, len(cols))
	for i, c := range cols {
		refs[i] = ColRef{Table: alias, Name: c.Name}
	}
	_ = table
	return refs
}

// TableScan decodes every row in table's heap (spec's TableScan operator).
func TableScan(p *pager.Pager, t *catalog.TableDef, alias string) ([]Row, error) {
	heap := btree.Open(p, t.Root)
	schema := rowSchema(t.Name, alias, t.Columns)
	var rows []Row
	var scanErr error
	err := heap.Scan(func(rowid int64, payload []byte) bool {
		vals, derr := codec.DecodeRow(payload)
		if derr != nil {
			scanErr = derr
			return false
		}
		rows = append(rows, Row{Rowid: rowid, Cols: schema, Vals: vals})
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return rows, nil
}

// RowidFetch converts a deduplicated rowid set into decoded rows (spec's
// RowidFetch operator).
func RowidFetch(p *pager.Pager, t *catalog.TableDef, alias string, rowids []int64) ([]Row, error) {
	heap := btree.Open(p, t.Root)
	schema := rowSchema(t.Name, alias, t.Columns)
	rows := make([]Row, 0, len(rowids))
	for _, rowid := range rowids {
		payload, ok, err := heap.Lookup(rowid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		vals, err := codec.DecodeRow(payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Rowid: rowid, Cols: schema, Vals: vals})
	}
	return rows, nil
}

// rowidsForEq performs a single-key index probe, filtering a bucket by
// the exact encoded tuple when one or more values map to the same key.
func rowidsForEq(p *pager.Pager, ix *catalog.IndexDef, vals []codec.Value) ([]int64, error) {
	key, exact := catalog.KeyForValues(vals)
	t := btree.Open(p, ix.Root)
	payload, ok, err := t.Lookup(key)
	if err != nil || !ok {
		return nil, err
	}
	entries, err := codec.DecodeBucket(payload)
	if err != nil {
		return nil, err
	}
	idx, ok := codec.FindEntry(entries, exact)
	if !ok {
		return nil, nil
	}
	return entries[idx].Rowids, nil
}

// rowidsForRange performs a B+tree range scan over an index's keys,
// mapping numeric bounds through NumericKey and string bounds through
// TextKey; nil bounds leave that side open, so (nil, nil) returns the
// rowids of every bucket. Distinct values can share a key, so the scan is
// inclusive on the mapped keys even for an exclusive bound, and the rowids
// returned are candidates that filterRows narrows afterward.
func rowidsForRange(p *pager.Pager, ix *catalog.IndexDef, lo, hi *planner.Bound) ([]int64, error) {
	t := btree.Open(p, ix.Root)
	var loKey, hiKey *int64
	if lo != nil {
		k := numericKeyFromAny(lo.Value)
		if v, ok := lo.Value.(string); ok {
			k = codec.TextKey(v)
		}
		loKey = &k
	}
	if hi != nil {
		k := numericKeyFromAny(hi.Value)
		if v, ok := hi.Value.(string); ok {
			k = codec.TextKey(v)
		}
		hiKey = &k
	}
	var rowids []int64
	err := t.ScanRange(loKey, hiKey, func(_ int64, payload []byte) bool {
		entries, derr := codec.DecodeBucket(payload)
		if derr != nil {
			return false
		}
		for _, e := range entries {
			rowids = append(rowids, e.Rowids...)
		}
		return true
	})
	return rowids, err
}

func numericKeyFromAny(v any) int64 {
	switch x := v.(type) {
	case int64:
		return codec.NumericKey(codec.Int(x))
	case float64:
		return codec.NumericKey(codec.Real(x))
	default:
		return 0
	}
}

// UnionRowids deduplicates rowids across IndexOr branches.
func UnionRowids(branches ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, b := range branches {
		for _, r := range b {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	return out
}

// IntersectRowids intersects rowids across IndexAnd branches.
func IntersectRowids(branches ...[]int64) []int64 {
	if len(branches) == 0 {
		return nil
	}
	counts := make(map[int64]int)
	for _, b := range branches {
		seen := make(map[int64]struct{})
		for _, r := range b {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			counts[r]++
		}
	}
	var out []int64
	for r, c := range counts {
		if c == len(branches) {
			out = append(out, r)
		}
	}
	return out
}

// ResolveAccessPath executes an AccessPath into a rowid set against the
// table's indexes. It does not consult the table heap.
func ResolveAccessPath(p *pager.Pager, path planner.AccessPath) ([]int64, error) {
	switch path.Kind {
	case planner.PathIndexEq:
		vals := valuesFromAny(path.EqValues)
		return rowidsForEq(p, path.Index, vals)
	case planner.PathIndexRange:
		return rowidsForRange(p, path.Index, path.Low, path.High)
	case planner.PathIndexPrefixRange:
		// Composite entries are keyed by a hash of the whole tuple, so a
		// column prefix has no key of its own: every bucket of the index
		// is scanned, and the prefix equality and any trailing range are
		// applied as an in-memory filter by the caller.
		return rowidsForRange(p, path.Index, nil, nil)
	case planner.PathIndexOr:
		var all [][]int64
		for _, b := range path.Branches {
			r, err := ResolveAccessPath(p, b)
			if err != nil {
				return nil, err
			}
			all = append(all, r)
		}
		return UnionRowids(all...), nil
	case planner.PathIndexAnd:
		var all [][]int64
		for _, b := range path.Branches {
			r, err := ResolveAccessPath(p, b)
			if err != nil {
				return nil, err
			}
			all = append(all, r)
		}
		return IntersectRowids(all...), nil
	default:
		return nil, nil
	}
}

func valuesFromAny(vs []any) []codec.Value {
	out := make([]codec.Value, len(vs))
	for i, v := range vs {
		switch x := v.(type) {
		case int64:
			out[i] = codec.Int(x)
		case float64:
			out[i] = codec.Real(x)
		case string:
			out[i] = codec.Text(x)
		case nil:
			out[i] = codec.Null()
		}
	}
	return out
}

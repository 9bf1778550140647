package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/btree"
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// indexPositions resolves an index's column list into positions within a
// table's column slice, once per statement rather than once per row.
func indexPositions(t *catalog.TableDef, ix *catalog.IndexDef) []int {
	pos := make([]int, len(ix.Columns))
	for i, c := range ix.Columns {
		pos[i] = t.ColumnIndex(c)
	}
	return pos
}

// Insert appends rows to table and maintains every index defined on it. All
// UNIQUE constraints are checked for the whole batch before any row or index
// entry is written, so a violation partway through a multi-row VALUES list
// leaves the table untouched.
func Insert(p *pager.Pager, cat *catalog.Catalog, stmt *sqlparse.Insert) (int64, error) {
	t, ok := cat.Table(stmt.Table)
	if !ok {
		return 0, unknownTableErr(stmt.Table)
	}
	cols := stmt.Cols
	if len(cols) == 0 {
		cols = make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
	}
	positions := make([]int, len(cols))
	for i, c := range cols {
		pos := t.ColumnIndex(c)
		if pos < 0 {
			return 0, unknownColumnErr(c)
		}
		positions[i] = pos
	}

	indexes := cat.IndexesOn(stmt.Table)
	ixPositions := make([][]int, len(indexes))
	for i, ix := range indexes {
		ixPositions[i] = indexPositions(t, ix)
	}

	rows := make([][]codec.Value, len(stmt.Rows))
	for ri, exprs := range stmt.Rows {
		row := make([]codec.Value, len(t.Columns))
		for i := range row {
			row[i] = codec.Null()
		}
		if len(exprs) != len(positions) {
			return 0, dberr.New(dberr.KindSchema, "column count mismatch in row %d of INSERT into %q", ri+1, stmt.Table)
		}
		emptyRow := Row{}
		for i, e := range exprs {
			v, err := Eval(emptyRow, e)
			if err != nil {
				return 0, err
			}
			row[positions[i]] = v
		}
		rows[ri] = row
	}

	if err := checkUniqueBatch(p, indexes, ixPositions, rows, nil); err != nil {
		return 0, err
	}

	heap := btree.Open(p, t.Root)
	for _, row := range rows {
		rowid, err := cat.NextRowid(stmt.Table)
		if err != nil {
			return 0, err
		}
		if err := heap.Insert(rowid, codec.EncodeRow(row)); err != nil {
			return 0, err
		}
		for i, ix := range indexes {
			created, err := addToIndex(p, ix, ixPositions[i], row, rowid)
			if err != nil {
				return 0, err
			}
			if err := bumpStats(cat, ix.ID, 1, created); err != nil {
				return 0, err
			}
		}
	}
	return int64(len(rows)), nil
}

// bumpStats records a row being added to (or removed from, via a negative
// rowDelta) an index, and whether that row's key was gained or lost as a
// distinct key.
func bumpStats(cat *catalog.Catalog, indexID uint64, rowDelta int64, keyChanged bool) error {
	distinctDelta := int64(0)
	if keyChanged {
		if rowDelta > 0 {
			distinctDelta = 1
		} else {
			distinctDelta = -1
		}
	}
	return cat.AdjustStats(indexID, rowDelta, distinctDelta)
}

// checkUniqueBatch validates UNIQUE constraints across rows being inserted
// or updated together, since two rows in the same statement can collide
// with each other even when neither collides with existing table data.
// sourceRowids, when non-nil, names the rowid each rows[i] is replacing (an
// UPDATE batch). An existing index entry that belongs to any row in this
// same batch is never itself a conflict: if that row is also moving away
// from the key, there is nothing left to collide with once the batch
// lands; if it isn't, the pairwise check below still catches the resulting
// duplicate by comparing every row's new value against every other row's.
func checkUniqueBatch(p *pager.Pager, indexes []*catalog.IndexDef, ixPositions [][]int, rows [][]codec.Value, sourceRowids []int64) error {
	for i, ix := range indexes {
		if !ix.Unique {
			continue
		}
		t := btree.Open(p, ix.Root)

		var batchRowids map[int64]struct{}
		if sourceRowids != nil {
			batchRowids = make(map[int64]struct{}, len(sourceRowids))
			for _, rid := range sourceRowids {
				batchRowids[rid] = struct{}{}
			}
		}

		for ri, row := range rows {
			if catalog.TupleHasNull(row, ixPositions[i]) {
				continue
			}
			vals := projectValues(row, ixPositions[i])
			key, exact := catalog.KeyForValues(vals)

			existing, found, err := t.Lookup(key)
			if err != nil {
				return err
			}
			if found {
				entries, derr := codec.DecodeBucket(existing)
				if derr != nil {
					return derr
				}
				if idx, ok := codec.FindEntry(entries, exact); ok {
					conflict := false
					for _, rid := range entries[idx].Rowids {
						if _, inBatch := batchRowids[rid]; !inBatch {
							conflict = true
							break
						}
					}
					if conflict {
						return dberr.New(dberr.KindConstraint, "UNIQUE constraint failed: %s", ix.Name)
					}
				}
			}

			for ri2 := ri + 1; ri2 < len(rows); ri2++ {
				row2 := rows[ri2]
				if catalog.TupleHasNull(row2, ixPositions[i]) {
					continue
				}
				vals2 := projectValues(row2, ixPositions[i])
				k2, ex2 := catalog.KeyForValues(vals2)
				if k2 == key && string(ex2) == string(exact) {
					return dberr.New(dberr.KindConstraint, "UNIQUE constraint failed: %s", ix.Name)
				}
			}
		}
	}
	return nil
}

func projectValues(row []codec.Value, positions []int) []codec.Value {
	out := make([]codec.Value, len(positions))
	for i, p := range positions {
		out[i] = row[p]
	}
	return out
}

// addToIndex reports whether key had no prior entries, i.e. whether the
// index gained a new distinct key.
func addToIndex(p *pager.Pager, ix *catalog.IndexDef, positions []int, row []codec.Value, rowid int64) (bool, error) {
	t := btree.Open(p, ix.Root)
	vals := projectValues(row, positions)
	key, exact := catalog.KeyForValues(vals)
	return catalog.AddBucketEntry(t, key, exact, rowid)
}

// removeFromIndex reports whether key's last entry was just removed, i.e.
// whether the index lost a distinct key.
func removeFromIndex(p *pager.Pager, ix *catalog.IndexDef, positions []int, row []codec.Value, rowid int64) (bool, error) {
	t := btree.Open(p, ix.Root)
	vals := projectValues(row, positions)
	key, exact := catalog.KeyForValues(vals)
	stillExists, err := catalog.RemoveBucketEntry(t, key, exact, rowid)
	if err != nil {
		return false, err
	}
	return !stillExists, nil
}

// Update evaluates set-expressions against each matched row's pre-update
// values (so "SET a = a + 1" reads the old a), then rewrites index bucket
// entries only for indexes whose key actually changes.
func Update(p *pager.Pager, cat *catalog.Catalog, stmt *sqlparse.Update) (int64, error) {
	t, ok := cat.Table(stmt.Table)
	if !ok {
		return 0, unknownTableErr(stmt.Table)
	}
	positions := make([]int, len(stmt.Cols))
	for i, c := range stmt.Cols {
		pos := t.ColumnIndex(c)
		if pos < 0 {
			return 0, unknownColumnErr(c)
		}
		positions[i] = pos
	}

	schema := rowSchema(t.Name, t.Name, t.Columns)
	heap := btree.Open(p, t.Root)

	type pending struct {
		rowid   int64
		oldRow  []codec.Value
		newRow  []codec.Value
	}
	var matched []pending
	var scanErr error
	err := heap.Scan(func(rowid int64, payload []byte) bool {
		vals, derr := codec.DecodeRow(payload)
		if derr != nil {
			scanErr = derr
			return false
		}
		row := Row{Rowid: rowid, Cols: schema, Vals: vals}
		if stmt.Where != nil {
			v, err := Eval(row, stmt.Where)
			if err != nil {
				scanErr = err
				return false
			}
			if triState(v) != 1 {
				return true
			}
		}
		newRow := append([]codec.Value{}, vals...)
		for i, e := range stmt.Vals {
			v, err := Eval(row, e)
			if err != nil {
				scanErr = err
				return false
			}
			newRow[positions[i]] = v
		}
		matched = append(matched, pending{rowid: rowid, oldRow: vals, newRow: newRow})
		return true
	})
	if err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}
	if len(matched) == 0 {
		return 0, nil
	}

	indexes := cat.IndexesOn(stmt.Table)
	ixPositions := make([][]int, len(indexes))
	for i, ix := range indexes {
		ixPositions[i] = indexPositions(t, ix)
	}

	newRows := make([][]codec.Value, len(matched))
	sourceRowids := make([]int64, len(matched))
	for i, m := range matched {
		newRows[i] = m.newRow
		sourceRowids[i] = m.rowid
	}
	if err := checkUniqueBatch(p, indexes, ixPositions, newRows, sourceRowids); err != nil {
		return 0, err
	}

	for _, m := range matched {
		if err := heap.Insert(m.rowid, codec.EncodeRow(m.newRow)); err != nil {
			return 0, err
		}
		for i, ix := range indexes {
			oldKey, oldExact := catalog.KeyForValues(projectValues(m.oldRow, ixPositions[i]))
			newKey, newExact := catalog.KeyForValues(projectValues(m.newRow, ixPositions[i]))
			if oldKey == newKey && string(oldExact) == string(newExact) {
				continue
			}
			keyRemoved, err := removeFromIndex(p, ix, ixPositions[i], m.oldRow, m.rowid)
			if err != nil {
				return 0, err
			}
			if err := bumpStats(cat, ix.ID, -1, keyRemoved); err != nil {
				return 0, err
			}
			keyCreated, err := addToIndex(p, ix, ixPositions[i], m.newRow, m.rowid)
			if err != nil {
				return 0, err
			}
			if err := bumpStats(cat, ix.ID, 1, keyCreated); err != nil {
				return 0, err
			}
		}
	}
	return int64(len(matched)), nil
}

// Delete removes every matched row from the heap and from each index.
func Delete(p *pager.Pager, cat *catalog.Catalog, stmt *sqlparse.Delete) (int64, error) {
	t, ok := cat.Table(stmt.Table)
	if !ok {
		return 0, unknownTableErr(stmt.Table)
	}
	schema := rowSchema(t.Name, t.Name, t.Columns)
	heap := btree.Open(p, t.Root)

	type pending struct {
		rowid int64
		row   []codec.Value
	}
	var matched []pending
	var scanErr error
	err := heap.Scan(func(rowid int64, payload []byte) bool {
		vals, derr := codec.DecodeRow(payload)
		if derr != nil {
			scanErr = derr
			return false
		}
		if stmt.Where != nil {
			row := Row{Rowid: rowid, Cols: schema, Vals: vals}
			v, err := Eval(row, stmt.Where)
			if err != nil {
				scanErr = err
				return false
			}
			if triState(v) != 1 {
				return true
			}
		}
		matched = append(matched, pending{rowid: rowid, row: vals})
		return true
	})
	if err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}

	indexes := cat.IndexesOn(stmt.Table)
	ixPositions := make([][]int, len(indexes))
	for i, ix := range indexes {
		ixPositions[i] = indexPositions(t, ix)
	}

	for _, m := range matched {
		for i, ix := range indexes {
			keyRemoved, err := removeFromIndex(p, ix, ixPositions[i], m.row, m.rowid)
			if err != nil {
				return 0, err
			}
			if err := bumpStats(cat, ix.ID, -1, keyRemoved); err != nil {
				return 0, err
			}
		}
		if _, err := heap.Delete(m.rowid); err != nil {
			return 0, err
		}
	}
	return int64(len(matched)), nil
}

package catalog

import (
	"github.com/SimonWaldherr/tinysql-core/internal/btree"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

// Catalog is the schema catalog: a B+tree of entries keyed by sequential
// id, plus the in-memory name-indexed views rebuilt from it on load.
type Catalog struct {
	p    *pager.Pager
	tree *btree.Tree

	nextID uint64

	tables  map[string]*TableDef
	indexes map[string]*IndexDef
	stats   map[uint64]Stats // keyed by index id

	tableIndexes map[string][]string // table name -> index names
}

// Open loads the catalog rooted at p's header SchemaRoot, initializing an
// empty catalog (and stamping the header) on first open.
func Open(p *pager.Pager) (*Catalog, error) {
	c := &Catalog{
		p:            p,
		tables:       make(map[string]*TableDef),
		indexes:      make(map[string]*IndexDef),
		stats:        make(map[uint64]Stats),
		tableIndexes: make(map[string][]string),
	}

	if p.Header().SchemaRoot == 0 {
		t, err := btree.Create(p)
		if err != nil {
			return nil, err
		}
		p.Header().SchemaRoot = t.Root()
		p.MarkHeaderDirty()
		c.tree = t
		return c, nil
	}

	c.tree = btree.Open(p, p.Header().SchemaRoot)
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload discards the in-memory catalog and rebuilds it from the pager's
// current on-disk state, used after Pager.Rollback() to restore the
// catalog snapshot a ROLLBACK must observe.
func (c *Catalog) Reload() error {
	c.tree = btree.Open(c.p, c.p.Header().SchemaRoot)
	c.tables = make(map[string]*TableDef)
	c.indexes = make(map[string]*IndexDef)
	c.stats = make(map[uint64]Stats)
	c.tableIndexes = make(map[string][]string)
	c.nextID = 0
	return c.load()
}

func (c *Catalog) load() error {
	return c.tree.Scan(func(id int64, payload []byte) bool {
		if len(payload) == 0 {
			return true
		}
		switch payload[0] {
		case entryTable:
			t, err := decodeTableEntry(payload)
			if err != nil {
				return false
			}
			t.nextRowid = 0
			c.tables[t.Name] = t
			if uint64(id) >= c.nextID {
				c.nextID = uint64(id) + 1
			}
		case entryIndex:
			ix, err := decodeIndexEntry(payload)
			if err != nil {
				return false
			}
			c.indexes[ix.Name] = ix
			c.tableIndexes[ix.Table] = append(c.tableIndexes[ix.Table], ix.Name)
			if uint64(id) >= c.nextID {
				c.nextID = uint64(id) + 1
			}
		case entryStats:
			indexID, s, err := decodeStatsEntry(payload)
			if err != nil {
				return false
			}
			c.stats[indexID] = s
		}
		return true
	})
}

func (c *Catalog) allocID() uint64 {
	id := c.nextID
	c.nextID++
	return id
}

// Table returns the definition for name, if known.
func (c *Catalog) Table(name string) (*TableDef, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Index returns the definition for name, if known.
func (c *Catalog) Index(name string) (*IndexDef, bool) {
	ix, ok := c.indexes[name]
	return ix, ok
}

// IndexesOn returns every index defined on table, in creation order.
func (c *Catalog) IndexesOn(table string) []*IndexDef {
	names := c.tableIndexes[table]
	out := make([]*IndexDef, 0, len(names))
	for _, n := range names {
		if ix, ok := c.indexes[n]; ok {
			out = append(out, ix)
		}
	}
	return out
}

// StatsFor returns the recorded stats for an index, if any.
func (c *Catalog) StatsFor(indexID uint64) (Stats, bool) {
	s, ok := c.stats[indexID]
	return s, ok
}

// AdjustStats applies incremental row-count and distinct-key deltas to an
// index's cardinality stats, persisting the updated entry the same way
// CreateIndex's initial backfill does. Called by the executor's DML paths
// after a write changes an index's cardinality, since CreateIndex's
// backfill only establishes the starting point.
func (c *Catalog) AdjustStats(indexID uint64, rowDelta, distinctDelta int64) error {
	s := c.stats[indexID]
	s.RowCount += rowDelta
	s.DistinctKeys += distinctDelta
	if s.RowCount < 0 {
		s.RowCount = 0
	}
	if s.DistinctKeys < 0 {
		s.DistinctKeys = 0
	}
	if err := c.putEntry(int64(indexID)|statsIDBit, encodeStatsEntry(indexID, s)); err != nil {
		return err
	}
	c.stats[indexID] = s
	return nil
}

// NextRowid returns and reserves the next rowid for table.
func (c *Catalog) NextRowid(table string) (int64, error) {
	t, ok := c.tables[table]
	if !ok {
		return 0, dberr.New(dberr.KindSchema, "unknown table %q", table)
	}
	if t.nextRowid == 0 {
		max, err := maxKey(c.p, t.Root)
		if err != nil {
			return 0, err
		}
		t.nextRowid = max + 1
	}
	id := t.nextRowid
	t.nextRowid++
	return id, nil
}

func maxKey(p *pager.Pager, root pager.PageNum) (int64, error) {
	var max int64
	err := btree.Open(p, root).Scan(func(k int64, _ []byte) bool {
		if k > max {
			max = k
		}
		return true
	})
	return max, err
}

// CreateTable allocates a new table heap, writes the table entry, and
// registers the table in the in-memory catalog.
func (c *Catalog) CreateTable(name string, cols []ColumnDef) (*TableDef, error) {
	if _, exists := c.tables[name]; exists {
		return nil, dberr.New(dberr.KindSchema, "table %q already exists", name)
	}
	heap, err := btree.Create(c.p)
	if err != nil {
		return nil, err
	}
	t := &TableDef{ID: c.allocID(), Name: name, Root: heap.Root(), Columns: cols, nextRowid: 1}
	if err := c.putEntry(int64(t.ID), encodeTableEntry(t)); err != nil {
		return nil, err
	}
	c.tables[name] = t
	return t, nil
}

// DropTable removes the table entry and every dependent index entry, then
// reclaims their trees.
func (c *Catalog) DropTable(name string) error {
	t, ok := c.tables[name]
	if !ok {
		return dberr.New(dberr.KindSchema, "unknown table %q", name)
	}
	for _, ixName := range append([]string{}, c.tableIndexes[name]...) {
		if err := c.DropIndex(ixName); err != nil {
			return err
		}
	}
	if err := btree.ReclaimTree(c.p, t.Root); err != nil {
		return err
	}
	if _, err := c.tree.Delete(int64(t.ID)); err != nil {
		return err
	}
	delete(c.tables, name)
	delete(c.tableIndexes, name)
	return nil
}

// CreateIndex allocates an index root, scans the table to backfill it
// (rejecting duplicate keys for UNIQUE indexes), and writes the index and
// stats entries.
func (c *Catalog) CreateIndex(name, table string, cols []string, unique bool) (*IndexDef, error) {
	if _, exists := c.indexes[name]; exists {
		return nil, dberr.New(dberr.KindSchema, "index %q already exists", name)
	}
	t, ok := c.tables[table]
	if !ok {
		return nil, dberr.New(dberr.KindSchema, "unknown table %q", table)
	}

	ixTree, err := btree.Create(c.p)
	if err != nil {
		return nil, err
	}
	ix := &IndexDef{ID: c.allocID(), Name: name, Table: table, Root: ixTree.Root(), Columns: cols, Unique: unique}

	positions := make([]int, len(cols))
	for i, cn := range cols {
		pos := t.ColumnIndex(cn)
		if pos < 0 {
			return nil, dberr.New(dberr.KindSchema, "unknown column %q on table %q", cn, table)
		}
		positions[i] = pos
	}

	distinct := make(map[int64]struct{})
	heap := btree.Open(c.p, t.Root)
	var backfillErr error
	err = heap.Scan(func(rowid int64, payload []byte) bool {
		row, derr := codec.DecodeRow(payload)
		if derr != nil {
			backfillErr = derr
			return false
		}
		key, exact := keyForRow(row, positions)
		if unique && !tupleHasNull(row, positions) {
			if existing, found, lerr := ixTree.Lookup(key); lerr != nil {
				backfillErr = lerr
				return false
			} else if found {
				entries, derr := codec.DecodeBucket(existing)
				if derr != nil {
					backfillErr = derr
					return false
				}
				if _, dup := codec.FindEntry(entries, exact); dup {
					backfillErr = dberr.New(dberr.KindConstraint, "UNIQUE constraint failed: %s.%s", table, joinCols(cols))
					return false
				}
			}
		}
		if _, addErr := addBucketEntry(ixTree, key, exact, rowid); addErr != nil {
			backfillErr = addErr
			return false
		}
		distinct[key] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	if backfillErr != nil {
		return nil, backfillErr
	}

	if err := c.putEntry(int64(ix.ID), encodeIndexEntry(ix)); err != nil {
		return nil, err
	}
	rowCount, _ := countRows(heap)
	s := Stats{RowCount: rowCount, DistinctKeys: int64(len(distinct))}
	if err := c.putEntry(int64(ix.ID)|statsIDBit, encodeStatsEntry(ix.ID, s)); err != nil {
		return nil, err
	}
	c.stats[ix.ID] = s
	c.indexes[name] = ix
	c.tableIndexes[table] = append(c.tableIndexes[table], name)
	return ix, nil
}

// statsIDBit keeps a stats entry's catalog-tree key distinct from its
// owning index's entry key (both derive from the same index id).
const statsIDBit = int64(1) << 62

// DropIndex removes the index entry and reclaims its tree.
func (c *Catalog) DropIndex(name string) error {
	ix, ok := c.indexes[name]
	if !ok {
		return dberr.New(dberr.KindSchema, "unknown index %q", name)
	}
	if err := btree.ReclaimTree(c.p, ix.Root); err != nil {
		return err
	}
	if _, err := c.tree.Delete(int64(ix.ID)); err != nil {
		return err
	}
	c.tree.Delete(int64(ix.ID) | statsIDBit)
	delete(c.indexes, name)
	delete(c.stats, ix.ID)
	names := c.tableIndexes[ix.Table]
	for i, n := range names {
		if n == name {
			c.tableIndexes[ix.Table] = append(names[:i], names[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Catalog) putEntry(id int64, payload []byte) error {
	return c.tree.Insert(id, payload)
}

func countRows(heap *btree.Tree) (int64, error) {
	var n int64
	err := heap.Scan(func(int64, []byte) bool { n++; return true })
	return n, err
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ","
		}
		out += c
	}
	return out
}

// keyForRow computes an index key and the exact encoded value bytes for a
// row given the positions of the indexed columns.
func keyForRow(row []codec.Value, positions []int) (key int64, exact []byte) {
	vals := make([]codec.Value, len(positions))
	for i, p := range positions {
		vals[i] = row[p]
	}
	return KeyForValues(vals)
}

// KeyForValues computes an index key and its exact encoded tuple bytes
// for an already-projected slice of indexed-column values. Exported for
// the executor's DML-time index maintenance, which projects values from
// rows being inserted/updated/deleted rather than from a stored row.
func KeyForValues(vals []codec.Value) (key int64, exact []byte) {
	if len(vals) == 1 {
		v := vals[0]
		switch v.Kind {
		case codec.KindText:
			key = codec.TextKey(v.S)
		default:
			key = codec.NumericKey(v)
		}
	} else {
		key = codec.TupleKey(vals)
	}
	return key, codec.EncodeRow(vals)
}

// TupleHasNull reports whether any value at positions is NULL (exported
// for UNIQUE preflight checks performed at DML time by the executor).
func TupleHasNull(row []codec.Value, positions []int) bool {
	return tupleHasNull(row, positions)
}

// AddBucketEntry inserts rowid into the bucket at key in t, merging into
// an existing entry with the same exact value or appending a new one.
// created reports whether key had no entries before this call, i.e.
// whether the index gained a new distinct key.
func AddBucketEntry(t *btree.Tree, key int64, exact []byte, rowid int64) (created bool, err error) {
	return addBucketEntry(t, key, exact, rowid)
}

// RemoveBucketEntry removes rowid from the bucket entry matching exact at
// key, deleting the whole key if no entries remain. Returns whether the
// key still exists afterward.
func RemoveBucketEntry(t *btree.Tree, key int64, exact []byte, rowid int64) (stillExists bool, err error) {
	existing, found, err := t.Lookup(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	entries, err := codec.DecodeBucket(existing)
	if err != nil {
		return false, err
	}
	idx, ok := codec.FindEntry(entries, exact)
	if !ok {
		return true, nil
	}
	rowids := entries[idx].Rowids
	for i, r := range rowids {
		if r == rowid {
			rowids = append(rowids[:i], rowids[i+1:]...)
			break
		}
	}
	if len(rowids) == 0 {
		entries = append(entries[:idx], entries[idx+1:]...)
	} else {
		entries[idx].Rowids = rowids
	}
	if len(entries) == 0 {
		_, err := t.Delete(key)
		return false, err
	}
	return true, t.Insert(key, codec.EncodeBucket(entries))
}

func tupleHasNull(row []codec.Value, positions []int) bool {
	for _, p := range positions {
		if row[p].IsNull() {
			return true
		}
	}
	return false
}

func addBucketEntry(t *btree.Tree, key int64, exact []byte, rowid int64) (bool, error) {
	existing, found, err := t.Lookup(key)
	if err != nil {
		return false, err
	}
	var entries []codec.BucketEntry
	if found {
		entries, err = codec.DecodeBucket(existing)
		if err != nil {
			return false, err
		}
	}
	if idx, ok := codec.FindEntry(entries, exact); ok {
		entries[idx].Rowids = append(entries[idx].Rowids, rowid)
	} else {
		entries = append(entries, codec.BucketEntry{ExactValue: exact, Rowids: []int64{rowid}})
	}
	return !found, t.Insert(key, codec.EncodeBucket(entries))
}

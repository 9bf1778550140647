package executor

import (
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/btree"
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/planner"
)

func openScanFixture(t *testing.T) (*pager.Pager, *catalog.Catalog, *catalog.TableDef) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.db")
	p, err := pager.Open(path, pager.Config{})
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	cat, err := catalog.Open(p)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	td, err := cat.CreateTable("users", []catalog.ColumnDef{
		{Name: "id", Type: catalog.ColInt},
		{Name: "name", Type: catalog.ColText},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	heap := btree.Open(p, td.Root)
	rows := []struct {
		id   int64
		name string
	}{
		{1, "alice"}, {2, "bob"}, {3, "carol"},
	}
	for _, r := range rows {
		vals := []codec.Value{codec.Int(r.id), codec.Text(r.name)}
		if err := heap.Insert(r.id, codec.EncodeRow(vals)); err != nil {
			t.Fatalf("heap.Insert: %v", err)
		}
	}
	return p, cat, td
}

func TestTableScanDecodesAllRows(t *testing.T) {
	p, _, td := openScanFixture(t)
	rows, err := TableScan(p, td, "u")
	if err != nil {
		t.Fatalf("TableScan: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Cols[0].Table != "u" {
			t.Fatalf("row schema not aliased: %+v", r.Cols)
		}
	}
}

func TestRowidFetchSkipsMissingRowids(t *testing.T) {
	p, _, td := openScanFixture(t)
	rows, err := RowidFetch(p, td, "u", []int64{1, 3, 999})
	if err != nil {
		t.Fatalf("RowidFetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (999 does not exist)", len(rows))
	}
}

func TestResolveAccessPathIndexEq(t *testing.T) {
	p, cat, _ := openScanFixture(t)
	ix, err := cat.CreateIndex("idx_name", "users", []string{"name"}, false)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	path := planner.AccessPath{Kind: planner.PathIndexEq, Index: ix, EqValues: []any{"bob"}}
	rowids, err := ResolveAccessPath(p, path)
	if err != nil {
		t.Fatalf("ResolveAccessPath: %v", err)
	}
	if len(rowids) != 1 || rowids[0] != 2 {
		t.Fatalf("ResolveAccessPath(name=bob) = %v, want [2]", rowids)
	}
}

func TestResolveAccessPathIndexOrUnionsBranches(t *testing.T) {
	p, cat, _ := openScanFixture(t)
	ix, err := cat.CreateIndex("idx_name", "users", []string{"name"}, false)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	path := planner.AccessPath{Kind: planner.PathIndexOr, Branches: []planner.AccessPath{
		{Kind: planner.PathIndexEq, Index: ix, EqValues: []any{"alice"}},
		{Kind: planner.PathIndexEq, Index: ix, EqValues: []any{"carol"}},
	}}
	rowids, err := ResolveAccessPath(p, path)
	if err != nil {
		t.Fatalf("ResolveAccessPath: %v", err)
	}
	seen := map[int64]bool{}
	for _, r := range rowids {
		seen[r] = true
	}
	if len(rowids) != 2 || !seen[1] || !seen[3] {
		t.Fatalf("ResolveAccessPath(OR alice,carol) = %v, want [1 3]", rowids)
	}
}

func TestResolveAccessPathTableScanReturnsNoRowids(t *testing.T) {
	p, _, _ := openScanFixture(t)
	rowids, err := ResolveAccessPath(p, planner.AccessPath{Kind: planner.PathTableScan})
	if err != nil {
		t.Fatalf("ResolveAccessPath: %v", err)
	}
	if rowids != nil {
		t.Fatalf("ResolveAccessPath(TableScan) = %v, want nil (caller falls back to TableScan)", rowids)
	}
}

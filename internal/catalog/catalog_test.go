package catalog

import (
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/btree"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
)

func openHeap(t *testing.T, p *pager.Pager, td *TableDef) *btree.Tree {
	t.Helper()
	return btree.Open(p, td.Root)
}

func mustInsertRow(t *testing.T, heap *btree.Tree, rowid int64, vals []codec.Value) {
	t.Helper()
	if err := heap.Insert(rowid, codec.EncodeRow(vals)); err != nil {
		t.Fatalf("heap.Insert(%d): %v", rowid, err)
	}
}

func newTestCatalog(t *testing.T) (*pager.Pager, *Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat.db")
	p, err := pager.Open(path, pager.Config{})
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	cat, err := Open(p)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return p, cat
}

func usersCols() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Type: ColInt},
		{Name: "name", Type: ColText},
		{Name: "score", Type: ColReal},
	}
}

func TestCreateTableAndLookup(t *testing.T) {
	_, cat := newTestCatalog(t)
	td, err := cat.CreateTable("users", usersCols())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	got, ok := cat.Table("users")
	if !ok {
		t.Fatal("Table(\"users\") not found after CreateTable")
	}
	if got != td {
		t.Fatal("Table returned a different definition than CreateTable produced")
	}
	if got.ColumnIndex("name") != 1 {
		t.Fatalf("ColumnIndex(name) = %d, want 1", got.ColumnIndex("name"))
	}
	if got.ColumnIndex("missing") != -1 {
		t.Fatalf("ColumnIndex(missing) = %d, want -1", got.ColumnIndex("missing"))
	}
}

func TestCreateTableDuplicateErrors(t *testing.T) {
	_, cat := newTestCatalog(t)
	if _, err := cat.CreateTable("users", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateTable("users", usersCols()); err == nil {
		t.Fatal("expected an error creating a table that already exists")
	}
}

func TestDropTableRemovesIndexes(t *testing.T) {
	_, cat := newTestCatalog(t)
	if _, err := cat.CreateTable("users", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateIndex("idx_name", "users", []string{"name"}, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := cat.DropTable("users"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := cat.Table("users"); ok {
		t.Fatal("table still present after DropTable")
	}
	if _, ok := cat.Index("idx_name"); ok {
		t.Fatal("dependent index still present after DropTable")
	}
}

func TestNextRowidReturnsDistinctIDs(t *testing.T) {
	_, cat := newTestCatalog(t)
	if _, err := cat.CreateTable("users", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	ids := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		id, err := cat.NextRowid("users")
		if err != nil {
			t.Fatalf("NextRowid: %v", err)
		}
		if ids[id] {
			t.Fatalf("NextRowid produced a duplicate: %d", id)
		}
		ids[id] = true
	}
	if len(ids) != 5 {
		t.Fatalf("got %d distinct rowids, want 5", len(ids))
	}
}

func TestCreateUniqueIndexRejectsExistingDuplicates(t *testing.T) {
	p, cat := newTestCatalog(t)
	td, err := cat.CreateTable("users", usersCols())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	heap := openHeap(t, p, td)
	row1 := []codec.Value{codec.Int(1), codec.Text("dup"), codec.Real(1)}
	row2 := []codec.Value{codec.Int(2), codec.Text("dup"), codec.Real(2)}
	mustInsertRow(t, heap, 1, row1)
	mustInsertRow(t, heap, 2, row2)

	if _, err := cat.CreateIndex("idx_name_unique", "users", []string{"name"}, true); err == nil {
		t.Fatal("expected UNIQUE index creation to fail on existing duplicate values")
	}
}

func TestCreateIndexBackfillsStats(t *testing.T) {
	p, cat := newTestCatalog(t)
	td, err := cat.CreateTable("users", usersCols())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	heap := openHeap(t, p, td)
	mustInsertRow(t, heap, 1, []codec.Value{codec.Int(1), codec.Text("a"), codec.Real(1)})
	mustInsertRow(t, heap, 2, []codec.Value{codec.Int(2), codec.Text("b"), codec.Real(2)})
	mustInsertRow(t, heap, 3, []codec.Value{codec.Int(3), codec.Text("a"), codec.Real(3)})

	ix, err := cat.CreateIndex("idx_name", "users", []string{"name"}, false)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	stats, ok := cat.StatsFor(ix.ID)
	if !ok {
		t.Fatal("expected stats to be recorded for the new index")
	}
	if stats.RowCount != 3 {
		t.Fatalf("RowCount = %d, want 3", stats.RowCount)
	}
	if stats.DistinctKeys != 2 {
		t.Fatalf("DistinctKeys = %d, want 2 (\"a\" and \"b\")", stats.DistinctKeys)
	}
}

func TestReloadRestoresPreRollbackSchema(t *testing.T) {
	p, cat := newTestCatalog(t)
	if _, err := cat.CreateTable("committed", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := cat.CreateTable("uncommitted", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, ok := cat.Table("uncommitted"); !ok {
		t.Fatal("expected uncommitted table visible before rollback")
	}

	if err := p.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := cat.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, ok := cat.Table("committed"); !ok {
		t.Fatal("committed table missing after Reload")
	}
	if _, ok := cat.Table("uncommitted"); ok {
		t.Fatal("uncommitted table still visible after Rollback+Reload")
	}
}

func TestIndexesOnPreservesCreationOrder(t *testing.T) {
	_, cat := newTestCatalog(t)
	if _, err := cat.CreateTable("users", usersCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateIndex("idx_a", "users", []string{"name"}, false); err != nil {
		t.Fatalf("CreateIndex a: %v", err)
	}
	if _, err := cat.CreateIndex("idx_b", "users", []string{"score"}, false); err != nil {
		t.Fatalf("CreateIndex b: %v", err)
	}
	got := cat.IndexesOn("users")
	if len(got) != 2 || got[0].Name != "idx_a" || got[1].Name != "idx_b" {
		t.Fatalf("IndexesOn returned %v, want [idx_a idx_b] in order", got)
	}
}

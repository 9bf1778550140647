package executor

import (
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

func openDMLFixture(t *testing.T) (*pager.Pager, *catalog.Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dml.db")
	p, err := pager.Open(path, pager.Config{})
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	cat, err := catalog.Open(p)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return p, cat
}

func execSQL(t *testing.T, p *pager.Pager, cat *catalog.Catalog, sql string) Result {
	t.Helper()
	stmts, err := sqlparse.ParseAll(sql)
	if err != nil {
		t.Fatalf("ParseAll(%q): %v", sql, err)
	}
	var res Result
	for _, s := range stmts {
		res, err = Execute(p, cat, s)
		if err != nil {
			t.Fatalf("Execute(%q): %v", sql, err)
		}
	}
	return res
}

// TestUpdateExcusesSameBatchUniqueHandoff covers spec.md's "UNIQUE handoff
// in UPDATE" scenario: a batch update that shifts every row's key up by one
// collides with another row's *current* key, but that row is vacating it in
// the same statement, so the whole update must still succeed.
func TestUpdateExcusesSameBatchUniqueHandoff(t *testing.T) {
	p, cat := openDMLFixture(t)
	execSQL(t, p, cat, "CREATE TABLE u (k INT)")
	execSQL(t, p, cat, "CREATE UNIQUE INDEX uix ON u (k)")
	execSQL(t, p, cat, "INSERT INTO u (k) VALUES (1), (2)")

	res := execSQL(t, p, cat, "UPDATE u SET k = k + 1")
	if res.RowsAffected != 2 {
		t.Fatalf("UPDATE affected %d rows, want 2", res.RowsAffected)
	}

	selRes := execSQL(t, p, cat, "SELECT k FROM u ORDER BY k")
	if len(selRes.Rows) != 2 || selRes.Rows[0][0].I != 2 || selRes.Rows[1][0].I != 3 {
		t.Fatalf("rows after UPDATE = %+v, want k=2,3", selRes.Rows)
	}
}

// TestUpdateStillRejectsGenuineUniqueCollision ensures the batch-handoff
// excuse above doesn't also excuse a real collision: two rows landing on the
// same key, with neither vacating it, must still fail.
func TestUpdateStillRejectsGenuineUniqueCollision(t *testing.T) {
	p, cat := openDMLFixture(t)
	execSQL(t, p, cat, "CREATE TABLE u (k INT)")
	execSQL(t, p, cat, "CREATE UNIQUE INDEX uix ON u (k)")
	execSQL(t, p, cat, "INSERT INTO u (k) VALUES (1), (2)")

	if _, err := Execute(p, cat, mustParseOne(t, "UPDATE u SET k = 5 WHERE k = 1")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := Execute(p, cat, mustParseOne(t, "UPDATE u SET k = 5 WHERE k = 2")); err == nil {
		t.Fatal("expected a UNIQUE constraint violation updating a second row onto an occupied key")
	}
}

func mustParseOne(t *testing.T, sql string) sqlparse.Statement {
	t.Helper()
	stmts, err := sqlparse.ParseAll(sql)
	if err != nil {
		t.Fatalf("ParseAll(%q): %v", sql, err)
	}
	return stmts[0]
}

// TestStatsRefreshOnInsertUpdateDelete checks that index cardinality stats
// reflect live rows after each DML statement, not just CreateIndex's
// one-time backfill.
func TestStatsRefreshOnInsertUpdateDelete(t *testing.T) {
	p, cat := openDMLFixture(t)
	execSQL(t, p, cat, "CREATE TABLE t (k INT)")
	ix, err := cat.CreateIndex("idx_k", "t", []string{"k"}, false)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	stats, _ := cat.StatsFor(ix.ID)
	if stats.RowCount != 0 || stats.DistinctKeys != 0 {
		t.Fatalf("initial stats = %+v, want zero", stats)
	}

	execSQL(t, p, cat, "INSERT INTO t (k) VALUES (1), (2), (3)")
	stats, _ = cat.StatsFor(ix.ID)
	if stats.RowCount != 3 {
		t.Fatalf("RowCount after INSERT = %d, want 3", stats.RowCount)
	}
	if stats.DistinctKeys != 3 {
		t.Fatalf("DistinctKeys after INSERT = %d, want 3", stats.DistinctKeys)
	}

	// k=1 is the row's only occupant of that key, so renaming it to 11
	// vacates key 1 and creates key 11: the same count of distinct keys,
	// under different values.
	execSQL(t, p, cat, "UPDATE t SET k = 11 WHERE k = 1")
	stats, _ = cat.StatsFor(ix.ID)
	if stats.RowCount != 3 {
		t.Fatalf("RowCount after UPDATE = %d, want 3 (unchanged)", stats.RowCount)
	}
	if stats.DistinctKeys != 3 {
		t.Fatalf("DistinctKeys after UPDATE = %d, want 3 (2, 3, 11)", stats.DistinctKeys)
	}

	execSQL(t, p, cat, "DELETE FROM t WHERE k = 2")
	stats, _ = cat.StatsFor(ix.ID)
	if stats.RowCount != 2 {
		t.Fatalf("RowCount after DELETE = %d, want 2", stats.RowCount)
	}
	if stats.DistinctKeys != 2 {
		t.Fatalf("DistinctKeys after DELETE = %d, want 2 (3, 11)", stats.DistinctKeys)
	}
}

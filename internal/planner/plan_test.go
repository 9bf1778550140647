package planner

import (
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

func varRef(name string) *sqlparse.VarRef { return &sqlparse.VarRef{Name: name} }
func lit(v any) *sqlparse.Literal         { return &sqlparse.Literal{Val: v} }

func eq(col string, v any) *sqlparse.Binary {
	return &sqlparse.Binary{Op: "=", Left: varRef(col), Right: lit(v)}
}

func noStats(uint64) (catalog.Stats, bool) { return catalog.Stats{}, false }

func withStats(stats map[uint64]catalog.Stats) StatsLookup {
	return func(id uint64) (catalog.Stats, bool) {
		s, ok := stats[id]
		return s, ok
	}
}

func TestChooseNilWhereIsTableScan(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	path := Choose(table, nil, noStats, nil)
	if path.Kind != PathTableScan {
		t.Fatalf("Kind = %v, want PathTableScan", path.Kind)
	}
}

func TestChoosePicksIndexEqOverTableScan(t *testing.T) {
	table := &catalog.TableDef{Name: "users"}
	ix := &catalog.IndexDef{ID: 1, Name: "idx_id", Table: "users", Columns: []string{"id"}}
	where := eq("id", int64(5))

	path := Choose(table, []*catalog.IndexDef{ix}, noStats, where)
	if path.Kind != PathIndexEq {
		t.Fatalf("Kind = %v, want PathIndexEq", path.Kind)
	}
	if path.Index != ix {
		t.Fatal("expected the chosen path to reference the matching index")
	}
	if len(path.EqValues) != 1 || path.EqValues[0] != int64(5) {
		t.Fatalf("EqValues = %v, want [5]", path.EqValues)
	}
}

func TestChooseRangeQuery(t *testing.T) {
	table := &catalog.TableDef{Name: "users"}
	ix := &catalog.IndexDef{ID: 1, Name: "idx_score", Table: "users", Columns: []string{"score"}}
	where := &sqlparse.Binary{Op: ">", Left: varRef("score"), Right: lit(int64(10))}

	path := Choose(table, []*catalog.IndexDef{ix}, noStats, where)
	if path.Kind != PathIndexRange {
		t.Fatalf("Kind = %v, want PathIndexRange", path.Kind)
	}
	if path.Low == nil || path.Low.Value != int64(10) || path.Low.Inclusive {
		t.Fatalf("Low = %+v, want exclusive bound at 10", path.Low)
	}
}

func TestChooseCompositeIndexFullPrefixMatch(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ix := &catalog.IndexDef{ID: 1, Name: "idx_ab", Table: "t", Columns: []string{"a", "b"}}
	where := &sqlparse.Binary{Op: "AND", Left: eq("a", int64(1)), Right: eq("b", int64(2))}

	path := Choose(table, []*catalog.IndexDef{ix}, noStats, where)
	if path.Kind != PathIndexEq {
		t.Fatalf("Kind = %v, want PathIndexEq for a full-prefix composite match", path.Kind)
	}
	if len(path.EqValues) != 2 {
		t.Fatalf("EqValues = %v, want 2 values", path.EqValues)
	}
}

func TestChooseInListBecomesIndexOr(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ix := &catalog.IndexDef{ID: 1, Name: "idx_a", Table: "t", Columns: []string{"a"}}
	where := &sqlparse.In{Expr: varRef("a"), List: []sqlparse.Expr{lit(int64(1)), lit(int64(2)), lit(int64(3))}}

	path := Choose(table, []*catalog.IndexDef{ix}, noStats, where)
	if path.Kind != PathIndexOr {
		t.Fatalf("Kind = %v, want PathIndexOr", path.Kind)
	}
	if len(path.Branches) != 3 {
		t.Fatalf("got %d branches, want 3", len(path.Branches))
	}
	for _, b := range path.Branches {
		if b.Kind != PathIndexEq {
			t.Fatalf("IN-list branch kind = %v, want PathIndexEq", b.Kind)
		}
	}
}

func TestChooseOrAcrossColumnsBecomesIndexOr(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ixA := &catalog.IndexDef{ID: 1, Name: "idx_a", Table: "t", Columns: []string{"a"}}
	ixB := &catalog.IndexDef{ID: 2, Name: "idx_b", Table: "t", Columns: []string{"b"}}
	where := &sqlparse.Binary{Op: "OR", Left: eq("a", int64(1)), Right: eq("b", int64(2))}

	path := Choose(table, []*catalog.IndexDef{ixA, ixB}, noStats, where)
	if path.Kind != PathIndexOr {
		t.Fatalf("Kind = %v, want PathIndexOr", path.Kind)
	}
	if len(path.Branches) != 2 {
		t.Fatalf("got %d branches, want 2", len(path.Branches))
	}
}

func TestChooseAndAcrossIndexesCombinesBranches(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ixA := &catalog.IndexDef{ID: 1, Name: "idx_a", Table: "t", Columns: []string{"a"}}
	ixB := &catalog.IndexDef{ID: 2, Name: "idx_b", Table: "t", Columns: []string{"b"}}
	where := &sqlparse.Binary{Op: "AND", Left: eq("a", int64(1)), Right: eq("b", int64(2))}

	path := Choose(table, []*catalog.IndexDef{ixA, ixB}, noStats, where)
	if path.Kind != PathIndexAnd {
		t.Fatalf("Kind = %v, want PathIndexAnd (two independent single-column indexes)", path.Kind)
	}
	if len(path.Branches) != 2 {
		t.Fatalf("got %d branches, want 2", len(path.Branches))
	}
}

func TestChooseFallsBackToTableScanWithoutUsableIndex(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ix := &catalog.IndexDef{ID: 1, Name: "idx_a", Table: "t", Columns: []string{"a"}}
	where := eq("unindexed_col", int64(1))

	path := Choose(table, []*catalog.IndexDef{ix}, noStats, where)
	if path.Kind != PathTableScan {
		t.Fatalf("Kind = %v, want PathTableScan", path.Kind)
	}
}

func TestTableScanCostUsesIndexRowCountWhenAvailable(t *testing.T) {
	table := &catalog.TableDef{Name: "t"}
	ix := &catalog.IndexDef{ID: 7, Name: "idx_a", Table: "t", Columns: []string{"a"}}
	stats := withStats(map[uint64]catalog.Stats{7: {RowCount: 42, DistinctKeys: 42}})

	path := Choose(table, []*catalog.IndexDef{ix}, stats, nil)
	if path.Kind != PathTableScan {
		t.Fatalf("Kind = %v, want PathTableScan for nil where", path.Kind)
	}
	if path.EstCost != 42 {
		t.Fatalf("EstCost = %v, want 42 (derived from index row count)", path.EstCost)
	}
}

package executor

import (
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

func rowsOf(col string, ints []int64) []Row {
	cols := []ColRef{{Name: col}}
	out := make([]Row, len(ints))
	for i, v := range ints {
		out[i] = Row{Cols: cols, Vals: []codec.Value{codec.Int(v)}}
	}
	return out
}

func TestSortAscendingAndDescending(t *testing.T) {
	rows := rowsOf("n", []int64{3, 1, 2})
	asc, err := Sort(rows, []sqlparse.OrderItem{{Expr: &sqlparse.VarRef{Name: "n"}}})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := []int64{1, 2, 3}
	for i, w := range want {
		if asc[i].Vals[0].I != w {
			t.Fatalf("ascending sort[%d] = %d, want %d", i, asc[i].Vals[0].I, w)
		}
	}

	rows2 := rowsOf("n", []int64{3, 1, 2})
	desc, err := Sort(rows2, []sqlparse.OrderItem{{Expr: &sqlparse.VarRef{Name: "n"}, Desc: true}})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	wantDesc := []int64{3, 2, 1}
	for i, w := range wantDesc {
		if desc[i].Vals[0].I != w {
			t.Fatalf("descending sort[%d] = %d, want %d", i, desc[i].Vals[0].I, w)
		}
	}
}

func TestSortIsStableOnTies(t *testing.T) {
	cols := []ColRef{{Name: "n"}, {Name: "tag"}}
	rows := []Row{
		{Cols: cols, Vals: []codec.Value{codec.Int(1), codec.Text("first")}},
		{Cols: cols, Vals: []codec.Value{codec.Int(1), codec.Text("second")}},
	}
	out, err := Sort(rows, []sqlparse.OrderItem{{Expr: &sqlparse.VarRef{Name: "n"}}})
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if out[0].Vals[1].S != "first" || out[1].Vals[1].S != "second" {
		t.Fatalf("stable sort reordered ties: %+v", out)
	}
}

func TestSortNoOrderItemsReturnsUnchanged(t *testing.T) {
	rows := rowsOf("n", []int64{3, 1, 2})
	out, err := Sort(rows, nil)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if out[0].Vals[0].I != 3 || out[2].Vals[0].I != 2 {
		t.Fatalf("expected input order preserved with no ORDER BY items, got %+v", out)
	}
}

func TestLimitOffset(t *testing.T) {
	rows := rowsOf("n", []int64{1, 2, 3, 4, 5})
	limit := int64(2)
	offset := int64(1)
	out := LimitOffset(rows, &limit, &offset)
	if len(out) != 2 || out[0].Vals[0].I != 2 || out[1].Vals[0].I != 3 {
		t.Fatalf("LimitOffset = %+v, want rows [2,3]", out)
	}
}

func TestLimitOffsetBeyondLengthReturnsEmpty(t *testing.T) {
	rows := rowsOf("n", []int64{1, 2, 3})
	offset := int64(10)
	out := LimitOffset(rows, nil, &offset)
	if len(out) != 0 {
		t.Fatalf("LimitOffset with offset beyond length = %+v, want empty", out)
	}
}

func TestLimitOffsetNilBoundsReturnsAll(t *testing.T) {
	rows := rowsOf("n", []int64{1, 2, 3})
	out := LimitOffset(rows, nil, nil)
	if len(out) != 3 {
		t.Fatalf("LimitOffset(nil,nil) = %d rows, want 3", len(out))
	}
}

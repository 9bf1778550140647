package executor

import (
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

func testRow(cols []ColRef, vals []codec.Value) Row {
	return Row{Cols: cols, Vals: vals}
}

func col(name string) ColRef { return ColRef{Name: name} }

func TestEvalLiteralAndVarRef(t *testing.T) {
	row := testRow([]ColRef{col("a")}, []codec.Value{codec.Int(7)})
	v, err := Eval(row, &sqlparse.Literal{Val: int64(3)})
	if err != nil || v.I != 3 {
		t.Fatalf("literal eval = %+v, %v", v, err)
	}
	v, err = Eval(row, &sqlparse.VarRef{Name: "a"})
	if err != nil || v.I != 7 {
		t.Fatalf("varref eval = %+v, %v", v, err)
	}
}

func TestEvalUnknownColumnErrors(t *testing.T) {
	row := testRow([]ColRef{col("a")}, []codec.Value{codec.Int(1)})
	if _, err := Eval(row, &sqlparse.VarRef{Name: "missing"}); err == nil {
		t.Fatal("expected an error resolving an unknown column")
	}
}

func TestEvalAmbiguousColumnErrors(t *testing.T) {
	row := testRow([]ColRef{{Table: "l", Name: "id"}, {Table: "r", Name: "id"}}, []codec.Value{codec.Int(1), codec.Int(2)})
	if _, err := Eval(row, &sqlparse.VarRef{Name: "id"}); err == nil {
		t.Fatal("expected an ambiguous-column error for an unqualified duplicate name")
	}
	v, err := Eval(row, &sqlparse.VarRef{Table: "r", Name: "id"})
	if err != nil || v.I != 2 {
		t.Fatalf("qualified ref should resolve unambiguously: %+v, %v", v, err)
	}
}

func TestThreeValuedAnd(t *testing.T) {
	row := Row{}
	cases := []struct {
		l, r any
		want int // tristate of result
	}{
		{true, true, 1},
		{true, false, 0},
		{false, nil, 0},
		{true, nil, -1},
		{nil, nil, -1},
	}
	for _, c := range cases {
		e := &sqlparse.Binary{Op: "AND", Left: &sqlparse.Literal{Val: c.l}, Right: &sqlparse.Literal{Val: c.r}}
		v, err := Eval(row, e)
		if err != nil {
			t.Fatalf("AND(%v,%v): %v", c.l, c.r, err)
		}
		if triState(v) != c.want {
			t.Fatalf("AND(%v,%v) tristate = %d, want %d", c.l, c.r, triState(v), c.want)
		}
	}
}

func TestThreeValuedOr(t *testing.T) {
	row := Row{}
	cases := []struct {
		l, r any
		want int
	}{
		{false, false, 0},
		{true, false, 1},
		{false, nil, -1},
		{true, nil, 1},
		{nil, nil, -1},
	}
	for _, c := range cases {
		e := &sqlparse.Binary{Op: "OR", Left: &sqlparse.Literal{Val: c.l}, Right: &sqlparse.Literal{Val: c.r}}
		v, err := Eval(row, e)
		if err != nil {
			t.Fatalf("OR(%v,%v): %v", c.l, c.r, err)
		}
		if triState(v) != c.want {
			t.Fatalf("OR(%v,%v) tristate = %d, want %d", c.l, c.r, triState(v), c.want)
		}
	}
}

func TestComparisonWithNullIsNull(t *testing.T) {
	row := Row{}
	e := &sqlparse.Binary{Op: "=", Left: &sqlparse.Literal{Val: int64(1)}, Right: &sqlparse.Literal{Val: nil}}
	v, err := Eval(row, e)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL comparing to NULL, got %+v", v)
	}
}

func TestArithDivByZeroIsNull(t *testing.T) {
	row := Row{}
	e := &sqlparse.Binary{Op: "/", Left: &sqlparse.Literal{Val: int64(1)}, Right: &sqlparse.Literal{Val: int64(0)}}
	v, err := Eval(row, e)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL dividing by zero, got %+v", v)
	}
}

func TestArithIntegerStaysInteger(t *testing.T) {
	row := Row{}
	e := &sqlparse.Binary{Op: "+", Left: &sqlparse.Literal{Val: int64(2)}, Right: &sqlparse.Literal{Val: int64(3)}}
	v, err := Eval(row, e)
	if err != nil || v.Kind != codec.KindInt || v.I != 5 {
		t.Fatalf("2+3 = %+v, %v, want Int(5)", v, err)
	}
}

func TestNullOrderingRank(t *testing.T) {
	vals := []codec.Value{codec.Text("x"), codec.Int(1), codec.Null()}
	for i := 0; i < len(vals); i++ {
		for j := 0; j < len(vals); j++ {
			got := compareValues(vals[i], vals[j])
			want := rank(vals[i]) - rank(vals[j])
			if (got < 0) != (want < 0) || (got > 0) != (want > 0) {
				t.Fatalf("compareValues(%v,%v) disagrees with rank ordering", vals[i], vals[j])
			}
		}
	}
	if compareValues(codec.Null(), codec.Int(0)) >= 0 {
		t.Fatal("NULL should rank below any number")
	}
	if compareValues(codec.Int(0), codec.Text("")) >= 0 {
		t.Fatal("a number should rank below any TEXT")
	}
}

func TestLikeMatchWildcards(t *testing.T) {
	cases := []struct {
		s, pat string
		want   bool
	}{
		{"hello", "h%", true},
		{"hello", "%llo", true},
		{"hello", "h_llo", true},
		{"hello", "h_lo", false},
		{"HELLO", "hello", true}, // ASCII case-insensitive
		{"", "%", true},
		{"", "_", false},
	}
	for _, c := range cases {
		if got := likeMatch(c.s, c.pat); got != c.want {
			t.Fatalf("likeMatch(%q,%q) = %v, want %v", c.s, c.pat, got, c.want)
		}
	}
}

func TestEvalBetweenAndIn(t *testing.T) {
	row := Row{}
	between := &sqlparse.Between{Expr: &sqlparse.Literal{Val: int64(5)}, Low: &sqlparse.Literal{Val: int64(1)}, High: &sqlparse.Literal{Val: int64(10)}}
	v, err := Eval(row, between)
	if err != nil || triState(v) != 1 {
		t.Fatalf("5 BETWEEN 1 AND 10 = %+v, %v, want true", v, err)
	}

	in := &sqlparse.In{Expr: &sqlparse.Literal{Val: int64(5)}, List: []sqlparse.Expr{
		&sqlparse.Literal{Val: int64(1)}, &sqlparse.Literal{Val: int64(5)},
	}}
	v, err = Eval(row, in)
	if err != nil || triState(v) != 1 {
		t.Fatalf("5 IN (1,5) = %+v, %v, want true", v, err)
	}

	notIn := &sqlparse.In{Expr: &sqlparse.Literal{Val: int64(99)}, List: in.List, Negate: true}
	v, err = Eval(row, notIn)
	if err != nil || triState(v) != 1 {
		t.Fatalf("99 NOT IN (1,5) = %+v, %v, want true", v, err)
	}
}

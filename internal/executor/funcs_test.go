package executor

import (
	"testing"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

func callFunc(t *testing.T, name string, args ...any) codec.Value {
	t.Helper()
	exprs := make([]sqlparse.Expr, len(args))
	for i, a := range args {
		exprs[i] = &sqlparse.Literal{Val: a}
	}
	v, err := Eval(Row{}, &sqlparse.FuncCall{Name: name, Args: exprs})
	if err != nil {
		t.Fatalf("%s(%v): %v", name, args, err)
	}
	return v
}

func TestScalarFuncsStrings(t *testing.T) {
	if v := callFunc(t, "LENGTH", "hello"); v.I != 5 {
		t.Fatalf("LENGTH = %+v, want 5", v)
	}
	if v := callFunc(t, "UPPER", "abc"); v.S != "ABC" {
		t.Fatalf("UPPER = %+v", v)
	}
	if v := callFunc(t, "LOWER", "ABC"); v.S != "abc" {
		t.Fatalf("LOWER = %+v", v)
	}
	if v := callFunc(t, "TYPEOF", int64(1)); v.S != "int" {
		t.Fatalf("TYPEOF = %+v, want int", v)
	}
	if v := callFunc(t, "TYPEOF", nil); v.S != "null" {
		t.Fatalf("TYPEOF(NULL) = %+v, want null", v)
	}
}

func TestScalarFuncsNullPropagation(t *testing.T) {
	if v := callFunc(t, "LENGTH", nil); !v.IsNull() {
		t.Fatalf("LENGTH(NULL) = %+v, want NULL", v)
	}
	if v := callFunc(t, "UPPER", nil); !v.IsNull() {
		t.Fatalf("UPPER(NULL) = %+v, want NULL", v)
	}
}

func TestScalarFuncAbs(t *testing.T) {
	if v := callFunc(t, "ABS", int64(-5)); v.I != 5 {
		t.Fatalf("ABS(-5) = %+v, want 5", v)
	}
	if v := callFunc(t, "ABS", 3.5); v.F != 3.5 {
		t.Fatalf("ABS(3.5) = %+v, want 3.5", v)
	}
	if v := callFunc(t, "ABS", -3.5); v.F != 3.5 {
		t.Fatalf("ABS(-3.5) = %+v, want 3.5", v)
	}
}

func TestScalarFuncCoalesceIfnullNullif(t *testing.T) {
	if v := callFunc(t, "COALESCE", nil, nil, int64(7)); v.I != 7 {
		t.Fatalf("COALESCE = %+v, want 7", v)
	}
	if v := callFunc(t, "IFNULL", nil, int64(9)); v.I != 9 {
		t.Fatalf("IFNULL(NULL,9) = %+v, want 9", v)
	}
	if v := callFunc(t, "IFNULL", int64(2), int64(9)); v.I != 2 {
		t.Fatalf("IFNULL(2,9) = %+v, want 2", v)
	}
	if v := callFunc(t, "NULLIF", int64(5), int64(5)); !v.IsNull() {
		t.Fatalf("NULLIF(5,5) = %+v, want NULL", v)
	}
	if v := callFunc(t, "NULLIF", int64(5), int64(6)); v.I != 5 {
		t.Fatalf("NULLIF(5,6) = %+v, want 5", v)
	}
}

func TestScalarFuncSubstr(t *testing.T) {
	if v := callFunc(t, "SUBSTR", "hello world", int64(1), int64(5)); v.S != "hello" {
		t.Fatalf("SUBSTR = %q, want hello", v.S)
	}
	if v := callFunc(t, "SUBSTR", "hello world", int64(7)); v.S != "world" {
		t.Fatalf("SUBSTR(no length) = %q, want world", v.S)
	}
	if v := callFunc(t, "SUBSTR", "hello", int64(-3)); v.S != "llo" {
		t.Fatalf("SUBSTR(negative start) = %q, want llo", v.S)
	}
}

func TestScalarFuncInstrAndReplace(t *testing.T) {
	if v := callFunc(t, "INSTR", "hello world", "world"); v.I != 7 {
		t.Fatalf("INSTR = %+v, want 7", v)
	}
	if v := callFunc(t, "INSTR", "hello", "z"); v.I != 0 {
		t.Fatalf("INSTR(not found) = %+v, want 0", v)
	}
	if v := callFunc(t, "REPLACE", "aXbXc", "X", "-"); v.S != "a-b-c" {
		t.Fatalf("REPLACE = %q, want a-b-c", v.S)
	}
}

func TestScalarFuncTrimFamily(t *testing.T) {
	if v := callFunc(t, "TRIM", "  hi  "); v.S != "hi" {
		t.Fatalf("TRIM = %q, want hi", v.S)
	}
	if v := callFunc(t, "LTRIM", "  hi  "); v.S != "hi  " {
		t.Fatalf("LTRIM = %q, want \"hi  \"", v.S)
	}
	if v := callFunc(t, "RTRIM", "  hi  "); v.S != "  hi" {
		t.Fatalf("RTRIM = %q, want \"  hi\"", v.S)
	}
}

func TestScalarFuncMinMax(t *testing.T) {
	if v := callFunc(t, "MIN", int64(3), int64(1), int64(2)); v.I != 1 {
		t.Fatalf("MIN = %+v, want 1", v)
	}
	if v := callFunc(t, "MAX", int64(3), int64(1), int64(2)); v.I != 3 {
		t.Fatalf("MAX = %+v, want 3", v)
	}
}

func TestScalarFuncHexAndQuote(t *testing.T) {
	if v := callFunc(t, "HEX", "AB"); v.S != "4142" {
		t.Fatalf("HEX = %q, want 4142", v.S)
	}
	if v := callFunc(t, "QUOTE", "it's"); v.S != "'it''s'" {
		t.Fatalf("QUOTE = %q, want 'it''s'", v.S)
	}
	if v := callFunc(t, "QUOTE", nil); v.S != "NULL" {
		t.Fatalf("QUOTE(NULL) = %q, want NULL", v.S)
	}
}

func TestScalarFuncArityErrors(t *testing.T) {
	_, err := Eval(Row{}, &sqlparse.FuncCall{Name: "LENGTH", Args: []sqlparse.Expr{
		&sqlparse.Literal{Val: "a"}, &sqlparse.Literal{Val: "b"},
	}})
	if err == nil {
		t.Fatal("expected an arity error calling LENGTH with two arguments")
	}
}

func TestScalarFuncUnknownNameErrors(t *testing.T) {
	_, err := Eval(Row{}, &sqlparse.FuncCall{Name: "NOPE"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized function name")
	}
}

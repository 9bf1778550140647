package executor

import (
	"math"
	"strings"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
)

func boolValue(b bool) codec.Value {
	if b {
		return codec.Int(1)
	}
	return codec.Int(0)
}

// triState maps a value to three-valued logic: 1=true, 0=false, -1=unknown.
func triState(v codec.Value) int {
	if v.IsNull() {
		return -1
	}
	if isTrue(v) {
		return 1
	}
	return 0
}

func isTrue(v codec.Value) bool {
	switch v.Kind {
	case codec.KindInt:
		return v.I != 0
	case codec.KindReal:
		return v.F != 0
	case codec.KindText:
		return v.S != ""
	default:
		return false
	}
}

func asFloat(v codec.Value) (float64, bool) {
	switch v.Kind {
	case codec.KindInt:
		return float64(v.I), true
	case codec.KindReal:
		return v.F, true
	default:
		return 0, false
	}
}

// arith evaluates +,-,*,/,% over numeric operands. Division and modulo by
// zero yield NULL rather than a fatal error, matching the teacher's
// SQLite-flavored leniency for these edge cases.
func arith(op string, a, b codec.Value) (codec.Value, error) {
	if a.IsNull() || b.IsNull() {
		return codec.Null(), nil
	}
	if a.Kind == codec.KindInt && b.Kind == codec.KindInt && op != "/" {
		x, y := a.I, b.I
		switch op {
		case "+":
			return codec.Int(x + y), nil
		case "-":
			return codec.Int(x - y), nil
		case "*":
			return codec.Int(x * y), nil
		case "%":
			if y == 0 {
				return codec.Null(), nil
			}
			return codec.Int(x % y), nil
		}
	}
	x, ok1 := asFloat(a)
	y, ok2 := asFloat(b)
	if !ok1 || !ok2 {
		return codec.Value{}, typeErr("non-numeric operand to %q", op)
	}
	switch op {
	case "+":
		return codec.Real(x + y), nil
	case "-":
		return codec.Real(x - y), nil
	case "*":
		return codec.Real(x * y), nil
	case "/":
		if y == 0 {
			return codec.Null(), nil
		}
		return codec.Real(x / y), nil
	case "%":
		if y == 0 {
			return codec.Null(), nil
		}
		return codec.Real(math.Mod(x, y)), nil
	default:
		return codec.Value{}, typeErr("unknown arithmetic operator %q", op)
	}
}

// compareValues orders NULL < number < TEXT, matching the spec's ORDER BY
// null-ordering rule; it is also used as the equality/ordering primitive
// for WHERE comparisons once NULL has been handled by the caller.
func compareValues(a, b codec.Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case codec.KindNull:
		return 0
	case codec.KindText:
		return strings.Compare(a.S, b.S)
	default:
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
}

func rank(v codec.Value) int {
	switch v.Kind {
	case codec.KindNull:
		return 0
	case codec.KindText:
		return 2
	default:
		return 1
	}
}

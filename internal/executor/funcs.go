package executor

import (
	"fmt"
	"strings"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// evalScalarFunc dispatches a FuncCall by uppercase name. Aggregate names
// (COUNT/SUM/AVG) reaching here means they were used outside an
// aggregation context, which is a planning error upstream; evalScalarFunc
// does not special-case them.
func evalScalarFunc(row Row, fc *sqlparse.FuncCall) (codec.Value, error) {
	name := strings.ToUpper(fc.Name)
	args := make([]codec.Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := Eval(row, a)
		if err != nil {
			return codec.Value{}, err
		}
		args[i] = v
	}

	switch name {
	case "LENGTH":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() {
			return codec.Null(), nil
		}
		return codec.Int(int64(len(textOf(args[0])))), nil
	case "UPPER":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(strings.ToUpper(textOf(args[0]))), nil
	case "LOWER":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(strings.ToLower(textOf(args[0]))), nil
	case "TYPEOF":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		return codec.Text(strings.ToLower(args[0].Kind.String())), nil
	case "ABS":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		return absValue(args[0])
	case "COALESCE":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return codec.Null(), nil
	case "IFNULL":
		if err := arity(name, args, 2); err != nil {
			return codec.Value{}, err
		}
		if !args[0].IsNull() {
			return args[0], nil
		}
		return args[1], nil
	case "NULLIF":
		if err := arity(name, args, 2); err != nil {
			return codec.Value{}, err
		}
		if !args[0].IsNull() && !args[1].IsNull() && compareValues(args[0], args[1]) == 0 {
			return codec.Null(), nil
		}
		return args[0], nil
	case "SUBSTR":
		return substr(args)
	case "INSTR":
		if err := arity(name, args, 2); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() || args[1].IsNull() {
			return codec.Null(), nil
		}
		idx := strings.Index(textOf(args[0]), textOf(args[1]))
		return codec.Int(int64(idx + 1)), nil
	case "REPLACE":
		if err := arity(name, args, 3); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() || args[1].IsNull() || args[2].IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(strings.ReplaceAll(textOf(args[0]), textOf(args[1]), textOf(args[2]))), nil
	case "TRIM":
		return trimFunc(args, strings.TrimSpace)
	case "LTRIM":
		return trimFunc(args, func(s string) string { return strings.TrimLeft(s, " ") })
	case "RTRIM":
		return trimFunc(args, func(s string) string { return strings.TrimRight(s, " ") })
	case "MIN":
		return minMaxScalar(args, true)
	case "MAX":
		return minMaxScalar(args, false)
	case "HEX":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(strings.ToUpper(fmt.Sprintf("%x", []byte(textOf(args[0]))))), nil
	case "QUOTE":
		if err := arity(name, args, 1); err != nil {
			return codec.Value{}, err
		}
		if args[0].IsNull() {
			return codec.Text("NULL"), nil
		}
		return codec.Text("'" + strings.ReplaceAll(textOf(args[0]), "'", "''") + "'"), nil
	default:
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "unsupported function %s", fc.Name)
	}
}

func arity(name string, args []codec.Value, n int) error {
	if len(args) != n {
		return dberr.New(dberr.KindUnsupported, "%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func absValue(v codec.Value) (codec.Value, error) {
	switch v.Kind {
	case codec.KindNull:
		return codec.Null(), nil
	case codec.KindInt:
		if v.I < 0 {
			return codec.Int(-v.I), nil
		}
		return v, nil
	case codec.KindReal:
		if v.F < 0 {
			return codec.Real(-v.F), nil
		}
		return v, nil
	default:
		return codec.Value{}, typeErr("ABS expects a numeric argument")
	}
}

func substr(args []codec.Value) (codec.Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "SUBSTR expects 2 or 3 arguments")
	}
	if args[0].IsNull() || args[1].IsNull() || (len(args) == 3 && args[2].IsNull()) {
		return codec.Null(), nil
	}
	s := textOf(args[0])
	start := int(args[1].I)
	if args[1].Kind == codec.KindReal {
		start = int(args[1].F)
	}
	if start > 0 {
		start--
	} else if start < 0 {
		start = len(s) + start
		if start < 0 {
			start = 0
		}
	}
	if start > len(s) {
		start = len(s)
	}
	end := len(s)
	if len(args) == 3 {
		l := int(args[2].I)
		if end = start + l; end > len(s) {
			end = len(s)
		}
		if end < start {
			end = start
		}
	}
	return codec.Text(s[start:end]), nil
}

func trimFunc(args []codec.Value, f func(string) string) (codec.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "TRIM expects 1 or 2 arguments")
	}
	if args[0].IsNull() {
		return codec.Null(), nil
	}
	if len(args) == 2 {
		if args[1].IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(strings.Trim(textOf(args[0]), textOf(args[1]))), nil
	}
	return codec.Text(f(textOf(args[0]))), nil
}

func minMaxScalar(args []codec.Value, wantMin bool) (codec.Value, error) {
	if len(args) == 0 {
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "MIN/MAX require at least one argument")
	}
	best := args[0]
	for _, a := range args[1:] {
		if a.IsNull() || best.IsNull() {
			if best.IsNull() {
				best = a
			}
			continue
		}
		c := compareValues(a, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = a
		}
	}
	return best, nil
}

package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// Eval computes the value of e against row. Aggregate function calls
// (COUNT/SUM/AVG/MIN/MAX used as aggregates rather than scalars) are
// resolved upstream by the aggregate operator and never reach here as
// bare FuncCall nodes inside a grouped/aggregated projection; Eval only
// ever sees their already-computed column value in that case.
func Eval(row Row, e sqlparse.Expr) (codec.Value, error) {
	switch n := e.(type) {
	case *sqlparse.Literal:
		return literalValue(n.Val), nil
	case *sqlparse.VarRef:
		v, ok, err := row.Resolve(n.Table, n.Name)
		if err != nil {
			return codec.Value{}, err
		}
		if !ok {
			return codec.Value{}, unknownColumnErr(qualify(n.Table, n.Name))
		}
		return v, nil
	case *sqlparse.Unary:
		return evalUnary(row, n)
	case *sqlparse.Binary:
		return evalBinary(row, n)
	case *sqlparse.IsNull:
		v, err := Eval(row, n.Expr)
		if err != nil {
			return codec.Value{}, err
		}
		isNull := v.IsNull()
		if n.Negate {
			isNull = !isNull
		}
		return boolValue(isNull), nil
	case *sqlparse.Between:
		return evalBetween(row, n)
	case *sqlparse.In:
		return evalIn(row, n)
	case *sqlparse.Like:
		return evalLike(row, n)
	case *sqlparse.FuncCall:
		return evalScalarFunc(row, n)
	default:
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "unsupported expression type %T", e)
	}
}

func qualify(table, name string) string {
	if table == "" {
		return name
	}
	return table + "." + name
}

func literalValue(v any) codec.Value {
	switch x := v.(type) {
	case nil:
		return codec.Null()
	case codec.Value:
		return x
	case int64:
		return codec.Int(x)
	case float64:
		return codec.Real(x)
	case string:
		return codec.Text(x)
	case bool:
		return boolValue(x)
	default:
		return codec.Null()
	}
}

func evalUnary(row Row, n *sqlparse.Unary) (codec.Value, error) {
	v, err := Eval(row, n.Expr)
	if err != nil {
		return codec.Value{}, err
	}
	switch n.Op {
	case "-":
		if v.IsNull() {
			return codec.Null(), nil
		}
		switch v.Kind {
		case codec.KindInt:
			return codec.Int(-v.I), nil
		case codec.KindReal:
			return codec.Real(-v.F), nil
		default:
			return codec.Value{}, typeErr("cannot negate %s", v.Kind)
		}
	case "NOT":
		switch triState(v) {
		case -1:
			return codec.Null(), nil
		case 1:
			return codec.Int(0), nil
		default:
			return codec.Int(1), nil
		}
	default:
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "unsupported unary operator %q", n.Op)
	}
}

func evalBinary(row Row, n *sqlparse.Binary) (codec.Value, error) {
	switch n.Op {
	case "AND":
		l, err := Eval(row, n.Left)
		if err != nil {
			return codec.Value{}, err
		}
		if triState(l) == 0 {
			return codec.Int(0), nil
		}
		r, err := Eval(row, n.Right)
		if err != nil {
			return codec.Value{}, err
		}
		lt, rt := triState(l), triState(r)
		if rt == 0 {
			return codec.Int(0), nil
		}
		if lt == 1 && rt == 1 {
			return codec.Int(1), nil
		}
		return codec.Null(), nil
	case "OR":
		l, err := Eval(row, n.Left)
		if err != nil {
			return codec.Value{}, err
		}
		if triState(l) == 1 {
			return codec.Int(1), nil
		}
		r, err := Eval(row, n.Right)
		if err != nil {
			return codec.Value{}, err
		}
		lt, rt := triState(l), triState(r)
		if lt == 1 || rt == 1 {
			return codec.Int(1), nil
		}
		if lt == 0 && rt == 0 {
			return codec.Int(0), nil
		}
		return codec.Null(), nil
	}

	l, err := Eval(row, n.Left)
	if err != nil {
		return codec.Value{}, err
	}
	r, err := Eval(row, n.Right)
	if err != nil {
		return codec.Value{}, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "%":
		return arith(n.Op, l, r)
	case "||":
		if l.IsNull() || r.IsNull() {
			return codec.Null(), nil
		}
		return codec.Text(textOf(l) + textOf(r)), nil
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		if l.IsNull() || r.IsNull() {
			return codec.Null(), nil
		}
		c := compareValues(l, r)
		var result bool
		switch n.Op {
		case "=":
			result = c == 0
		case "!=", "<>":
			result = c != 0
		case "<":
			result = c < 0
		case "<=":
			result = c <= 0
		case ">":
			result = c > 0
		case ">=":
			result = c >= 0
		}
		return boolValue(result), nil
	default:
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "unsupported binary operator %q", n.Op)
	}
}

func textOf(v codec.Value) string {
	switch v.Kind {
	case codec.KindText:
		return v.S
	default:
		return ""
	}
}

func evalBetween(row Row, n *sqlparse.Between) (codec.Value, error) {
	v, err := Eval(row, n.Expr)
	if err != nil {
		return codec.Value{}, err
	}
	lo, err := Eval(row, n.Low)
	if err != nil {
		return codec.Value{}, err
	}
	hi, err := Eval(row, n.High)
	if err != nil {
		return codec.Value{}, err
	}
	if v.IsNull() || lo.IsNull() || hi.IsNull() {
		return codec.Null(), nil
	}
	result := compareValues(v, lo) >= 0 && compareValues(v, hi) <= 0
	if n.Negate {
		result = !result
	}
	return boolValue(result), nil
}

func evalIn(row Row, n *sqlparse.In) (codec.Value, error) {
	v, err := Eval(row, n.Expr)
	if err != nil {
		return codec.Value{}, err
	}
	if v.IsNull() {
		return codec.Null(), nil
	}
	sawNull := false
	for _, e := range n.List {
		item, err := Eval(row, e)
		if err != nil {
			return codec.Value{}, err
		}
		if item.IsNull() {
			sawNull = true
			continue
		}
		if compareValues(v, item) == 0 {
			return boolValue(!n.Negate), nil
		}
	}
	if sawNull {
		return codec.Null(), nil
	}
	return boolValue(n.Negate), nil
}

func evalLike(row Row, n *sqlparse.Like) (codec.Value, error) {
	v, err := Eval(row, n.Expr)
	if err != nil {
		return codec.Value{}, err
	}
	pat, err := Eval(row, n.Pattern)
	if err != nil {
		return codec.Value{}, err
	}
	if v.IsNull() || pat.IsNull() {
		return codec.Null(), nil
	}
	result := likeMatch(textOf(v), textOf(pat))
	if n.Negate {
		result = !result
	}
	return boolValue(result), nil
}

// likeMatch implements SQL LIKE via DP: '%' matches zero or more
// characters, '_' matches exactly one, comparison is ASCII
// case-insensitive.
func likeMatch(s, pattern string) bool {
	s, pattern = asciiLower(s), asciiLower(pattern)
	n, m := len(s), len(pattern)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for j := 1; j <= m; j++ {
		if pattern[j-1] == '%' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch pattern[j-1] {
			case '%':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '_':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && s[i-1] == pattern[j-1]
			}
		}
	}
	return dp[n][m]
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

package executor

import (
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

type group struct {
	key     string
	members []Row
}

// GroupAggregate groups rows by groupBy, computes any aggregate calls found
// in projExprs/having per group, and returns one representative Row per
// surviving group whose Vals line up positionally with projExprs. Plain
// columns referenced alongside aggregates (legal but unspecified by
// standard SQL without a functional dependency on the grouping key) are
// resolved against the group's first member, matching the teacher's
// lenient GROUP BY behavior.
func GroupAggregate(rows []Row, groupBy []sqlparse.Expr, having sqlparse.Expr, projExprs []sqlparse.Expr) ([]Row, error) {
	groups, err := buildGroups(rows, groupBy)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, g := range groups {
		rep := Row{}
		if len(g.members) > 0 {
			rep = g.members[0]
		}
		vals := make([]codec.Value, len(projExprs))
		for i, pe := range projExprs {
			sub, err := substituteAggregates(pe, g.members)
			if err != nil {
				return nil, err
			}
			v, err := Eval(rep, sub)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		if having != nil {
			sub, err := substituteAggregates(having, g.members)
			if err != nil {
				return nil, err
			}
			v, err := Eval(rep, sub)
			if err != nil {
				return nil, err
			}
			if triState(v) != 1 {
				continue
			}
		}
		out = append(out, Row{Vals: vals})
	}
	return out, nil
}

func buildGroups(rows []Row, groupBy []sqlparse.Expr) ([]group, error) {
	if len(groupBy) == 0 {
		return []group{{members: rows}}, nil
	}
	order := make([]string, 0)
	byKey := make(map[string]*group)
	for _, r := range rows {
		var keyParts []string
		for _, ge := range groupBy {
			v, err := Eval(r, ge)
			if err != nil {
				return nil, err
			}
			keyParts = append(keyParts, valueKeyPart(v))
		}
		key := strings.Join(keyParts, "\x1f")
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, r)
	}
	out := make([]group, len(order))
	for i, k := range order {
		out[i] = *byKey[k]
	}
	return out, nil
}

func valueKeyPart(v codec.Value) string {
	switch v.Kind {
	case codec.KindNull:
		return "N"
	case codec.KindInt:
		return "I:" + strconv.FormatInt(v.I, 10)
	case codec.KindReal:
		return "R:" + strconv.FormatFloat(v.F, 'g', -1, 64)
	default:
		return "T:" + v.S
	}
}

func isAggregateName(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}

// substituteAggregates walks e, replacing any aggregate FuncCall with a
// Literal holding its computed value over members, and returns a new
// expression tree (the original is left untouched so it can be reused for
// other groups).
func substituteAggregates(e sqlparse.Expr, members []Row) (sqlparse.Expr, error) {
	switch n := e.(type) {
	case nil:
		return nil, nil
	case *sqlparse.FuncCall:
		if isAggregateName(n.Name) {
			v, err := computeAggregate(n, members)
			if err != nil {
				return nil, err
			}
			return &sqlparse.Literal{Val: v}, nil
		}
		args := make([]sqlparse.Expr, len(n.Args))
		for i, a := range n.Args {
			na, err := substituteAggregates(a, members)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return &sqlparse.FuncCall{Name: n.Name, Args: args, Star: n.Star}, nil
	case *sqlparse.Unary:
		ne, err := substituteAggregates(n.Expr, members)
		if err != nil {
			return nil, err
		}
		return &sqlparse.Unary{Op: n.Op, Expr: ne}, nil
	case *sqlparse.Binary:
		nl, err := substituteAggregates(n.Left, members)
		if err != nil {
			return nil, err
		}
		nr, err := substituteAggregates(n.Right, members)
		if err != nil {
			return nil, err
		}
		return &sqlparse.Binary{Op: n.Op, Left: nl, Right: nr}, nil
	case *sqlparse.IsNull:
		ne, err := substituteAggregates(n.Expr, members)
		if err != nil {
			return nil, err
		}
		return &sqlparse.IsNull{Expr: ne, Negate: n.Negate}, nil
	case *sqlparse.Between:
		ne, err := substituteAggregates(n.Expr, members)
		if err != nil {
			return nil, err
		}
		nl, err := substituteAggregates(n.Low, members)
		if err != nil {
			return nil, err
		}
		nh, err := substituteAggregates(n.High, members)
		if err != nil {
			return nil, err
		}
		return &sqlparse.Between{Expr: ne, Low: nl, High: nh, Negate: n.Negate}, nil
	case *sqlparse.In:
		ne, err := substituteAggregates(n.Expr, members)
		if err != nil {
			return nil, err
		}
		list := make([]sqlparse.Expr, len(n.List))
		for i, it := range n.List {
			nit, err := substituteAggregates(it, members)
			if err != nil {
				return nil, err
			}
			list[i] = nit
		}
		return &sqlparse.In{Expr: ne, List: list, Negate: n.Negate}, nil
	case *sqlparse.Like:
		ne, err := substituteAggregates(n.Expr, members)
		if err != nil {
			return nil, err
		}
		np, err := substituteAggregates(n.Pattern, members)
		if err != nil {
			return nil, err
		}
		return &sqlparse.Like{Expr: ne, Pattern: np, Negate: n.Negate}, nil
	default:
		return e, nil
	}
}

func computeAggregate(fc *sqlparse.FuncCall, members []Row) (codec.Value, error) {
	name := strings.ToUpper(fc.Name)
	if name == "COUNT" {
		if fc.Star {
			return codec.Int(int64(len(members))), nil
		}
		count := int64(0)
		for _, r := range members {
			v, err := Eval(r, fc.Args[0])
			if err != nil {
				return codec.Value{}, err
			}
			if !v.IsNull() {
				count++
			}
		}
		return codec.Int(count), nil
	}
	if len(fc.Args) != 1 {
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "%s expects exactly one argument", name)
	}
	arg := fc.Args[0]
	switch name {
	case "SUM", "AVG":
		sum := 0.0
		n := 0
		allInt := true
		for _, r := range members {
			v, err := Eval(r, arg)
			if err != nil {
				return codec.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			f, ok := asFloat(v)
			if !ok {
				return codec.Value{}, typeErr("%s expects a numeric argument", name)
			}
			if v.Kind != codec.KindInt {
				allInt = false
			}
			sum += f
			n++
		}
		if n == 0 {
			return codec.Null(), nil
		}
		if name == "AVG" {
			return codec.Real(sum / float64(n)), nil
		}
		if allInt {
			return codec.Int(int64(sum)), nil
		}
		return codec.Real(sum), nil
	case "MIN", "MAX":
		var best codec.Value
		have := false
		for _, r := range members {
			v, err := Eval(r, arg)
			if err != nil {
				return codec.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			if !have {
				best = v
				have = true
				continue
			}
			c := compareValues(v, best)
			if (name == "MIN" && c < 0) || (name == "MAX" && c > 0) {
				best = v
			}
		}
		if !have {
			return codec.Null(), nil
		}
		return best, nil
	default:
		return codec.Value{}, dberr.New(dberr.KindUnsupported, "unsupported aggregate %s", name)
	}
}

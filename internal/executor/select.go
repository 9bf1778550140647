package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
	"github.com/SimonWaldherr/tinysql-core/internal/pager"
	"github.com/SimonWaldherr/tinysql-core/internal/planner"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// Select runs a full SELECT statement and returns its output column names
// alongside the resulting rows.
func Select(p *pager.Pager, cat *catalog.Catalog, sel *sqlparse.Select) ([]string, []Row, error) {
	base, ok := cat.Table(sel.From.Table)
	if !ok {
		return nil, nil, unknownTableErr(sel.From.Table)
	}
	alias := sel.From.Alias
	if alias == "" {
		alias = sel.From.Table
	}

	whereForBase := sel.Where
	if len(sel.Joins) > 0 {
		// A WHERE clause spanning joined tables can't seed a single-table
		// access path; fall back to a plain scan and let filterRows apply
		// the whole predicate after the join.
		whereForBase = nil
	}
	rows, err := chooseAndFetch(p, cat, base, alias, whereForBase)
	if err != nil {
		return nil, nil, err
	}

	// leftCols tracks the accumulated left-side schema across a chain of
	// joins independent of how many rows are currently in rows, since an
	// empty intermediate result still needs its schema to null-extend a
	// RIGHT or FULL join.
	leftCols := rowSchema(sel.From.Table, alias, base.Columns)

	for _, j := range sel.Joins {
		right, err := fetchFrom(p, cat, j.Item)
		if err != nil {
			return nil, nil, err
		}
		rightCols := emptySchema(cat, j.Item)
		rows, err = NestedLoopJoin(j.Kind, rows, right, j.On, leftCols, rightCols)
		if err != nil {
			return nil, nil, err
		}
		leftCols = append(append([]ColRef{}, leftCols...), rightCols...)
	}

	if sel.Where != nil {
		rows, err = filterRows(rows, sel.Where)
		if err != nil {
			return nil, nil, err
		}
	}

	aggregated := len(sel.GroupBy) > 0 || selectHasAggregate(sel)

	var outCols []string
	var outRows []Row
	if aggregated {
		projExprs := make([]sqlparse.Expr, len(sel.Projs))
		for i, it := range sel.Projs {
			if it.Star {
				return nil, nil, dberr.New(dberr.KindUnsupported, "SELECT * cannot be combined with aggregation")
			}
			projExprs[i] = it.Expr
		}
		outRows, err = GroupAggregate(rows, sel.GroupBy, sel.Having, projExprs)
		if err != nil {
			return nil, nil, err
		}
		outCols = projectionNames(sel.Projs, nil)
		outRows = attachOutputSchema(outRows, outCols)
	} else {
		var baseCols []ColRef
		if len(rows) > 0 {
			baseCols = rows[0].Cols
		}
		outCols = projectionNames(sel.Projs, baseCols)
		outRows, err = projectRows(rows, sel.Projs, baseCols)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(sel.OrderBy) > 0 {
		outRows, err = Sort(outRows, sel.OrderBy)
		if err != nil {
			return nil, nil, err
		}
	}

	if sel.Distinct {
		outRows = distinctRows(outRows)
	}

	outRows = LimitOffset(outRows, sel.Limit, sel.Offset)
	return outCols, outRows, nil
}

func selectHasAggregate(sel *sqlparse.Select) bool {
	for _, it := range sel.Projs {
		if exprHasAggregate(it.Expr) {
			return true
		}
	}
	return exprHasAggregate(sel.Having)
}

func exprHasAggregate(e sqlparse.Expr) bool {
	switch n := e.(type) {
	case nil:
		return false
	case *sqlparse.FuncCall:
		if isAggregateName(n.Name) {
			return true
		}
		for _, a := range n.Args {
			if exprHasAggregate(a) {
				return true
			}
		}
		return false
	case *sqlparse.Unary:
		return exprHasAggregate(n.Expr)
	case *sqlparse.Binary:
		return exprHasAggregate(n.Left) || exprHasAggregate(n.Right)
	case *sqlparse.IsNull:
		return exprHasAggregate(n.Expr)
	case *sqlparse.Between:
		return exprHasAggregate(n.Expr) || exprHasAggregate(n.Low) || exprHasAggregate(n.High)
	case *sqlparse.In:
		if exprHasAggregate(n.Expr) {
			return true
		}
		for _, it := range n.List {
			if exprHasAggregate(it) {
				return true
			}
		}
		return false
	case *sqlparse.Like:
		return exprHasAggregate(n.Expr) || exprHasAggregate(n.Pattern)
	default:
		return false
	}
}

func fetchFrom(p *pager.Pager, cat *catalog.Catalog, item sqlparse.FromItem) ([]Row, error) {
	t, ok := cat.Table(item.Table)
	if !ok {
		return nil, unknownTableErr(item.Table)
	}
	alias := item.Alias
	if alias == "" {
		alias = item.Table
	}
	return TableScan(p, t, alias)
}

func emptySchema(cat *catalog.Catalog, item sqlparse.FromItem) []ColRef {
	t, ok := cat.Table(item.Table)
	if !ok {
		return nil
	}
	alias := item.Alias
	if alias == "" {
		alias = item.Table
	}
	return rowSchema(item.Table, alias, t.Columns)
}

// chooseAndFetch resolves a table reference via the planner's cost model.
// The full predicate is still applied afterward by filterRows regardless
// of which access path ran, so an imprecise or partial access path never
// affects correctness, only how many candidate rows get decoded.
func chooseAndFetch(p *pager.Pager, cat *catalog.Catalog, t *catalog.TableDef, alias string, where sqlparse.Expr) ([]Row, error) {
	indexes := cat.IndexesOn(t.Name)
	path := planner.Choose(t, indexes, cat.StatsFor, where)
	if path.Kind == planner.PathTableScan {
		return TableScan(p, t, alias)
	}
	rowids, err := ResolveAccessPath(p, path)
	if err != nil {
		return nil, err
	}
	return RowidFetch(p, t, alias, rowids)
}

func filterRows(rows []Row, where sqlparse.Expr) ([]Row, error) {
	out := rows[:0]
	for _, r := range rows {
		v, err := Eval(r, where)
		if err != nil {
			return nil, err
		}
		if triState(v) == 1 {
			out = append(out, r)
		}
	}
	return out, nil
}

func projectionNames(projs []sqlparse.SelectItem, baseCols []ColRef) []string {
	var out []string
	for _, it := range projs {
		if it.Star {
			for _, c := range baseCols {
				out = append(out, c.Name)
			}
			continue
		}
		if it.Alias != "" {
			out = append(out, it.Alias)
			continue
		}
		out = append(out, exprLabel(it.Expr))
	}
	return out
}

func exprLabel(e sqlparse.Expr) string {
	switch n := e.(type) {
	case *sqlparse.VarRef:
		return n.Name
	case *sqlparse.FuncCall:
		return n.Name
	default:
		return "expr"
	}
}

// attachOutputSchema assigns the projected output column names to rows
// that were built without a Cols schema (aggregate results), so later
// stages like ORDER BY and DISTINCT can resolve them by bare name.
func attachOutputSchema(rows []Row, names []string) []Row {
	cols := make([]ColRef, len(names))
	for i, n := range names {
		cols[i] = ColRef{Name: n}
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{Vals: r.Vals, Cols: cols}
	}
	return out
}

func projectRows(rows []Row, projs []sqlparse.SelectItem, baseCols []ColRef) ([]Row, error) {
	out := make([]Row, len(rows))
	for ri, r := range rows {
		row, err := projectOne(r, projs)
		if err != nil {
			return nil, err
		}
		out[ri] = row
	}
	return out, nil
}

func projectOne(r Row, projs []sqlparse.SelectItem) (Row, error) {
	var outCols []ColRef
	var outVals []codec.Value
	for _, it := range projs {
		if it.Star {
			outCols = append(outCols, r.Cols...)
			outVals = append(outVals, r.Vals...)
			continue
		}
		v, err := Eval(r, it.Expr)
		if err != nil {
			return Row{}, err
		}
		name := it.Alias
		if name == "" {
			name = exprLabel(it.Expr)
		}
		outCols = append(outCols, ColRef{Name: name})
		outVals = append(outVals, v)
	}
	return Row{Rowid: r.Rowid, Cols: outCols, Vals: outVals}, nil
}

func distinctRows(rows []Row) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := rowKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func rowKey(r Row) string {
	return string(codec.EncodeRow(r.Vals))
}

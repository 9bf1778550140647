// Package planner chooses an access path for a WHERE expression against a
// table's index catalog: a plain table scan, or one of several
// index-driven strategies, selected by a small cost model.
package planner

import (
	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// PathKind tags which AccessPath variant is in play; the executor
// switches on it the way the spec's "tagged union" wording describes.
type PathKind int

const (
	PathTableScan PathKind = iota
	PathIndexEq
	PathIndexRange
	PathIndexPrefixRange
	PathIndexOr
	PathIndexAnd
)

// Bound is one side of a range: nil Value means unbounded.
type Bound struct {
	Value     any
	Inclusive bool
}

// AccessPath is the planner's chosen strategy for producing candidate
// rowids/rows for a table reference.
type AccessPath struct {
	Kind  PathKind
	Index *catalog.IndexDef

	// PathIndexEq / PathIndexPrefixRange: one equality value per leading
	// indexed column, in index column order.
	EqValues []any

	// PathIndexRange / the trailing range of PathIndexPrefixRange.
	Low, High *Bound

	// PathIndexOr / PathIndexAnd.
	Branches []AccessPath

	// EstCost is the estimated cost used to pick among candidates; kept on
	// the winning path for diagnostics/tests.
	EstCost float64
}

const (
	costTableScanBase  = 100.0
	costIndexEqBase    = 14.0
	costIndexRangeBase = 30.0
	costProbeOverhead  = 2.0
)

// StatsLookup resolves planner-facing cardinality stats for an index, if
// any have been recorded.
type StatsLookup func(indexID uint64) (catalog.Stats, bool)

// Choose selects an access path for where over table, given its indexes
// and a stats lookup. A nil where always yields TableScan.
func Choose(table *catalog.TableDef, indexes []*catalog.IndexDef, stats StatsLookup, where sqlparse.Expr) AccessPath {
	tableScan := AccessPath{Kind: PathTableScan, EstCost: tableScanCost(table, indexes, stats)}
	if where == nil {
		return tableScan
	}

	terms := flattenAnd(where)
	conjuncts := classifyConjuncts(terms)

	best := tableScan
	for _, ix := range indexes {
		if cand, ok := planIndexForConjuncts(ix, conjuncts, stats); ok && cand.EstCost < best.EstCost {
			best = cand
		}
	}

	if andPath, ok := planIndexAnd(indexes, conjuncts, stats); ok && andPath.EstCost < best.EstCost {
		best = andPath
	}

	if orPath, ok := planOr(table, indexes, stats, where); ok && orPath.EstCost < best.EstCost {
		best = orPath
	}

	return best
}

func tableScanCost(table *catalog.TableDef, indexes []*catalog.IndexDef, stats StatsLookup) float64 {
	for _, ix := range indexes {
		if s, ok := stats(ix.ID); ok && s.RowCount > 0 {
			return float64(s.RowCount)
		}
	}
	return costTableScanBase
}

// conjunct is a normalized single-column predicate: col OP const, an IN
// list (treated as an OR of equalities), or a BETWEEN range.
type conjunct struct {
	col      string
	eq       []any // non-empty for equality / IN
	low      *Bound
	high     *Bound
	hasRange bool
}

func flattenAnd(e sqlparse.Expr) []sqlparse.Expr {
	if b, ok := e.(*sqlparse.Binary); ok && b.Op == "AND" {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []sqlparse.Expr{e}
}

func classifyConjuncts(terms []sqlparse.Expr) []conjunct {
	var out []conjunct
	for _, t := range terms {
		if c, ok := classifyOne(t); ok {
			out = append(out, c)
		}
	}
	return out
}

func classifyOne(e sqlparse.Expr) (conjunct, bool) {
	switch n := e.(type) {
	case *sqlparse.Binary:
		col, constVal, flip, ok := colConst(n.Left, n.Right)
		if !ok {
			return conjunct{}, false
		}
		op := n.Op
		if flip {
			op = flipOp(op)
		}
		switch op {
		case "=":
			return conjunct{col: col, eq: []any{constVal}}, true
		case "<":
			return conjunct{col: col, high: &Bound{Value: constVal, Inclusive: false}, hasRange: true}, true
		case "<=":
			return conjunct{col: col, high: &Bound{Value: constVal, Inclusive: true}, hasRange: true}, true
		case ">":
			return conjunct{col: col, low: &Bound{Value: constVal, Inclusive: false}, hasRange: true}, true
		case ">=":
			return conjunct{col: col, low: &Bound{Value: constVal, Inclusive: true}, hasRange: true}, true
		}
		return conjunct{}, false
	case *sqlparse.Between:
		ref, ok := n.Expr.(*sqlparse.VarRef)
		low, lok := literalVal(n.Low)
		high, hok := literalVal(n.High)
		if !ok || n.Negate || !lok || !hok {
			return conjunct{}, false
		}
		return conjunct{col: ref.Name, low: &Bound{Value: low, Inclusive: true}, high: &Bound{Value: high, Inclusive: true}, hasRange: true}, true
	case *sqlparse.In:
		ref, ok := n.Expr.(*sqlparse.VarRef)
		if !ok || n.Negate {
			return conjunct{}, false
		}
		vals := make([]any, 0, len(n.List))
		for _, e := range n.List {
			v, ok := literalVal(e)
			if !ok {
				return conjunct{}, false
			}
			vals = append(vals, v)
		}
		return conjunct{col: ref.Name, eq: vals}, true
	default:
		return conjunct{}, false
	}
}

func colConst(left, right sqlparse.Expr) (col string, val any, flipped bool, ok bool) {
	if ref, isRef := left.(*sqlparse.VarRef); isRef {
		if v, isLit := literalVal(right); isLit {
			return ref.Name, v, false, true
		}
	}
	if ref, isRef := right.(*sqlparse.VarRef); isRef {
		if v, isLit := literalVal(left); isLit {
			return ref.Name, v, true, true
		}
	}
	return "", nil, false, false
}

func literalVal(e sqlparse.Expr) (any, bool) {
	if lit, ok := e.(*sqlparse.Literal); ok {
		return lit.Val, true
	}
	return nil, false
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// planIndexForConjuncts tries to build the strongest access path on one
// index from the available conjuncts, preferring full/longest equality
// match, then an equality-prefix plus trailing range, then a single-
// column equality/range on the index's leading column.
func planIndexForConjuncts(ix *catalog.IndexDef, conjuncts []conjunct, stats StatsLookup) (AccessPath, bool) {
	byCol := make(map[string]conjunct)
	for _, c := range conjuncts {
		if _, exists := byCol[c.col]; !exists {
			byCol[c.col] = c
		}
	}

	var eqVals []any
	matchedPrefix := 0
	for _, col := range ix.Columns {
		c, ok := byCol[col]
		if !ok || len(c.eq) != 1 {
			break
		}
		eqVals = append(eqVals, c.eq[0])
		matchedPrefix++
	}

	s, hasStats := stats(ix.ID)

	if matchedPrefix == len(ix.Columns) && matchedPrefix > 0 {
		cost := costIndexEqBase
		if hasStats && s.DistinctKeys > 0 {
			cost = float64(s.RowCount)/float64(s.DistinctKeys) + costProbeOverhead
		}
		return AccessPath{Kind: PathIndexEq, Index: ix, EqValues: eqVals, EstCost: cost}, true
	}

	if matchedPrefix > 0 {
		var trailing *conjunct
		if matchedPrefix < len(ix.Columns) {
			if c, ok := byCol[ix.Columns[matchedPrefix]]; ok && c.hasRange {
				trailing = &c
			}
		}
		cost := costIndexRangeBase * 2 // prefix-only composite probes are penalized (bucket scan + filter)
		if hasStats && matchedPrefix-1 < len(s.PrefixDistinctCounts) {
			fanout := s.PrefixDistinctCounts[matchedPrefix-1]
			if fanout > 0 {
				cost = float64(s.RowCount)/float64(fanout) + costProbeOverhead
			}
		}
		path := AccessPath{Kind: PathIndexPrefixRange, Index: ix, EqValues: eqVals, EstCost: cost}
		if trailing != nil {
			path.Low, path.High = trailing.low, trailing.high
		}
		return path, true
	}

	if len(ix.Columns) == 1 {
		c, ok := byCol[ix.Columns[0]]
		if !ok {
			return AccessPath{}, false
		}
		if len(c.eq) == 1 {
			cost := costIndexEqBase
			if hasStats && s.DistinctKeys > 0 {
				cost = float64(s.RowCount)/float64(s.DistinctKeys) + costProbeOverhead
			}
			return AccessPath{Kind: PathIndexEq, Index: ix, EqValues: []any{c.eq[0]}, EstCost: cost}, true
		}
		if len(c.eq) > 1 {
			return planInList(ix, c.eq, stats), true
		}
		if c.hasRange {
			cost := costIndexRangeBase
			if hasStats && s.RowCount > 0 {
				cost = float64(s.RowCount)*rangeSelectivity(c.low, c.high) + costProbeOverhead
			}
			return AccessPath{Kind: PathIndexRange, Index: ix, Low: c.low, High: c.high, EstCost: cost}, true
		}
	}
	return AccessPath{}, false
}

func rangeSelectivity(low, high *Bound) float64 {
	switch {
	case low != nil && high != nil:
		return 0.25
	case low != nil || high != nil:
		return 0.33
	default:
		return 1.0
	}
}

func planInList(ix *catalog.IndexDef, vals []any, stats StatsLookup) AccessPath {
	branches := make([]AccessPath, len(vals))
	var total float64
	s, hasStats := stats(ix.ID)
	for i, v := range vals {
		cost := costIndexEqBase
		if hasStats && s.DistinctKeys > 0 {
			cost = float64(s.RowCount)/float64(s.DistinctKeys) + costProbeOverhead
		}
		branches[i] = AccessPath{Kind: PathIndexEq, Index: ix, EqValues: []any{v}, EstCost: cost}
		total += cost
	}
	return AccessPath{Kind: PathIndexOr, Branches: branches, EstCost: total}
}

// planIndexAnd combines independent single-column indexable terms across
// distinct indexes, when at least two qualify.
func planIndexAnd(indexes []*catalog.IndexDef, conjuncts []conjunct, stats StatsLookup) (AccessPath, bool) {
	var branches []AccessPath
	var total float64
	usedCols := make(map[string]bool)
	for _, ix := range indexes {
		if len(ix.Columns) != 1 || usedCols[ix.Columns[0]] {
			continue
		}
		for _, c := range conjuncts {
			if c.col != ix.Columns[0] {
				continue
			}
			if len(c.eq) == 1 {
				cost := costIndexEqBase
				branches = append(branches, AccessPath{Kind: PathIndexEq, Index: ix, EqValues: []any{c.eq[0]}, EstCost: cost})
				total += cost
				usedCols[c.col] = true
			} else if c.hasRange {
				cost := costIndexRangeBase
				branches = append(branches, AccessPath{Kind: PathIndexRange, Index: ix, Low: c.low, High: c.high, EstCost: cost})
				total += cost
				usedCols[c.col] = true
			}
			break
		}
	}
	if len(branches) < 2 {
		return AccessPath{}, false
	}
	return AccessPath{Kind: PathIndexAnd, Branches: branches, EstCost: total + costProbeOverhead}, true
}

// planOr builds an IndexOr plan when the top-level WHERE is a disjunction
// and every branch independently resolves to a non-TableScan path.
func planOr(table *catalog.TableDef, indexes []*catalog.IndexDef, stats StatsLookup, where sqlparse.Expr) (AccessPath, bool) {
	b, ok := where.(*sqlparse.Binary)
	if !ok || b.Op != "OR" {
		return AccessPath{}, false
	}
	branches := flattenOr(where)
	var paths []AccessPath
	var total float64
	for _, br := range branches {
		conjuncts := classifyConjuncts(flattenAnd(br))
		found := false
		for _, ix := range indexes {
			if p, ok := planIndexForConjuncts(ix, conjuncts, stats); ok {
				paths = append(paths, p)
				total += p.EstCost
				found = true
				break
			}
		}
		if !found {
			return AccessPath{}, false
		}
	}
	return AccessPath{Kind: PathIndexOr, Branches: paths, EstCost: total}, true
}

func flattenOr(e sqlparse.Expr) []sqlparse.Expr {
	if b, ok := e.(*sqlparse.Binary); ok && b.Op == "OR" {
		return append(flattenOr(b.Left), flattenOr(b.Right)...)
	}
	return []sqlparse.Expr{e}
}

package executor

import (
	"github.com/SimonWaldherr/tinysql-core/internal/codec"
	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// NestedLoopJoin evaluates on against every (left, right) pair. Outer joins
// track which side's rows went unmatched and null-extend them once at the
// end of each outer loop, mirroring the teacher's whole-set join helpers
// rather than a tuple-at-a-time hash or merge join. leftCols and rightCols
// name each side's schema independent of how many rows either side
// produced, since an empty side still needs its column list to null-extend.
func NestedLoopJoin(kind sqlparse.JoinType, left, right []Row, on sqlparse.Expr, leftCols, rightCols []ColRef) ([]Row, error) {
	switch kind {
	case sqlparse.JoinCross:
		return crossJoin(left, right), nil
	case sqlparse.JoinInner:
		return innerJoin(left, right, on)
	case sqlparse.JoinLeft:
		return outerJoin(left, right, on, rightCols, true, false)
	case sqlparse.JoinRight:
		return outerJoin(right, left, on, leftCols, false, true)
	case sqlparse.JoinFull:
		return fullJoin(left, right, on, leftCols, rightCols)
	default:
		return innerJoin(left, right, on)
	}
}

func crossJoin(left, right []Row) []Row {
	out := make([]Row, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			out = append(out, concatRow(l, r))
		}
	}
	return out
}

func innerJoin(left, right []Row, on sqlparse.Expr) ([]Row, error) {
	var out []Row
	for _, l := range left {
		for _, r := range right {
			combined := concatRow(l, r)
			ok, err := matches(combined, on)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, combined)
			}
		}
	}
	return out, nil
}

// outerJoin preserves every "driver" row; when driverIsLeft is true driver is
// the logical left side, producing LEFT JOIN semantics against other. When
// the caller swaps (driver=right, other=left) for RIGHT JOIN, otherCols
// names the columns belonging to whichever side needs null-extension, so
// the caller always passes that side's own schema regardless of the swap.
func outerJoin(driver, other []Row, on sqlparse.Expr, otherCols []ColRef, driverIsLeft, _ bool) ([]Row, error) {
	var out []Row
	for _, d := range driver {
		matched := false
		for _, o := range other {
			var combined Row
			if driverIsLeft {
				combined = concatRow(d, o)
			} else {
				combined = concatRow(o, d)
			}
			ok, err := matches(combined, on)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				out = append(out, combined)
			}
		}
		if !matched {
			nullSide := nullRow(otherCols)
			if driverIsLeft {
				out = append(out, concatRow(d, nullSide))
			} else {
				out = append(out, concatRow(nullSide, d))
			}
		}
	}
	return out, nil
}

func fullJoin(left, right []Row, on sqlparse.Expr, leftCols, rightCols []ColRef) ([]Row, error) {
	var out []Row
	rightMatched := make([]bool, len(right))
	for _, l := range left {
		matched := false
		for ri, r := range right {
			combined := concatRow(l, r)
			ok, err := matches(combined, on)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				rightMatched[ri] = true
				out = append(out, combined)
			}
		}
		if !matched {
			out = append(out, concatRow(l, nullRow(rightCols)))
		}
	}
	for ri, r := range right {
		if !rightMatched[ri] {
			out = append(out, concatRow(nullRow(leftCols), r))
		}
	}
	return out, nil
}

func matches(row Row, on sqlparse.Expr) (bool, error) {
	if on == nil {
		return true, nil
	}
	v, err := Eval(row, on)
	if err != nil {
		return false, err
	}
	return triState(v) == 1, nil
}

func nullRow(cols []ColRef) Row {
	vals := make([]codec.Value, len(cols))
	for i := range vals {
		vals[i] = codec.Null()
	}
	return Row{Cols: cols, Vals: vals}
}

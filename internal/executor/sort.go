package executor

import (
	"sort"

	"github.com/SimonWaldherr/tinysql-core/internal/sqlparse"
)

// Sort orders rows by the given ORDER BY items using a stable sort so that
// ties preserve the incoming order, matching SQLite's documented behavior
// for an unspecified tiebreak.
func Sort(rows []Row, items []sqlparse.OrderItem) ([]Row, error) {
	if len(items) == 0 {
		return rows, nil
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, it := range items {
			a, err := Eval(rows[i], it.Expr)
			if err != nil {
				sortErr = err
				return false
			}
			b, err := Eval(rows[j], it.Expr)
			if err != nil {
				sortErr = err
				return false
			}
			c := compareValues(a, b)
			if it.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return rows, nil
}

// LimitOffset applies OFFSET then LIMIT to an already-ordered row set.
func LimitOffset(rows []Row, limit, offset *int64) []Row {
	if offset != nil {
		n := *offset
		if n < 0 {
			n = 0
		}
		if n >= int64(len(rows)) {
			return nil
		}
		rows = rows[n:]
	}
	if limit != nil {
		n := *limit
		if n < 0 {
			n = 0
		}
		if n < int64(len(rows)) {
			rows = rows[:n]
		}
	}
	return rows
}

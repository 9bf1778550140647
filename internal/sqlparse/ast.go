package sqlparse

import "github.com/SimonWaldherr/tinysql-core/internal/catalog"

// Expr is the root type for all parsed expressions.
type Expr interface{}

type (
	// VarRef refers to a column, optionally table-qualified (Table != "").
	VarRef struct {
		Table string
		Name  string
	}
	// Literal holds a constant: nil, int64, float64, string, or bool.
	Literal struct{ Val any }
	// Unary is a prefix operator: "-" or "NOT".
	Unary struct {
		Op   string
		Expr Expr
	}
	// Binary is an infix operator.
	Binary struct {
		Op          string
		Left, Right Expr
	}
	// IsNull is IS [NOT] NULL.
	IsNull struct {
		Expr   Expr
		Negate bool
	}
	// Between is [NOT] BETWEEN low AND high.
	Between struct {
		Expr       Expr
		Low, High  Expr
		Negate     bool
	}
	// In is [NOT] IN (list).
	In struct {
		Expr   Expr
		List   []Expr
		Negate bool
	}
	// Like is [NOT] LIKE pattern.
	Like struct {
		Expr    Expr
		Pattern Expr
		Negate  bool
	}
	// FuncCall is a scalar or aggregate function call.
	FuncCall struct {
		Name string
		Args []Expr
		Star bool // COUNT(*)
	}
)

// Statement is the root type for all parsed statements.
type Statement interface{}

type ColumnSpec struct {
	Name string
	Type catalog.ColType
}

type CreateTable struct {
	Name string
	Cols []ColumnSpec
}

type DropTable struct{ Name string }

type CreateIndex struct {
	Name        string
	Table       string
	Columns     []string
	Unique      bool
	IfNotExists bool
}

type DropIndex struct{ Name string }

type Insert struct {
	Table string
	Cols  []string
	Rows  [][]Expr
}

type Update struct {
	Table string
	Cols  []string
	Vals  []Expr
	Where Expr
}

type Delete struct {
	Table string
	Where Expr
}

type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

type FromItem struct {
	Table string
	Alias string
}

type JoinClause struct {
	Kind  JoinType
	Item  FromItem
	On    Expr // nil for CROSS JOIN
}

type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool // SELECT *
}

type OrderItem struct {
	Expr Expr
	Desc bool
}

type Select struct {
	Distinct bool
	Projs    []SelectItem
	From     FromItem
	Joins    []JoinClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

type Begin struct{}
type Commit struct{}
type Rollback struct{}

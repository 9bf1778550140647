package sqlparse

import (
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tinysql-core/internal/catalog"
	"github.com/SimonWaldherr/tinysql-core/internal/dberr"
)

// Parser holds the lexer and current/peek tokens for recursive-descent
// parsing, the same two-token lookahead shape the teacher's engine parser
// uses.
type Parser struct {
	lx   *lexer
	cur  token
	peek token
}

func NewParser(sql string) *Parser {
	p := &Parser{lx: newLexer(sql)}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()
	return p
}

func (p *Parser) advance() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *Parser) errf(format string, a ...any) error {
	return dberr.AtOffset(p.cur.Pos, format, a...)
}

func (p *Parser) atKeyword(kw string) bool { return p.cur.Typ == tKeyword && p.cur.Val == kw }
func (p *Parser) atSymbol(sym string) bool { return p.cur.Typ == tSymbol && p.cur.Val == sym }

func (p *Parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errf("expected keyword %s, found %q", kw, p.cur.Val)
	}
	p.advance()
	return nil
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.atSymbol(sym) {
		return p.errf("expected %q, found %q", sym, p.cur.Val)
	}
	p.advance()
	return nil
}

// identLike accepts an identifier, or a keyword used in identifier
// position, so common column names (count, value, etc.) keep working.
func (p *Parser) identLike() (string, error) {
	if p.cur.Typ == tIdent || p.cur.Typ == tKeyword {
		v := p.cur.Val
		p.advance()
		return v, nil
	}
	return "", p.errf("expected identifier, found %q", p.cur.Val)
}

// ParseAll splits sql on top-level ';' and parses each statement.
func ParseAll(sql string) ([]Statement, error) {
	var out []Statement
	for _, part := range splitStatements(sql) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p := NewParser(part)
		stmt, err := p.ParseStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// splitStatements splits on ';' that are not inside a string literal.
func splitStatements(sql string) []string {
	var parts []string
	var cur strings.Builder
	inStr := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c == '\'' {
			inStr = !inStr
		}
		if c == ';' && !inStr {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, cur.String())
	}
	return parts
}

// ParseStatement parses exactly one statement from the parser's input.
func (p *Parser) ParseStatement() (Statement, error) {
	switch {
	case p.atKeyword("CREATE"):
		return p.parseCreate()
	case p.atKeyword("DROP"):
		return p.parseDrop()
	case p.atKeyword("INSERT"):
		return p.parseInsert()
	case p.atKeyword("UPDATE"):
		return p.parseUpdate()
	case p.atKeyword("DELETE"):
		return p.parseDelete()
	case p.atKeyword("SELECT"):
		return p.parseSelect()
	case p.atKeyword("BEGIN"):
		p.advance()
		if p.atKeyword("TRANSACTION") {
			p.advance()
		}
		return &Begin{}, nil
	case p.atKeyword("COMMIT"):
		p.advance()
		return &Commit{}, nil
	case p.atKeyword("ROLLBACK"):
		p.advance()
		return &Rollback{}, nil
	default:
		return nil, p.errf("unexpected token %q at start of statement", p.cur.Val)
	}
}

func (p *Parser) parseCreate() (Statement, error) {
	p.advance() // CREATE
	if p.atKeyword("TABLE") {
		return p.parseCreateTable()
	}
	unique := false
	if p.atKeyword("UNIQUE") {
		unique = true
		p.advance()
	}
	if p.atKeyword("INDEX") {
		return p.parseCreateIndex(unique)
	}
	return nil, p.errf("expected TABLE or INDEX after CREATE, found %q", p.cur.Val)
}

func (p *Parser) parseCreateTable() (*CreateTable, error) {
	p.advance() // TABLE
	name, err := p.identLike()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []ColumnSpec
	for {
		cname, err := p.identLike()
		if err != nil {
			return nil, err
		}
		ctype, err := p.parseColType()
		if err != nil {
			return nil, err
		}
		cols = append(cols, ColumnSpec{Name: cname, Type: ctype})
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateTable{Name: name, Cols: cols}, nil
}

func (p *Parser) parseColType() (catalog.ColType, error) {
	switch {
	case p.atKeyword("INT"), p.atKeyword("INTEGER"):
		p.advance()
		return catalog.ColInt, nil
	case p.atKeyword("REAL"), p.atKeyword("FLOAT"), p.atKeyword("DOUBLE"):
		p.advance()
		return catalog.ColReal, nil
	case p.atKeyword("TEXT"), p.atKeyword("STRING"), p.atKeyword("VARCHAR"):
		p.advance()
		if p.atSymbol("(") {
			p.advance()
			for !p.atSymbol(")") {
				p.advance()
			}
			p.advance()
		}
		return catalog.ColText, nil
	default:
		return 0, p.errf("expected column type, found %q", p.cur.Val)
	}
}

func (p *Parser) parseCreateIndex(unique bool) (*CreateIndex, error) {
	p.advance() // INDEX
	ifNotExists := false
	if p.atKeyword("IF") {
		p.advance()
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	name, err := p.identLike()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.identLike()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		c, err := p.identLike()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateIndex{Name: name, Table: table, Columns: cols, Unique: unique, IfNotExists: ifNotExists}, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.advance() // DROP
	switch {
	case p.atKeyword("TABLE"):
		p.advance()
		name, err := p.identLike()
		if err != nil {
			return nil, err
		}
		return &DropTable{Name: name}, nil
	case p.atKeyword("INDEX"):
		p.advance()
		name, err := p.identLike()
		if err != nil {
			return nil, err
		}
		return &DropIndex{Name: name}, nil
	default:
		return nil, p.errf("expected TABLE or INDEX after DROP, found %q", p.cur.Val)
	}
}

func (p *Parser) parseInsert() (*Insert, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identLike()
	if err != nil {
		return nil, err
	}
	var cols []string
	if p.atSymbol("(") {
		p.advance()
		for {
			c, err := p.identLike()
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]Expr
	for {
		row, err := p.parseExprTuple()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	return &Insert{Table: table, Cols: cols, Rows: rows}, nil
}

func (p *Parser) parseExprTuple() ([]Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var exprs []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return exprs, nil
}

func (p *Parser) parseUpdate() (*Update, error) {
	p.advance() // UPDATE
	table, err := p.identLike()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	var cols []string
	var vals []Expr
	for {
		c, err := p.identLike()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
		vals = append(vals, v)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	var where Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &Update{Table: table, Cols: cols, Vals: vals, Where: where}, nil
}

func (p *Parser) parseDelete() (*Delete, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identLike()
	if err != nil {
		return nil, err
	}
	var where Expr
	if p.atKeyword("WHERE") {
		p.advance()
		where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &Delete{Table: table, Where: where}, nil
}

func (p *Parser) parseSelect() (*Select, error) {
	p.advance() // SELECT
	sel := &Select{}
	if p.atKeyword("DISTINCT") {
		sel.Distinct = true
		p.advance()
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Projs = append(sel.Projs, item)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseFromItem()
	if err != nil {
		return nil, err
	}
	sel.From = from

	for p.isJoinStart() {
		j, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		sel.Joins = append(sel.Joins, j)
	}

	if p.atKeyword("WHERE") {
		p.advance()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}
	if p.atKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if p.atKeyword("HAVING") {
		p.advance()
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = h
	}
	if p.atKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.atKeyword("DESC") {
				desc = true
				p.advance()
			} else if p.atKeyword("ASC") {
				p.advance()
			}
			sel.OrderBy = append(sel.OrderBy, OrderItem{Expr: e, Desc: desc})
			if p.atSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if p.atKeyword("LIMIT") {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}
	if p.atKeyword("OFFSET") {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		sel.Offset = &n
	}
	return sel, nil
}

func (p *Parser) parseIntLiteral() (int64, error) {
	if p.cur.Typ != tNumber {
		return 0, p.errf("expected number, found %q", p.cur.Val)
	}
	n, err := strconv.ParseInt(p.cur.Val, 10, 64)
	if err != nil {
		return 0, p.errf("invalid integer %q", p.cur.Val)
	}
	p.advance()
	return n, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.atSymbol("*") {
		p.advance()
		return SelectItem{Star: true}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.atKeyword("AS") {
		p.advance()
		a, err := p.identLike()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = a
	} else if p.cur.Typ == tIdent {
		a, _ := p.identLike()
		item.Alias = a
	}
	return item, nil
}

func (p *Parser) parseFromItem() (FromItem, error) {
	name, err := p.identLike()
	if err != nil {
		return FromItem{}, err
	}
	item := FromItem{Table: name, Alias: name}
	if p.atKeyword("AS") {
		p.advance()
		a, err := p.identLike()
		if err != nil {
			return FromItem{}, err
		}
		item.Alias = a
	} else if p.cur.Typ == tIdent {
		a, _ := p.identLike()
		item.Alias = a
	}
	return item, nil
}

func (p *Parser) isJoinStart() bool {
	return p.atKeyword("JOIN") || p.atKeyword("INNER") || p.atKeyword("LEFT") ||
		p.atKeyword("RIGHT") || p.atKeyword("FULL") || p.atKeyword("CROSS")
}

func (p *Parser) parseJoin() (JoinClause, error) {
	kind := JoinInner
	switch {
	case p.atKeyword("INNER"):
		p.advance()
	case p.atKeyword("LEFT"):
		kind = JoinLeft
		p.advance()
		if p.atKeyword("OUTER") {
			p.advance()
		}
	case p.atKeyword("RIGHT"):
		kind = JoinRight
		p.advance()
		if p.atKeyword("OUTER") {
			p.advance()
		}
	case p.atKeyword("FULL"):
		kind = JoinFull
		p.advance()
		if p.atKeyword("OUTER") {
			p.advance()
		}
	case p.atKeyword("CROSS"):
		kind = JoinCross
		p.advance()
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return JoinClause{}, err
	}
	item, err := p.parseFromItem()
	if err != nil {
		return JoinClause{}, err
	}
	jc := JoinClause{Kind: kind, Item: item}
	if kind != JoinCross {
		if err := p.expectKeyword("ON"); err != nil {
			return JoinClause{}, err
		}
		on, err := p.parseExpr()
		if err != nil {
			return JoinClause{}, err
		}
		jc.On = on
	}
	return jc, nil
}

// ── expressions, precedence climbing ────────────────────────────────────

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.atKeyword("NOT") {
		p.advance()
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Expr: e}, nil
	}
	return p.parsePredicate()
}

// parsePredicate handles comparison-level binary ops plus the postfix
// predicate forms (IS NULL, BETWEEN, IN, LIKE) that all bind at the same
// level above AND/OR/NOT.
func (p *Parser) parsePredicate() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.cur.Typ == tSymbol && isCompareOp(p.cur.Val):
			op := p.cur.Val
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: op, Left: left, Right: right}
		case p.atKeyword("IS"):
			p.advance()
			negate := false
			if p.atKeyword("NOT") {
				negate = true
				p.advance()
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = &IsNull{Expr: left, Negate: negate}
		case p.atKeyword("BETWEEN"):
			p.advance()
			low, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AND"); err != nil {
				return nil, err
			}
			high, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Between{Expr: left, Low: low, High: high}
		case p.atKeyword("NOT"):
			if p.peek.Typ == tKeyword && (p.peek.Val == "BETWEEN" || p.peek.Val == "IN" || p.peek.Val == "LIKE") {
				p.advance()
				negKw := p.cur.Val
				p.advance()
				left, err = p.parseNegatedPredicate(left, negKw)
				if err != nil {
					return nil, err
				}
				continue
			}
			return left, nil
		case p.atKeyword("IN"):
			p.advance()
			list, err := p.parseExprTuple()
			if err != nil {
				return nil, err
			}
			left = &In{Expr: left, List: list}
		case p.atKeyword("LIKE"):
			p.advance()
			pat, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &Like{Expr: left, Pattern: pat}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseNegatedPredicate(left Expr, kw string) (Expr, error) {
	switch kw {
	case "BETWEEN":
		low, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Between{Expr: left, Low: low, High: high, Negate: true}, nil
	case "IN":
		list, err := p.parseExprTuple()
		if err != nil {
			return nil, err
		}
		return &In{Expr: left, List: list, Negate: true}, nil
	case "LIKE":
		pat, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Like{Expr: left, Pattern: pat, Negate: true}, nil
	default:
		return nil, p.errf("unreachable negated predicate %q", kw)
	}
}

func isCompareOp(s string) bool {
	switch s {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return true
	default:
		return false
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.atSymbol("+") || p.atSymbol("-") {
		op := p.cur.Val
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConcat() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.atSymbol("||") {
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atSymbol("*") || p.atSymbol("/") || p.atSymbol("%") {
		op := p.cur.Val
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.atSymbol("-") {
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", Expr: e}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.cur.Typ == tNumber:
		v := p.cur.Val
		p.advance()
		if strings.Contains(v, ".") {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, p.errf("invalid number %q", v)
			}
			return &Literal{Val: f}, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, p.errf("invalid number %q", v)
		}
		return &Literal{Val: n}, nil
	case p.cur.Typ == tString:
		v := p.cur.Val
		p.advance()
		return &Literal{Val: v}, nil
	case p.atKeyword("NULL"):
		p.advance()
		return &Literal{Val: nil}, nil
	case p.atKeyword("TRUE"):
		p.advance()
		return &Literal{Val: true}, nil
	case p.atKeyword("FALSE"):
		p.advance()
		return &Literal{Val: false}, nil
	case p.atSymbol("("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.cur.Typ == tIdent || p.cur.Typ == tKeyword:
		name := p.cur.Val
		p.advance()
		if p.atSymbol("(") {
			return p.parseFuncCall(name)
		}
		if p.atSymbol(".") {
			p.advance()
			col, err := p.identLike()
			if err != nil {
				return nil, err
			}
			return &VarRef{Table: name, Name: col}, nil
		}
		return &VarRef{Name: name}, nil
	default:
		return nil, p.errf("unexpected token %q in expression", p.cur.Val)
	}
}

func (p *Parser) parseFuncCall(name string) (Expr, error) {
	p.advance() // (
	fc := &FuncCall{Name: name}
	if p.atSymbol("*") {
		fc.Star = true
		p.advance()
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return fc, nil
	}
	if p.atSymbol(")") {
		p.advance()
		return fc, nil
	}
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, a)
		if p.atSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return fc, nil
}

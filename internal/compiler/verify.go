package compiler

import (
	"errors"
	"fmt"
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ErrUnsafeSQL is returned by Verify when compiled SQL contains anything
// other than column predicates against bind parameters.
var ErrUnsafeSQL = errors.New("compiled filter failed verification")

// Verify parses c.SQL as a PostgreSQL WHERE condition and checks that it
// consists only of AND/OR groups of column comparisons against parameters
// and null tests, and that placeholders are consecutive and match c.Params.
// c must use dollar placeholders.
func Verify(c CompiledFilter) error {
	if c.SQL == "" {
		if len(c.Params) != 0 {
			return fmt.Errorf("%w: %d params for empty condition", ErrUnsafeSQL, len(c.Params))
		}
		return nil
	}

	parseResult, err := pg_query.Parse("SELECT 1 WHERE " + c.SQL)
	if err != nil {
		return fmt.Errorf("%w: failed to parse: %v", ErrUnsafeSQL, err)
	}
	if len(parseResult.Stmts) != 1 {
		return fmt.Errorf("%w: multiple statements", ErrUnsafeSQL)
	}

	sel := parseResult.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil || sel.WhereClause == nil {
		return fmt.Errorf("%w: not a condition", ErrUnsafeSQL)
	}

	v := &verifier{}
	if err := v.condition(sel.WhereClause); err != nil {
		return err
	}
	return v.checkParams(len(c.Params))
}

type verifier struct {
	params []int
}

func (v *verifier) condition(node *pg_query.Node) error {
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		if n.BoolExpr.Boolop == pg_query.BoolExprType_NOT_EXPR {
			return fmt.Errorf("%w: NOT is never emitted", ErrUnsafeSQL)
		}
		for _, arg := range n.BoolExpr.Args {
			if err := v.condition(arg); err != nil {
				return err
			}
		}
		return nil

	case *pg_query.Node_AExpr:
		switch n.AExpr.Kind {
		case pg_query.A_Expr_Kind_AEXPR_OP,
			pg_query.A_Expr_Kind_AEXPR_OP_ANY,
			pg_query.A_Expr_Kind_AEXPR_OP_ALL,
			pg_query.A_Expr_Kind_AEXPR_LIKE,
			pg_query.A_Expr_Kind_AEXPR_ILIKE:
		default:
			return fmt.Errorf("%w: unexpected expression kind %s", ErrUnsafeSQL, n.AExpr.Kind)
		}
		if err := columnRef(n.AExpr.Lexpr); err != nil {
			return err
		}
		return v.paramRef(n.AExpr.Rexpr)

	case *pg_query.Node_NullTest:
		return columnRef(n.NullTest.Arg)

	default:
		return fmt.Errorf("%w: unexpected node %T", ErrUnsafeSQL, node.Node)
	}
}

func columnRef(node *pg_query.Node) error {
	ref := node.GetColumnRef()
	if ref == nil {
		return fmt.Errorf("%w: left operand is not a column", ErrUnsafeSQL)
	}
	for _, field := range ref.Fields {
		if field.GetString_() == nil {
			return fmt.Errorf("%w: column reference contains a wildcard", ErrUnsafeSQL)
		}
	}
	return nil
}

func (v *verifier) paramRef(node *pg_query.Node) error {
	ref := node.GetParamRef()
	if ref == nil {
		return fmt.Errorf("%w: right operand is not a bind parameter", ErrUnsafeSQL)
	}
	v.params = append(v.params, int(ref.Number))
	return nil
}

func (v *verifier) checkParams(count int) error {
	if len(v.params) != count {
		return fmt.Errorf("%w: %d placeholders for %d params", ErrUnsafeSQL, len(v.params), count)
	}

	sorted := append([]int(nil), v.params...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return fmt.Errorf("%w: placeholders are not consecutive", ErrUnsafeSQL)
		}
	}
	return nil
}

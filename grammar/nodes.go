package grammar

import (
	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/pyc"
)

func none() *ast.Constant {
	return &ast.Constant{Value: pyc.None}
}

func name(id string) *ast.Name {
	return &ast.Name{ID: id}
}

func isNone(e ast.Expr) bool {
	c, ok := e.(*ast.Constant)
	if !ok {
		return false
	}
	_, ok = c.Value.(pyc.NoneType)
	return ok
}

// noneToNil maps a None constant to an absent expression.
func noneToNil(e ast.Expr) ast.Expr {
	if isNone(e) {
		return nil
	}
	return e
}

func strConst(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Constant)
	if !ok {
		return "", false
	}
	return pyc.StringValue(c.Value)
}

func intConst(e ast.Expr) (int, bool) {
	c, ok := e.(*ast.Constant)
	if !ok {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int64:
		return int(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// constElts returns the items of a tuple-like constant as expressions.
func constElts(e ast.Expr) ([]ast.Expr, bool) {
	c, ok := e.(*ast.Constant)
	if !ok {
		return nil, false
	}
	var items []pyc.Object
	switch v := c.Value.(type) {
	case pyc.Tuple:
		items = v
	case pyc.List:
		items = v
	case pyc.FrozenSet:
		items = v
	case pyc.Set:
		items = v
	default:
		return nil, false
	}
	out := make([]ast.Expr, len(items))
	for i, it := range items {
		out[i] = &ast.Constant{Value: it}
	}
	return out, true
}

// seqElts returns the items of a tuple or list display, or of a constant
// tuple.
func seqElts(e ast.Expr) ([]ast.Expr, bool) {
	switch v := e.(type) {
	case *ast.Tuple:
		return v.Elts, true
	case *ast.List:
		return v.Elts, true
	}
	return constElts(e)
}

func constNames(e ast.Expr) []string {
	elts, _ := constElts(e)
	out := make([]string, 0, len(elts))
	for _, x := range elts {
		s, _ := strConst(x)
		out = append(out, s)
	}
	return out
}

// negate inverts a test, folding `not` into is/in operators.
func negate(e ast.Expr) ast.Expr {
	switch v := e.(type) {
	case *ast.UnaryOp:
		if v.Op == "not" {
			return v.X
		}
	case *ast.Compare:
		if len(v.Ops) == 1 {
			if inv, ok := inverse[v.Ops[0]]; ok {
				return &ast.Compare{Left: v.Left, Ops: []string{inv}, Comparators: v.Comparators}
			}
		}
	}
	return &ast.UnaryOp{Op: "not", X: e}
}

var inverse = map[string]string{
	"is":     "is not",
	"is not": "is",
	"in":     "not in",
	"not in": "in",
}

// boolOp joins operands, flattening nested operators of the same kind.
func boolOp(op string, vals ...ast.Expr) ast.Expr {
	var out []ast.Expr
	for _, v := range vals {
		if b, ok := v.(*ast.BoolOp); ok && b.Op == op {
			out = append(out, b.Values...)
			continue
		}
		out = append(out, v)
	}
	if len(out) == 1 {
		return out[0]
	}
	return &ast.BoolOp{Op: op, Values: out}
}

package grammar

import (
	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
)

// foldComp turns a loop whose body only feeds a comprehension accumulator
// into a comprehension. The innermost loop replaces the empty accumulator
// on the frame; enclosing loops pass the partial result outward.
func (r *reducer) foldComp(f *frame, target, iter ast.Expr, async bool, body []ast.Stmt) bool {
	var ifs []ast.Expr
	for len(body) > 0 {
		st, ok := body[0].(*ast.If)
		if !ok || len(st.Else) != 0 {
			break
		}
		if len(body) > 1 && skips(st.Body) {
			ifs = append(ifs, negate(st.Test))
			body = body[1:]
			continue
		}
		if len(body) != 1 {
			break
		}
		ifs = append(ifs, st.Test)
		body = st.Body
	}
	if len(body) != 1 {
		return false
	}
	gen := &ast.Generator{Target: target, Iter: iter, Ifs: ifs, Async: async}

	var comp *ast.Comp
	var depth int
	switch st := body[0].(type) {
	case *ast.ExprStmt:
		switch x := st.X.(type) {
		case *ast.CompAppend:
			comp = &ast.Comp{Kind: x.Kind, Elt: x.Elt, Value: x.Value}
			depth = x.Depth
		case *ast.Yield:
			if r.unit.Name != "<genexpr>" || x.Value == nil {
				return false
			}
			comp = &ast.Comp{Kind: ast.GenExp, Elt: x.Value}
			depth = 1
		default:
			return false
		}
		comp.Generators = []*ast.Generator{gen}
	case *ast.CompStmt:
		c := *st.Comp
		c.Generators = append([]*ast.Generator{gen}, st.Comp.Generators...)
		comp, depth = &c, st.Depth
	default:
		return false
	}

	d := depth - 1
	if comp.Kind == ast.GenExp || d > 1 {
		f.emit(&ast.CompStmt{Comp: comp, Depth: d})
		return true
	}
	top := f.top()
	if d < 1 || top == nil || !emptyAccumulator(top.node, comp.Kind) {
		return false
	}
	top.node = comp
	return true
}

// skips reports whether an if body only continues the loop, the shape an
// inline comprehension's condition takes.
func skips(body []ast.Stmt) bool {
	if len(body) != 1 {
		return false
	}
	_, ok := body[0].(*ast.Continue)
	return ok
}

// feedsComp reports whether a loop body appends to a comprehension
// accumulator.
func feedsComp(body []ast.Stmt) bool {
	found := false
	for _, st := range body {
		ast.Inspect(st, func(n ast.Node) bool {
			if _, ok := n.(*ast.CompAppend); ok {
				found = true
			}
			return !found
		})
	}
	return found
}

func emptyAccumulator(e ast.Expr, kind ast.CompKind) bool {
	switch v := e.(type) {
	case *ast.List:
		return kind == ast.ListComp && len(v.Elts) == 0
	case *ast.Set:
		return kind == ast.SetComp && len(v.Elts) == 0
	case *ast.Dict:
		return kind == ast.DictComp && len(v.Keys) == 0
	}
	return false
}

// inlineComp calls a comprehension function on its outermost iterable,
// which stands in for the hidden `.0` parameter.
func (r *reducer) inlineComp(fn *symbol, iter ast.Expr) ast.Expr {
	unit := fn.part.(*pyc.CodeUnit)
	comp := findComp(r.nestedBody(unit))
	if comp == nil || len(comp.Generators) == 0 {
		return r.hole(diag.UnsupportedShape, nil, 0, 0, "comprehension %s", unit.DisplayName())
	}
	out := *comp
	out.Generators = append([]*ast.Generator{}, comp.Generators...)
	g := *out.Generators[0]
	g.Iter = iter
	out.Generators[0] = &g
	return &out
}

func findComp(body []ast.Stmt) *ast.Comp {
	for _, st := range body {
		var e ast.Expr
		switch v := st.(type) {
		case *ast.Return:
			e = v.Value
		case *ast.ExprStmt:
			e = v.X
		case *ast.CompStmt:
			return v.Comp
		}
		if c, ok := e.(*ast.Comp); ok {
			return c
		}
	}
	return nil
}

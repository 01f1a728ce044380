package grammar

import (
	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/pyc"
)

// Names the compiler assigns in a class body on its own.
var classBookkeeping = map[string]bool{
	"__module__":            true,
	"__qualname__":          true,
	"__classcell__":         true,
	"__firstlineno__":       true,
	"__static_attributes__": true,
}

// foldUnit rewrites the body of a whole unit: implicit returns and class
// bookkeeping go away, docstrings and annotations regain their source
// form, and scope declarations are restored.
func (r *reducer) foldUnit(body []ast.Stmt) []ast.Stmt {
	u := r.unit
	if u.IsLambda() || u.IsComprehension() {
		return body
	}
	class := !u.IsModule() && u.Flags&pyc.FlagOptimized == 0

	body = trimReturn(body, class)
	if class {
		body = dropBookkeeping(body)
	}
	var doc ast.Stmt
	if u.IsModule() || class {
		doc, body = docAssign(body)
	} else if len(u.Consts) > 0 {
		switch u.Consts[0].(type) {
		case string, pyc.Unicode:
			doc = &ast.ExprStmt{X: &ast.Constant{Value: u.Consts[0]}}
		}
	}
	body = foldAnnotations(body)

	var head []ast.Stmt
	if doc != nil {
		head = append(head, doc)
	}
	if len(r.globals) > 0 {
		head = append(head, &ast.Global{Names: r.globals})
	}
	if len(r.nonlocals) > 0 {
		head = append(head, &ast.Nonlocal{Names: r.nonlocals})
	}
	return append(head, body...)
}

// trimReturn drops the return the compiler appends to every body.
func trimReturn(body []ast.Stmt, class bool) []ast.Stmt {
	if len(body) == 0 {
		return body
	}
	ret, ok := body[len(body)-1].(*ast.Return)
	if !ok {
		return body
	}
	if ret.Value == nil || isNone(ret.Value) || class && classReturn(ret.Value) {
		return body[:len(body)-1]
	}
	return body
}

// classReturn matches what a class body returns to the class builder.
func classReturn(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.Name:
		return v.ID == "__class__"
	case *ast.NamedExpr:
		n, ok := v.Target.(*ast.Name)
		return ok && n.ID == "__classcell__"
	case *ast.Call:
		n, ok := v.Func.(*ast.Name)
		return ok && n.ID == "locals" && len(v.Args) == 0
	}
	return false
}

func assignedName(st ast.Stmt) (string, ast.Expr, bool) {
	as, ok := st.(*ast.Assign)
	if !ok || len(as.Targets) != 1 {
		return "", nil, false
	}
	n, ok := as.Targets[0].(*ast.Name)
	if !ok {
		return "", nil, false
	}
	return n.ID, as.Value, true
}

func dropBookkeeping(body []ast.Stmt) []ast.Stmt {
	out := body[:0:0]
	for _, st := range body {
		if n, _, ok := assignedName(st); ok && classBookkeeping[n] {
			continue
		}
		out = append(out, st)
	}
	return out
}

// docAssign takes a leading `__doc__ = "..."` as the docstring.
func docAssign(body []ast.Stmt) (ast.Stmt, []ast.Stmt) {
	if len(body) == 0 {
		return nil, body
	}
	n, v, ok := assignedName(body[0])
	if !ok || n != "__doc__" {
		return nil, body
	}
	if _, ok := strConst(v); !ok {
		return nil, body
	}
	return &ast.ExprStmt{X: v}, body[1:]
}

// foldAnnotations turns stores into __annotations__ back into annotated
// assignments, merging the value assigned just before.
func foldAnnotations(body []ast.Stmt) []ast.Stmt {
	out := body[:0:0]
	for _, st := range body {
		ann := annotation(st)
		if ann == nil {
			out = append(out, st)
			continue
		}
		if k := len(out) - 1; k >= 0 && ann.Value == nil {
			if n, v, ok := assignedName(out[k]); ok {
				if t, ok := ann.Target.(*ast.Name); ok && t.ID == n {
					ann.Value = v
					out = out[:k]
				}
			}
		}
		out = append(out, ann)
	}
	return out
}

func annotation(st ast.Stmt) *ast.AnnAssign {
	switch v := st.(type) {
	case *ast.AnnAssign:
		return v
	case *ast.Assign:
		if len(v.Targets) != 1 {
			return nil
		}
		sub, ok := v.Targets[0].(*ast.Subscript)
		if !ok {
			return nil
		}
		if n, ok := sub.X.(*ast.Name); !ok || n.ID != "__annotations__" {
			return nil
		}
		key, ok := strConst(sub.Index)
		if !ok {
			return nil
		}
		return &ast.AnnAssign{Target: name(key), Annotation: v.Value}
	}
	return nil
}

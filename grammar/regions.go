package grammar

import (
	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/flow"
)

func (r *reducer) regions(f *frame, body []*flow.Region) {
	for _, g := range body {
		if r.err != nil {
			return
		}
		if err := r.ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		r.region(f, g)
	}
}

func (r *reducer) region(f *frame, g *flow.Region) {
	switch g.Kind {
	case flow.Linear:
		r.linear(f, g.Instrs)
	case flow.Placeholder:
		p := ast.NewPlaceholder(g.Diag)
		r.holes = append(r.holes, p)
		f.emit(p)
	case flow.Conditional:
		switch {
		case g.Keep != flow.NoKeep:
			r.keep(f, g)
		case g.Escape != flow.NoRole:
			var st ast.Stmt = &ast.Break{}
			if g.Escape == flow.Continue {
				st = &ast.Continue{}
			}
			f.emit(&ast.If{Test: r.cond(f, g.Cond), Body: []ast.Stmt{st}})
		default:
			r.conditional(f, g)
		}
	case flow.Loop:
		if g.Loop == flow.For {
			r.forLoop(f, g)
		} else {
			r.whileLoop(f, g)
		}
	case flow.TryExcept:
		r.tryExcept(f, g)
	case flow.TryFinally:
		f.emit(&ast.TryFinally{Body: r.block(g.Body), Finally: r.block(g.Finally)})
	case flow.ContextManaged:
		r.with(f, g)
	case flow.MatchDispatch:
		r.match(f, g)
	default:
		f.emit(r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "region %s", g.Kind))
	}
}

// cond builds the test expression of c. Carried leaves take their value
// from the frame; the others are reduced in place first.
func (r *reducer) cond(f *frame, c *flow.Cond) ast.Expr {
	if c == nil {
		return &ast.Constant{Value: true}
	}
	switch c.Op {
	case flow.CondNot:
		return negate(r.cond(f, c.Args[0]))
	case flow.CondAnd, flow.CondOr:
		op := "and"
		if c.Op == flow.CondOr {
			op = "or"
		}
		vals := make([]ast.Expr, 0, len(c.Args))
		for _, a := range c.Args {
			vals = append(vals, r.cond(f, a))
		}
		return boolOp(op, vals...)
	}
	if !c.Carried {
		r.linear(f, c.Instrs)
	}
	e := r.value(f.pop(), c.Branch.Offset)
	if c.TestNone {
		e = &ast.Compare{Left: e, Ops: []string{"is"}, Comparators: []ast.Expr{none()}}
	}
	return e
}

// discardCarried pops the values the carried leaves of c branch on.
func (r *reducer) discardCarried(f *frame, c *flow.Cond) {
	if c == nil {
		return
	}
	for _, l := range c.Leaves() {
		if l.Carried {
			f.pop()
		}
	}
}

func (r *reducer) conditional(f *frame, g *flow.Region) {
	test := r.cond(f, g.Cond)
	then := r.sub(g.Body)
	if len(g.Else) > 0 {
		els := r.sub(g.Else)
		if a, ok := soleValue(then); ok {
			if b, ok := soleValue(els); ok {
				f.push(exprSym(&ast.IfExp{Test: test, Body: a, Else: b}))
				return
			}
		}
		f.emit(&ast.If{Test: test, Body: r.finish(then), Else: r.finish(els)})
		return
	}
	body := r.finish(then)
	if a := assertion(test, body); a != nil {
		f.emit(a)
		return
	}
	f.emit(&ast.If{Test: test, Body: body})
}

// soleValue reports whether a frame computed exactly one value and nothing
// else.
func soleValue(f *frame) (ast.Expr, bool) {
	if len(f.out) != 0 || len(f.stack) != 1 || !f.stack[0].isExpr() {
		return nil, false
	}
	return f.stack[0].node, true
}

// assertion folds `if not c: raise AssertionError(m)` into an assert.
func assertion(test ast.Expr, body []ast.Stmt) *ast.Assert {
	if len(body) != 1 {
		return nil
	}
	rs, ok := body[0].(*ast.Raise)
	if !ok || rs.Cause != nil {
		return nil
	}
	var msg ast.Expr
	switch exc := rs.Exc.(type) {
	case *ast.Name:
		if exc.ID != "AssertionError" {
			return nil
		}
	case *ast.Call:
		fn, ok := exc.Func.(*ast.Name)
		if !ok || fn.ID != "AssertionError" || len(exc.Args) != 1 || len(exc.Keywords) != 0 {
			return nil
		}
		msg = exc.Args[0]
	default:
		return nil
	}
	return &ast.Assert{Test: negate(test), Msg: msg}
}

// keep converts a value-position and/or, or one link of a comparison
// chain.
func (r *reducer) keep(f *frame, g *flow.Region) {
	if g.Cond != nil {
		r.andOr(f, g)
		return
	}
	left := r.value(f.pop(), g.Start)
	if g.Chain {
		cmp, ok := left.(*ast.Compare)
		mid := f.pop()
		if !ok || mid == nil || !mid.isExpr() {
			f.push(exprSym(r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "comparison chain")))
			return
		}
		body := r.sub(g.Body, exprSym(mid.node))
		right, ok := soleValue(body)
		rc, isCmp := right.(*ast.Compare)
		if !ok || !isCmp {
			f.emit(r.finish(body)...)
			f.push(exprSym(r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "comparison chain")))
			return
		}
		f.push(exprSym(&ast.Compare{
			Left:        cmp.Left,
			Ops:         append(append([]string{}, cmp.Ops...), rc.Ops...),
			Comparators: append(append([]ast.Expr{}, cmp.Comparators...), rc.Comparators...),
		}))
		return
	}
	op := "and"
	if g.Keep == flow.KeepOr {
		op = "or"
	}
	body := r.sub(g.Body)
	right, ok := soleValue(body)
	if !ok {
		f.emit(r.finish(body)...)
		right = r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "right operand of %s", op)
	}
	f.push(exprSym(boolOp(op, left, right)))
}

// andOr converts a test that skips the kept operand straight to the last
// one.
func (r *reducer) andOr(f *frame, g *flow.Region) {
	outer, inner := "or", "and"
	if g.Keep == flow.KeepAnd {
		outer, inner = "and", "or"
	}
	test := r.cond(f, g.Cond)
	operand := func(body []*flow.Region) ast.Expr {
		sub := r.sub(body)
		v, ok := soleValue(sub)
		if !ok {
			f.emit(r.finish(sub)...)
			return r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "operand of %s", outer)
		}
		return v
	}
	mid := operand(g.Body)
	last := operand(g.Else)
	f.push(exprSym(boolOp(outer, boolOp(inner, test, mid), last)))
}

func (r *reducer) forLoop(f *frame, g *flow.Region) {
	src := f.pop()
	iter := r.value(src, g.Start)
	body := r.block(g.Body, &symbol{nt: ntItem, node: &ast.Name{ID: "<item>"}})
	target, body := bindTarget(body, ntItem)
	if target == nil {
		target = r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "loop target")
	}
	if len(g.Else) == 0 && r.foldComp(f, target, iter, g.Async, body) {
		return
	}
	if feedsComp(body) {
		p := r.hole(diag.UnsupportedShape, nil, g.Start, g.End, "comprehension")
		if top := f.top(); top != nil && top.isExpr() && (emptyAccumulator(top.node, ast.ListComp) ||
			emptyAccumulator(top.node, ast.SetComp) || emptyAccumulator(top.node, ast.DictComp)) {
			top.node = p
			return
		}
		f.emit(p)
		return
	}
	f.emit(&ast.For{Target: target, Iter: iter, Body: body, Else: r.block(g.Else), Async: g.Async})
}

// bindTarget removes the leading store of the loop or context value and
// returns its target.
func bindTarget(body []ast.Stmt, nt string) (ast.Expr, []ast.Stmt) {
	if len(body) == 0 {
		return nil, body
	}
	tb, ok := body[0].(*ast.TargetBind)
	if !ok {
		return nil, body
	}
	if n, ok := tb.Source.(*ast.Name); !ok || n.ID != "<"+nt+">" {
		return nil, body
	}
	return tb.Target, body[1:]
}

func (r *reducer) whileLoop(f *frame, g *flow.Region) {
	r.discardCarried(f, g.Guard)
	w := &ast.While{Test: &ast.Constant{Value: true}}
	if g.Cond != nil {
		cf := newFrame()
		w.Test = r.cond(cf, g.Cond)
		f.emit(r.finish(cf)...)
	}
	w.Body = r.block(g.Body)
	w.Else = r.block(g.Else)
	f.emit(w)
}

func (r *reducer) tryExcept(f *frame, g *flow.Region) {
	t := &ast.Try{Body: r.block(g.Body)}
	for _, h := range g.Handlers {
		eh := ast.ExceptHandler{Name: h.Name, Body: r.block(h.Body)}
		if len(h.Type) > 0 {
			tf := newFrame()
			r.linear(tf, h.Type)
			if v, ok := soleValue(tf); ok {
				eh.Type = v
			} else {
				eh.Type = r.hole(diag.UnsupportedShape, nil, h.Start, h.Type[len(h.Type)-1].Next(), "exception type")
			}
		}
		if g.Grouped {
			t.Grouped = append(t.Grouped, &ast.GroupedExceptionHandler{ExceptHandler: eh, Remainder: &ast.Raise{}})
			continue
		}
		t.Handlers = append(t.Handlers, &eh)
	}
	t.Else = r.block(g.Else)
	f.emit(t)
}

func (r *reducer) with(f *frame, g *flow.Region) {
	ctx := r.value(f.pop(), g.Start)
	body := r.block(g.Body, &symbol{nt: ntEnter, node: &ast.Name{ID: "<enter>"}})
	vars, body := bindTarget(body, ntEnter)
	w := &ast.With{Items: []*ast.WithItem{{Context: ctx, Vars: vars}}, Body: body, Async: g.Async}
	if len(body) == 1 {
		if inner, ok := body[0].(*ast.With); ok && inner.Async == w.Async {
			w.Items = append(w.Items, inner.Items...)
			w.Body = inner.Body
		}
	}
	f.emit(w)
}

func (r *reducer) match(f *frame, g *flow.Region) {
	m := &ast.Match{Subject: r.value(f.pop(), g.Start)}
	for _, c := range g.Cases {
		mc := &ast.MatchCase{Pattern: r.pattern(c)}
		if c.Guard != nil {
			gf := newFrame()
			mc.Guard = r.cond(gf, c.Guard)
			r.finish(gf)
		}
		mc.Body = r.block(c.Body)
		m.Cases = append(m.Cases, mc)
	}
	f.emit(m)
}

func (r *reducer) pattern(c *flow.Case) ast.Pattern {
	if p := r.patternNode(c.Pattern); p != nil {
		return p
	}
	return r.hole(diag.UnsupportedShape, nil, c.Start, c.Start, "case pattern")
}

// patternNode converts a recovered pattern tree, or returns nil when a
// value inside it does not reduce to one expression.
func (r *reducer) patternNode(p *flow.Pattern) ast.Pattern {
	subs := func(ps []*flow.Pattern) ([]ast.Pattern, bool) {
		out := make([]ast.Pattern, 0, len(ps))
		for _, s := range ps {
			n := r.patternNode(s)
			if n == nil {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	switch p.Kind {
	case flow.PatternCapture:
		return &ast.MatchAs{Name: p.Name}
	case flow.PatternWildcard:
		return &ast.MatchAs{}
	case flow.PatternStar:
		return &ast.MatchStar{Name: p.Name}
	case flow.PatternSingleton:
		return &ast.MatchSingleton{Value: p.Value}
	case flow.PatternValue:
		if v := r.patternValue(p.Instrs); v != nil {
			return &ast.MatchValue{Value: v}
		}
	case flow.PatternClass:
		cls := r.patternValue(p.Instrs)
		args, ok := subs(p.Sub)
		if cls == nil || !ok || p.Args > len(args) {
			return nil
		}
		return &ast.MatchClass{Cls: cls, Patterns: args[:p.Args], KwdAttrs: p.KwdAttrs, KwdPatterns: args[p.Args:]}
	case flow.PatternSequence:
		if elts, ok := subs(p.Sub); ok {
			return &ast.MatchSequence{Patterns: elts}
		}
	case flow.PatternMapping:
		vals, ok := subs(p.Sub)
		if !ok || len(vals) != len(p.Keys) {
			return nil
		}
		m := &ast.MatchMapping{Patterns: vals}
		for _, k := range p.Keys {
			var key ast.Expr = &ast.Constant{Value: k.Value}
			if k.Instrs != nil {
				if key = r.patternValue(k.Instrs); key == nil {
					return nil
				}
			}
			m.Keys = append(m.Keys, key)
		}
		if p.Rest != nil {
			m.Rest = p.Rest.Name
		}
		return m
	case flow.PatternOr:
		if alts, ok := subs(p.Sub); ok {
			return &ast.MatchOr{Patterns: alts}
		}
	case flow.PatternAs:
		if len(p.Sub) == 1 {
			if inner := r.patternNode(p.Sub[0]); inner != nil {
				return &ast.MatchAs{Pattern: inner, Name: p.Name}
			}
		}
	}
	return nil
}

// patternValue reduces the instructions of a value, class or key.
func (r *reducer) patternValue(instrs []disasm.Instruction) ast.Expr {
	pf := newFrame()
	r.linear(pf, instrs)
	if v, ok := soleValue(pf); ok {
		return v
	}
	return nil
}

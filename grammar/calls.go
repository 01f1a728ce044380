package grammar

import (
	"fmt"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
)

// call builds a call of fn. The last len(kwNames) arguments are keyword
// values.
func (r *reducer) call(fn *symbol, args []*symbol, kwNames []string) ([]*symbol, bool) {
	npos := len(args) - len(kwNames)
	if npos < 0 {
		return nil, false
	}
	switch fn.nt {
	case ntBuildClass:
		if c := r.classExpr(args[:npos], r.keywords(args[npos:], kwNames)); c != nil {
			return one(c), true
		}
	case ntCompFunc:
		if len(args) == 1 {
			return one(r.inlineComp(fn, args[0].node)), true
		}
	}
	call := &ast.Call{Func: fn.node, Args: exprsOf(args[:npos]), Keywords: r.keywords(args[npos:], kwNames)}
	return one(call), true
}

func (r *reducer) keywords(vals []*symbol, names []string) []*ast.Keyword {
	var out []*ast.Keyword
	for i, n := range names {
		out = append(out, &ast.Keyword{Arg: n, Value: vals[i].node})
	}
	return out
}

// kwNames reads the names tuple of a KW_NAMES instruction.
func kwNames(s *symbol) []string {
	t, _ := s.ins.Argval.(pyc.Tuple)
	out := make([]string, 0, len(t))
	for _, o := range t {
		n, _ := pyc.StringValue(o)
		out = append(out, n)
	}
	return out
}

func actCall(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return r.call(m.sym(0), m.groups[1], nil)
}

func actCallKW(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return r.call(m.sym(0), m.groups[1], constNames(m.expr(2)))
}

// actCall27 handles the 2.x call family, whose operand packs the
// positional count in the low byte and the keyword pair count above it.
func actCall27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	npos, nkw := m.in.Arg&0xFF, m.in.Arg>>8&0xFF
	items := m.groups[1]
	if len(items) != npos+2*nkw {
		return nil, false
	}
	fn := m.sym(0)
	if fn.nt == ntBuildClass || fn.nt == ntCompFunc {
		if nkw == 0 && len(m.groups) == 2 {
			return r.call(fn, items, nil)
		}
	}
	call := &ast.Call{Func: fn.node, Args: exprsOf(items[:npos])}
	for k := 0; k < nkw; k++ {
		key, _ := strConst(items[npos+2*k].node)
		call.Keywords = append(call.Keywords, &ast.Keyword{Arg: key, Value: items[npos+2*k+1].node})
	}
	extra := m.groups[2:]
	switch m.in.Op {
	case "CALL_FUNCTION_VAR":
		call.Args = append(call.Args, &ast.Starred{X: extra[0][0].node})
	case "CALL_FUNCTION_KW":
		call.Keywords = append(call.Keywords, &ast.Keyword{Value: extra[0][0].node})
	case "CALL_FUNCTION_VAR_KW":
		call.Args = append(call.Args, &ast.Starred{X: extra[0][0].node})
		call.Keywords = append(call.Keywords, &ast.Keyword{Value: extra[1][0].node})
	}
	return one(call), true
}

func actCallEx(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	fn, off := 0, 0
	switch m.rule.Name {
	case "call_ex_null":
		fn, off = 1, 1
	case "call_ex_null_after":
		off = 1
	}
	call := &ast.Call{Func: m.expr(fn), Args: callArgs(m.expr(off + 1))}
	if kw := m.groups[off+2]; len(kw) == 1 {
		call.Keywords = callKeywords(kw[0].node)
	}
	return one(call), true
}

func callArgs(e ast.Expr) []ast.Expr {
	if elts, ok := seqElts(e); ok {
		if _, isList := e.(*ast.List); !isList {
			return elts
		}
	}
	return []ast.Expr{&ast.Starred{X: e}}
}

func callKeywords(e ast.Expr) []*ast.Keyword {
	d, ok := e.(*ast.Dict)
	if !ok {
		return []*ast.Keyword{{Value: e}}
	}
	var out []*ast.Keyword
	for i, k := range d.Keys {
		if k == nil {
			out = append(out, &ast.Keyword{Value: d.Values[i]})
			continue
		}
		if s, ok := strConst(k); ok {
			out = append(out, &ast.Keyword{Arg: s, Value: d.Values[i]})
			continue
		}
		out = append(out, &ast.Keyword{Value: &ast.Dict{Keys: []ast.Expr{k}, Values: []ast.Expr{d.Values[i]}}})
	}
	return out
}

// callTail splits the argument groups of the CALL family: the arguments
// come third and the keyword names fourth, either as a KW_NAMES terminal
// or as the constant tuple CALL_KW pops.
func callTail(m *match) ([]*symbol, []string) {
	var names []string
	switch {
	case m.in.Op == "CALL_KW":
		names = constNames(m.expr(3))
	case len(m.groups) > 3:
		names = kwNames(m.sym(3))
	}
	return m.groups[2], names
}

func actCallMethod(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	args, names := callTail(m)
	return r.call(m.sym(0), args, names)
}

func actCallNull(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	args, names := callTail(m)
	return r.call(m.sym(1), args, names)
}

// actCallSelf handles CALL with a callable in the slot a NULL would
// occupy, which makes the value above it the first argument.
func actCallSelf(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	args, names := callTail(m)
	return r.call(m.sym(0), append([]*symbol{m.sym(1)}, args...), names)
}

// ---------------------------------------------------------------------------
// Functions and classes
// ---------------------------------------------------------------------------

// funcSlots holds the optional values a MAKE_FUNCTION pops.
type funcSlots struct {
	defaults    []ast.Expr
	kwdefaults  map[string]ast.Expr
	annotations map[string]ast.Expr
}

// funcPart is the payload of a built function. 3.13 sets defaults and
// annotations after MAKE_FUNCTION, so the slots stay with the symbol.
type funcPart struct {
	unit  *pyc.CodeUnit
	slots funcSlots
}

// MAKE_FUNCTION flag bits, in the order their values sit on the stack.
const (
	fnDefaults    = 0x01
	fnKwDefaults  = 0x02
	fnAnnotations = 0x04
	fnClosure     = 0x08
)

func actMakeFunction(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	var slots funcSlots
	var code *symbol
	switch m.rule.Name {
	case "make_function27":
		slots.defaults = m.exprs(0)
		code = m.sym(1)
	case "make_closure27":
		slots.defaults = m.exprs(0)
		code = m.sym(2)
	case "make_function30", "make_function33":
		slots = py3Slots(m.in.Arg, m.exprs(0))
		code = m.sym(1)
	case "make_closure30", "make_closure33":
		slots = py3Slots(m.in.Arg, m.exprs(0))
		code = m.sym(2)
	default:
		vals := m.exprs(0)
		k := 0
		for bit := fnDefaults; bit <= fnClosure; bit <<= 1 {
			if m.in.Arg&bit == 0 {
				continue
			}
			v := vals[k]
			k++
			switch bit {
			case fnDefaults:
				slots.defaults, _ = seqElts(v)
			case fnKwDefaults:
				slots.kwdefaults = mapping(v)
			case fnAnnotations:
				slots.annotations = annotations(v)
			}
		}
		code = m.sym(1)
	}
	unit, ok := code.part.(*pyc.CodeUnit)
	if !ok {
		return nil, false
	}
	return r.function(unit, &slots), true
}

// py3Slots splits the values 3.0 to 3.5 push below the code object:
// positional defaults, keyword-only name/value pairs, then the annotation
// values and the tuple naming them.
func py3Slots(arg int, vals []ast.Expr) funcSlots {
	nd, nk, na := arg&0xFF, arg>>8&0xFF, arg>>16&0x7FFF
	var s funcSlots
	if len(vals) != nd+2*nk+na {
		return s
	}
	s.defaults = vals[:nd]
	if nk > 0 {
		s.kwdefaults = make(map[string]ast.Expr, nk)
	}
	for k := 0; k < nk; k++ {
		if key, ok := strConst(vals[nd+2*k]); ok {
			s.kwdefaults[key] = vals[nd+2*k+1]
		}
	}
	if na > 0 {
		ann := vals[nd+2*nk:]
		s.annotations = make(map[string]ast.Expr, na-1)
		for i, n := range constNames(ann[na-1]) {
			if i < na-1 {
				s.annotations[n] = ann[i]
			}
		}
	}
	return s
}

// actSetFunctionAttr stores one value SET_FUNCTION_ATTRIBUTE attaches to
// an already built function and rebuilds its parameter list.
func actSetFunctionAttr(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	fn := m.sym(1)
	if fn.nt == ntCompFunc {
		return []*symbol{fn}, true
	}
	fp, ok := fn.part.(*funcPart)
	if !ok {
		return nil, false
	}
	v := m.expr(0)
	switch m.in.Arg {
	case fnDefaults:
		fp.slots.defaults, _ = seqElts(v)
	case fnKwDefaults:
		fp.slots.kwdefaults = mapping(v)
	case fnAnnotations:
		fp.slots.annotations = annotations(v)
	case fnClosure:
		return []*symbol{fn}, true
	default:
		return nil, false
	}
	switch n := fn.node.(type) {
	case *ast.FunctionExpr:
		n.Def.Args = arguments(fp.unit, &fp.slots)
		n.Def.Returns = fp.slots.annotations["return"]
	case *ast.Lambda:
		n.Args = arguments(fp.unit, &fp.slots)
	}
	return []*symbol{fn}, true
}

// mapping reads a dict display keyed by string constants.
func mapping(e ast.Expr) map[string]ast.Expr {
	d, ok := e.(*ast.Dict)
	if !ok {
		return nil
	}
	out := make(map[string]ast.Expr, len(d.Keys))
	for i, k := range d.Keys {
		if s, ok := strConst(k); ok {
			out[s] = d.Values[i]
		}
	}
	return out
}

// annotations reads the annotation operand of MAKE_FUNCTION: a dict in
// older revisions, a flat name/value tuple from 3.10 on.
func annotations(e ast.Expr) map[string]ast.Expr {
	if m := mapping(e); m != nil {
		return m
	}
	elts, ok := seqElts(e)
	if !ok {
		return nil
	}
	out := make(map[string]ast.Expr, len(elts)/2)
	for i := 0; i+1 < len(elts); i += 2 {
		if s, ok := strConst(elts[i]); ok {
			out[s] = unquote(elts[i+1])
		}
	}
	return out
}

// unquote turns a stringified annotation back into a name when it is a
// plain identifier.
func unquote(e ast.Expr) ast.Expr {
	s, ok := strConst(e)
	if !ok || !isIdent(s) {
		return e
	}
	return name(s)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		case i > 0 && c == '.':
		default:
			return false
		}
	}
	return true
}

func (r *reducer) function(unit *pyc.CodeUnit, slots *funcSlots) []*symbol {
	switch {
	case unit.IsComprehension():
		def := &ast.FunctionDef{Name: unit.Name}
		return []*symbol{{nt: ntCompFunc, node: &ast.FunctionExpr{Def: def}, part: unit}}
	case unit.IsLambda():
		body := r.nestedBody(unit)
		lam := &ast.Lambda{Args: arguments(unit, slots), Body: r.lambdaBody(unit, body)}
		return []*symbol{{nt: ntExpr, node: lam, part: &funcPart{unit: unit, slots: *slots}}}
	}
	def := &ast.FunctionDef{
		Name:    unit.Name,
		Args:    arguments(unit, slots),
		Body:    r.nestedBody(unit),
		Returns: slots.annotations["return"],
		Async:   unit.IsCoroutine() || unit.IsAsyncGenerator(),
	}
	return []*symbol{{nt: ntFunction, node: &ast.FunctionExpr{Def: def}, part: &funcPart{unit: unit, slots: *slots}}}
}

func (r *reducer) lambdaBody(unit *pyc.CodeUnit, body []ast.Stmt) ast.Expr {
	switch len(body) {
	case 0:
		return none()
	case 1:
		switch st := body[0].(type) {
		case *ast.Return:
			if st.Value == nil {
				return none()
			}
			return st.Value
		case *ast.ExprStmt:
			return st.X
		}
	}
	return r.hole(diag.UnsupportedShape, nil, 0, 0, "body of %s", unit.DisplayName())
}

// arguments rebuilds a parameter list. Variable names start with the
// positional parameters, then keyword-only ones, then *args and **kwargs.
func arguments(unit *pyc.CodeUnit, slots *funcSlots) *ast.Arguments {
	names := unit.ArgNames()
	arg := func(i int) *ast.Arg {
		n := fmt.Sprintf("_%d", i)
		if i < len(names) {
			n = names[i]
		}
		return &ast.Arg{Name: n, Annotation: slots.annotations[n]}
	}
	a := &ast.Arguments{Defaults: slots.defaults}
	for i := 0; i < unit.ArgCount; i++ {
		if i < unit.PosOnlyArgCount {
			a.PosOnly = append(a.PosOnly, arg(i))
		} else {
			a.Args = append(a.Args, arg(i))
		}
	}
	n := unit.ArgCount
	for i := 0; i < unit.KwOnlyArgCount; i++ {
		p := arg(n + i)
		a.KwOnly = append(a.KwOnly, p)
		a.KwDefaults = append(a.KwDefaults, slots.kwdefaults[p.Name])
	}
	n += unit.KwOnlyArgCount
	if unit.HasVarArgs() {
		a.VarArg = arg(n)
		n++
	}
	if unit.HasVarKeywords() {
		a.KwArg = arg(n)
	}
	return a
}

// classExpr builds a class from the arguments of __build_class__: the body
// function, the class name, then the bases.
func (r *reducer) classExpr(args []*symbol, kws []*ast.Keyword) *ast.ClassExpr {
	if len(args) < 2 {
		return nil
	}
	fe, ok := args[0].node.(*ast.FunctionExpr)
	if !ok {
		return nil
	}
	nm, _ := strConst(args[1].node)
	def := &ast.ClassDef{Name: nm, Bases: exprsOf(args[2:]), Keywords: kws, Body: fe.Def.Body}
	return &ast.ClassExpr{Def: def}
}

func actBuildClass27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	nm, _ := strConst(m.expr(0))
	bases, _ := seqElts(m.expr(1))
	call, ok := m.expr(2).(*ast.Call)
	if !ok {
		return nil, false
	}
	fe, ok := call.Func.(*ast.FunctionExpr)
	if !ok {
		return nil, false
	}
	return one(&ast.ClassExpr{Def: &ast.ClassDef{Name: nm, Bases: bases, Body: fe.Def.Body}}), true
}

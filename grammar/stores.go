package grammar

import (
	"slices"
	"strings"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/flow"
)

// chainPart is an assignment whose value is still on the stack, either for
// more targets or as the value of a named expression.
type chainPart struct {
	assign *ast.Assign
}

// augSub is the container and index of an augmented subscript store.
type augSub struct {
	x, index ast.Expr
}

// unpackPart collects the targets of an unpacking store. A nested unpack
// reports its tuple to parent when complete.
type unpackPart struct {
	src     *symbol
	want    int
	star    int
	targets []ast.Expr
	parent  *unpackPart
}

// swapGroup tracks values reordered by a rotation. When each is stored in
// turn the stores fold back into a single tuple assignment.
type swapGroup struct {
	size    int
	targets []ast.Expr
	values  []ast.Expr
	stmts   []*ast.Assign
}

// noteScope records global and nonlocal declarations implied by a store
// or delete.
func (r *reducer) noteScope(in *disasm.Instruction) {
	if r.unit.IsModule() {
		return
	}
	n := argString(in)
	switch in.Op {
	case "STORE_GLOBAL", "DELETE_GLOBAL":
		if !slices.Contains(r.globals, n) {
			r.globals = append(r.globals, n)
		}
	case "STORE_DEREF", "DELETE_DEREF":
		if r.bundle.Revision.Major >= 3 && r.unit.IsFreeVar(n) && !slices.Contains(r.nonlocals, n) {
			r.nonlocals = append(r.nonlocals, n)
		}
	}
}

// storeTarget builds the target a store instruction writes. rest holds the
// object, and for subscripts the index, of the store.
func (r *reducer) storeTarget(in *disasm.Instruction, rest []ast.Expr) ast.Expr {
	switch in.Op {
	case "STORE_ATTR", "DELETE_ATTR":
		return &ast.Attribute{X: rest[0], Attr: argString(in)}
	case "STORE_SUBSCR", "DELETE_SUBSCR":
		return &ast.Subscript{X: rest[0], Index: rest[1]}
	}
	r.noteScope(in)
	return name(argString(in))
}

func restExprs(m *match, from int) []ast.Expr {
	var out []ast.Expr
	for _, g := range m.groups[from:] {
		out = append(out, exprsOf(g)...)
	}
	return out
}

// assign stores v into target.
func (r *reducer) assign(f *frame, target ast.Expr, v *symbol) {
	switch v.nt {
	case ntItem, ntEnter:
		f.emit(&ast.TargetBind{Target: target, Source: v.node})
		return
	}
	if st := defineStmt(target, v.node); st != nil {
		f.emit(st)
		return
	}
	as := &ast.Assign{Targets: []ast.Expr{target}, Value: v.node}
	f.emit(as)
	if g, ok := v.part.(*swapGroup); ok && v.nt == ntExpr {
		g.targets = append(g.targets, target)
		g.values = append(g.values, v.node)
		g.stmts = append(g.stmts, as)
		if len(g.stmts) == g.size {
			foldSwap(f, g)
		}
	}
}

// foldSwap replaces the trailing stores of g with one tuple assignment.
func foldSwap(f *frame, g *swapGroup) {
	n := len(f.out)
	if n < g.size {
		return
	}
	for i, as := range g.stmts {
		if f.out[n-g.size+i] != ast.Stmt(as) {
			return
		}
	}
	f.out = append(f.out[:n-g.size], &ast.Assign{
		Targets: []ast.Expr{&ast.Tuple{Elts: g.targets}},
		Value:   &ast.Tuple{Elts: g.values},
	})
}

// defineStmt turns the store of a function or class object, possibly
// wrapped in decorator calls, into its definition.
func defineStmt(target, value ast.Expr) ast.Stmt {
	n, ok := target.(*ast.Name)
	if !ok {
		return nil
	}
	var decos []ast.Expr
	e := value
	for {
		c, ok := e.(*ast.Call)
		if !ok || len(c.Args) != 1 || len(c.Keywords) != 0 {
			break
		}
		decos = append(decos, c.Func)
		e = c.Args[0]
	}
	switch d := e.(type) {
	case *ast.FunctionExpr:
		def := *d.Def
		def.Name = n.ID
		def.Decorators = decos
		return &def
	case *ast.ClassExpr:
		def := *d.Def
		def.Name = n.ID
		def.Decorators = decos
		return &def
	}
	return nil
}

func actStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	r.assign(f, r.storeTarget(m.in, restExprs(m, 1)), m.sym(0))
	return nil, true
}

func actUnpack(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntUnpack, newUnpack(m.in, m.sym(0), nil))}, true
}

func actUnpackNested(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	parent := m.sym(0).part.(*unpackPart)
	return []*symbol{partSym(ntUnpack, newUnpack(m.in, nil, parent))}, true
}

// newUnpack reads the target count of UNPACK_SEQUENCE, or of UNPACK_EX
// whose operand counts the targets before and after the starred one.
func newUnpack(in *disasm.Instruction, src *symbol, parent *unpackPart) *unpackPart {
	u := &unpackPart{src: src, want: in.Arg, star: -1, parent: parent}
	if in.Is("UNPACK_EX") {
		before, after := in.Arg&0xFF, in.Arg>>8
		u.want, u.star = before+1+after, before
	}
	return u
}

func actUnpackStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	u := m.sym(0).part.(*unpackPart)
	target := r.storeTarget(m.in, restExprs(m, 1))
	if u = r.unpackAdd(f, u, target); u == nil {
		return nil, true
	}
	return []*symbol{partSym(ntUnpack, u)}, true
}

// unpackAdd appends a target and completes every unpack it fills. It
// returns the unpack still collecting targets, or nil when the outermost
// one was assigned.
func (r *reducer) unpackAdd(f *frame, u *unpackPart, target ast.Expr) *unpackPart {
	for {
		if len(u.targets) == u.star {
			target = &ast.Starred{X: target}
		}
		u.targets = append(u.targets, target)
		if len(u.targets) < u.want {
			return u
		}
		target = &ast.Tuple{Elts: u.targets}
		if u.parent == nil {
			r.assign(f, target, u.src)
			return nil
		}
		u = u.parent
	}
}

func actAugStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	av := m.sym(0).part.(*augValue)
	var target ast.Expr
	switch m.rule.Name {
	case "store_attr_aug":
		x, _ := m.sym(1).part.(ast.Expr)
		target = &ast.Attribute{X: x, Attr: argString(m.in)}
	case "store_subscr_aug":
		as := m.sym(1).part.(*augSub)
		target = &ast.Subscript{X: as.x, Index: as.index}
	default:
		target = r.storeTarget(m.in, nil)
	}
	f.emit(&ast.AugAssign{Target: target, Op: av.op, Value: av.value})
	return nil, true
}

func actDupStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	v := m.sym(0)
	target := r.storeTarget(m.in, restExprs(m, 2))
	c := &symbol{nt: ntChain, part: &chainPart{assign: &ast.Assign{Targets: []ast.Expr{target}, Value: v.node}}}
	if n, ok := target.(*ast.Name); ok {
		c.node = &ast.NamedExpr{Target: n, Value: v.node}
	}
	return []*symbol{c}, true
}

func actChainStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	c := m.sym(0)
	as := c.part.(*chainPart).assign
	as.Targets = append(as.Targets, r.storeTarget(m.in, restExprs(m, 1)))
	c.node = nil
	return []*symbol{c}, true
}

func actDiscard(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return nil, true
}

func actStoreSlice(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	sl := &ast.Slice{Lower: noneToNil(m.expr(2)), Upper: noneToNil(m.expr(3))}
	f.emit(&ast.Assign{Targets: []ast.Expr{&ast.Subscript{X: m.expr(1), Index: sl}}, Value: m.expr(0)})
	return nil, true
}

func actStoreAnnotation(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	f.emit(&ast.AnnAssign{Target: name(argString(m.in)), Annotation: m.expr(0)})
	return nil, true
}

func actDelete(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	var target ast.Expr
	switch m.in.Op {
	case "DELETE_ATTR", "DELETE_SUBSCR":
		target = r.storeTarget(m.in, restExprs(m, 0))
	default:
		target = r.storeTarget(m.in, nil)
	}
	f.emit(&ast.Delete{Targets: []ast.Expr{target}})
	return nil, true
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func actExprStmt(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	s := m.sym(0)
	switch s.nt {
	case ntItem, ntEnter:
		return nil, true
	}
	if p, ok := s.node.(*ast.Placeholder); ok {
		f.emit(p)
		return nil, true
	}
	f.emit(&ast.ExprStmt{X: s.node})
	return nil, true
}

func actReturn(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if m.in.Is("RETURN_CONST") {
		f.emit(&ast.Return{Value: &ast.Constant{Value: m.in.Argval}})
		return nil, true
	}
	f.emit(&ast.Return{Value: m.expr(0)})
	return nil, true
}

func actRaise(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	rs := &ast.Raise{}
	e := m.exprs(0)
	if len(e) > 0 {
		rs.Exc = e[0]
	}
	if len(e) > 1 {
		rs.Cause = e[1]
	}
	f.emit(rs)
	return nil, true
}

func actExec(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	ex := &ast.Exec{Body: m.expr(0)}
	globals, locals := m.sym(1), m.sym(2)
	if !isNone(globals.node) {
		ex.Globals = globals.node
		if locals.node != globals.node {
			ex.Locals = locals.node
		}
	}
	f.emit(ex)
	return nil, true
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// importPart is an imported module on the stack. Names bound from it
// accumulate in aliases.
type importPart struct {
	module   string
	level    int
	fromlist ast.Expr
	path     []string
	aliases  []*ast.Alias
	done     bool // the statement was emitted at its store
}

func (im *importPart) isFrom() bool {
	return !isNone(im.fromlist)
}

// bind records a plain `import a.b.c` bound under name.
func (im *importPart) bind(name string) ast.Stmt {
	first, _, _ := strings.Cut(im.module, ".")
	a := &ast.Alias{Name: im.module}
	if len(im.path) > 0 || name != first {
		a.AsName = name
	}
	return &ast.Import{Names: []*ast.Alias{a}}
}

func (im *importPart) stmt() ast.Stmt {
	if !im.isFrom() {
		if n := len(im.aliases); n > 0 {
			a := im.aliases[n-1]
			bound := a.AsName
			if bound == "" {
				bound = a.Name
			}
			return im.bind(bound)
		}
		return &ast.Import{Names: []*ast.Alias{{Name: im.module}}}
	}
	return &ast.ImportFrom{Module: im.module, Names: im.aliases, Level: im.level}
}

func (im *importPart) star() ast.Stmt {
	return &ast.ImportFrom{Module: im.module, Names: []*ast.Alias{{Name: "*"}}, Level: im.level}
}

func actImportName(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	level, _ := intConst(m.expr(0))
	im := &importPart{module: argString(m.in), level: max(level, 0), fromlist: m.expr(1)}
	return []*symbol{partSym(ntImportMod, im)}, true
}

func actImportAttr(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	im := m.sym(0).part.(*importPart)
	im.path = append(im.path, argString(m.in))
	return []*symbol{m.sym(0)}, true
}

func actImportFrom(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(0), partSym(ntImportFrom, argString(m.in))}, true
}

// actImportRot drops the intermediate module an `import a.b as c` walks
// through; with a from-list the rotation belongs to something else.
func actImportRot(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	im := m.sym(0).part.(*importPart)
	if im.isFrom() {
		return nil, false
	}
	im.path = append(im.path, m.sym(1).part.(string))
	return []*symbol{m.sym(0), partSym(ntImportRot, nil)}, true
}

func actImportStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	im := m.sym(0).part.(*importPart)
	r.storeTarget(m.in, nil)
	f.emit(im.bind(argString(m.in)))
	return nil, true
}

func actImportFromStore(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	im := m.sym(0).part.(*importPart)
	from := m.sym(1).part.(string)
	bound := argString(m.in)
	r.storeTarget(m.in, nil)
	if !im.isFrom() {
		im.path = append(im.path, from)
		f.emit(im.bind(bound))
		im.done = true
		return []*symbol{m.sym(0)}, true
	}
	a := &ast.Alias{Name: from}
	if bound != from {
		a.AsName = bound
	}
	im.aliases = append(im.aliases, a)
	return []*symbol{m.sym(0)}, true
}

func actImportStar(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	f.emit(m.sym(0).part.(*importPart).star())
	return nil, true
}

func actImportFinish(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	s := m.sym(0)
	im := s.part.(*importPart)
	if s.nt == ntImportStar {
		f.emit(im.star())
		return nil, true
	}
	if !im.done {
		f.emit(im.stmt())
	}
	return nil, true
}

// ---------------------------------------------------------------------------
// 2.x print statement
// ---------------------------------------------------------------------------

// printPart is a print statement still collecting items.
type printPart struct {
	dest   ast.Expr
	values []ast.Expr
}

func actPrintItem(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if len(m.groups) == 1 {
		return []*symbol{partSym(ntPrint, &printPart{values: []ast.Expr{m.expr(0)}})}, true
	}
	p := m.sym(0).part.(*printPart)
	p.values = append(p.values, m.expr(1))
	return []*symbol{m.sym(0)}, true
}

func actPrintNewline(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	pr := &ast.Print{NL: true}
	if len(m.groups) == 1 {
		pr.Values = m.sym(0).part.(*printPart).values
	}
	f.emit(pr)
	return nil, true
}

// actPrintItemTo handles PRINT_ITEM_TO, which finds the item below a copy
// of the destination.
func actPrintItemTo(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if m.sym(0).nt == ntPrintTo {
		p := m.sym(0).part.(*printPart)
		p.values = append(p.values, m.expr(1))
		return []*symbol{m.sym(0)}, true
	}
	p := &printPart{dest: m.expr(0), values: []ast.Expr{m.expr(1)}}
	return []*symbol{partSym(ntPrintTo, p)}, true
}

func actPrintNewlineTo(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	s := m.sym(0)
	if s.nt == ntPrintTo {
		p := s.part.(*printPart)
		f.emit(&ast.Print{Dest: p.dest, Values: p.values, NL: true})
		return nil, true
	}
	f.emit(&ast.Print{Dest: s.node, NL: true})
	return nil, true
}

func actPrintToDup(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	p := m.sym(0).part.(*printPart)
	return []*symbol{m.sym(0), {nt: ntDup, node: p.dest}}, true
}

func actPrintFinish(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	p := m.sym(0).part.(*printPart)
	f.emit(&ast.Print{Dest: p.dest, Values: p.values})
	return nil, true
}

// ---------------------------------------------------------------------------
// Stack shuffles
// ---------------------------------------------------------------------------

func actDup(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	s := m.sym(0)
	return []*symbol{s, {nt: ntDup, node: s.node}}, true
}

func actDupTwo(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	x, i := m.sym(0), m.sym(1)
	return []*symbol{partSym(ntAugSub, &augSub{x: x.node, index: i.node}), x, i}, true
}

func actCopyHalf(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(0), m.sym(1), {nt: ntCopyHalf, node: m.expr(0)}}, true
}

func actAugRot(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(1), m.sym(0)}, true
}

func actAugSwap3(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(1), partSym(ntAugSubPend, m.sym(0).part)}, true
}

func actAugSwap2(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(0), partSym(ntAugSub, m.sym(1).part)}, true
}

// actRotate moves the top of the stack below the other matched symbols.
func actRotate(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	in := m.all()
	if len(in) < 2 {
		return nil, false
	}
	out := append([]*symbol{in[len(in)-1]}, in[:len(in)-1]...)
	return regroup(in, out), true
}

func actSwap(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	in := m.all()
	if len(in) < 2 {
		return nil, false
	}
	out := append([]*symbol{}, in...)
	out[0], out[len(out)-1] = out[len(out)-1], out[0]
	return regroup(in, out), true
}

func actCopy(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	in := m.all()
	if len(in) == 0 || in[0].node == nil {
		return nil, false
	}
	return append(append([]*symbol{}, in...), &symbol{nt: ntDup, node: in[0].node}), true
}

// regroup tags plain values reordered by a shuffle with a shared swap
// group so their stores can be folded.
func regroup(in, out []*symbol) []*symbol {
	var g *swapGroup
	for _, s := range in {
		if s.nt != ntExpr {
			return out
		}
		if sg, ok := s.part.(*swapGroup); ok && g == nil {
			g = sg
		}
	}
	if g == nil {
		g = &swapGroup{size: len(in)}
	}
	for i, s := range out {
		c := *s
		c.part = g
		out[i] = &c
	}
	return out
}

func actJump(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	in := m.in
	switch r.tree.Role(in.Offset) {
	case flow.Break:
		f.emit(&ast.Break{})
	case flow.Continue:
		f.emit(&ast.Continue{})
	case flow.Structural:
	default:
		switch {
		case in.Is("BREAK_LOOP"):
			f.emit(&ast.Break{})
		case in.Is("CONTINUE_LOOP"):
			f.emit(&ast.Continue{})
		case in.Target == in.Next():
		case in.Target < 0:
			f.emit(r.hole(diag.DanglingJump, disasm.ErrDanglingJump, in.Offset, in.Next(), "%s", in.Op))
		default:
			f.emit(r.hole(diag.UnsupportedShape, nil, in.Offset, in.Next(), "jump to %d", in.Target))
		}
	}
	return nil, true
}

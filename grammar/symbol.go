package grammar

import (
	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/registry"
)

// Nonterminals that carry partial constructs between reductions.
const (
	ntExpr       = "expr"
	ntIter       = "iter"
	ntItem       = "item"  // the value FOR_ITER hands to the loop body
	ntEnter      = "enter" // the value a with statement binds
	ntDup        = "dup"
	ntCopyHalf   = "copyhalf"
	ntChain      = "chain"
	ntNull       = "null"
	ntMethod     = "method"
	ntMethSelf   = "methself"
	ntCode       = "code"
	ntCompFunc   = "compfunc"
	ntFunction   = "function"
	ntBuildClass = "buildclass"
	ntLocals     = "locals"
	ntSaved      = "saved"
	ntGen        = "gen"
	ntYFIter     = "yfiter"
	ntAwaitable  = "awaitable"
	ntUnpack     = "unpack"
	ntAugValue   = "augvalue"
	ntAugAttr    = "augattr"
	ntAugSub     = "augsub"
	ntAugSubPend = "augsubpend"
	ntImportMod  = "importmod"
	ntImportFrom = "importfrom"
	ntImportRot  = "importrot"
	ntImportStar = "importstar"
	ntPrint      = "print"
	ntPrintTo    = "printto"
	ntAssertErr  = "asserterr"
	ntConverted  = "converted"
)

// symbol is one entry of the reduction stack. A waiting instruction has an
// empty nt; everything else was produced by a reduction.
type symbol struct {
	nt   string
	ins  *disasm.Instruction
	node ast.Expr // non-nil when the symbol can stand for an expression
	part any      // payload of a partial construct
	mark int      // length of the frame's statement list when it appeared
}

func (s *symbol) isExpr() bool {
	return s.node != nil
}

func (s *symbol) waiting() bool {
	return s.nt == "" && s.node == nil
}

func exprSym(e ast.Expr) *symbol {
	return &symbol{nt: ntExpr, node: e}
}

func partSym(nt string, part any) *symbol {
	return &symbol{nt: nt, part: part}
}

// frame is one statement list under construction together with the
// expression stack that flows across its regions.
type frame struct {
	stack []*symbol
	out   []ast.Stmt
}

func newFrame(init ...*symbol) *frame {
	f := &frame{}
	for _, s := range init {
		f.push(s)
	}
	return f
}

func (f *frame) push(syms ...*symbol) {
	f.place(len(f.out), syms...)
}

// place pushes symbols that stand for values computed before statement
// mark of the frame.
func (f *frame) place(mark int, syms ...*symbol) {
	for _, s := range syms {
		s.mark = mark
		f.stack = append(f.stack, s)
	}
}

func (f *frame) pop() *symbol {
	if len(f.stack) == 0 {
		return nil
	}
	s := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return s
}

func (f *frame) top() *symbol {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) emit(stmts ...ast.Stmt) {
	f.out = append(f.out, stmts...)
}

// match is one candidate reduction: the rule, the trigger, and the stack
// symbols bound to each right-hand-side position before the trigger.
type match struct {
	rule   *registry.Rule
	in     *disasm.Instruction
	groups [][]*symbol
	n      int
}

func (m *match) sym(i int) *symbol {
	return m.groups[i][0]
}

func (m *match) expr(i int) ast.Expr {
	return m.groups[i][0].node
}

func (m *match) exprs(i int) []ast.Expr {
	out := make([]ast.Expr, len(m.groups[i]))
	for k, s := range m.groups[i] {
		out[k] = s.node
	}
	return out
}

// all returns the matched stack symbols in stack order.
func (m *match) all() []*symbol {
	var out []*symbol
	for _, g := range m.groups {
		out = append(out, g...)
	}
	return out
}

// bind matches the right-hand side of r, trigger excluded, against the top
// of the stack.
func bind(stack []*symbol, r *registry.Rule, in *disasm.Instruction) (*match, bool) {
	rhs := r.RHS[:len(r.RHS)-1]
	m := &match{rule: r, in: in, groups: make([][]*symbol, len(rhs))}
	pos := len(stack)
	for k := len(rhs) - 1; k >= 0; k-- {
		sym := rhs[k]
		count := 1
		if sym.Variadic() {
			count = sym.Count.Count(in.Arg)
		}
		if count < 0 || pos-count < 0 {
			return nil, false
		}
		group := append([]*symbol(nil), stack[pos-count:pos]...)
		for _, s := range group {
			if !accepts(sym, s) {
				return nil, false
			}
		}
		m.groups[k] = group
		pos -= count
	}
	m.n = len(stack) - pos
	return m, true
}

func accepts(sym registry.Sym, s *symbol) bool {
	switch sym.Kind {
	case registry.SymOp:
		return s.waiting() && sym.Matches(s.ins.Op)
	case registry.SymExpr, registry.SymExprs:
		return s.isExpr()
	case registry.SymNT:
		for _, n := range sym.Names {
			if s.nt == n {
				return true
			}
		}
		return false
	}
	return true
}

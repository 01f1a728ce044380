// Package grammar turns the regions recovered by package flow into a
// semantic tree. Straight-line instructions are reduced bottom-up against
// the revision's rule set; compound regions are converted directly, with
// an expression stack carried between sibling regions.
package grammar

import (
	"context"
	"errors"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/flow"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

var (
	ErrNoMatch = errors.New("no grammar rule matches")
)

var log = commonlog.GetLogger("pyrecon.grammar")

// Result is the reconstructed body of one code unit. Diagnostics lists
// the placeholders of this unit only; nested units report their own.
type Result struct {
	Unit        *pyc.CodeUnit
	Body        []ast.Stmt
	Diagnostics []diag.Diagnostic
}

// Nested reconstructs a code unit found in a constant pool. Decompile
// calls it for function, class, lambda and comprehension bodies.
type Nested func(ctx context.Context, unit *pyc.CodeUnit) (*Result, error)

// Serial returns a Nested that reconstructs nested units recursively on
// the calling goroutine.
func Serial(bundle *registry.Bundle) Nested {
	var nested Nested
	nested = func(ctx context.Context, unit *pyc.CodeUnit) (*Result, error) {
		return Decompile(ctx, unit, bundle, nested)
	}
	return nested
}

// Decompile reconstructs the statements of unit. Shapes that cannot be
// reconstructed become placeholders; the only errors are cancellation and
// errors returned by nested.
func Decompile(ctx context.Context, unit *pyc.CodeUnit, bundle *registry.Bundle, nested Nested) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if nested == nil {
		nested = Serial(bundle)
	}
	instrs, ddiags := disasm.Disassemble(unit, bundle)
	for _, d := range ddiags {
		log.Debugf("%s: %s", unit.DisplayName(), d.Error())
	}
	instrs = disasm.Normalize(instrs, bundle)
	r := &reducer{
		ctx:    ctx,
		unit:   unit,
		bundle: bundle,
		rules:  bundle.Rules,
		tree:   flow.Recover(instrs, unit, bundle),
		nested: nested,
	}
	f := newFrame()
	r.regions(f, r.tree.Body)
	body := r.finish(f)
	if r.err != nil {
		return nil, r.err
	}
	body = r.foldUnit(body)

	res := &Result{Unit: unit, Body: body}
	for _, p := range r.holes {
		res.Diagnostics = append(res.Diagnostics, p.Diag)
	}
	log.Debugf("reduced %s: %d statements, %d placeholders", unit.DisplayName(), len(body), len(res.Diagnostics))
	return res, nil
}

type reducer struct {
	ctx    context.Context
	unit   *pyc.CodeUnit
	bundle *registry.Bundle
	rules  *registry.RuleSet
	tree   *flow.Tree
	nested Nested
	err    error

	holes     []*ast.Placeholder
	globals   []string
	nonlocals []string
}

// action builds the symbols that replace a matched handle. It may emit
// statements into the frame. Returning false declines the match.
type action func(r *reducer, f *frame, m *match) ([]*symbol, bool)

var actions map[string]action

func (r *reducer) hole(kind diag.Kind, cause error, start, end int, format string, args ...any) *ast.Placeholder {
	p := ast.NewPlaceholder(diag.New(kind, cause, start, end, format, args...))
	r.holes = append(r.holes, p)
	return p
}

func (r *reducer) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// shift feeds one instruction to the frame and applies the best reduction
// it triggers.
func (r *reducer) shift(f *frame, in *disasm.Instruction) {
	if in.Opcode == nil {
		f.emit(r.hole(diag.UnknownOpcode, disasm.ErrUnknownOpcode, in.Offset, in.Next(), "opcode %s", in.Op))
		return
	}
	var found []*match
	for _, rule := range r.rules.Candidates(in.Op) {
		if rule.Arg != registry.AnyArg && rule.Arg != in.Arg {
			continue
		}
		if m, ok := bind(f.stack, rule, in); ok {
			found = append(found, m)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return registry.Better(found[i].rule, found[j].rule, found[i].n+1, found[j].n+1)
	})
	for _, m := range found {
		act := actions[m.rule.Action]
		if act == nil {
			continue
		}
		mark := len(f.out)
		for _, s := range f.stack[len(f.stack)-m.n:] {
			mark = min(mark, s.mark)
		}
		out, ok := act(r, f, m)
		if !ok {
			continue
		}
		f.stack = f.stack[:len(f.stack)-m.n]
		f.place(mark, out...)
		return
	}
	if r.rules.Waiting(in.Op) {
		f.push(&symbol{ins: in})
		return
	}
	r.noMatch(f, in)
}

// noMatch records an instruction no rule consumes. Adjacent failures share
// one placeholder.
func (r *reducer) noMatch(f *frame, in *disasm.Instruction) {
	if n := len(f.out); n > 0 {
		if p, ok := f.out[n-1].(*ast.Placeholder); ok && p.Diag.Kind == diag.NoMatch && p.Diag.End == in.Offset {
			p.Diag.End = in.Next()
			p.Diag.Msg += " " + in.Op
			return
		}
	}
	f.emit(r.hole(diag.NoMatch, ErrNoMatch, in.Offset, in.Next(), "%s", in.Op))
}

func (r *reducer) linear(f *frame, instrs []disasm.Instruction) {
	for i := range instrs {
		if r.err != nil {
			return
		}
		r.shift(f, &instrs[i])
	}
}

// finish closes a frame: values nobody consumed become statements at the
// point they were computed.
func (r *reducer) finish(f *frame) []ast.Stmt {
	out := f.out
	for k := len(f.stack) - 1; k >= 0; k-- {
		s := f.stack[k]
		st := r.leftover(s)
		if st == nil {
			continue
		}
		at := min(s.mark, len(out))
		out = append(out, nil)
		copy(out[at+1:], out[at:])
		out[at] = st
	}
	f.stack = nil
	f.out = out
	return out
}

func (r *reducer) leftover(s *symbol) ast.Stmt {
	if s.waiting() {
		return r.hole(diag.NoMatch, ErrNoMatch, s.ins.Offset, s.ins.Next(), "unconsumed %s", s.ins.Op)
	}
	switch s.nt {
	case ntExpr, ntIter:
		if p, ok := s.node.(*ast.Placeholder); ok {
			return p
		}
		return &ast.ExprStmt{X: s.node}
	case ntChain:
		return s.part.(*chainPart).assign
	case ntPrint:
		return &ast.Print{Values: s.part.(*printPart).values}
	case ntPrintTo:
		p := s.part.(*printPart)
		return &ast.Print{Dest: p.dest, Values: p.values}
	case ntImportMod:
		if im := s.part.(*importPart); len(im.aliases) > 0 && !im.done {
			return im.stmt()
		}
		return nil
	case ntNull, ntGen, ntSaved, ntMethSelf, ntImportRot, ntItem, ntEnter, ntDup, ntCopyHalf:
		return nil
	}
	start, end := 0, 0
	if s.ins != nil {
		start, end = s.ins.Offset, s.ins.Next()
	}
	return r.hole(diag.GrammarConflict, ErrNoMatch, start, end, "unfinished %s", s.nt)
}

// value returns the expression a symbol stands for, or a placeholder.
func (r *reducer) value(s *symbol, at int) ast.Expr {
	if s == nil {
		return r.hole(diag.UnsupportedShape, nil, at, at, "missing value")
	}
	if s.node == nil {
		return r.hole(diag.GrammarConflict, ErrNoMatch, at, at, "%s is not a value", s.nt)
	}
	return s.node
}

// sub reduces regions in a fresh frame seeded with init.
func (r *reducer) sub(body []*flow.Region, init ...*symbol) *frame {
	f := newFrame(init...)
	r.regions(f, body)
	return f
}

// block reduces regions into a closed statement list.
func (r *reducer) block(body []*flow.Region, init ...*symbol) []ast.Stmt {
	return r.finish(r.sub(body, init...))
}

// nestedBody reconstructs a unit from the constant pool.
func (r *reducer) nestedBody(unit *pyc.CodeUnit) []ast.Stmt {
	if r.err != nil {
		return nil
	}
	res, err := r.nested(r.ctx, unit)
	if err != nil {
		r.fail(err)
		return nil
	}
	return res.Body
}

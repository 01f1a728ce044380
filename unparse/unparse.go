// Package unparse renders a semantic tree as Python source text.
//
// Rendering never fails: nodes that cannot be expressed in the target
// syntax come out as placeholder calls, which are valid wherever an
// expression or statement is.
package unparse

import (
	"fmt"
	"strings"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
)

// DefaultPlaceholder is the callable name used for placeholders.
const DefaultPlaceholder = "__pyrecon_gap__"

// Options controls rendering.
type Options struct {
	// Indent is the number of spaces per block level; zero means 4.
	Indent int
	// Placeholder names the call emitted for unreconstructed spans.
	Placeholder string
	// Py2 forces 2.x syntax. A *ast.Module also carries this.
	Py2 bool
}

func (o Options) withDefaults() Options {
	if o.Indent <= 0 {
		o.Indent = 4
	}
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	return o
}

// Unparse renders n. Modules and statements render as lines; a bare
// expression renders inline.
func Unparse(n ast.Node, opts Options) string {
	src, _ := Render(n, opts)
	return src
}

// Render is Unparse that also returns the diagnostics of the placeholders
// the printer itself had to emit. Placeholders already in the tree are
// not repeated.
func Render(n ast.Node, opts Options) (string, []diag.Diagnostic) {
	opts = opts.withDefaults()
	var gaps []diag.Diagnostic
	p := &printer{opts: opts, quote: '\'', gaps: &gaps}
	switch n := n.(type) {
	case *ast.Module:
		p.opts.Py2 = p.opts.Py2 || n.Py2
		p.body(n.Body, true)
	case ast.Stmt:
		p.stmt(n)
	case ast.Expr:
		return p.expr(n, precLowest), gaps
	case ast.Pattern:
		return p.pattern(n), gaps
	}
	return p.sb.String(), gaps
}

// UnparseStmts renders a statement list at the top level.
func UnparseStmts(body []ast.Stmt, opts Options) string {
	return Unparse(&ast.Module{Body: body}, opts)
}

type printer struct {
	sb     strings.Builder
	opts   Options
	depth  int
	quote  byte // preferred string quote
	inFStr bool
	gaps   *[]diag.Diagnostic
}

func (p *printer) line(format string, args ...any) {
	p.sb.WriteString(strings.Repeat(" ", p.depth*p.opts.Indent))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

// body renders a block. Empty blocks get pass; a leading docstring is
// written in triple quotes when that reads better.
func (p *printer) body(stmts []ast.Stmt, docAllowed bool) {
	if len(stmts) == 0 {
		if p.depth > 0 {
			p.line("pass")
		}
		return
	}
	for i, s := range stmts {
		if i == 0 && docAllowed {
			if doc, ok := docstring(s); ok {
				p.line("%s", p.docQuote(doc))
				continue
			}
		}
		if i > 0 && (definition(s) || definition(stmts[i-1])) {
			p.blank()
		}
		p.stmt(s)
	}
}

// blank separates definitions: two empty lines at module level, one
// inside a block.
func (p *printer) blank() {
	p.sb.WriteByte('\n')
	if p.depth == 0 {
		p.sb.WriteByte('\n')
	}
}

func definition(s ast.Stmt) bool {
	switch s.(type) {
	case *ast.FunctionDef, *ast.ClassDef:
		return true
	}
	return false
}

func (p *printer) block(stmts []ast.Stmt) {
	p.depth++
	if len(stmts) == 0 {
		p.line("pass")
	} else {
		p.body(stmts, false)
	}
	p.depth--
}

func (p *printer) docBlock(stmts []ast.Stmt) {
	p.depth++
	if len(stmts) == 0 {
		p.line("pass")
	} else {
		p.body(stmts, true)
	}
	p.depth--
}

func docstring(s ast.Stmt) (string, bool) {
	es, ok := s.(*ast.ExprStmt)
	if !ok {
		return "", false
	}
	c, ok := es.X.(*ast.Constant)
	if !ok {
		return "", false
	}
	str, ok := c.Value.(string)
	return str, ok
}

// gap renders a placeholder for d and records it.
func (p *printer) gap(d diag.Diagnostic) string {
	if p.gaps != nil {
		*p.gaps = append(*p.gaps, d)
	}
	return p.placeholder(ast.NewPlaceholder(d))
}

// mark and rewind drop the gaps recorded by a rendering that is thrown
// away.
func (p *printer) mark() int {
	if p.gaps == nil {
		return 0
	}
	return len(*p.gaps)
}

func (p *printer) rewind(mark int) {
	if p.gaps != nil {
		*p.gaps = (*p.gaps)[:mark]
	}
}

func (p *printer) placeholder(ph *ast.Placeholder) string {
	return fmt.Sprintf("%s(%s, %d, %d)", p.opts.Placeholder,
		quoteString(ph.Diag.String(), '"', "", textMode), ph.Diag.Start, ph.Diag.End)
}

func (p *printer) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Placeholder:
		p.line("%s", p.placeholder(s))

	case *ast.ExprStmt:
		p.line("%s", p.expr(s.X, precYield))

	case *ast.Assign:
		parts := make([]string, 0, len(s.Targets)+1)
		for _, t := range s.Targets {
			parts = append(parts, p.targetList(t))
		}
		parts = append(parts, p.expr(s.Value, precYield))
		p.line("%s", strings.Join(parts, " = "))

	case *ast.AugAssign:
		p.line("%s %s %s", p.target(s.Target), s.Op, p.expr(s.Value, precYield))

	case *ast.AnnAssign:
		target := p.target(s.Target)
		if _, simple := s.Target.(*ast.Name); !simple {
			if _, ok := s.Target.(*ast.Attribute); !ok {
				if _, ok := s.Target.(*ast.Subscript); !ok {
					target = "(" + target + ")"
				}
			}
		}
		if s.Value == nil {
			p.line("%s: %s", target, p.expr(s.Annotation, precTest))
		} else {
			p.line("%s: %s = %s", target, p.expr(s.Annotation, precTest), p.expr(s.Value, precYield))
		}

	case *ast.If:
		p.ifChain(s, "if")

	case *ast.For:
		kw := "for"
		if s.Async {
			kw = "async for"
		}
		p.line("%s %s in %s:", kw, p.targetList(s.Target), p.expr(s.Iter, precTuple))
		p.block(s.Body)
		p.elseBlock(s.Else)

	case *ast.While:
		p.line("while %s:", p.expr(s.Test, precNamed))
		p.block(s.Body)
		p.elseBlock(s.Else)

	case *ast.Try:
		p.line("try:")
		p.block(s.Body)
		p.handlers(s)
		p.elseBlock(s.Else)

	case *ast.TryFinally:
		if len(s.Body) == 1 {
			if inner, ok := s.Body[0].(*ast.Try); ok {
				p.line("try:")
				p.block(inner.Body)
				p.handlers(inner)
				p.elseBlock(inner.Else)
				p.line("finally:")
				p.block(s.Finally)
				return
			}
		}
		p.line("try:")
		p.block(s.Body)
		p.line("finally:")
		p.block(s.Finally)

	case *ast.With:
		kw := "with"
		if s.Async {
			kw = "async with"
		}
		items := make([]string, len(s.Items))
		for i, it := range s.Items {
			items[i] = p.expr(it.Context, precTest)
			if it.Vars != nil {
				items[i] += " as " + p.target(it.Vars)
			}
		}
		p.line("%s %s:", kw, strings.Join(items, ", "))
		p.block(s.Body)

	case *ast.Match:
		p.line("match %s:", p.expr(s.Subject, precTuple))
		p.depth++
		if len(s.Cases) == 0 {
			p.line("case _:")
			p.block(nil)
		}
		for _, c := range s.Cases {
			head := "case " + p.pattern(c.Pattern)
			if c.Guard != nil {
				head += " if " + p.expr(c.Guard, precNamed)
			}
			p.line("%s:", head)
			p.block(c.Body)
		}
		p.depth--

	case *ast.FunctionDef:
		for _, d := range s.Decorators {
			p.line("@%s", p.expr(d, precNamed))
		}
		kw := "def"
		if s.Async {
			kw = "async def"
		}
		head := fmt.Sprintf("%s %s(%s)", kw, s.Name, p.arguments(s.Args, true))
		if s.Returns != nil {
			head += " -> " + p.expr(s.Returns, precTest)
		}
		p.line("%s:", head)
		p.docBlock(s.Body)

	case *ast.ClassDef:
		for _, d := range s.Decorators {
			p.line("@%s", p.expr(d, precNamed))
		}
		var parts []string
		for _, b := range s.Bases {
			parts = append(parts, p.expr(b, precTest))
		}
		for _, k := range s.Keywords {
			parts = append(parts, p.keyword(k))
		}
		if len(parts) == 0 {
			p.line("class %s:", s.Name)
		} else {
			p.line("class %s(%s):", s.Name, strings.Join(parts, ", "))
		}
		p.docBlock(s.Body)

	case *ast.Return:
		if s.Value == nil {
			p.line("return")
		} else {
			p.line("return %s", p.expr(s.Value, precTuple))
		}

	case *ast.Raise:
		switch {
		case s.Exc == nil:
			p.line("raise")
		case s.Cause != nil && !p.opts.Py2:
			p.line("raise %s from %s", p.expr(s.Exc, precTest), p.expr(s.Cause, precTest))
		default:
			p.line("raise %s", p.expr(s.Exc, precTest))
		}

	case *ast.Assert:
		if s.Msg == nil {
			p.line("assert %s", p.expr(s.Test, precTest))
		} else {
			p.line("assert %s, %s", p.expr(s.Test, precTest), p.expr(s.Msg, precTest))
		}

	case *ast.Delete:
		parts := make([]string, len(s.Targets))
		for i, t := range s.Targets {
			parts[i] = p.target(t)
		}
		p.line("del %s", strings.Join(parts, ", "))

	case *ast.Import:
		p.line("import %s", aliases(s.Names))

	case *ast.ImportFrom:
		mod := strings.Repeat(".", s.Level) + s.Module
		names := aliases(s.Names)
		if names == "" {
			names = "*"
		}
		p.line("from %s import %s", mod, names)

	case *ast.Global:
		p.line("global %s", strings.Join(s.Names, ", "))

	case *ast.Nonlocal:
		if p.opts.Py2 {
			p.line("global %s", strings.Join(s.Names, ", "))
		} else {
			p.line("nonlocal %s", strings.Join(s.Names, ", "))
		}

	case *ast.Pass:
		p.line("pass")
	case *ast.Break:
		p.line("break")
	case *ast.Continue:
		p.line("continue")

	case *ast.Print:
		p.print(s)

	case *ast.Exec:
		if !p.opts.Py2 {
			args := []string{p.expr(s.Body, precTest)}
			if s.Globals != nil {
				args = append(args, p.expr(s.Globals, precTest))
			}
			if s.Locals != nil {
				args = append(args, p.expr(s.Locals, precTest))
			}
			p.line("exec(%s)", strings.Join(args, ", "))
			return
		}
		text := "exec " + p.expr(s.Body, precOr)
		if s.Globals != nil {
			text += " in " + p.expr(s.Globals, precTest)
			if s.Locals != nil {
				text += ", " + p.expr(s.Locals, precTest)
			}
		}
		p.line("%s", text)

	case *ast.CompStmt:
		p.line("%s", p.expr(s.Comp, precYield))

	case *ast.TargetBind:
		p.line("%s = %s", p.target(s.Target), p.expr(s.Source, precYield))

	default:
		p.line("%s", p.gap(unrenderable(s)))
	}
}

func (p *printer) ifChain(s *ast.If, kw string) {
	p.line("%s %s:", kw, p.expr(s.Test, precNamed))
	p.block(s.Body)
	if len(s.Else) == 1 {
		if elif, ok := s.Else[0].(*ast.If); ok {
			p.ifChain(elif, "elif")
			return
		}
	}
	p.elseBlock(s.Else)
}

func (p *printer) elseBlock(stmts []ast.Stmt) {
	if len(stmts) == 0 {
		return
	}
	p.line("else:")
	p.block(stmts)
}

func (p *printer) handlers(s *ast.Try) {
	for _, h := range s.Handlers {
		p.handler("except", h)
	}
	for _, g := range s.Grouped {
		p.handler("except*", &g.ExceptHandler)
	}
	if len(s.Handlers) == 0 && len(s.Grouped) == 0 && len(s.Else) == 0 {
		// A try needs at least one clause.
		p.line("finally:")
		p.block(nil)
	}
}

func (p *printer) handler(kw string, h *ast.ExceptHandler) {
	switch {
	case h.Type == nil:
		p.line("%s:", kw)
	case h.Name == "":
		p.line("%s %s:", kw, p.expr(h.Type, precTest))
	case p.opts.Py2:
		p.line("%s %s, %s:", kw, p.expr(h.Type, precTest), h.Name)
	default:
		p.line("%s %s as %s:", kw, p.expr(h.Type, precTest), h.Name)
	}
	p.block(h.Body)
}

func (p *printer) print(s *ast.Print) {
	vals := make([]string, 0, len(s.Values)+1)
	if !p.opts.Py2 {
		for _, v := range s.Values {
			vals = append(vals, p.expr(v, precTest))
		}
		if !s.NL {
			vals = append(vals, "end=' '")
		}
		if s.Dest != nil {
			vals = append(vals, "file="+p.expr(s.Dest, precTest))
		}
		p.line("print(%s)", strings.Join(vals, ", "))
		return
	}
	if s.Dest != nil {
		vals = append(vals, ">>"+p.expr(s.Dest, precTest))
	}
	for _, v := range s.Values {
		vals = append(vals, p.expr(v, precTest))
	}
	text := "print"
	if len(vals) > 0 {
		text += " " + strings.Join(vals, ", ")
	}
	if !s.NL && len(s.Values) > 0 {
		text += ","
	}
	p.line("%s", text)
}

func aliases(names []*ast.Alias) string {
	parts := make([]string, len(names))
	for i, a := range names {
		parts[i] = a.Name
		if a.AsName != "" && a.AsName != a.Name {
			parts[i] += " as " + a.AsName
		}
	}
	return strings.Join(parts, ", ")
}

func (p *printer) keyword(k *ast.Keyword) string {
	if k.Arg == "" {
		return "**" + p.expr(k.Value, precBitOr)
	}
	return k.Arg + "=" + p.expr(k.Value, precTest)
}

// arguments renders a parameter list. Annotations are dropped for lambdas.
func (p *printer) arguments(a *ast.Arguments, annotate bool) string {
	if a == nil {
		return ""
	}
	var parts []string
	param := func(arg *ast.Arg, def ast.Expr) string {
		s := arg.Name
		if annotate && arg.Annotation != nil {
			s += ": " + p.expr(arg.Annotation, precTest)
			if def != nil {
				return s + " = " + p.expr(def, precTest)
			}
			return s
		}
		if def != nil {
			s += "=" + p.expr(def, precTest)
		}
		return s
	}
	positional := append(append([]*ast.Arg{}, a.PosOnly...), a.Args...)
	firstDefault := len(positional) - len(a.Defaults)
	for i, arg := range positional {
		var def ast.Expr
		if i >= firstDefault && i-firstDefault < len(a.Defaults) {
			def = a.Defaults[i-firstDefault]
		}
		parts = append(parts, param(arg, def))
		if len(a.PosOnly) > 0 && i == len(a.PosOnly)-1 {
			parts = append(parts, "/")
		}
	}
	if a.VarArg != nil {
		parts = append(parts, "*"+param(a.VarArg, nil))
	} else if len(a.KwOnly) > 0 {
		parts = append(parts, "*")
	}
	for i, arg := range a.KwOnly {
		var def ast.Expr
		if i < len(a.KwDefaults) {
			def = a.KwDefaults[i]
		}
		parts = append(parts, param(arg, def))
	}
	if a.KwArg != nil {
		parts = append(parts, "**"+param(a.KwArg, nil))
	}
	return strings.Join(parts, ", ")
}

package unparse

import (
	"strings"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
)

// Operator precedence, lowest first. An expression is parenthesized when
// its own precedence is below what the context requires.
const (
	precLowest = iota
	precYield
	precTuple
	precNamed
	precTest // lambda
	precIfExp
	precOr
	precAnd
	precNot
	precCmp
	precBitOr
	precXor
	precBitAnd
	precShift
	precArith
	precTerm
	precUnary
	precPower
	precAwait
	precAtom
)

var binPrec = map[string]int{
	"|": precBitOr, "^": precXor, "&": precBitAnd,
	"<<": precShift, ">>": precShift,
	"+": precArith, "-": precArith,
	"*": precTerm, "/": precTerm, "//": precTerm, "%": precTerm, "@": precTerm,
	"**": precPower,
}

func unrenderable(n ast.Node) diag.Diagnostic {
	return diag.New(diag.UnsupportedShape, nil, 0, 0, "cannot render %T", n)
}

func (p *printer) prec(e ast.Expr) int {
	switch e := e.(type) {
	case *ast.Tuple:
		if len(e.Elts) == 0 {
			return precAtom
		}
		return precTuple
	case *ast.Yield, *ast.YieldFrom:
		return precYield
	case *ast.NamedExpr:
		return precNamed
	case *ast.Lambda:
		return precTest
	case *ast.IfExp:
		return precIfExp
	case *ast.BoolOp:
		if e.Op == "and" {
			return precAnd
		}
		return precOr
	case *ast.UnaryOp:
		if e.Op == "not" {
			return precNot
		}
		return precUnary
	case *ast.Compare:
		return precCmp
	case *ast.BinOp:
		if n, ok := binPrec[e.Op]; ok {
			return n
		}
		return precArith
	case *ast.Await:
		return precAwait
	case *ast.Constant:
		if negativeNumber(e.Value) {
			return precUnary
		}
	}
	return precAtom
}

// expr renders e, parenthesized when its precedence is below want.
func (p *printer) expr(e ast.Expr, want int) string {
	if e == nil {
		return "None"
	}
	s := p.exprText(e)
	if p.prec(e) < want {
		return "(" + s + ")"
	}
	return s
}

func (p *printer) exprs(list []ast.Expr, want int) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = p.expr(e, want)
	}
	return out
}

func (p *printer) exprText(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Placeholder:
		return p.placeholder(e)

	case *ast.Name:
		return e.ID

	case *ast.Constant:
		return p.constant(e.Value)

	case *ast.Tuple:
		switch len(e.Elts) {
		case 0:
			return "()"
		case 1:
			return p.expr(e.Elts[0], precTest) + ","
		}
		return strings.Join(p.exprs(e.Elts, precTest), ", ")

	case *ast.List:
		return "[" + strings.Join(p.exprs(e.Elts, precTest), ", ") + "]"

	case *ast.Set:
		if len(e.Elts) == 0 {
			return "set()"
		}
		return "{" + strings.Join(p.exprs(e.Elts, precTest), ", ") + "}"

	case *ast.Dict:
		parts := make([]string, len(e.Values))
		for i, v := range e.Values {
			var k ast.Expr
			if i < len(e.Keys) {
				k = e.Keys[i]
			}
			if k == nil {
				parts[i] = "**" + p.expr(v, precBitOr)
			} else {
				parts[i] = p.expr(k, precTest) + ": " + p.expr(v, precTest)
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"

	case *ast.BinOp:
		n := p.prec(e)
		left, right := n, n+1
		if e.Op == "**" {
			left, right = n+1, precUnary
		}
		return p.expr(e.Left, left) + " " + e.Op + " " + p.expr(e.Right, right)

	case *ast.BoolOp:
		n := p.prec(e)
		return strings.Join(p.exprs(e.Values, n+1), " "+e.Op+" ")

	case *ast.UnaryOp:
		if e.Op == "not" {
			return "not " + p.expr(e.X, precNot)
		}
		operand := p.expr(e.X, precUnary)
		if e.Op == "-" && strings.HasPrefix(operand, "-") || e.Op == "+" && strings.HasPrefix(operand, "+") {
			return e.Op + " " + operand
		}
		return e.Op + operand

	case *ast.Backquote:
		if p.opts.Py2 {
			return "`" + p.expr(e.X, precTuple) + "`"
		}
		return "repr(" + p.expr(e.X, precTest) + ")"

	case *ast.Compare:
		var sb strings.Builder
		sb.WriteString(p.expr(e.Left, precCmp+1))
		for i, op := range e.Ops {
			var c ast.Expr
			if i < len(e.Comparators) {
				c = e.Comparators[i]
			}
			sb.WriteString(" " + op + " ")
			sb.WriteString(p.expr(c, precCmp+1))
		}
		return sb.String()

	case *ast.Call:
		args := p.exprs(e.Args, precTest)
		for _, k := range e.Keywords {
			args = append(args, p.keyword(k))
		}
		return p.expr(e.Func, precAtom) + "(" + strings.Join(args, ", ") + ")"

	case *ast.Attribute:
		base := p.expr(e.X, precAtom)
		if c, ok := e.X.(*ast.Constant); ok && isNumber(c.Value) && !strings.HasPrefix(base, "(") {
			base = "(" + base + ")"
		}
		return base + "." + e.Attr

	case *ast.Subscript:
		return p.expr(e.X, precAtom) + "[" + p.index(e.Index) + "]"

	case *ast.Slice:
		args := []string{p.optional(e.Lower), p.optional(e.Upper)}
		if e.Step != nil {
			args = append(args, p.optional(e.Step))
		}
		return "slice(" + strings.Join(args, ", ") + ")"

	case *ast.Starred:
		return "*" + p.expr(e.X, precBitOr)

	case *ast.Comp:
		return p.comp(e)

	case *ast.Lambda:
		args := p.arguments(e.Args, false)
		if args == "" {
			return "lambda: " + p.expr(e.Body, precTest)
		}
		return "lambda " + args + ": " + p.expr(e.Body, precTest)

	case *ast.IfExp:
		return p.expr(e.Body, precOr) + " if " + p.expr(e.Test, precOr) + " else " + p.expr(e.Else, precIfExp)

	case *ast.NamedExpr:
		return p.expr(e.Target, precAtom) + " := " + p.expr(e.Value, precTest)

	case *ast.JoinedStr:
		return p.fstring(e)

	case *ast.FormattedValue:
		return p.fstring(&ast.JoinedStr{Values: []ast.Expr{e}})

	case *ast.Yield:
		if e.Value == nil {
			return "yield"
		}
		return "yield " + p.expr(e.Value, precTuple)

	case *ast.YieldFrom:
		return "yield from " + p.expr(e.Value, precTest)

	case *ast.Await:
		return "await " + p.expr(e.Value, precAtom)

	case *ast.FunctionExpr:
		if e.Def.Name == "<lambda>" || e.Def.Name == "" {
			return p.gap(unrenderable(e))
		}
		return e.Def.Name

	case *ast.ClassExpr:
		return e.Def.Name

	case *ast.CompAppend:
		return p.expr(e.Elt, precTest)
	}
	return p.gap(unrenderable(e))
}

func (p *printer) optional(e ast.Expr) string {
	if e == nil {
		return "None"
	}
	return p.expr(e, precTest)
}

// index renders a subscript, allowing slices and bare tuples.
func (p *printer) index(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Slice:
		s := p.sliceBound(e.Lower) + ":" + p.sliceBound(e.Upper)
		if e.Step != nil {
			s += ":" + p.sliceBound(e.Step)
		}
		return s
	case *ast.Tuple:
		if len(e.Elts) == 0 {
			return "()"
		}
		parts := make([]string, len(e.Elts))
		for i, el := range e.Elts {
			if _, star := el.(*ast.Starred); star {
				// Starred subscripts need the parenthesized form before 3.11.
				return p.expr(e, precAtom)
			}
			if _, slice := el.(*ast.Slice); slice {
				parts[i] = p.index(el)
			} else {
				parts[i] = p.expr(el, precTest)
			}
		}
		if len(parts) == 1 {
			return parts[0] + ","
		}
		return strings.Join(parts, ", ")
	}
	return p.expr(e, precTest)
}

func (p *printer) sliceBound(e ast.Expr) string {
	if e == nil {
		return ""
	}
	if c, ok := e.(*ast.Constant); ok && isNone(c.Value) {
		return ""
	}
	return p.expr(e, precTest)
}

func (p *printer) comp(c *ast.Comp) string {
	var sb strings.Builder
	switch c.Kind {
	case ast.DictComp:
		sb.WriteString(p.expr(c.Elt, precTest) + ": " + p.expr(c.Value, precTest))
	default:
		sb.WriteString(p.expr(c.Elt, precTest))
	}
	for _, g := range c.Generators {
		if g.Async {
			sb.WriteString(" async")
		}
		sb.WriteString(" for " + p.target(g.Target, true) + " in " + p.expr(g.Iter, precOr))
		for _, cond := range g.Ifs {
			sb.WriteString(" if " + p.expr(cond, precOr))
		}
	}
	switch c.Kind {
	case ast.SetComp, ast.DictComp:
		return "{" + sb.String() + "}"
	case ast.GenExp:
		return "(" + sb.String() + ")"
	}
	return "[" + sb.String() + "]"
}

// target renders an assignment target. Top-level tuples go without parens.
func (p *printer) target(e ast.Expr, top ...bool) string {
	bare := len(top) > 0 && top[0]
	switch e := e.(type) {
	case *ast.Placeholder:
		return p.placeholder(e) + "[0]"
	case *ast.Tuple:
		if len(e.Elts) == 0 {
			return "()"
		}
		parts := make([]string, len(e.Elts))
		for i, el := range e.Elts {
			parts[i] = p.target(el)
		}
		s := strings.Join(parts, ", ")
		if len(parts) == 1 {
			s += ","
		}
		if bare {
			return s
		}
		return "(" + s + ")"
	case *ast.List:
		parts := make([]string, len(e.Elts))
		for i, el := range e.Elts {
			parts[i] = p.target(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.Starred:
		return "*" + p.target(e.X)
	}
	return p.expr(e, precAtom)
}

func (p *printer) targetList(e ast.Expr) string {
	return p.target(e, true)
}

func (p *printer) pattern(pat ast.Pattern) string {
	switch pat := pat.(type) {
	case nil:
		return "_"
	case *ast.Placeholder:
		return p.placeholder(pat)
	case *ast.MatchValue:
		return p.expr(pat.Value, precBitOr)
	case *ast.MatchSingleton:
		return p.constant(pat.Value)
	case *ast.MatchAs:
		switch {
		case pat.Pattern == nil && pat.Name == "":
			return "_"
		case pat.Pattern == nil:
			return pat.Name
		}
		inner := p.pattern(pat.Pattern)
		if _, or := pat.Pattern.(*ast.MatchOr); or {
			inner = "(" + inner + ")"
		}
		return inner + " as " + pat.Name
	case *ast.MatchClass:
		var parts []string
		for _, sub := range pat.Patterns {
			parts = append(parts, p.pattern(sub))
		}
		for i, attr := range pat.KwdAttrs {
			if i < len(pat.KwdPatterns) {
				parts = append(parts, attr+"="+p.pattern(pat.KwdPatterns[i]))
			}
		}
		return p.expr(pat.Cls, precAtom) + "(" + strings.Join(parts, ", ") + ")"
	case *ast.MatchOr:
		parts := make([]string, len(pat.Patterns))
		for i, sub := range pat.Patterns {
			parts[i] = p.pattern(sub)
			if as, ok := sub.(*ast.MatchAs); ok && as.Pattern != nil {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, " | ")
	case *ast.MatchSequence:
		parts := make([]string, len(pat.Patterns))
		for i, sub := range pat.Patterns {
			parts[i] = p.pattern(sub)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.MatchStar:
		if pat.Name == "" {
			return "*_"
		}
		return "*" + pat.Name
	case *ast.MatchMapping:
		var parts []string
		for i, k := range pat.Keys {
			if i < len(pat.Patterns) {
				parts = append(parts, p.expr(k, precBitOr)+": "+p.pattern(pat.Patterns[i]))
			}
		}
		if pat.Rest != "" {
			parts = append(parts, "**"+pat.Rest)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return p.gap(unrenderable(pat))
}

// fstring renders a JoinedStr, picking the first quote style that keeps
// every nested expression free of that quote.
func (p *printer) fstring(js *ast.JoinedStr) string {
	mark := p.mark()
	for _, q := range []string{"'", "\"", "'''", "\"\"\""} {
		if body, ok := p.fstringBody(js, q); ok {
			return "f" + q + body + q
		}
		p.rewind(mark)
	}
	return p.formatFallback(js)
}

func (p *printer) fstringBody(js *ast.JoinedStr, q string) (string, bool) {
	var sb strings.Builder
	for _, v := range js.Values {
		switch v := v.(type) {
		case *ast.Constant:
			text, ok := v.Value.(string)
			if !ok {
				return "", false
			}
			lit := escapeText(text, q[0], len(q) == 3)
			lit = strings.ReplaceAll(lit, "{", "{{")
			lit = strings.ReplaceAll(lit, "}", "}}")
			sb.WriteString(lit)
		case *ast.FormattedValue:
			inner := p.nested(q[0]).expr(v.Value, precIfExp)
			if strings.ContainsAny(inner, "\\"+q[:1]) || len(q) == 1 && strings.Contains(inner, "\n") {
				return "", false
			}
			if strings.HasPrefix(inner, "{") {
				inner = " " + inner
			}
			sb.WriteString("{" + inner)
			if v.Conversion != 0 {
				sb.WriteString("!" + string(v.Conversion))
			}
			if v.Spec != nil && len(v.Spec.Values) > 0 {
				spec, ok := p.fstringBody(v.Spec, q)
				if !ok {
					return "", false
				}
				sb.WriteString(":" + spec)
			}
			sb.WriteString("}")
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// nested returns a printer for expressions inside an f-string quoted with q.
func (p *printer) nested(q byte) *printer {
	other := byte('"')
	if q == '"' {
		other = '\''
	}
	return &printer{opts: p.opts, quote: other, inFStr: true, gaps: p.gaps}
}

// formatFallback spells an f-string with format() calls when no quoting
// style can hold its expressions.
func (p *printer) formatFallback(js *ast.JoinedStr) string {
	if len(js.Values) == 0 {
		return "''"
	}
	parts := make([]string, 0, len(js.Values))
	for _, v := range js.Values {
		switch v := v.(type) {
		case *ast.FormattedValue:
			x := p.expr(v.Value, precTest)
			switch v.Conversion {
			case 'r':
				x = "repr(" + x + ")"
			case 's':
				x = "str(" + x + ")"
			case 'a':
				x = "ascii(" + x + ")"
			}
			if v.Spec != nil && len(v.Spec.Values) > 0 {
				x += ", " + p.fstring(v.Spec)
			}
			parts = append(parts, "format("+x+")")
		default:
			parts = append(parts, p.expr(v, precArith+1))
		}
	}
	return strings.Join(parts, " + ")
}

// docQuote renders a docstring, in triple quotes when the text allows it.
func (p *printer) docQuote(s string) string {
	if strings.Contains(s, "\n") && !strings.Contains(s, `"""`) && !strings.HasSuffix(s, `"`) &&
		!strings.Contains(s, "\\") && plainText(s, p.opts.Py2) {
		return `"""` + s + `"""`
	}
	return p.constant(s)
}

func plainText(s string, asciiOnly bool) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if r < 0x20 || r == 0x7f || asciiOnly && r >= 0x80 {
			return false
		}
	}
	return true
}

package unparse

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
)

func n(id string) *ast.Name { return &ast.Name{ID: id} }
func c(v any) *ast.Constant { return &ast.Constant{Value: v} }
func bin(l ast.Expr, op string, r ast.Expr) *ast.BinOp {
	return &ast.BinOp{Left: l, Op: op, Right: r}
}
func call(fn ast.Expr, args ...ast.Expr) *ast.Call { return &ast.Call{Func: fn, Args: args} }
func stmt(x ast.Expr) *ast.ExprStmt                { return &ast.ExprStmt{X: x} }

func TestExpressions(t *testing.T) {
	cases := []struct {
		name string
		in   ast.Expr
		want string
	}{
		{"grouping", bin(bin(n("a"), "+", n("b")), "*", n("c")), "(a + b) * c"},
		{"left assoc", bin(n("a"), "-", bin(n("b"), "-", n("c"))), "a - (b - c)"},
		{"power", bin(c(int64(2)), "**", &ast.UnaryOp{Op: "-", X: c(int64(1))}), "2 ** -1"},
		{"double negation", &ast.UnaryOp{Op: "-", X: &ast.UnaryOp{Op: "-", X: n("x")}}, "- -x"},
		{"not", &ast.BoolOp{Op: "and", Values: []ast.Expr{&ast.UnaryOp{Op: "not", X: n("a")}, n("b")}}, "not a and b"},
		{"or inside and", &ast.BoolOp{Op: "and", Values: []ast.Expr{
			&ast.BoolOp{Op: "or", Values: []ast.Expr{n("a"), n("b")}}, n("c")}}, "(a or b) and c"},
		{"number attribute", &ast.Attribute{X: c(int64(1)), Attr: "real"}, "(1).real"},
		{"lambda argument", call(n("f"), &ast.Lambda{
			Args: &ast.Arguments{Args: []*ast.Arg{{Name: "x"}}}, Body: n("x")}), "f(lambda x: x)"},
		{"lambda no args", &ast.Lambda{Args: &ast.Arguments{}, Body: c(int64(0))}, "lambda: 0"},
		{"keywords", &ast.Call{Func: n("f"), Args: []ast.Expr{&ast.Starred{X: n("a")}},
			Keywords: []*ast.Keyword{{Arg: "k", Value: c(int64(1))}, {Value: n("kw")}}}, "f(*a, k=1, **kw)"},
		{"compare", &ast.Compare{Left: n("a"), Ops: []string{"<", "not in"},
			Comparators: []ast.Expr{n("b"), n("c")}}, "a < b not in c"},
		{"ifexp", &ast.IfExp{Test: n("t"), Body: n("a"), Else: n("b")}, "a if t else b"},
		{"slice", &ast.Subscript{X: n("a"), Index: &ast.Slice{Lower: c(int64(1))}}, "a[1:]"},
		{"step", &ast.Subscript{X: n("a"), Index: &ast.Slice{Step: c(int64(2))}}, "a[::2]"},
		{"tuple index", &ast.Subscript{X: n("a"), Index: &ast.Tuple{Elts: []ast.Expr{n("i"), n("j")}}}, "a[i, j]"},
		{"one tuple", &ast.Tuple{Elts: []ast.Expr{n("a")}}, "a,"},
		{"empty set", &ast.Set{}, "set()"},
		{"dict unpack", &ast.Dict{Keys: []ast.Expr{c("a"), nil}, Values: []ast.Expr{c(int64(1)), n("m")}}, "{'a': 1, **m}"},
		{"await", &ast.Await{Value: call(n("f"))}, "await f()"},
		{"yield", &ast.Yield{}, "yield"},
		{"walrus", &ast.NamedExpr{Target: n("y"), Value: c(int64(2))}, "y := 2"},
		{"list comp", &ast.Comp{Kind: ast.ListComp, Elt: n("x"), Generators: []*ast.Generator{
			{Target: n("x"), Iter: n("xs"), Ifs: []ast.Expr{n("x")}}}}, "[x for x in xs if x]"},
		{"dict comp", &ast.Comp{Kind: ast.DictComp, Elt: n("k"), Value: n("v"), Generators: []*ast.Generator{
			{Target: &ast.Tuple{Elts: []ast.Expr{n("k"), n("v")}}, Iter: n("d")}}}, "{k: v for k, v in d}"},
		{"genexp", &ast.Comp{Kind: ast.GenExp, Elt: n("x"), Generators: []*ast.Generator{
			{Target: n("x"), Iter: n("xs"), Async: true}}}, "(x async for x in xs)"},
		{"fstring", &ast.JoinedStr{Values: []ast.Expr{c("a"),
			&ast.FormattedValue{Value: n("b")},
			&ast.FormattedValue{Value: n("c"), Conversion: 'r'}}}, "f'a{b}{c!r}'"},
		{"fstring spec", &ast.JoinedStr{Values: []ast.Expr{&ast.FormattedValue{Value: n("x"),
			Spec: &ast.JoinedStr{Values: []ast.Expr{c(">10")}}}}}, "f'{x:>10}'"},
		{"fstring braces", &ast.JoinedStr{Values: []ast.Expr{c("{"), &ast.FormattedValue{Value: n("x")}}}, "f'{{{x}'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Unparse(tc.in, Options{}); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConstants(t *testing.T) {
	cases := []struct {
		in   any
		py2  bool
		want string
	}{
		{pyc.None, false, "None"},
		{true, false, "True"},
		{pyc.Ellipsis, false, "..."},
		{pyc.Ellipsis, true, "Ellipsis"},
		{int64(-3), false, "-3"},
		{1.0, false, "1.0"},
		{1e16, false, "1e+16"},
		{math.Inf(1), false, "1e309"},
		{complex(0, 2), false, "2j"},
		{"it's", false, `"it's"`},
		{"tab\there", false, `'tab\there'`},
		{"é", false, "'é'"},
		{pyc.Unicode("é"), true, `u'\u00e9'`},
		{"\xff", true, `'\xff'`},
		{pyc.Bytes("\xff"), false, `b'\xff'`},
		{pyc.Tuple{int64(1)}, false, "(1,)"},
		{pyc.FrozenSet{}, false, "frozenset()"},
	}
	for _, tc := range cases {
		if got := Unparse(c(tc.in), Options{Py2: tc.py2}); got != tc.want {
			t.Errorf("%#v (py2=%v): got %q, want %q", tc.in, tc.py2, got, tc.want)
		}
	}
}

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

func TestStatements(t *testing.T) {
	cases := []struct {
		name string
		body []ast.Stmt
		opts Options
		want string
	}{
		{
			name: "star target",
			body: []ast.Stmt{&ast.Assign{
				Targets: []ast.Expr{&ast.Tuple{Elts: []ast.Expr{n("a"), &ast.Starred{X: n("b")}}}},
				Value:   n("c"),
			}},
			want: lines("a, *b = c"),
		},
		{
			name: "elif chain",
			body: []ast.Stmt{&ast.If{
				Test: n("a"),
				Body: []ast.Stmt{stmt(call(n("f")))},
				Else: []ast.Stmt{&ast.If{
					Test: n("b"),
					Body: []ast.Stmt{&ast.Pass{}},
					Else: []ast.Stmt{stmt(call(n("g")))},
				}},
			}},
			want: lines("if a:", "    f()", "elif b:", "    pass", "else:", "    g()"),
		},
		{
			name: "function",
			body: []ast.Stmt{&ast.FunctionDef{
				Name: "f",
				Args: &ast.Arguments{
					Args:       []*ast.Arg{{Name: "a", Annotation: n("int")}, {Name: "b"}},
					Defaults:   []ast.Expr{c(int64(1))},
					KwOnly:     []*ast.Arg{{Name: "k"}},
					KwDefaults: []ast.Expr{nil},
					KwArg:      &ast.Arg{Name: "kw"},
				},
				Returns:    n("str"),
				Decorators: []ast.Expr{n("wrap")},
				Body:       []ast.Stmt{stmt(c("line one\nline two")), &ast.Return{Value: n("a")}},
			}},
			want: lines("@wrap", "def f(a: int, b=1, *, k, **kw) -> str:",
				`    """line one`, `line two"""`, "    return a"),
		},
		{
			name: "class",
			body: []ast.Stmt{&ast.ClassDef{
				Name:     "A",
				Bases:    []ast.Expr{n("B")},
				Keywords: []*ast.Keyword{{Arg: "metaclass", Value: n("M")}},
			}},
			want: lines("class A(B, metaclass=M):", "    pass"),
		},
		{
			name: "definition spacing",
			body: []ast.Stmt{
				&ast.Import{Names: []*ast.Alias{{Name: "os"}}},
				&ast.FunctionDef{Name: "f", Args: &ast.Arguments{}},
				&ast.ClassDef{Name: "A", Body: []ast.Stmt{
					&ast.FunctionDef{Name: "g", Args: &ast.Arguments{Args: []*ast.Arg{{Name: "self"}}}},
					&ast.FunctionDef{Name: "h", Args: &ast.Arguments{Args: []*ast.Arg{{Name: "self"}}}},
				}},
				stmt(call(n("f"))),
			},
			want: lines("import os", "", "", "def f():", "    pass", "", "",
				"class A:", "    def g(self):", "        pass", "", "    def h(self):", "        pass",
				"", "", "f()"),
		},
		{
			name: "try finally",
			body: []ast.Stmt{&ast.TryFinally{
				Body: []ast.Stmt{&ast.Try{
					Body:     []ast.Stmt{stmt(call(n("a")))},
					Handlers: []*ast.ExceptHandler{{Type: n("E"), Name: "e", Body: []ast.Stmt{&ast.Raise{}}}},
					Else:     []ast.Stmt{stmt(call(n("b")))},
				}},
				Finally: []ast.Stmt{stmt(call(n("c")))},
			}},
			want: lines("try:", "    a()", "except E as e:", "    raise",
				"else:", "    b()", "finally:", "    c()"),
		},
		{
			name: "py2 handler",
			opts: Options{Py2: true},
			body: []ast.Stmt{&ast.Try{
				Body:     []ast.Stmt{&ast.Pass{}},
				Handlers: []*ast.ExceptHandler{{Type: n("E"), Name: "e"}},
			}},
			want: lines("try:", "    pass", "except E, e:", "    pass"),
		},
		{
			name: "print py2",
			opts: Options{Py2: true},
			body: []ast.Stmt{
				&ast.Print{Dest: n("f"), Values: []ast.Expr{n("a")}, NL: true},
				&ast.Print{Values: []ast.Expr{n("b")}},
				&ast.Print{NL: true},
			},
			want: lines("print >>f, a", "print b,", "print"),
		},
		{
			name: "print py3",
			body: []ast.Stmt{&ast.Print{Dest: n("f"), Values: []ast.Expr{n("a")}}},
			want: lines("print(a, end=' ', file=f)"),
		},
		{
			name: "exec",
			opts: Options{Py2: true},
			body: []ast.Stmt{&ast.Exec{Body: n("code"), Globals: n("g"), Locals: n("l")}},
			want: lines("exec code in g, l"),
		},
		{
			name: "imports",
			body: []ast.Stmt{
				&ast.Import{Names: []*ast.Alias{{Name: "os.path", AsName: "p"}, {Name: "sys"}}},
				&ast.ImportFrom{Module: "a", Level: 2, Names: []*ast.Alias{{Name: "b", AsName: "b"}}},
				&ast.ImportFrom{Module: "m"},
			},
			want: lines("import os.path as p, sys", "from ..a import b", "from m import *"),
		},
		{
			name: "scope",
			opts: Options{Py2: true},
			body: []ast.Stmt{&ast.Global{Names: []string{"a", "b"}}, &ast.Nonlocal{Names: []string{"c"}}},
			want: lines("global a, b", "global c"),
		},
		{
			name: "indent",
			opts: Options{Indent: 2},
			body: []ast.Stmt{&ast.While{Test: c(true), Body: []ast.Stmt{&ast.Break{}}, Else: []ast.Stmt{&ast.Continue{}}}},
			want: lines("while True:", "  break", "else:", "  continue"),
		},
		{
			name: "match",
			body: []ast.Stmt{&ast.Match{
				Subject: n("x"),
				Cases: []*ast.MatchCase{
					{Pattern: &ast.MatchOr{Patterns: []ast.Pattern{
						&ast.MatchValue{Value: c(int64(1))}, &ast.MatchSingleton{Value: pyc.None}}},
						Body: []ast.Stmt{&ast.Pass{}}},
					{Pattern: &ast.MatchClass{Cls: n("P"), Patterns: []ast.Pattern{&ast.MatchAs{Name: "a"}},
						KwdAttrs: []string{"y"}, KwdPatterns: []ast.Pattern{&ast.MatchAs{}}},
						Guard: n("a"), Body: []ast.Stmt{&ast.Pass{}}},
				},
			}},
			want: lines("match x:", "    case 1 | None:", "        pass",
				"    case P(a, y=_) if a:", "        pass"),
		},
		{
			name: "match sequence and mapping",
			body: []ast.Stmt{&ast.Match{
				Subject: n("x"),
				Cases: []*ast.MatchCase{
					{Pattern: &ast.MatchSequence{Patterns: []ast.Pattern{&ast.MatchAs{Name: "a"}, &ast.MatchStar{}}},
						Body: []ast.Stmt{&ast.Pass{}}},
					{Pattern: &ast.MatchMapping{Keys: []ast.Expr{c("k")}, Patterns: []ast.Pattern{&ast.MatchAs{Name: "b"}}, Rest: "r"},
						Body: []ast.Stmt{&ast.Pass{}}},
				},
			}},
			want: lines("match x:", "    case [a, *_]:", "        pass",
				"    case {'k': b, **r}:", "        pass"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnparseStmts(tc.body, tc.opts); got != tc.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	ph := ast.NewPlaceholder(diag.New(diag.NoMatch, nil, 0, 4, "POP_TOP"))
	body := []ast.Stmt{ph, &ast.Assign{Targets: []ast.Expr{n("x")}, Value: ph}}

	got := UnparseStmts(body, Options{})
	want := lines(`__pyrecon_gap__("NoMatch: POP_TOP", 0, 4)`, `x = __pyrecon_gap__("NoMatch: POP_TOP", 0, 4)`)
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	got = UnparseStmts([]ast.Stmt{&ast.Assign{Targets: []ast.Expr{ph}, Value: c(int64(1))}}, Options{Placeholder: "gap"})
	if want := lines(`gap("NoMatch: POP_TOP", 0, 4)[0] = 1`); got != want {
		t.Errorf("target placeholder: got %q, want %q", got, want)
	}
}

func TestRenderReportsGaps(t *testing.T) {
	ph := ast.NewPlaceholder(diag.New(diag.NoMatch, nil, 0, 4, "POP_TOP"))
	body := []ast.Stmt{
		ph,
		&ast.Assign{Targets: []ast.Expr{n("x")}, Value: c(&pyc.CodeUnit{Name: "f"})},
		&ast.Assign{Targets: []ast.Expr{n("y")}, Value: &ast.JoinedStr{Values: []ast.Expr{
			&ast.FormattedValue{Value: c(pyc.Tuple{&pyc.CodeUnit{Name: "g"}})},
		}}},
	}
	src, gaps := Render(&ast.Module{Body: body}, Options{})
	if len(gaps) != 2 {
		t.Fatalf("gaps = %v, want 2", gaps)
	}
	for i, name := range []string{"f", "g"} {
		if want := "code object " + name; gaps[i].Msg != want {
			t.Errorf("gap %d = %q, want %q", i, gaps[i].Msg, want)
		}
		if gaps[i].Kind != diag.UnsupportedShape {
			t.Errorf("gap %d kind = %v, want %v", i, gaps[i].Kind, diag.UnsupportedShape)
		}
	}
	if got := strings.Count(src, DefaultPlaceholder+"("); got != 3 {
		t.Errorf("placeholders in source = %d, want 3:\n%s", got, src)
	}
	if Unparse(&ast.Module{Body: body}, Options{}) != src {
		t.Errorf("Unparse and Render disagree")
	}
}

func TestModuleSelectsPy2(t *testing.T) {
	m := &ast.Module{Py2: true, Body: []ast.Stmt{stmt(&ast.Backquote{X: n("x")})}}
	if got := Unparse(m, Options{}); got != "`x`\n" {
		t.Errorf("got %q", got)
	}
	m.Py2 = false
	if got := Unparse(m, Options{}); got != "repr(x)\n" {
		t.Errorf("got %q", got)
	}
}

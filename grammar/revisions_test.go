package grammar

import (
	"testing"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
	"github.com/chazu/pyrecon/unparse"
)

func TestConditional30(t *testing.T) {
	// if x: y = 1
	// else: y = 2
	// z = a and b
	res, src := module(t, "3.0", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("JUMP_IF_FALSE", "else")
		a.Op("POP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("STORE_NAME", a.Name("y"))
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("else")
		a.Op("POP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("STORE_NAME", a.Name("y"))
		a.Mark("end")
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Jump("JUMP_IF_FALSE", "value")
		a.Op("POP_TOP")
		a.Emit("LOAD_NAME", a.Name("b"))
		a.Mark("value")
		a.Emit("STORE_NAME", a.Name("z"))
		ret(a)
	})
	expectClean(t, res)
	expectSource(t, src,
		"if x:",
		"    y = 1",
		"else:",
		"    y = 2",
		"z = a and b")
}

func TestPackedMakeFunction(t *testing.T) {
	// def f(a, b=1, *, c=2) -> int: return a
	for _, tag := range []string{"3.2", "3.4"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			fn := unit(t, b, "f", func(a *disasm.Assembler) {
				a.Const(pyc.None)
				a.Var("a")
				a.Var("b")
				a.Var("c")
				a.Emit("LOAD_FAST", a.Var("a"))
				a.Op("RETURN_VALUE")
			})
			fn.ArgCount = 2
			fn.KwOnlyArgCount = 1
			fn.Flags = function

			res, src := module(t, tag, func(a *disasm.Assembler) {
				a.Emit("LOAD_CONST", a.Const(int64(1)))
				a.Emit("LOAD_CONST", a.Const("c"))
				a.Emit("LOAD_CONST", a.Const(int64(2)))
				a.Emit("LOAD_NAME", a.Name("int"))
				a.Emit("LOAD_CONST", a.Const(pyc.Tuple{"return"}))
				a.Emit("LOAD_CONST", a.Const(fn))
				if b.Features.QualnameOnStack {
					a.Emit("LOAD_CONST", a.Const("f"))
				}
				a.Emit("MAKE_FUNCTION", 1|1<<8|2<<16)
				a.Emit("STORE_NAME", a.Name("f"))
				ret(a)
			})
			expectClean(t, res)
			expectSource(t, src,
				"def f(a, b=1, *, c=2) -> int:",
				"    return a")
		})
	}
}

func TestCallAndDictBefore36(t *testing.T) {
	// x = f(a, k=1)
	// d = {'a': 1}
	for _, tag := range []string{"3.4", "3.5"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := module(t, tag, func(a *disasm.Assembler) {
				a.Emit("LOAD_NAME", a.Name("f"))
				a.Emit("LOAD_NAME", a.Name("a"))
				a.Emit("LOAD_CONST", a.Const("k"))
				a.Emit("LOAD_CONST", a.Const(int64(1)))
				a.Emit("CALL_FUNCTION", 1|1<<8)
				a.Emit("STORE_NAME", a.Name("x"))
				if b.Revision.AtLeast(3, 5) {
					a.Emit("LOAD_CONST", a.Const("a"))
					a.Emit("LOAD_CONST", a.Const(int64(1)))
					a.Emit("BUILD_MAP", 1)
				} else {
					a.Emit("BUILD_MAP", 1)
					a.Emit("LOAD_CONST", a.Const(int64(1)))
					a.Emit("LOAD_CONST", a.Const("a"))
					a.Op("STORE_MAP")
				}
				a.Emit("STORE_NAME", a.Name("d"))
				ret(a)
			})
			expectClean(t, res)
			expectSource(t, src,
				"x = f(a, k=1)",
				"d = {'a': 1}")
		})
	}
}

func TestFunctionAttributes313(t *testing.T) {
	// def f(a, b=1): return g(a + b)
	b := registry.MustLookup("3.13")
	fn := unit(t, b, "f", func(a *disasm.Assembler) {
		a.Const(pyc.None)
		a.Op("RESUME")
		a.Emit("LOAD_GLOBAL", a.Name("g")<<1|1)
		a.Emit("LOAD_FAST_LOAD_FAST", a.Var("a")<<4|a.Var("b"))
		a.Emit("BINARY_OP", 0)
		a.Emit("CALL", 1)
		a.Op("RETURN_VALUE")
	})
	fn.ArgCount = 2
	fn.Flags = function

	mod := unit(t, b, "<module>", func(a *disasm.Assembler) {
		a.Op("RESUME")
		a.Emit("LOAD_CONST", a.Const(pyc.Tuple{int64(1)}))
		a.Emit("LOAD_CONST", a.Const(fn))
		a.Op("MAKE_FUNCTION")
		a.Emit("SET_FUNCTION_ATTRIBUTE", 1)
		a.Emit("STORE_NAME", a.Name("f"))
		a.Emit("RETURN_CONST", a.Const(pyc.None))
	})
	res := reduce(t, mod, b)
	expectClean(t, res)
	expectSource(t, unparse.UnparseStmts(res.Body, unparse.Options{}),
		"def f(a, b=1):",
		"    return g(a + b)")
}

func TestCallKeywordNames313(t *testing.T) {
	// x = f(a, k=1)
	// if x: y = 1
	// else: y = 2
	// z = y
	res, src := module(t, "3.13", func(a *disasm.Assembler) {
		a.Op("RESUME")
		a.Emit("LOAD_NAME", a.Name("f"))
		a.Op("PUSH_NULL")
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("LOAD_CONST", a.Const(pyc.Tuple{"k"}))
		a.Emit("CALL_KW", 2)
		a.Emit("STORE_NAME", a.Name("x"))
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Op("TO_BOOL")
		a.Jump("POP_JUMP_IF_FALSE", "else")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("STORE_NAME", a.Name("y"))
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("else")
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("STORE_NAME", a.Name("y"))
		a.Mark("end")
		a.Emit("LOAD_NAME", a.Name("y"))
		a.Emit("STORE_NAME", a.Name("z"))
		a.Emit("RETURN_CONST", a.Const(pyc.None))
	})
	expectClean(t, res)
	expectSource(t, src,
		"x = f(a, k=1)",
		"if x:",
		"    y = 1",
		"else:",
		"    y = 2",
		"z = y")
}

func TestFormattedString313(t *testing.T) {
	// s = f'{a!r:>{w}}{b}'
	res, _ := module(t, "3.13", func(a *disasm.Assembler) {
		a.Op("RESUME")
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Emit("CONVERT_VALUE", 2)
		a.Emit("LOAD_CONST", a.Const(">"))
		a.Emit("LOAD_NAME", a.Name("w"))
		a.Op("FORMAT_SIMPLE")
		a.Emit("BUILD_STRING", 2)
		a.Op("FORMAT_WITH_SPEC")
		a.Emit("LOAD_NAME", a.Name("b"))
		a.Op("FORMAT_SIMPLE")
		a.Emit("BUILD_STRING", 2)
		a.Emit("STORE_NAME", a.Name("s"))
		a.Emit("RETURN_CONST", a.Const(pyc.None))
	})
	expectClean(t, res)
	if len(res.Body) != 1 {
		t.Fatalf("body:\n%s", ast.Dump(&ast.Module{Body: res.Body}))
	}
	as, ok := res.Body[0].(*ast.Assign)
	if !ok {
		t.Fatalf("statement is %T, want assignment", res.Body[0])
	}
	js, ok := as.Value.(*ast.JoinedStr)
	if !ok || len(js.Values) != 2 {
		t.Fatalf("value:\n%s", ast.Dump(as.Value))
	}
	first, ok := js.Values[0].(*ast.FormattedValue)
	if !ok || first.Conversion != 'r' {
		t.Fatalf("field 0: %s", ast.Dump(js.Values[0]))
	}
	if first.Spec == nil || len(first.Spec.Values) != 2 {
		t.Errorf("field 0 spec: %s", ast.Dump(js.Values[0]))
	}
	if fv, ok := js.Values[1].(*ast.FormattedValue); !ok || fv.Conversion != 0 {
		t.Errorf("field 1: %s", ast.Dump(js.Values[1]))
	}
}

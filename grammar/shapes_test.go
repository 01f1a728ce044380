package grammar

import (
	"testing"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
	"github.com/chazu/pyrecon/unparse"
)

// The programs below follow what CPython's compiler emits for the quoted
// source on each revision.

// funcBody assembles the body of `def f(<args>)` and decompiles it.
func funcBody(t *testing.T, tag string, args []string, build func(a *disasm.Assembler)) (*Result, string) {
	t.Helper()
	return codeBody(t, tag, args, function, build)
}

// asyncBody is funcBody for `async def f(<args>)`.
func asyncBody(t *testing.T, tag string, args []string, build func(a *disasm.Assembler)) (*Result, string) {
	t.Helper()
	return codeBody(t, tag, args, function|pyc.FlagCoroutine, build)
}

func codeBody(t *testing.T, tag string, args []string, flags uint32, build func(a *disasm.Assembler)) (*Result, string) {
	t.Helper()
	b := registry.MustLookup(tag)
	u := unit(t, b, "f", func(a *disasm.Assembler) {
		for _, v := range args {
			a.Var(v)
		}
		build(a)
	})
	u.ArgCount = len(args)
	u.Flags = flags
	res := reduce(t, u, b)
	return res, unparse.UnparseStmts(res.Body, unparse.Options{})
}

// retNone ends a unit the way the revision does.
func retNone(a *disasm.Assembler, b *registry.Bundle) {
	if b.Revision.AtLeast(3, 12) {
		a.Emit("RETURN_CONST", a.Const(pyc.None))
		return
	}
	ret(a)
}

// callName emits `name()` followed by POP_TOP.
func callName(a *disasm.Assembler, b *registry.Bundle, load, name string) {
	switch {
	case b.Revision.AtLeast(3, 11):
		a.Op("PUSH_NULL")
		a.Emit(load, a.Name(name))
		if b.Revision.Before(3, 12) {
			a.Emit("PRECALL", 0)
		}
		a.Emit("CALL", 0)
	default:
		a.Emit(load, a.Name(name))
		a.Emit("CALL_FUNCTION", 0)
	}
	a.Op("POP_TOP")
}

func TestComparisonChainShapes(t *testing.T) {
	// x = a < b < c
	for _, tag := range []string{"3.8", "3.10", "3.11", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			lt := 0
			if b.Revision.AtLeast(3, 12) {
				lt = 0<<4 | 2
			}
			res, src := module(t, tag, func(a *disasm.Assembler) {
				a.Emit("LOAD_NAME", a.Name("a"))
				a.Emit("LOAD_NAME", a.Name("b"))
				if b.Revision.AtLeast(3, 11) {
					a.Emit("SWAP", 2)
					a.Emit("COPY", 2)
				} else {
					a.Op("DUP_TOP", "ROT_THREE")
				}
				a.Emit("COMPARE_OP", lt)
				if b.Revision.AtLeast(3, 12) {
					a.Emit("COPY", 1)
					a.Jump("POP_JUMP_IF_FALSE", "cleanup")
					a.Op("POP_TOP")
				} else {
					a.Jump("JUMP_IF_FALSE_OR_POP", "cleanup")
				}
				a.Emit("LOAD_NAME", a.Name("c"))
				a.Emit("COMPARE_OP", lt)
				a.Jump("JUMP_FORWARD", "end")
				a.Mark("cleanup")
				if b.Revision.AtLeast(3, 11) {
					a.Emit("SWAP", 2)
				} else {
					a.Op("ROT_TWO")
				}
				a.Op("POP_TOP")
				a.Mark("end")
				a.Emit("STORE_NAME", a.Name("x"))
				retNone(a, b)
			})
			expectClean(t, res)
			expectSource(t, src, "x = a < b < c")
		})
	}
}

func TestValueAndOr(t *testing.T) {
	// x = a and b or c
	// y = (a or b) and c
	for _, tag := range []string{"3.8", "3.10", "3.11", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			pop := func(cond string) string {
				if b.Revision.AtLeast(3, 12) || b.Revision.Before(3, 11) {
					return "POP_JUMP_IF_" + cond
				}
				return "POP_JUMP_FORWARD_IF_" + cond
			}
			res, src := module(t, tag, func(a *disasm.Assembler) {
				keep := func(cond, label string) {
					if b.Revision.AtLeast(3, 12) {
						a.Emit("COPY", 1)
						a.Jump("POP_JUMP_IF_"+cond, label)
						a.Op("POP_TOP")
						return
					}
					a.Jump("JUMP_IF_"+cond+"_OR_POP", label)
				}
				a.Emit("LOAD_NAME", a.Name("a"))
				a.Jump(pop("FALSE"), "c1")
				a.Emit("LOAD_NAME", a.Name("b"))
				keep("TRUE", "end1")
				a.Mark("c1")
				a.Emit("LOAD_NAME", a.Name("c"))
				a.Mark("end1")
				a.Emit("STORE_NAME", a.Name("x"))

				a.Emit("LOAD_NAME", a.Name("a"))
				a.Jump(pop("TRUE"), "c2")
				a.Emit("LOAD_NAME", a.Name("b"))
				keep("FALSE", "end2")
				a.Mark("c2")
				a.Emit("LOAD_NAME", a.Name("c"))
				a.Mark("end2")
				a.Emit("STORE_NAME", a.Name("y"))
				retNone(a, b)
			})
			expectClean(t, res)
			expectSource(t, src,
				"x = a and b or c",
				"y = (a or b) and c")
		})
	}
}

func TestInlineComprehension312(t *testing.T) {
	// def f(xs): return [x * 2 for x in xs if x]
	res, src := funcBody(t, "3.12", []string{"xs"}, func(a *disasm.Assembler) {
		a.Op("RESUME")
		a.Emit("LOAD_FAST", a.Var("xs"))
		a.Op("GET_ITER")
		a.Emit("LOAD_FAST_AND_CLEAR", a.Var("x"))
		a.Emit("SWAP", 2)
		a.Mark("try")
		a.Emit("BUILD_LIST", 0)
		a.Emit("SWAP", 2)
		a.Mark("loop")
		a.Jump("FOR_ITER", "done")
		a.Emit("STORE_FAST", a.Var("x"))
		a.Emit("LOAD_FAST", a.Var("x"))
		a.Jump("POP_JUMP_IF_TRUE", "body")
		a.Jump("JUMP_BACKWARD", "loop")
		a.Mark("body")
		a.Emit("LOAD_FAST", a.Var("x"))
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("BINARY_OP", 5)
		a.Emit("LIST_APPEND", 2)
		a.Jump("JUMP_BACKWARD", "loop")
		a.Mark("done")
		a.Op("END_FOR")
		a.Mark("tryend")
		a.Emit("SWAP", 2)
		a.Emit("STORE_FAST", a.Var("x"))
		a.Op("RETURN_VALUE")
		a.Mark("cleanup")
		a.Emit("SWAP", 2)
		a.Op("POP_TOP")
		a.Emit("SWAP", 2)
		a.Emit("STORE_FAST", a.Var("x"))
		a.Emit("RERAISE", 0)

		a.Protect("try", "tryend", "cleanup", 2, false)
	})
	expectClean(t, res)
	expectSource(t, src, "return [x * 2 for x in xs if x]")
}

func TestDictUpdateLiteral(t *testing.T) {
	// x = {**kw, 'k': 1}
	for _, tag := range []string{"3.9", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := module(t, tag, func(a *disasm.Assembler) {
				a.Emit("BUILD_MAP", 0)
				a.Emit("LOAD_NAME", a.Name("kw"))
				a.Emit("DICT_UPDATE", 1)
				a.Emit("LOAD_CONST", a.Const("k"))
				a.Emit("LOAD_CONST", a.Const(int64(1)))
				a.Emit("BUILD_MAP", 1)
				a.Emit("DICT_UPDATE", 1)
				a.Emit("STORE_NAME", a.Name("x"))
				retNone(a, b)
			})
			expectClean(t, res)
			expectSource(t, src, "x = {**kw, 'k': 1}")
		})
	}
}

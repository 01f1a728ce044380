package grammar

import (
	"testing"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// eq is the COMPARE_OP operand for == on the revision.
func eq(b *registry.Bundle) int {
	if b.Revision.AtLeast(3, 12) {
		return 2<<4 | 8
	}
	return 2
}

func TestMatchSequenceReturns(t *testing.T) {
	// match p:
	//     case [x, y]: return x + y
	//     case _: return 0
	for _, tag := range []string{"3.10", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := funcBody(t, tag, []string{"p"}, func(a *disasm.Assembler) {
				if b.Revision.AtLeast(3, 12) {
					a.Op("RESUME")
				}
				a.Emit("LOAD_FAST", a.Var("p"))
				a.Op("MATCH_SEQUENCE")
				a.Jump("POP_JUMP_IF_FALSE", "pop1")
				a.Op("GET_LEN")
				a.Emit("LOAD_CONST", a.Const(int64(2)))
				a.Emit("COMPARE_OP", eq(b))
				a.Jump("POP_JUMP_IF_FALSE", "pop1")
				a.Emit("UNPACK_SEQUENCE", 2)
				if b.Revision.Before(3, 11) {
					a.Op("ROT_TWO", "ROT_TWO")
				}
				a.Emit("STORE_FAST", a.Var("x"))
				a.Emit("STORE_FAST", a.Var("y"))
				a.Emit("LOAD_FAST", a.Var("x"))
				a.Emit("LOAD_FAST", a.Var("y"))
				if b.Revision.AtLeast(3, 11) {
					a.Emit("BINARY_OP", 0)
				} else {
					a.Op("BINARY_ADD")
				}
				a.Op("RETURN_VALUE")
				a.Mark("pop1")
				a.Op("POP_TOP")
				if b.Revision.AtLeast(3, 12) {
					a.Emit("RETURN_CONST", a.Const(int64(0)))
					return
				}
				a.Op("NOP")
				a.Emit("LOAD_CONST", a.Const(int64(0)))
				a.Op("RETURN_VALUE")
			})
			expectClean(t, res)
			expectSource(t, src,
				"match p:",
				"    case [x, y]:",
				"        return x + y",
				"    case _:",
				"        return 0")
		})
	}
}

func TestMatchClassPatterns(t *testing.T) {
	// match p:
	//     case Point(x=0, y=yy): a = yy
	//     case Point(1, _): a = 1
	// b = 2
	for _, tag := range []string{"3.11", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			fails := "POP_JUMP_FORWARD_IF_FALSE"
			if b.Revision.AtLeast(3, 12) {
				fails = "POP_JUMP_IF_FALSE"
			}
			res, src := module(t, tag, func(a *disasm.Assembler) {
				attrs := func(label string) {
					a.Emit("COPY", 1)
					if b.Revision.AtLeast(3, 12) {
						a.Jump("POP_JUMP_IF_NONE", label)
						return
					}
					a.Emit("LOAD_CONST", a.Const(pyc.None))
					a.Emit("IS_OP", 1)
					a.Jump(fails, label)
				}
				attr := func(i int64) {
					a.Emit("COPY", 1)
					a.Emit("LOAD_CONST", a.Const(i))
					a.Op("BINARY_SUBSCR")
				}
				a.Op("RESUME")
				a.Emit("LOAD_NAME", a.Name("p"))
				a.Emit("COPY", 1)
				a.Emit("LOAD_NAME", a.Name("Point"))
				a.Emit("LOAD_CONST", a.Const(pyc.Tuple{"x", "y"}))
				a.Emit("MATCH_CLASS", 0)
				attrs("pop1")
				attr(0)
				a.Emit("LOAD_CONST", a.Const(int64(0)))
				a.Emit("COMPARE_OP", eq(b))
				a.Jump(fails, "pop1")
				attr(1)
				a.Emit("SWAP", 2)
				a.Op("POP_TOP")
				a.Emit("STORE_NAME", a.Name("yy"))
				a.Op("POP_TOP")
				a.Emit("LOAD_NAME", a.Name("yy"))
				a.Emit("STORE_NAME", a.Name("a"))
				a.Jump("JUMP_FORWARD", "end")
				a.Mark("pop1")
				a.Op("POP_TOP")

				a.Emit("LOAD_NAME", a.Name("Point"))
				a.Emit("LOAD_CONST", a.Const(pyc.Tuple{}))
				a.Emit("MATCH_CLASS", 2)
				attrs("pop1b")
				attr(0)
				a.Emit("LOAD_CONST", a.Const(int64(1)))
				a.Emit("COMPARE_OP", eq(b))
				a.Jump(fails, "pop1b")
				a.Op("POP_TOP")
				a.Emit("LOAD_CONST", a.Const(int64(1)))
				a.Emit("STORE_NAME", a.Name("a"))
				a.Jump("JUMP_FORWARD", "end")
				a.Mark("pop1b")
				a.Op("POP_TOP")
				a.Mark("end")
				a.Emit("LOAD_CONST", a.Const(int64(2)))
				a.Emit("STORE_NAME", a.Name("b"))
				retNone(a, b)
			})
			expectClean(t, res)
			expectSource(t, src,
				"match p:",
				"    case Point(x=0, y=yy):",
				"        a = yy",
				"    case Point(1, _):",
				"        a = 1",
				"b = 2")
		})
	}
}

func TestMatchMappingAndAlternatives(t *testing.T) {
	// match p:
	//     case {'k': v, **rest}: a = v
	//     case (1 | 2) as n: a = n
	// b = 2
	res, src := module(t, "3.10", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("p"))
		a.Op("DUP_TOP", "MATCH_MAPPING")
		a.Jump("POP_JUMP_IF_FALSE", "pop1")
		a.Op("GET_LEN")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("COMPARE_OP", 5)
		a.Jump("POP_JUMP_IF_FALSE", "pop1")
		a.Emit("LOAD_CONST", a.Const(pyc.Tuple{"k"}))
		a.Op("MATCH_KEYS")
		a.Jump("POP_JUMP_IF_FALSE", "pop3")
		a.Op("DUP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(0)))
		a.Op("BINARY_SUBSCR", "ROT_FOUR", "POP_TOP", "COPY_DICT_WITHOUT_KEYS", "ROT_THREE", "POP_TOP")
		a.Emit("STORE_NAME", a.Name("v"))
		a.Emit("STORE_NAME", a.Name("rest"))
		a.Op("POP_TOP")
		a.Emit("LOAD_NAME", a.Name("v"))
		a.Emit("STORE_NAME", a.Name("a"))
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("pop3")
		a.Op("POP_TOP", "POP_TOP")
		a.Mark("pop1")
		a.Op("POP_TOP")

		a.Op("DUP_TOP", "DUP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("COMPARE_OP", 2)
		a.Jump("POP_JUMP_IF_FALSE", "alt2")
		a.Jump("JUMP_FORWARD", "orend")
		a.Mark("alt2")
		a.Op("DUP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("COMPARE_OP", 2)
		a.Jump("POP_JUMP_IF_FALSE", "nomatch")
		a.Jump("JUMP_FORWARD", "orend")
		a.Mark("nomatch")
		a.Op("POP_TOP")
		a.Jump("JUMP_FORWARD", "fail")
		a.Mark("orend")
		a.Op("POP_TOP")
		a.Emit("STORE_NAME", a.Name("n"))
		a.Emit("LOAD_NAME", a.Name("n"))
		a.Emit("STORE_NAME", a.Name("a"))
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("fail")
		a.Op("POP_TOP")
		a.Mark("end")
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("STORE_NAME", a.Name("b"))
		ret(a)
	})
	expectClean(t, res)
	expectSource(t, src,
		"match p:",
		"    case {'k': v, **rest}:",
		"        a = v",
		"    case (1 | 2) as n:",
		"        a = n",
		"b = 2")
}

func TestMatchSingletonStarGuard(t *testing.T) {
	// match p:
	//     case None: return 0
	//     case [1, *rest] if rest: return 1
	//     case _: return 2
	b := registry.MustLookup("3.12")
	res, src := funcBody(t, "3.12", []string{"p"}, func(a *disasm.Assembler) {
		a.Op("RESUME")
		a.Emit("LOAD_FAST", a.Var("p"))
		a.Emit("COPY", 1)
		a.Jump("POP_JUMP_IF_NOT_NONE", "case1")
		a.Op("POP_TOP")
		a.Emit("RETURN_CONST", a.Const(int64(0)))
		a.Mark("case1")
		a.Op("MATCH_SEQUENCE")
		a.Jump("POP_JUMP_IF_FALSE", "pop1")
		a.Op("GET_LEN")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("COMPARE_OP", 5<<4|12)
		a.Jump("POP_JUMP_IF_FALSE", "pop1")
		a.Emit("UNPACK_EX", 1)
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("COMPARE_OP", eq(b))
		a.Jump("POP_JUMP_IF_FALSE", "pop1")
		a.Emit("STORE_FAST", a.Var("rest"))
		a.Emit("LOAD_FAST", a.Var("rest"))
		a.Jump("POP_JUMP_IF_FALSE", "default")
		a.Emit("RETURN_CONST", a.Const(int64(1)))
		a.Mark("pop1")
		a.Op("POP_TOP")
		a.Mark("default")
		a.Emit("RETURN_CONST", a.Const(int64(2)))
	})
	expectClean(t, res)
	expectSource(t, src,
		"match p:",
		"    case None:",
		"        return 0",
		"    case [1, *rest] if rest:",
		"        return 1",
		"    case _:",
		"        return 2")
}

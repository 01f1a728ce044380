package grammar

import (
	"testing"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// methodCall emits obj.name() leaving the result on the stack.
func methodCall(a *disasm.Assembler, b *registry.Bundle, obj, name string) {
	a.Emit("LOAD_FAST", a.Var(obj))
	switch {
	case b.Revision.AtLeast(3, 12):
		a.Emit("LOAD_ATTR", a.Name(name)<<1|1)
	case b.Revision.Before(3, 7):
		a.Emit("LOAD_ATTR", a.Name(name))
		a.Emit("CALL_FUNCTION", 0)
		return
	default:
		a.Emit("LOAD_METHOD", a.Name(name))
	}
	switch {
	case b.Revision.AtLeast(3, 12):
		a.Emit("CALL", 0)
	case b.Revision.AtLeast(3, 11):
		a.Emit("PRECALL", 0)
		a.Emit("CALL", 0)
	default:
		a.Emit("CALL_METHOD", 0)
	}
}

// awaitTop awaits the value on top of the stack. label names the SEND loop
// on revisions that have one.
func awaitTop(a *disasm.Assembler, b *registry.Bundle, kind int, label string) {
	if b.Revision.Before(3, 11) {
		a.Op("GET_AWAITABLE")
		a.Emit("LOAD_CONST", a.Const(pyc.None))
		a.Op("YIELD_FROM")
		return
	}
	a.Emit("GET_AWAITABLE", kind)
	sendLoop(a, b, label)
}

// sendLoop drives the awaitable below None until it finishes.
func sendLoop(a *disasm.Assembler, b *registry.Bundle, label string) {
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	if b.Revision.Before(3, 11) {
		a.Op("YIELD_FROM")
		return
	}
	a.Mark(label)
	a.Jump("SEND", label+"_done")
	if b.Revision.AtLeast(3, 12) {
		a.Emit("YIELD_VALUE", 2)
	} else {
		a.Op("YIELD_VALUE")
	}
	a.Emit("RESUME", 3)
	a.Jump("JUMP_BACKWARD_NO_INTERRUPT", label)
	a.Mark(label + "_done")
	if b.Revision.AtLeast(3, 12) {
		a.Op("END_SEND")
	}
}

// exitNones emits the __exit__(None, None, None) call of a with body.
func exitNones(a *disasm.Assembler, b *registry.Bundle) {
	switch {
	case b.Revision.AtLeast(3, 11):
		for range 3 {
			a.Emit("LOAD_CONST", a.Const(pyc.None))
		}
		if b.Revision.Before(3, 12) {
			a.Emit("PRECALL", 2)
		}
		a.Emit("CALL", 2)
	case b.Revision.AtLeast(3, 9):
		a.Emit("LOAD_CONST", a.Const(pyc.None))
		a.Op("DUP_TOP", "DUP_TOP")
		a.Emit("CALL_FUNCTION", 3)
	default:
		a.Op("BEGIN_FINALLY", "WITH_CLEANUP_START", "WITH_CLEANUP_FINISH")
		a.Emit("POP_FINALLY", 0)
	}
}

// withProgram assembles `with cm[ as c]: <body>` followed by `return tail`
// the way each revision lays it out. preserve means the body returns the
// value it computed, constRet that it returns a constant.
type withProgram struct {
	bind     bool
	body     func(a *disasm.Assembler, b *registry.Bundle)
	preserve bool
	constRet pyc.Object // returned constant when the body returns one
	tail     pyc.Object // constant returned after the statement
}

func (w withProgram) enter(a *disasm.Assembler) {
	if w.bind {
		a.Emit("STORE_FAST", a.Var("c"))
	} else {
		a.Op("POP_TOP")
	}
}

// returnConst emits `return v`.
func returnConst(a *disasm.Assembler, b *registry.Bundle, v pyc.Object) {
	if b.Revision.AtLeast(3, 12) {
		a.Emit("RETURN_CONST", a.Const(v))
		return
	}
	a.Emit("LOAD_CONST", a.Const(v))
	a.Op("RETURN_VALUE")
}

func (w withProgram) build(a *disasm.Assembler, b *registry.Bundle) {
	if b.Revision.AtLeast(3, 11) {
		a.Op("RESUME")
	}
	a.Emit("LOAD_FAST", a.Var("cm"))
	switch {
	case b.Revision.AtLeast(3, 11):
		w.table(a, b)
	case b.Revision.AtLeast(3, 9):
		w.setup39(a, b)
	default:
		w.setup38(a, b)
	}
}

func (w withProgram) setup38(a *disasm.Assembler, b *registry.Bundle) {
	a.Jump("SETUP_WITH", "h")
	w.enter(a)
	w.body(a, b)
	switch {
	case w.preserve:
		a.Op("POP_BLOCK", "ROT_TWO")
		exitNones(a, b)
		a.Op("RETURN_VALUE")
	case w.constRet != nil:
		a.Op("POP_BLOCK")
		exitNones(a, b)
		returnConst(a, b, w.constRet)
	default:
		a.Op("POP_BLOCK", "BEGIN_FINALLY")
	}
	a.Mark("h")
	a.Op("WITH_CLEANUP_START", "WITH_CLEANUP_FINISH", "END_FINALLY")
	returnConst(a, b, w.tail)
}

func (w withProgram) setup39(a *disasm.Assembler, b *registry.Bundle) {
	a.Jump("SETUP_WITH", "h")
	w.enter(a)
	w.body(a, b)
	a.Op("POP_BLOCK")
	if w.preserve {
		a.Op("ROT_TWO")
	}
	exitNones(a, b)
	a.Op("POP_TOP")
	switch {
	case w.preserve:
		a.Op("RETURN_VALUE")
	case w.constRet != nil:
		returnConst(a, b, w.constRet)
	case b.Revision.AtLeast(3, 10):
		returnConst(a, b, w.tail)
	default:
		a.Jump("JUMP_FORWARD", "after")
	}
	a.Mark("h")
	a.Op("WITH_EXCEPT_START")
	a.Jump("POP_JUMP_IF_TRUE", "suppress")
	if b.Revision.AtLeast(3, 10) {
		a.Emit("RERAISE", 1)
	} else {
		a.Op("RERAISE")
	}
	a.Mark("suppress")
	a.Op("POP_TOP", "POP_TOP", "POP_TOP", "POP_EXCEPT", "POP_TOP")
	a.Mark("after")
	returnConst(a, b, w.tail)
}

func (w withProgram) table(a *disasm.Assembler, b *registry.Bundle) {
	a.Op("BEFORE_WITH")
	a.Mark("try")
	w.enter(a)
	w.body(a, b)
	if w.constRet != nil {
		a.Op("NOP")
	}
	a.Mark("tryend")
	if w.preserve {
		a.Emit("SWAP", 2)
	}
	exitNones(a, b)
	a.Op("POP_TOP")
	switch {
	case w.preserve:
		a.Op("RETURN_VALUE")
	case w.constRet != nil:
		returnConst(a, b, w.constRet)
	default:
		returnConst(a, b, w.tail)
	}
	a.Mark("h")
	a.Op("PUSH_EXC_INFO", "WITH_EXCEPT_START")
	if b.Revision.AtLeast(3, 12) {
		a.Jump("POP_JUMP_IF_TRUE", "suppress")
		a.Emit("RERAISE", 2)
	} else {
		a.Jump("POP_JUMP_FORWARD_IF_TRUE", "suppress")
		a.Emit("RERAISE", 2)
		a.Mark("cleanup")
		a.Emit("COPY", 3)
		a.Op("POP_EXCEPT")
		a.Emit("RERAISE", 1)
	}
	a.Mark("suppress")
	a.Op("POP_TOP")
	a.Mark("suppressed")
	a.Op("POP_EXCEPT", "POP_TOP", "POP_TOP")
	returnConst(a, b, w.tail)
	if b.Revision.AtLeast(3, 12) {
		a.Mark("cleanup")
		a.Emit("COPY", 3)
		a.Op("POP_EXCEPT")
		a.Emit("RERAISE", 1)
	}

	a.Protect("try", "tryend", "h", 1, true)
	a.Protect("h", "suppress", "cleanup", 3, true)
	a.Protect("suppress", "suppressed", "cleanup", 3, true)
}

var withTags = []string{"3.8", "3.9", "3.10", "3.11", "3.12"}

func TestWithReturnsValue(t *testing.T) {
	// def f(cm):
	//     with cm as c:
	//         return c.read()
	w := withProgram{
		bind:     true,
		preserve: true,
		tail:     pyc.None,
		body: func(a *disasm.Assembler, b *registry.Bundle) {
			methodCall(a, b, "c", "read")
		},
	}
	for _, tag := range withTags {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := funcBody(t, tag, []string{"cm"}, func(a *disasm.Assembler) { w.build(a, b) })
			expectClean(t, res)
			expectSource(t, src,
				"with cm as c:",
				"    return c.read()")
		})
	}
}

func TestWithReturnsConstant(t *testing.T) {
	// def f(cm):
	//     with cm:
	//         return 1
	w := withProgram{
		constRet: int64(1),
		tail:     pyc.None,
		body:     func(a *disasm.Assembler, b *registry.Bundle) {},
	}
	for _, tag := range withTags {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := funcBody(t, tag, []string{"cm"}, func(a *disasm.Assembler) { w.build(a, b) })
			expectClean(t, res)
			expectSource(t, src,
				"with cm:",
				"    return 1")
		})
	}
}

func TestWithFallsThrough(t *testing.T) {
	// def f(cm):
	//     with cm as c:
	//         c.close()
	//     return 2
	w := withProgram{
		bind: true,
		tail: int64(2),
		body: func(a *disasm.Assembler, b *registry.Bundle) {
			methodCall(a, b, "c", "close")
			a.Op("POP_TOP")
		},
	}
	for _, tag := range withTags {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := funcBody(t, tag, []string{"cm"}, func(a *disasm.Assembler) { w.build(a, b) })
			expectClean(t, res)
			expectSource(t, src,
				"with cm as c:",
				"    c.close()",
				"return 2")
		})
	}
}

func TestAsyncWith(t *testing.T) {
	// async def f(cm):
	//     async with cm as c:
	//         c.close()
	for _, tag := range []string{"3.7", "3.9", "3.11", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := asyncBody(t, tag, []string{"cm"}, func(a *disasm.Assembler) {
				if b.Revision.AtLeast(3, 11) {
					a.Op("RETURN_GENERATOR", "POP_TOP", "RESUME")
				}
				a.Emit("LOAD_FAST", a.Var("cm"))
				a.Op("BEFORE_ASYNC_WITH")
				awaitTop(a, b, 1, "enter")
				if b.Revision.Before(3, 11) {
					a.Jump("SETUP_ASYNC_WITH", "h")
				}
				a.Mark("try")
				a.Emit("STORE_FAST", a.Var("c"))
				methodCall(a, b, "c", "close")
				a.Op("POP_TOP")
				a.Mark("tryend")
				switch {
				case b.Revision.Before(3, 9):
					a.Op("POP_BLOCK")
					a.Emit("LOAD_CONST", a.Const(pyc.None))
					a.Mark("h")
					a.Op("WITH_CLEANUP_START")
					awaitTop(a, b, 2, "exit")
					a.Op("WITH_CLEANUP_FINISH", "END_FINALLY")
					ret(a)
					return
				case b.Revision.Before(3, 11):
					a.Op("POP_BLOCK")
					exitNones(a, b)
					awaitTop(a, b, 2, "exit")
					a.Op("POP_TOP")
					a.Jump("JUMP_ABSOLUTE", "after")
					a.Mark("h")
					a.Op("WITH_EXCEPT_START")
					awaitTop(a, b, 2, "exc")
					a.Jump("POP_JUMP_IF_TRUE", "suppress")
					a.Op("RERAISE")
					a.Mark("suppress")
					a.Op("POP_TOP", "POP_TOP", "POP_TOP", "POP_EXCEPT", "POP_TOP")
					a.Mark("after")
					ret(a)
					return
				}
				exitNones(a, b)
				awaitTop(a, b, 2, "exit")
				a.Op("POP_TOP")
				returnConst(a, b, pyc.None)
				a.Mark("h")
				a.Op("PUSH_EXC_INFO", "WITH_EXCEPT_START")
				awaitTop(a, b, 2, "exc")
				cleanup := func() {
					a.Mark("cleanup")
					a.Emit("COPY", 3)
					a.Op("POP_EXCEPT")
					a.Emit("RERAISE", 1)
				}
				if b.Revision.AtLeast(3, 12) {
					a.Jump("POP_JUMP_IF_TRUE", "suppress")
					a.Emit("RERAISE", 2)
				} else {
					a.Jump("POP_JUMP_FORWARD_IF_TRUE", "suppress")
					a.Emit("RERAISE", 2)
					cleanup()
				}
				a.Mark("suppress")
				a.Op("POP_TOP")
				a.Mark("suppressed")
				a.Op("POP_EXCEPT", "POP_TOP", "POP_TOP")
				returnConst(a, b, pyc.None)
				if b.Revision.AtLeast(3, 12) {
					cleanup()
				}

				a.Protect("try", "tryend", "h", 1, true)
				a.Protect("h", "suppress", "cleanup", 3, true)
				a.Protect("suppress", "suppressed", "cleanup", 3, true)
			})
			expectClean(t, res)
			expectSource(t, src,
				"async with cm as c:",
				"    c.close()")
		})
	}
}

func TestAsyncFor(t *testing.T) {
	// async def f(xs):
	//     async for x in xs:
	//         x.close()
	for _, tag := range []string{"3.6", "3.7", "3.9", "3.11", "3.12"} {
		t.Run(tag, func(t *testing.T) {
			b := registry.MustLookup(tag)
			res, src := asyncBody(t, tag, []string{"xs"}, func(a *disasm.Assembler) {
				if b.Revision.AtLeast(3, 11) {
					a.Op("RETURN_GENERATOR", "POP_TOP", "RESUME")
				}
				a.Emit("LOAD_FAST", a.Var("xs"))
				a.Op("GET_AITER")
				body := func() {
					methodCall(a, b, "x", "close")
					a.Op("POP_TOP")
				}
				switch {
				case b.Revision.Before(3, 8):
					if b.Revision.Before(3, 7) {
						sendLoop(a, b, "aiter")
					}
					a.Jump("SETUP_LOOP", "after")
					a.Mark("head")
					a.Jump("SETUP_EXCEPT", "except")
					a.Op("GET_ANEXT")
					sendLoop(a, b, "anext")
					a.Emit("STORE_FAST", a.Var("x"))
					a.Op("POP_BLOCK")
					a.Jump("JUMP_FORWARD", "body")
					a.Mark("except")
					a.Op("DUP_TOP")
					a.Emit("LOAD_GLOBAL", a.Name("StopAsyncIteration"))
					a.Emit("COMPARE_OP", 10)
					a.Jump("POP_JUMP_IF_TRUE", "cleanup")
					a.Op("END_FINALLY")
					a.Mark("body")
					body()
					a.Jump("JUMP_ABSOLUTE", "head")
					a.Mark("cleanup")
					a.Op("POP_TOP", "POP_TOP", "POP_TOP", "POP_EXCEPT")
					if b.Revision.AtLeast(3, 7) {
						a.Op("POP_TOP")
					}
					a.Op("POP_BLOCK")
					a.Mark("after")
				case b.Revision.Before(3, 11):
					a.Mark("head")
					a.Jump("SETUP_FINALLY", "except")
					a.Op("GET_ANEXT")
					sendLoop(a, b, "anext")
					a.Op("POP_BLOCK")
					a.Emit("STORE_FAST", a.Var("x"))
					body()
					a.Jump("JUMP_ABSOLUTE", "head")
					a.Mark("except")
					a.Op("END_ASYNC_FOR")
				default:
					a.Mark("head")
					a.Op("GET_ANEXT")
					sendLoop(a, b, "anext")
					a.Mark("store")
					a.Emit("STORE_FAST", a.Var("x"))
					body()
					a.Jump("JUMP_BACKWARD", "head")
					a.Mark("except")
					a.Op("END_ASYNC_FOR")
					a.Protect("head", "store", "except", 1, false)
				}
				returnConst(a, b, pyc.None)
			})
			expectClean(t, res)
			expectSource(t, src,
				"async for x in xs:",
				"    x.close()")
		})
	}
}

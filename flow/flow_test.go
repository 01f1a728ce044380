package flow

import (
	"errors"
	"testing"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

func assemble(t *testing.T, tag string, build func(a *disasm.Assembler)) ([]disasm.Instruction, *pyc.CodeUnit, *registry.Bundle) {
	t.Helper()
	b := registry.MustLookup(tag)
	a := disasm.NewAssembler(b)
	build(a)
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatalf("assembling failed: %v", err)
	}
	instrs, _ := disasm.Disassemble(u, b)
	return instrs, u, b
}

func recoverProgram(t *testing.T, tag string, build func(a *disasm.Assembler)) *Tree {
	t.Helper()
	instrs, u, b := assemble(t, tag, build)
	return Recover(instrs, u, b)
}

func call(a *disasm.Assembler, name string) {
	a.Emit("LOAD_NAME", a.Name(name))
	a.Emit("CALL_FUNCTION", 0)
	a.Op("POP_TOP")
}

func store(a *disasm.Assembler, name string, v int64) {
	a.Emit("LOAD_CONST", a.Const(v))
	a.Emit("STORE_NAME", a.Name(name))
}

func ret(a *disasm.Assembler) {
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
}

func kinds(body []*Region) []Kind {
	out := make([]Kind, len(body))
	for i, r := range body {
		out[i] = r.Kind
	}
	return out
}

func expectKinds(t *testing.T, what string, body []*Region, want ...Kind) {
	t.Helper()
	got := kinds(body)
	if len(got) != len(want) {
		t.Fatalf("%s: kinds = %v, want %v\n%s", what, got, want, Dump(body))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("%s: kinds = %v, want %v\n%s", what, got, want, Dump(body))
		}
	}
}

func TestIfElse(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "else")
		store(a, "y", 1)
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("else")
		store(a, "y", 2)
		a.Mark("end")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, Conditional, Linear)
	r := tree.Body[1]
	if r.Cond == nil || r.Cond.Op != CondLeaf || !r.Cond.Carried {
		t.Fatalf("condition = %v, want one carried leaf", r.Cond)
	}
	expectKinds(t, "then", r.Body, Linear)
	expectKinds(t, "else", r.Else, Linear)
	if got := tree.Role(8); got != Structural {
		t.Errorf("role of the jump over the else arm = %v, want structural", got)
	}
	if len(tree.Diagnostics()) != 0 {
		t.Errorf("unexpected diagnostics %v", tree.Diagnostics())
	}
}

func TestBooleanChain(t *testing.T) {
	// if a and (b or c): f()
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Jump("POP_JUMP_IF_FALSE", "end")
		a.Emit("LOAD_NAME", a.Name("b"))
		a.Jump("POP_JUMP_IF_TRUE", "then")
		a.Emit("LOAD_NAME", a.Name("c"))
		a.Jump("POP_JUMP_IF_FALSE", "end")
		a.Mark("then")
		call(a, "f")
		a.Mark("end")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, Conditional, Linear)
	c := tree.Body[1].Cond
	if c.Op != CondAnd || len(c.Args) != 2 || c.Args[1].Op != CondOr {
		t.Fatalf("condition = %v, want (a and (b or c))", c)
	}
	if n := len(c.Leaves()); n != 3 {
		t.Errorf("leaves = %d, want 3", n)
	}
}

func TestValueBoolean(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Jump("JUMP_IF_TRUE_OR_POP", "done")
		a.Emit("LOAD_NAME", a.Name("b"))
		a.Mark("done")
		a.Emit("STORE_NAME", a.Name("y"))
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, Conditional, Linear)
	if r := tree.Body[1]; r.Keep != KeepOr || len(r.Body) != 1 {
		t.Fatalf("keep = %v body = %d", r.Keep, len(r.Body))
	}
}

func TestForLoopBreak(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("y"))
		a.Op("GET_ITER")
		a.Mark("loop")
		a.Jump("FOR_ITER", "exit")
		a.Emit("STORE_NAME", a.Name("x"))
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "cont")
		a.Op("POP_TOP")
		a.Jump("JUMP_ABSOLUTE", "exit")
		a.Mark("cont")
		call(a, "f")
		a.Jump("JUMP_ABSOLUTE", "loop")
		a.Mark("exit")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, Loop, Linear)
	loop := tree.Body[1]
	if loop.Loop != For {
		t.Fatalf("loop kind = %v, want for", loop.Loop)
	}
	expectKinds(t, "body", loop.Body, Linear, Conditional, Linear)
	if got := tree.Role(14); got != Break {
		t.Errorf("role of the break jump = %v, want break", got)
	}
	if got := tree.Role(22); got != Structural {
		t.Errorf("role of the back jump = %v, want structural", got)
	}
}

func TestWhileLoop(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Mark("top")
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "exit")
		call(a, "f")
		a.Jump("JUMP_ABSOLUTE", "top")
		a.Mark("exit")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Loop, Linear)
	if r := tree.Body[0]; r.Loop != While || r.Cond == nil || r.Cond.Carried {
		t.Fatalf("loop = %v cond = %v", r.Loop, r.Cond)
	}
}

func TestBottomTestedWhile(t *testing.T) {
	tree := recoverProgram(t, "3.10", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "exit")
		a.Mark("body")
		call(a, "f")
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_TRUE", "body")
		a.Mark("exit")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, Loop, Linear)
	r := tree.Body[1]
	if r.Loop != While || r.Cond == nil || r.Guard == nil {
		t.Fatalf("loop = %v cond = %v guard = %v", r.Loop, r.Cond, r.Guard)
	}
	expectKinds(t, "body", r.Body, Linear)
}

func TestTryExceptFinallyNesting(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Jump("SETUP_FINALLY", "fin")
		a.Jump("SETUP_FINALLY", "handler")
		call(a, "a")
		a.Op("POP_BLOCK")
		a.Jump("JUMP_FORWARD", "after")

		a.Mark("handler")
		a.Op("DUP_TOP")
		a.Emit("LOAD_NAME", a.Name("ValueError"))
		a.Emit("COMPARE_OP", 10)
		a.Jump("POP_JUMP_IF_FALSE", "next1")
		a.Op("POP_TOP", "POP_TOP", "POP_TOP")
		call(a, "b")
		a.Op("POP_EXCEPT")
		a.Jump("JUMP_FORWARD", "after")

		a.Mark("next1")
		a.Op("DUP_TOP")
		a.Emit("LOAD_NAME", a.Name("TypeError"))
		a.Emit("COMPARE_OP", 10)
		a.Jump("POP_JUMP_IF_FALSE", "next2")
		a.Op("POP_TOP")
		a.Emit("STORE_NAME", a.Name("e"))
		a.Op("POP_TOP")
		a.Jump("SETUP_FINALLY", "cleanup")
		call(a, "c")
		a.Op("POP_BLOCK", "BEGIN_FINALLY")
		a.Mark("cleanup")
		a.Emit("LOAD_CONST", a.Const(pyc.None))
		a.Emit("STORE_NAME", a.Name("e"))
		a.Emit("DELETE_NAME", a.Name("e"))
		a.Op("END_FINALLY", "POP_EXCEPT")
		a.Jump("JUMP_FORWARD", "after")

		a.Mark("next2")
		a.Op("END_FINALLY")
		a.Mark("after")
		a.Op("POP_BLOCK", "BEGIN_FINALLY")
		a.Mark("fin")
		call(a, "d")
		a.Op("END_FINALLY")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, TryFinally, Linear)
	fin := tree.Body[0]
	expectKinds(t, "try body", fin.Body, TryExcept)
	expectKinds(t, "finally", fin.Finally, Linear)
	te := fin.Body[0]
	if len(te.Handlers) != 2 {
		t.Fatalf("handlers = %d, want 2", len(te.Handlers))
	}
	if h := te.Handlers[0]; len(h.Type) != 1 || h.Name != "" {
		t.Errorf("first handler type = %v name = %q", h.Type, h.Name)
	}
	if h := te.Handlers[1]; h.Name != "e" || h.Type[0].Argval != "TypeError" {
		t.Errorf("second handler type = %v name = %q", h.Type, h.Name)
	}
	for i, h := range te.Handlers {
		expectKinds(t, "handler", h.Body, Linear)
		if n := len(h.Body[0].Instrs); n != 3 {
			t.Errorf("handler %d keeps %d instructions, want the 3 of its call", i, n)
		}
	}
	if len(tree.Diagnostics()) != 0 {
		t.Errorf("unexpected diagnostics %v", tree.Diagnostics())
	}
}

func TestWithSetup(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("cm"))
		a.Jump("SETUP_WITH", "exit")
		a.Emit("STORE_NAME", a.Name("f"))
		call(a, "g")
		a.Op("POP_BLOCK", "BEGIN_FINALLY")
		a.Mark("exit")
		a.Op("WITH_CLEANUP_START", "WITH_CLEANUP_FINISH", "END_FINALLY")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, ContextManaged, Linear)
	body := tree.Body[1].Body
	expectKinds(t, "with body", body, Linear)
	if n := len(body[0].Instrs); n != 4 {
		t.Errorf("with body has %d instructions, want 4", n)
	}
}

func TestExceptionTableTry(t *testing.T) {
	tree := recoverProgram(t, "3.11", func(a *disasm.Assembler) {
		a.Mark("try")
		a.Op("NOP", "PUSH_NULL")
		a.Emit("LOAD_NAME", a.Name("a"))
		a.Emit("PRECALL", 0)
		a.Emit("CALL", 0)
		a.Op("POP_TOP")
		a.Mark("tryend")
		a.Jump("JUMP_FORWARD", "end")

		a.Mark("handler")
		a.Op("PUSH_EXC_INFO")
		a.Emit("LOAD_NAME", a.Name("ValueError"))
		a.Op("CHECK_EXC_MATCH")
		a.Jump("POP_JUMP_FORWARD_IF_FALSE", "nomatch")
		a.Op("POP_TOP", "PUSH_NULL")
		a.Emit("LOAD_NAME", a.Name("b"))
		a.Emit("PRECALL", 0)
		a.Emit("CALL", 0)
		a.Op("POP_TOP", "POP_EXCEPT")
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("nomatch")
		a.Emit("RERAISE", 0)
		a.Mark("cleanup")
		a.Emit("COPY", 3)
		a.Op("POP_EXCEPT")
		a.Emit("RERAISE", 1)
		a.Mark("end")
		ret(a)

		a.Protect("try", "tryend", "handler", 0, false)
		a.Protect("handler", "cleanup", "cleanup", 1, true)
	})
	expectKinds(t, "module", tree.Body, TryExcept, Linear)
	te := tree.Body[0]
	expectKinds(t, "try body", te.Body, Linear)
	if len(te.Handlers) != 1 || len(te.Handlers[0].Type) != 1 {
		t.Fatalf("handlers = %d", len(te.Handlers))
	}
	expectKinds(t, "handler", te.Handlers[0].Body, Linear)
	if n := len(te.Handlers[0].Body[0].Instrs); n != 5 {
		t.Errorf("handler keeps %d instructions, want 5", n)
	}
	if len(te.Else) != 0 {
		t.Errorf("unexpected else arm\n%s", Dump(te.Else))
	}
}

func TestMatchValues(t *testing.T) {
	tree := recoverProgram(t, "3.10", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Op("DUP_TOP")
		a.Emit("LOAD_CONST", a.Const(int64(1)))
		a.Emit("COMPARE_OP", 2)
		a.Jump("POP_JUMP_IF_FALSE", "case2")
		a.Op("POP_TOP")
		store(a, "a", 1)
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("case2")
		a.Emit("LOAD_CONST", a.Const(int64(2)))
		a.Emit("COMPARE_OP", 2)
		a.Jump("POP_JUMP_IF_FALSE", "default")
		store(a, "a", 2)
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("default")
		a.Op("NOP")
		store(a, "a", 3)
		a.Mark("end")
		ret(a)
	})
	expectKinds(t, "module", tree.Body, Linear, MatchDispatch, Linear)
	m := tree.Body[1]
	if len(m.Cases) != 3 {
		t.Fatalf("cases = %d, want 3\n%s", len(m.Cases), Dump(tree.Body))
	}
	want := []PatternKind{PatternValue, PatternValue, PatternWildcard}
	for i, c := range m.Cases {
		if c.Pattern.Kind != want[i] {
			t.Errorf("case %d pattern = %v, want %v", i, c.Pattern, want[i])
		}
		expectKinds(t, "case body", c.Body, Linear)
	}
}

func TestIrreducibleLoop(t *testing.T) {
	tree := recoverProgram(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_TRUE", "b")
		a.Mark("a")
		call(a, "f")
		a.Mark("b")
		call(a, "g")
		a.Jump("JUMP_ABSOLUTE", "a")
		ret(a)
	})
	diags := tree.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v, want one\n%s", diags, Dump(tree.Body))
	}
	d := diags[0]
	if d.Kind != diag.IrreducibleControlFlow || !errors.Is(d, ErrIrreducible) {
		t.Errorf("diagnostic = %v", d)
	}
	if d.Start != 2 || d.End != 18 {
		t.Errorf("placeholder span = [%d, %d), want [2, 18)", d.Start, d.End)
	}
	if got := tree.Body[0].Kind; got != Linear {
		t.Errorf("code before the loop became %v", got)
	}
}

func TestUnknownOpcodeIsLocal(t *testing.T) {
	instrs, u, b := assemble(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "else")
		a.Op("NOP")
		store(a, "y", 1)
		a.Mark("else")
		ret(a)
	})
	u.Code[4] = 7
	instrs, _ = disasm.Disassemble(u, b)
	tree := Recover(instrs, u, b)
	expectKinds(t, "module", tree.Body, Linear, Conditional, Linear)
	then := tree.Body[1].Body
	expectKinds(t, "then", then, Placeholder)
	d := then[0].Diag
	if !errors.Is(d, disasm.ErrUnknownOpcode) || d.Start != 4 || d.End != 10 {
		t.Errorf("diagnostic = %v", d)
	}
}

func TestGraphDominators(t *testing.T) {
	instrs, u, b := assemble(t, "3.8", func(a *disasm.Assembler) {
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump("POP_JUMP_IF_FALSE", "else")
		store(a, "y", 1)
		a.Jump("JUMP_FORWARD", "end")
		a.Mark("else")
		store(a, "y", 2)
		a.Mark("end")
		ret(a)
	})
	g := BuildGraph(instrs, u, b)
	if len(g.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(g.Blocks))
	}
	if !g.Dominates(0, 3) || g.Dominates(1, 3) || g.Dominates(2, 3) {
		t.Error("only the entry block dominates the join")
	}
	if len(g.Irreducible()) != 0 {
		t.Error("an if/else is reducible")
	}
}

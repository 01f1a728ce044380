package disasm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

func rawUnit(tag string, code []byte) *pyc.CodeUnit {
	return &pyc.CodeUnit{
		Code:     code,
		Consts:   []pyc.Object{pyc.None, int64(1), int64(2)},
		Names:    []string{"print", "x", "y"},
		VarNames: []string{"a"},
		Name:     "<module>",
		Revision: tag,
	}
}

func ifProgram(t *testing.T, tag string) ([]Instruction, []diag.Diagnostic) {
	t.Helper()
	b := registry.MustLookup(tag)
	a := NewAssembler(b)
	a.Emit("LOAD_NAME", a.Name("x"))
	jump := "POP_JUMP_IF_FALSE"
	if tag == "3.11" {
		jump = "POP_JUMP_FORWARD_IF_FALSE"
	}
	a.Jump(jump, "else")
	a.Emit("LOAD_CONST", a.Const(int64(1)))
	a.Emit("STORE_NAME", a.Name("y"))
	a.Mark("else")
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatalf("assembling failed: %v", err)
	}
	return Disassemble(u, b)
}

func TestDisassembleConditional(t *testing.T) {
	for _, tag := range []string{"3.8", "3.10"} {
		instrs, diags := ifProgram(t, tag)
		if len(diags) != 0 {
			t.Fatalf("%s: unexpected diagnostics %v", tag, diags)
		}
		if len(instrs) != 6 {
			t.Fatalf("%s: got %d instructions, want 6", tag, len(instrs))
		}
		if instrs[1].Target != 8 {
			t.Errorf("%s: jump target = %d, want 8", tag, instrs[1].Target)
		}
		if instrs[0].Argval != "x" || instrs[2].Argval != int64(1) {
			t.Errorf("%s: operands = %v %v", tag, instrs[0].Argval, instrs[2].Argval)
		}
	}
}

func TestDisassembleInlineCaches(t *testing.T) {
	b := registry.MustLookup("3.11")
	a := NewAssembler(b)
	a.Emit("LOAD_GLOBAL", a.Name("print")<<1|1)
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatal(err)
	}
	instrs, diags := Disassemble(u, b)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics %v", diags)
	}
	if len(instrs) != 3 {
		t.Fatalf("got %d instructions, want 3 (caches must be skipped)", len(instrs))
	}
	if instrs[0].Size != 12 || instrs[1].Offset != 12 {
		t.Errorf("LOAD_GLOBAL size %d, next offset %d", instrs[0].Size, instrs[1].Offset)
	}
	if instrs[0].Argval != "print" || instrs[0].Argrepr != "NULL + print" {
		t.Errorf("LOAD_GLOBAL operand = %v (%s)", instrs[0].Argval, instrs[0].Argrepr)
	}
}

func TestExtendedArgWordcode(t *testing.T) {
	b := registry.MustLookup("3.8")
	ext := b.Opcodes.Code("EXTENDED_ARG")
	lc := b.Opcodes.Code("LOAD_CONST")
	instrs, _ := Disassemble(rawUnit("3.8", []byte{ext, 1, lc, 2}), b)
	if len(instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instrs))
	}
	in := instrs[0]
	if in.Arg != 258 || in.Offset != 0 || in.Size != 4 || in.Op != "LOAD_CONST" {
		t.Errorf("got %+v", in)
	}
}

func TestExtendedArgPy2(t *testing.T) {
	b := registry.MustLookup("2.7")
	instrs, _ := Disassemble(rawUnit("2.7", []byte{145, 1, 0, 100, 2, 0}), b)
	if len(instrs) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instrs))
	}
	if instrs[0].Arg != 65538 || instrs[0].Size != 6 {
		t.Errorf("got %+v", instrs[0])
	}
}

func TestVariableWidthPy2(t *testing.T) {
	b := registry.MustLookup("2.7")
	instrs, diags := Disassemble(rawUnit("2.7", []byte{1, 100, 0, 0, 83}), b)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics %v", diags)
	}
	want := []struct {
		op     string
		offset int
	}{{"POP_TOP", 0}, {"LOAD_CONST", 1}, {"RETURN_VALUE", 4}}
	if len(instrs) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(instrs), len(want))
	}
	for i, w := range want {
		if instrs[i].Op != w.op || instrs[i].Offset != w.offset {
			t.Errorf("instr %d = %s@%d, want %s@%d", i, instrs[i].Op, instrs[i].Offset, w.op, w.offset)
		}
	}
}

func TestDanglingJump(t *testing.T) {
	b := registry.MustLookup("3.8")
	code := []byte{b.Opcodes.Code("JUMP_ABSOLUTE"), 3, b.Opcodes.Code("RETURN_VALUE"), 0}
	instrs, diags := Disassemble(rawUnit("3.8", code), b)
	if len(diags) != 1 || diags[0].Kind != diag.DanglingJump {
		t.Fatalf("diagnostics = %v, want one DanglingJump", diags)
	}
	if instrs[0].Target != -1 {
		t.Errorf("dangling target = %d, want -1", instrs[0].Target)
	}
}

func TestUnknownOpcode(t *testing.T) {
	b := registry.MustLookup("3.8")
	code := []byte{7, 0, b.Opcodes.Code("LOAD_CONST"), 0, b.Opcodes.Code("RETURN_VALUE"), 0}
	instrs, diags := Disassemble(rawUnit("3.8", code), b)
	if len(instrs) != 3 || instrs[0].Op != UnknownOp || instrs[0].Opcode != nil {
		t.Fatalf("instructions = %v", instrs)
	}
	if len(diags) != 1 || !errors.Is(diags[0], ErrUnknownOpcode) {
		t.Fatalf("diagnostics = %v, want one unknown opcode", diags)
	}
	if diags[0].Start != 0 || diags[0].End != 2 {
		t.Errorf("diagnostic span = [%d, %d)", diags[0].Start, diags[0].End)
	}
}

func TestAssemblerWidensLongJumps(t *testing.T) {
	b := registry.MustLookup("3.8")
	a := NewAssembler(b)
	a.Emit("LOAD_NAME", a.Name("x"))
	a.Jump("POP_JUMP_IF_FALSE", "end")
	for i := 0; i < 300; i++ {
		a.Op("NOP")
	}
	a.Mark("end")
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatal(err)
	}
	instrs, diags := Disassemble(u, b)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics %v", diags)
	}
	jump := instrs[1]
	if jump.Size != 4 {
		t.Errorf("jump size = %d, want 4 (one prefix)", jump.Size)
	}
	end := instrs[len(instrs)-2]
	if jump.Target != end.Offset {
		t.Errorf("jump target = %d, want %d", jump.Target, end.Offset)
	}
}

// Every revision must resolve forward, backward and conditional jumps to
// instruction offsets.
func TestJumpNormalizationAllRevisions(t *testing.T) {
	cond := map[string]string{"3.0": "JUMP_IF_FALSE", "3.11": "POP_JUMP_FORWARD_IF_FALSE"}
	back := map[string]string{"3.11": "JUMP_BACKWARD", "3.12": "JUMP_BACKWARD", "3.13": "JUMP_BACKWARD"}
	for _, rev := range registry.Revisions() {
		b := registry.MustLookup(rev.Tag)
		a := NewAssembler(b)
		c, ok := cond[rev.Tag]
		if !ok {
			c = "POP_JUMP_IF_FALSE"
		}
		j, ok := back[rev.Tag]
		if !ok {
			j = "JUMP_ABSOLUTE"
		}
		a.Mark("top")
		a.Emit("LOAD_NAME", a.Name("x"))
		a.Jump(c, "end")
		a.Jump("JUMP_FORWARD", "mid")
		a.Emit("LOAD_NAME", a.Name("y"))
		a.Op("POP_TOP")
		a.Mark("mid")
		a.Jump(j, "top")
		a.Mark("end")
		a.Emit("LOAD_CONST", a.Const(pyc.None))
		a.Op("RETURN_VALUE")
		u, err := a.Unit("<module>")
		if err != nil {
			t.Fatalf("%s: %v", rev.Tag, err)
		}
		instrs, diags := Disassemble(u, b)
		if len(diags) != 0 {
			t.Errorf("%s: diagnostics %v", rev.Tag, diags)
			continue
		}
		idx := NewIndex(instrs)
		want := map[int]int{1: 6, 2: 5, 5: 0}
		for i, w := range want {
			got := idx.Of(instrs[i].Target)
			if got != w {
				t.Errorf("%s: %s targets instruction %d, want %d", rev.Tag, instrs[i].Op, got, w)
			}
		}
	}
}

func TestListing(t *testing.T) {
	b := registry.MustLookup("3.9")
	inner := NewAssembler(b)
	inner.Emit("LOAD_FAST", inner.Var("a"))
	inner.Op("RETURN_VALUE")
	child, err := inner.Unit("f")
	if err != nil {
		t.Fatal(err)
	}
	child.ArgCount = 1

	a := NewAssembler(b)
	a.Emit("LOAD_CONST", a.Const(child))
	a.Emit("LOAD_CONST", a.Const("f"))
	a.Emit("MAKE_FUNCTION", 0)
	a.Emit("STORE_NAME", a.Name("f"))
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatal(err)
	}

	out := Listing(u, b)
	for _, want := range []string{
		"; === <module> ===",
		"; === f ===",
		"; Parameters (1): a",
		"MAKE_FUNCTION",
		"(f)",
		"LOAD_FAST",
		"Constants:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestAssemblerErrors(t *testing.T) {
	b := registry.MustLookup("3.8")
	a := NewAssembler(b)
	a.Op("NOT_AN_OPCODE")
	if _, err := a.Bytes(); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("unknown mnemonic: %v", err)
	}
	a = NewAssembler(b)
	a.Jump("JUMP_FORWARD", "nowhere")
	if _, err := a.Bytes(); err == nil {
		t.Error("expected an error for an undefined label")
	}
}

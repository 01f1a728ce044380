package disasm

import (
	"fmt"

	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// Assembler emits instruction bytes for one revision. Jumps name labels;
// offsets and EXTENDED_ARG prefixes are settled when Bytes is called.
//
//	a := disasm.NewAssembler(bundle)
//	a.Emit("LOAD_NAME", a.Name("x"))
//	a.Jump("POP_JUMP_IF_FALSE", "else")
//	...
//	a.Mark("else")
type Assembler struct {
	bundle *registry.Bundle
	items  []asmItem
	labels map[string]int // label -> item index
	err    error

	consts   []pyc.Object
	names    []string
	varnames []string
	handlers []asmHandler
	offsets  []int
}

type asmHandler struct {
	start, end, target string
	depth              int
	lasti              bool
}

type asmItem struct {
	op    *registry.Opcode
	arg   int
	label string
}

// NewAssembler returns an empty assembler for bundle's revision.
func NewAssembler(bundle *registry.Bundle) *Assembler {
	return &Assembler{bundle: bundle, labels: make(map[string]int)}
}

func (a *Assembler) setErr(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *Assembler) lookup(name string) *registry.Opcode {
	op, ok := a.bundle.Opcodes.Lookup(name)
	if !ok {
		a.setErr(fmt.Errorf("%w: %s has no %s", ErrUnknownOpcode, a.bundle.Tag(), name))
	}
	return op
}

// Emit appends an instruction with a numeric operand.
func (a *Assembler) Emit(name string, arg int) *Assembler {
	if op := a.lookup(name); op != nil {
		a.items = append(a.items, asmItem{op: op, arg: arg})
	}
	return a
}

// Op appends an instruction without an operand.
func (a *Assembler) Op(names ...string) *Assembler {
	for _, n := range names {
		a.Emit(n, 0)
	}
	return a
}

// Jump appends a jump-kind instruction targeting label.
func (a *Assembler) Jump(name, label string) *Assembler {
	op := a.lookup(name)
	if op == nil {
		return a
	}
	if !op.Operand.IsJump() {
		a.setErr(fmt.Errorf("%s is not a jump", name))
		return a
	}
	a.items = append(a.items, asmItem{op: op, label: label})
	return a
}

// Mark binds label to the next instruction.
func (a *Assembler) Mark(label string) *Assembler {
	if _, dup := a.labels[label]; dup {
		a.setErr(fmt.Errorf("label %q marked twice", label))
	}
	a.labels[label] = len(a.items)
	return a
}

// Protect records an exception-table entry covering [start, end) with
// handler target. Only 3.11+ revisions carry a table.
func (a *Assembler) Protect(start, end, target string, depth int, lasti bool) *Assembler {
	if !a.bundle.Features.ExceptionTable {
		a.setErr(fmt.Errorf("%s has no exception table", a.bundle.Tag()))
		return a
	}
	a.handlers = append(a.handlers, asmHandler{start: start, end: end, target: target, depth: depth, lasti: lasti})
	return a
}

// Const interns v in the constant pool and returns its index.
func (a *Assembler) Const(v pyc.Object) int {
	for i, c := range a.consts {
		if sameConst(c, v) {
			return i
		}
	}
	a.consts = append(a.consts, v)
	return len(a.consts) - 1
}

func sameConst(x, y pyc.Object) bool {
	if cx, ok := x.(*pyc.CodeUnit); ok {
		return cx == y
	}
	if _, ok := y.(*pyc.CodeUnit); ok {
		return false
	}
	return fmt.Sprintf("%T", x) == fmt.Sprintf("%T", y) && pyc.Repr(x) == pyc.Repr(y)
}

// Name interns s in the names table.
func (a *Assembler) Name(s string) int {
	return intern(&a.names, s)
}

// Var interns s in the local-variable table.
func (a *Assembler) Var(s string) int {
	return intern(&a.varnames, s)
}

func intern(table *[]string, s string) int {
	for i, n := range *table {
		if n == s {
			return i
		}
	}
	*table = append(*table, s)
	return len(*table) - 1
}

// Unit assembles the instructions into a code unit carrying the interned
// tables. Callers adjust argument counts, flags and cell tables as needed.
func (a *Assembler) Unit(name string) (*pyc.CodeUnit, error) {
	code, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	consts := a.consts
	if consts == nil {
		consts = []pyc.Object{}
	}
	entries, err := a.exceptionEntries()
	if err != nil {
		return nil, err
	}
	return &pyc.CodeUnit{
		NLocals:        len(a.varnames),
		StackSize:      16,
		Code:           code,
		Consts:         consts,
		Names:          append([]string{}, a.names...),
		VarNames:       append([]string{}, a.varnames...),
		Filename:       "<assembled>",
		Name:           name,
		QualName:       name,
		FirstLine:      1,
		ExceptionTable: pyc.EncodeExceptionTable(entries),
		Exceptions:     entries,
		Revision:       a.bundle.Tag(),
	}, nil
}

// Bytes lays out the program. Prefix counts are grown until every operand
// fits, so jumps across long spans stay correct.
func (a *Assembler) Bytes() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	ext := make([]int, len(a.items))
	for {
		offsets := a.layout(ext)
		args, err := a.operands(ext, offsets)
		if err != nil {
			return nil, err
		}
		changed := false
		for i, arg := range args {
			if n := a.prefixes(arg); n > ext[i] {
				ext[i] = n
				changed = true
			}
		}
		if !changed {
			a.offsets = offsets
			return a.encode(ext, args), nil
		}
	}
}

func (a *Assembler) exceptionEntries() ([]pyc.ExceptionEntry, error) {
	var out []pyc.ExceptionEntry
	at := func(label string) (int, error) {
		idx, ok := a.labels[label]
		if !ok {
			return 0, fmt.Errorf("undefined label %q", label)
		}
		return a.offsets[idx], nil
	}
	for _, h := range a.handlers {
		start, err := at(h.start)
		if err != nil {
			return nil, err
		}
		end, err := at(h.end)
		if err != nil {
			return nil, err
		}
		target, err := at(h.target)
		if err != nil {
			return nil, err
		}
		out = append(out, pyc.ExceptionEntry{Start: start, End: end, Target: target, Depth: h.depth, Lasti: h.lasti})
	}
	return out, nil
}

func (a *Assembler) wordcode() bool {
	return a.bundle.Features.WordCode
}

func (a *Assembler) hasArg(op *registry.Opcode) bool {
	return a.wordcode() || op.Code >= haveArgument
}

func (a *Assembler) width(op *registry.Opcode) int {
	if a.wordcode() {
		return 2
	}
	if op.Code >= haveArgument {
		return 3
	}
	return 1
}

// prefixes returns how many EXTENDED_ARG words arg needs.
func (a *Assembler) prefixes(arg int) int {
	bits := 8
	if !a.wordcode() {
		bits = 16
	}
	n := 0
	for arg >>= bits; arg > 0; arg >>= bits {
		n++
	}
	return n
}

func (a *Assembler) layout(ext []int) []int {
	offsets := make([]int, len(a.items)+1)
	pos := 0
	for i, it := range a.items {
		offsets[i] = pos
		w := a.width(it.op)
		pos += w*(ext[i]+1) + 2*it.op.Caches
	}
	offsets[len(a.items)] = pos
	return offsets
}

func (a *Assembler) operands(ext, offsets []int) ([]int, error) {
	units := a.bundle.Features.JumpUnits
	args := make([]int, len(a.items))
	for i, it := range a.items {
		if it.label == "" {
			args[i] = it.arg
			continue
		}
		idx, ok := a.labels[it.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", it.label)
		}
		target := offsets[idx]
		end := offsets[i+1]
		var v int
		switch it.op.Operand {
		case registry.OperandJumpAbs:
			v = target
		case registry.OperandJumpRel:
			v = target - end
		case registry.OperandJumpBack:
			v = end - target
		}
		if v < 0 {
			return nil, fmt.Errorf("%s to %q runs the wrong way (%d)", it.op.Name, it.label, v)
		}
		args[i] = v / units
	}
	return args, nil
}

func (a *Assembler) encode(ext, args []int) []byte {
	extOp := a.bundle.Opcodes.Code("EXTENDED_ARG")
	var out []byte
	for i, it := range a.items {
		arg := args[i]
		if a.wordcode() {
			for k := ext[i]; k > 0; k-- {
				out = append(out, extOp, byte(arg>>(8*k)))
			}
			out = append(out, it.op.Code, byte(arg))
		} else {
			for k := ext[i]; k > 0; k-- {
				v := arg >> (16 * k)
				out = append(out, extOp, byte(v), byte(v>>8))
			}
			out = append(out, it.op.Code)
			if a.hasArg(it.op) {
				out = append(out, byte(arg), byte(arg>>8))
			}
		}
		for c := 0; c < it.op.Caches; c++ {
			out = append(out, 0, 0)
		}
	}
	return out
}

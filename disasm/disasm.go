// Package disasm decodes the raw instruction bytes of a code unit into a
// flat instruction list with absolute jump targets and resolved operands.
package disasm

import (
	"errors"
	"fmt"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrDanglingJump  = errors.New("jump target is not an instruction")
)

// UnknownOp is the mnemonic given to bytes the revision does not define.
const UnknownOp = "<unknown>"

// haveArgument is the first 2.x opcode that carries an operand.
const haveArgument = 90

// Instruction is one decoded instruction. EXTENDED_ARG prefixes and inline
// cache words are folded in: Offset is the first prefix and Size covers the
// prefixes, the opcode and its caches.
type Instruction struct {
	Offset  int
	Op      string
	Opcode  *registry.Opcode // nil for unknown opcodes
	Arg     int
	Argval  any
	Argrepr string
	Target  int // absolute jump target, -1 when not a jump or dangling
	Line    int
	Size    int
}

// Next is the offset of the following instruction.
func (in *Instruction) Next() int {
	return in.Offset + in.Size
}

// IsJump reports whether the instruction carries a jump target.
func (in *Instruction) IsJump() bool {
	return in.Opcode != nil && in.Opcode.Operand.IsJump()
}

// Flow returns the control-flow class of the instruction. Unknown opcodes
// fall through.
func (in *Instruction) Flow() registry.Flow {
	if in.Opcode == nil {
		return registry.FlowNext
	}
	return in.Opcode.Flow
}

// Is reports whether the mnemonic is one of names.
func (in *Instruction) Is(names ...string) bool {
	for _, n := range names {
		if in.Op == n {
			return true
		}
	}
	return false
}

func (in *Instruction) String() string {
	if in.Argrepr != "" {
		return fmt.Sprintf("%d %s %d (%s)", in.Offset, in.Op, in.Arg, in.Argrepr)
	}
	if in.Opcode != nil && in.Opcode.Operand == registry.OperandNone {
		return fmt.Sprintf("%d %s", in.Offset, in.Op)
	}
	return fmt.Sprintf("%d %s %d", in.Offset, in.Op, in.Arg)
}

// Disassemble decodes unit.Code using the bundle's opcode table.
// Problems are reported as diagnostics; decoding always completes.
func Disassemble(unit *pyc.CodeUnit, bundle *registry.Bundle) ([]Instruction, []diag.Diagnostic) {
	d := &decoder{unit: unit, bundle: bundle, code: unit.Code}
	d.run()
	d.resolveTargets()
	return d.out, d.diags
}

type decoder struct {
	unit   *pyc.CodeUnit
	bundle *registry.Bundle
	code   []byte
	out    []Instruction
	diags  []diag.Diagnostic
}

func (d *decoder) run() {
	f := d.bundle.Features
	ext, start := 0, -1
	pos := 0
	for pos < len(d.code) {
		here := pos
		code := d.code[pos]
		op := d.bundle.Opcodes.Info(code)

		var arg int
		if f.WordCode {
			if pos+1 < len(d.code) {
				arg = int(d.code[pos+1])
			}
			pos += 2
		} else {
			pos++
			if code >= haveArgument {
				if pos+1 < len(d.code) {
					arg = int(d.code[pos]) | int(d.code[pos+1])<<8
				}
				pos += 2
			}
		}
		if pos > len(d.code) {
			pos = len(d.code)
		}

		if op != nil && op.Flow == registry.FlowCache {
			continue
		}
		if start < 0 {
			start = here
		}
		if f.WordCode {
			arg |= ext
		} else {
			arg += ext
		}
		if op != nil && op.Flow == registry.FlowExtend {
			ext = arg << f.ExtendedArgShift
			continue
		}
		ext = 0

		if op != nil {
			pos += 2 * op.Caches
			if pos > len(d.code) {
				pos = len(d.code)
			}
		}
		in := Instruction{Offset: start, Arg: arg, Target: -1, Size: pos - start, Opcode: op}
		start = -1
		if op == nil {
			in.Op = UnknownOp
			d.diags = append(d.diags, diag.New(diag.UnknownOpcode, ErrUnknownOpcode,
				in.Offset, in.Next(), "opcode %d is not defined in %s", code, d.bundle.Tag()))
		} else {
			in.Op = op.Name
			d.resolve(&in)
		}
		in.Line = d.unit.LineAt(here)
		d.out = append(d.out, in)
	}
}

// resolve fills Argval, Argrepr and Target for a known opcode.
func (d *decoder) resolve(in *Instruction) {
	u := d.unit
	units := d.bundle.Features.JumpUnits
	arg := in.Arg
	switch in.Opcode.Operand {
	case registry.OperandConst:
		if v, ok := u.Const(arg); ok {
			in.Argval = v
			in.Argrepr = pyc.Repr(v)
		}
	case registry.OperandName:
		if s, ok := u.NameAt(arg); ok {
			in.Argval, in.Argrepr = s, s
		}
	case registry.OperandGlobal:
		idx := arg
		if d.bundle.Features.InlineCaches {
			idx = arg >> 1
		}
		if s, ok := u.NameAt(idx); ok {
			in.Argval, in.Argrepr = s, s
			if d.bundle.Features.InlineCaches && arg&1 != 0 {
				in.Argrepr = "NULL + " + s
			}
		}
	case registry.OperandAttr:
		idx := arg
		method := false
		if d.bundle.Revision.AtLeast(3, 12) {
			idx, method = arg>>1, arg&1 != 0
		}
		if s, ok := u.NameAt(idx); ok {
			in.Argval, in.Argrepr = s, s
			if method {
				in.Argrepr = "NULL|self + " + s
			}
		}
	case registry.OperandSuperAttr:
		if s, ok := u.NameAt(arg >> 2); ok {
			in.Argval, in.Argrepr = s, s
		}
	case registry.OperandLocal:
		if s, ok := u.Local(arg); ok {
			in.Argval, in.Argrepr = s, s
		}
	case registry.OperandLocalPair:
		x, okx := u.Local(arg >> 4)
		y, oky := u.Local(arg & 15)
		if okx && oky {
			in.Argval = [2]string{x, y}
			in.Argrepr = x + ", " + y
		}
	case registry.OperandFree:
		if s, ok := u.Free(arg); ok {
			in.Argval, in.Argrepr = s, s
		}
	case registry.OperandCompare:
		s := d.bundle.CompareOp(arg)
		in.Argval, in.Argrepr = s, s
	case registry.OperandBinaryOp:
		s := d.bundle.BinaryOp(arg)
		in.Argval, in.Argrepr = s, s
	case registry.OperandJumpAbs:
		in.Target = arg * units
	case registry.OperandJumpRel:
		in.Target = in.Next() + arg*units
	case registry.OperandJumpBack:
		in.Target = in.Next() - arg*units
	case registry.OperandNone:
		if d.bundle.Features.WordCode {
			in.Arg = 0
		}
	}
	if in.IsJump() {
		in.Argval = in.Target
		in.Argrepr = fmt.Sprintf("to %d", in.Target)
	}
}

func (d *decoder) resolveTargets() {
	starts := make(map[int]bool, len(d.out))
	for _, in := range d.out {
		starts[in.Offset] = true
	}
	for i := range d.out {
		in := &d.out[i]
		if !in.IsJump() || starts[in.Target] {
			continue
		}
		d.diags = append(d.diags, diag.New(diag.DanglingJump, ErrDanglingJump,
			in.Offset, in.Next(), "%s targets %d, which is not an instruction", in.Op, in.Target))
		in.Target = -1
		in.Argval = -1
		in.Argrepr = "dangling"
	}
}

// Index maps instruction offsets to positions in a decoded list.
type Index map[int]int

// NewIndex builds the offset index for instrs.
func NewIndex(instrs []Instruction) Index {
	idx := make(Index, len(instrs))
	for i, in := range instrs {
		idx[in.Offset] = i
	}
	return idx
}

// Of returns the position of the instruction at offset, or -1.
func (x Index) Of(offset int) int {
	if i, ok := x[offset]; ok {
		return i
	}
	return -1
}

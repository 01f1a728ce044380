package disasm

import (
	"fmt"

	"github.com/chazu/pyrecon/registry"
)

// Normalize rewrites revision-specific instruction forms into the shapes
// later stages recognise. On 3.0 the non-popping conditional jumps and
// the POP_TOPs around them become the popping and or-pop forms of 3.1.
// On 3.13 superinstructions are split in two, TO_BOOL is merged into the
// instruction after it and the iterator pop after END_FOR is merged into
// END_FOR. Listings show the undecoded forms; only reconstruction calls
// this.
func Normalize(instrs []Instruction, bundle *registry.Bundle) []Instruction {
	switch {
	case bundle.Opcodes.Has("JUMP_IF_FALSE"):
		return popJumps(instrs)
	case bundle.Opcodes.Has("LOAD_FAST_LOAD_FAST"):
		return unfold(instrs, bundle)
	}
	return instrs
}

// merger drops instructions by growing a neighbour over their bytes.
// An instruction merged forward hands its offset to the next one kept, so
// jumps to either offset stay valid after retarget.
type merger struct {
	out      []Instruction
	moved    map[int]int
	pend     int
	pendSize int
}

func newMerger(n int) *merger {
	return &merger{out: make([]Instruction, 0, n), moved: map[int]int{}, pend: -1}
}

// forward merges in into the next instruction kept.
func (m *merger) forward(in Instruction) {
	if m.pend < 0 {
		m.pend = in.Offset
	}
	m.pendSize += in.Size
}

// back merges in into the last instruction kept.
func (m *merger) back(in Instruction) bool {
	if len(m.out) == 0 || m.pend >= 0 {
		return false
	}
	m.out[len(m.out)-1].Size += in.Size
	return true
}

func (m *merger) keep(in Instruction) {
	if m.pend >= 0 {
		m.moved[in.Offset] = m.pend
		in.Offset = m.pend
		in.Size += m.pendSize
		m.pend, m.pendSize = -1, 0
	}
	m.out = append(m.out, in)
}

func (m *merger) last() *Instruction {
	if len(m.out) == 0 || m.pend >= 0 {
		return nil
	}
	return &m.out[len(m.out)-1]
}

func (m *merger) finish() []Instruction {
	for i := range m.out {
		in := &m.out[i]
		if !in.IsJump() {
			continue
		}
		if t, ok := m.moved[in.Target]; ok {
			in.Target = t
			in.Argval = t
			in.Argrepr = fmt.Sprintf("to %d", t)
		}
	}
	return m.out
}

func popJumps(instrs []Instruction) []Instruction {
	idx := NewIndex(instrs)
	targets := make(map[int]bool)
	for _, in := range instrs {
		if in.IsJump() {
			targets[in.Target] = true
		}
	}
	const (
		keep = iota
		intoJump
		intoNext
	)
	fate := make([]int, len(instrs))
	ops := make([]Instruction, len(instrs))
	copy(ops, instrs)
	for i := range ops {
		j := &ops[i]
		if !j.Is("JUMP_IF_FALSE", "JUMP_IF_TRUE") || i+1 >= len(ops) {
			continue
		}
		if !ops[i+1].Is("POP_TOP") || targets[ops[i+1].Offset] {
			continue
		}
		fate[i+1] = intoJump
		cond := j.Op[len("JUMP_IF_"):]
		t := idx.Of(j.Target)
		popping := t > 0 && t+1 < len(ops) && ops[t].Is("POP_TOP") && ops[t-1].Flow().Terminal()
		if popping {
			fate[t] = intoNext
			j.Op = "POP_JUMP_IF_" + cond
			j.Opcode = &registry.Opcode{Code: j.Opcode.Code, Name: j.Op, Operand: registry.OperandJumpAbs, Flow: registry.FlowBranch}
		} else {
			j.Op = "JUMP_IF_" + cond + "_OR_POP"
			j.Opcode = &registry.Opcode{Code: j.Opcode.Code, Name: j.Op, Operand: registry.OperandJumpAbs, Flow: registry.FlowBranchKeep}
		}
	}
	m := newMerger(len(ops))
	for i, in := range ops {
		switch fate[i] {
		case intoJump:
			if m.back(in) {
				continue
			}
		case intoNext:
			m.forward(in)
			continue
		}
		m.keep(in)
	}
	return m.finish()
}

func unfold(instrs []Instruction, bundle *registry.Bundle) []Instruction {
	load, _ := bundle.Opcodes.Lookup("LOAD_FAST")
	store, _ := bundle.Opcodes.Lookup("STORE_FAST")
	m := newMerger(len(instrs) + 8)
	for _, in := range instrs {
		switch {
		case in.Is("TO_BOOL"):
			m.forward(in)
			continue
		case in.Is("POP_TOP"):
			if last := m.last(); last != nil && last.Is("END_FOR") && m.back(in) {
				continue
			}
		}
		names, ok := in.Argval.([2]string)
		if !ok || !in.Is("LOAD_FAST_LOAD_FAST", "STORE_FAST_LOAD_FAST", "STORE_FAST_STORE_FAST") {
			m.keep(in)
			continue
		}
		first, second := store, store
		switch in.Op {
		case "LOAD_FAST_LOAD_FAST":
			first, second = load, load
		case "STORE_FAST_LOAD_FAST":
			second = load
		}
		half := func(op *registry.Opcode, arg int, name string) Instruction {
			return Instruction{Op: op.Name, Opcode: op, Arg: arg, Argval: name, Argrepr: name, Target: -1, Line: in.Line}
		}
		a := half(first, in.Arg>>4, names[0])
		b := half(second, in.Arg&15, names[1])
		a.Offset, a.Size = in.Offset, in.Size-1
		m.keep(a)
		last := m.last()
		b.Offset, b.Size = last.Next(), 1
		m.keep(b)
	}
	return m.finish()
}

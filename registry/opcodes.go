package registry

import "fmt"

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind says how an instruction's operand is interpreted.
type OperandKind uint8

const (
	OperandNone      OperandKind = iota // no operand (ignored in wordcode)
	OperandConst                        // constant pool index
	OperandName                         // names table index
	OperandGlobal                       // names index; 3.11+ low bit requests a NULL push
	OperandAttr                         // names index; 3.12 low bit marks a method load
	OperandSuperAttr                    // names index shifted by two, low bits are flags
	OperandLocal                        // varnames / localsplus index
	OperandLocalPair                    // two localsplus indexes, high nibble first
	OperandFree                         // cell+free index, localsplus index on 3.11+
	OperandJumpAbs                      // absolute jump target
	OperandJumpRel                      // forward relative jump
	OperandJumpBack                     // backward relative jump
	OperandCompare                      // comparison operator index
	OperandBinaryOp                     // BINARY_OP operator index
	OperandCount                        // item or argument count
	OperandFlags                        // bit flags
	OperandRaw                          // raw integer
)

var operandNames = [...]string{
	OperandNone:      "none",
	OperandConst:     "const",
	OperandName:      "name",
	OperandGlobal:    "global",
	OperandAttr:      "attr",
	OperandSuperAttr: "super_attr",
	OperandLocal:     "local",
	OperandLocalPair: "local_pair",
	OperandFree:      "free",
	OperandJumpAbs:   "jabs",
	OperandJumpRel:   "jrel",
	OperandJumpBack:  "jback",
	OperandCompare:   "compare",
	OperandBinaryOp:  "binop",
	OperandCount:     "count",
	OperandFlags:     "flags",
	OperandRaw:       "raw",
}

func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return fmt.Sprintf("operand(%d)", uint8(k))
}

// IsJump reports whether the operand is a jump target.
func (k OperandKind) IsJump() bool {
	return k == OperandJumpAbs || k == OperandJumpRel || k == OperandJumpBack
}

// Flow describes what an instruction does to control flow.
type Flow uint8

const (
	FlowNext       Flow = iota // falls through
	FlowJump                   // unconditional transfer
	FlowBranch                 // pops a value and may transfer
	FlowBranchKeep             // transfers keeping the value, pops it on fall-through
	FlowForIter                // transfers when the iterator is exhausted
	FlowSetup                  // pushes an exception or loop block; target is its handler or exit
	FlowReturn                 // leaves the unit
	FlowRaise                  // raises; no fall-through
	FlowBreak                  // pre-3.8 BREAK_LOOP; target comes from the enclosing SETUP_LOOP
	FlowExtend                 // EXTENDED_ARG
	FlowCache                  // inline cache slot
)

// Terminal reports whether the instruction never falls through.
func (f Flow) Terminal() bool {
	return f == FlowJump || f == FlowReturn || f == FlowRaise || f == FlowBreak
}

// Opcode describes one opcode of one revision.
type Opcode struct {
	Code    byte
	Name    string
	Operand OperandKind
	Flow    Flow
	Caches  int // inline cache words following the instruction (3.11+)
}

func (o *Opcode) String() string {
	return o.Name
}

// OpcodeTable maps opcode bytes and mnemonics for one revision.
type OpcodeTable struct {
	byCode [256]*Opcode
	byName map[string]*Opcode
}

func newOpcodeTable(defs []*Opcode) *OpcodeTable {
	t := &OpcodeTable{byName: make(map[string]*Opcode, len(defs))}
	for _, d := range defs {
		if prev := t.byCode[d.Code]; prev != nil {
			delete(t.byName, prev.Name)
		}
		t.byCode[d.Code] = d
		t.byName[d.Name] = d
	}
	return t
}

// Info returns the opcode for a byte value, or nil when the revision has none.
func (t *OpcodeTable) Info(code byte) *Opcode {
	return t.byCode[code]
}

// Lookup returns the opcode with the given mnemonic.
func (t *OpcodeTable) Lookup(name string) (*Opcode, bool) {
	op, ok := t.byName[name]
	return op, ok
}

// Has reports whether the revision defines the mnemonic.
func (t *OpcodeTable) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Code returns the byte value for a mnemonic. It panics on unknown names and is
// meant for assembling fixtures.
func (t *OpcodeTable) Code(name string) byte {
	op, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("registry: no opcode %q", name))
	}
	return op.Code
}

// Len returns the number of defined opcodes.
func (t *OpcodeTable) Len() int {
	return len(t.byName)
}

// Each calls fn for every opcode in byte order.
func (t *OpcodeTable) Each(fn func(*Opcode)) {
	for _, op := range t.byCode {
		if op != nil {
			fn(op)
		}
	}
}

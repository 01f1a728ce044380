package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnsupportedRevision = errors.New("unsupported revision")
)

// Features records the encoding and syntax traits of a revision that the
// later stages branch on.
type Features struct {
	WordCode          bool // fixed two-byte instructions (3.6+)
	ExtendedArgShift  uint // 16 before wordcode, 8 after
	JumpUnits         int  // bytes per jump operand unit: 1, or 2 from 3.10
	RelativeJumps     bool // every jump is relative (3.11+)
	ExceptionTable    bool
	InlineCaches      bool
	PatternMatching   bool
	GroupedExceptions bool
	NamedExpr         bool
	PositionalOnly    bool
	FormatValue       bool
	PrintStatement    bool
	QualnameOnStack   bool
	LocalsPlus        bool
	CompareShift      uint // COMPARE_OP operand shift (4 on 3.12, 5 from 3.13)
	InlineComps       bool // comprehensions are compiled inline (3.12)
	SetupBlocks       bool // SETUP_* opcodes bracket protected regions
	LoopBlocks        bool // SETUP_LOOP brackets loops (before 3.8)
}

func featuresFor(r Revision) Features {
	f := Features{
		WordCode:          r.AtLeast(3, 6),
		ExtendedArgShift:  8,
		JumpUnits:         1,
		RelativeJumps:     r.AtLeast(3, 11),
		ExceptionTable:    r.AtLeast(3, 11),
		InlineCaches:      r.AtLeast(3, 11),
		PatternMatching:   r.AtLeast(3, 10),
		GroupedExceptions: r.AtLeast(3, 11),
		NamedExpr:         r.AtLeast(3, 8),
		PositionalOnly:    r.AtLeast(3, 8),
		FormatValue:       r.AtLeast(3, 6),
		PrintStatement:    r.Major == 2,
		QualnameOnStack:   r.AtLeast(3, 3) && r.Before(3, 11),
		LocalsPlus:        r.AtLeast(3, 11),
		InlineComps:       r.AtLeast(3, 12),
		SetupBlocks:       r.Before(3, 11),
		LoopBlocks:        r.Before(3, 8),
	}
	if !f.WordCode {
		f.ExtendedArgShift = 16
	}
	if r.AtLeast(3, 10) {
		f.JumpUnits = 2
	}
	switch {
	case r.AtLeast(3, 13):
		f.CompareShift = 5
	case r.AtLeast(3, 12):
		f.CompareShift = 4
	}
	return f
}

// Bundle is everything later stages need to know about one revision. A bundle
// is built once and never mutated, so it may be shared between goroutines.
type Bundle struct {
	Revision   Revision
	Opcodes    *OpcodeTable
	Features   Features
	Rules      *RuleSet
	CompareOps []string
	BinaryOps  []string
}

var compareOps = []string{"<", "<=", "==", "!=", ">", ">=", "in", "not in", "is", "is not", "exception match", "BAD"}

var binaryOps = []string{
	"+", "&", "//", "<<", "@", "*", "%", "|", "**", ">>", "-", "/", "^",
	"+=", "&=", "//=", "<<=", "@=", "*=", "%=", "|=", "**=", ">>=", "-=", "/=", "^=",
}

var tableBuilders = map[string]func() []*Opcode{
	"2.7":  table27,
	"3.0":  table30,
	"3.1":  table31,
	"3.2":  table32,
	"3.3":  table33,
	"3.4":  table34,
	"3.5":  table35,
	"3.6":  table36,
	"3.7":  table37,
	"3.8":  table38,
	"3.9":  table39,
	"3.10": table310,
	"3.11": table311,
	"3.12": table312,
	"3.13": table313,
}

type lazyBundle struct {
	once   sync.Once
	bundle *Bundle
}

var bundles = func() map[string]*lazyBundle {
	m := make(map[string]*lazyBundle, len(revisions))
	for _, r := range revisions {
		m[r.Tag] = &lazyBundle{}
	}
	return m
}()

// Lookup returns the bundle for a revision tag such as "3.8".
func Lookup(tag string) (*Bundle, error) {
	rev, ok := revisionByTag(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRevision, tag)
	}
	lb := bundles[tag]
	lb.once.Do(func() {
		lb.bundle = build(rev)
	})
	return lb.bundle, nil
}

// MustLookup is Lookup for tags known to be valid. It panics otherwise.
func MustLookup(tag string) *Bundle {
	b, err := Lookup(tag)
	if err != nil {
		panic(err)
	}
	return b
}

// Detect maps an artifact magic number to a revision tag.
func Detect(magic uint16) (string, error) {
	rev, ok := revisionByMagic(magic)
	if !ok {
		return "", fmt.Errorf("%w: magic %d", ErrUnsupportedRevision, magic)
	}
	return rev.Tag, nil
}

func build(rev Revision) *Bundle {
	ops := newOpcodeTable(tableBuilders[rev.Tag]())
	b := &Bundle{
		Revision: rev,
		Opcodes:  ops,
		Features: featuresFor(rev),
	}
	b.CompareOps = compareOps
	if rev.AtLeast(3, 9) {
		b.CompareOps = compareOps[:6]
	}
	if rev.AtLeast(3, 11) {
		b.BinaryOps = binaryOps
	}
	b.Rules = newRuleSet(rev, ops, grammarRules())
	return b
}

// CompareOp names the operator encoded by a COMPARE_OP operand.
func (b *Bundle) CompareOp(arg int) string {
	arg >>= b.Features.CompareShift
	if arg >= 0 && arg < len(b.CompareOps) {
		return b.CompareOps[arg]
	}
	return fmt.Sprintf("<cmp %d>", arg)
}

// BinaryOp names the operator encoded by a BINARY_OP operand.
func (b *Bundle) BinaryOp(arg int) string {
	if arg >= 0 && arg < len(b.BinaryOps) {
		return b.BinaryOps[arg]
	}
	return fmt.Sprintf("<binop %d>", arg)
}

// Tag is shorthand for b.Revision.Tag.
func (b *Bundle) Tag() string {
	return b.Revision.Tag
}

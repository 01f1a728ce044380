package pyc

import "strings"

// Code flags.
const (
	FlagOptimized      = 0x0001
	FlagNewLocals      = 0x0002
	FlagVarArgs        = 0x0004
	FlagVarKeywords    = 0x0008
	FlagNested         = 0x0010
	FlagGenerator      = 0x0020
	FlagNoFree         = 0x0040
	FlagCoroutine      = 0x0080
	FlagIterableCoro   = 0x0100
	FlagAsyncGenerator = 0x0200
)

// Locals-plus kind bits (3.11+).
const (
	KindArg   = 0x02
	KindLocal = 0x20
	KindCell  = 0x40
	KindFree  = 0x80
)

// LineEntry maps the byte range [Start, End) to a source line. Line is -1
// when the range has no line.
type LineEntry struct {
	Start int
	End   int
	Line  int
}

// ExceptionEntry is one row of a 3.11+ exception table. Offsets are in
// bytes.
type ExceptionEntry struct {
	Start  int
	End    int
	Target int
	Depth  int
	Lasti  bool
}

// CodeUnit is one compiled routine. Nested routines appear as *CodeUnit
// values in Consts; a unit owns its children and never points back.
type CodeUnit struct {
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	NLocals         int
	StackSize       int
	Flags           uint32

	Code     []byte
	Consts   []Object
	Names    []string
	VarNames []string
	CellVars []string
	FreeVars []string

	// Raw 3.11+ locals layout; VarNames, CellVars and FreeVars are derived from it.
	LocalsPlusNames []string
	LocalsPlusKinds []byte

	Filename  string
	Name      string
	QualName  string
	FirstLine int

	LineTable      []byte
	ExceptionTable []byte
	Lines          []LineEntry
	Exceptions     []ExceptionEntry

	Revision string
}

func (c *CodeUnit) IsGenerator() bool      { return c.Flags&FlagGenerator != 0 }
func (c *CodeUnit) IsCoroutine() bool      { return c.Flags&FlagCoroutine != 0 }
func (c *CodeUnit) IsAsyncGenerator() bool { return c.Flags&FlagAsyncGenerator != 0 }
func (c *CodeUnit) HasVarArgs() bool       { return c.Flags&FlagVarArgs != 0 }
func (c *CodeUnit) HasVarKeywords() bool   { return c.Flags&FlagVarKeywords != 0 }

// DisplayName is the qualified name when known, else the plain name.
func (c *CodeUnit) DisplayName() string {
	if c.QualName != "" {
		return c.QualName
	}
	return c.Name
}

// IsComprehension reports whether the unit is the body of a comprehension
// or generator expression.
func (c *CodeUnit) IsComprehension() bool {
	switch c.Name {
	case "<listcomp>", "<setcomp>", "<dictcomp>", "<genexpr>":
		return true
	}
	return false
}

// IsLambda reports whether the unit is a lambda body.
func (c *CodeUnit) IsLambda() bool {
	return c.Name == "<lambda>"
}

// IsModule reports whether the unit is a module body.
func (c *CodeUnit) IsModule() bool {
	return c.Name == "<module>"
}

// Children returns the nested code units in constant-pool order.
func (c *CodeUnit) Children() []*CodeUnit {
	var out []*CodeUnit
	for _, k := range c.Consts {
		if child, ok := k.(*CodeUnit); ok {
			out = append(out, child)
		}
	}
	return out
}

// Walk visits c and every nested unit depth first, parents before children.
func (c *CodeUnit) Walk(fn func(*CodeUnit)) {
	fn(c)
	for _, child := range c.Children() {
		child.Walk(fn)
	}
}

// Local returns the name of local slot i.
func (c *CodeUnit) Local(i int) (string, bool) {
	if len(c.LocalsPlusNames) > 0 {
		return index(c.LocalsPlusNames, i)
	}
	return index(c.VarNames, i)
}

// Free returns the name referenced by a cell/free operand. Before 3.11 the
// operand indexes cellvars followed by freevars; from 3.11 it indexes the
// locals-plus array.
func (c *CodeUnit) Free(i int) (string, bool) {
	if len(c.LocalsPlusNames) > 0 {
		return index(c.LocalsPlusNames, i)
	}
	if i < len(c.CellVars) {
		return c.CellVars[i], true
	}
	return index(c.FreeVars, i-len(c.CellVars))
}

// NameAt returns names[i].
func (c *CodeUnit) NameAt(i int) (string, bool) {
	return index(c.Names, i)
}

// Const returns consts[i].
func (c *CodeUnit) Const(i int) (Object, bool) {
	if i < 0 || i >= len(c.Consts) {
		return nil, false
	}
	return c.Consts[i], true
}

// IsFreeVar reports whether name is a free variable of the unit.
func (c *CodeUnit) IsFreeVar(name string) bool {
	for _, n := range c.FreeVars {
		if n == name {
			return true
		}
	}
	return false
}

// LineAt returns the source line for a byte offset, or -1.
func (c *CodeUnit) LineAt(offset int) int {
	for _, e := range c.Lines {
		if offset >= e.Start && offset < e.End {
			return e.Line
		}
	}
	return -1
}

// ArgNames returns the parameter names in declaration order: positional
// (including positional-only), keyword-only, then *args and **kwargs.
func (c *CodeUnit) ArgNames() []string {
	n := c.ArgCount + c.KwOnlyArgCount
	if c.HasVarArgs() {
		n++
	}
	if c.HasVarKeywords() {
		n++
	}
	names := c.VarNames
	if len(c.LocalsPlusNames) > 0 {
		names = c.LocalsPlusNames
	}
	if n > len(names) {
		n = len(names)
	}
	return names[:n]
}

// String identifies the unit in logs.
func (c *CodeUnit) String() string {
	var b strings.Builder
	b.WriteString(c.DisplayName())
	if c.Filename != "" {
		b.WriteString(" (")
		b.WriteString(c.Filename)
		b.WriteString(")")
	}
	return b.String()
}

func index(s []string, i int) (string, bool) {
	if i < 0 || i >= len(s) {
		return "", false
	}
	return s[i], true
}

// splitLocalsPlus derives the classic name tables from the 3.11+ layout.
func (c *CodeUnit) splitLocalsPlus() {
	c.VarNames, c.CellVars, c.FreeVars = nil, nil, nil
	for i, name := range c.LocalsPlusNames {
		var kind byte
		if i < len(c.LocalsPlusKinds) {
			kind = c.LocalsPlusKinds[i]
		}
		switch {
		case kind&KindFree != 0:
			c.FreeVars = append(c.FreeVars, name)
		case kind&KindCell != 0:
			c.CellVars = append(c.CellVars, name)
			if kind&KindLocal != 0 {
				c.VarNames = append(c.VarNames, name)
			}
		default:
			c.VarNames = append(c.VarNames, name)
		}
	}
	c.NLocals = len(c.VarNames)
}

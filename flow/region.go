package flow

import (
	"fmt"
	"strings"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// Kind classifies a region.
type Kind uint8

const (
	Linear Kind = iota
	Conditional
	Loop
	TryExcept
	TryFinally
	ContextManaged
	MatchDispatch
	Placeholder
)

var kindNames = [...]string{
	Linear:         "Linear",
	Conditional:    "Conditional",
	Loop:           "Loop",
	TryExcept:      "TryExcept",
	TryFinally:     "TryFinally",
	ContextManaged: "ContextManaged",
	MatchDispatch:  "MatchDispatch",
	Placeholder:    "Placeholder",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// LoopKind distinguishes for-loops from while-loops.
type LoopKind uint8

const (
	For LoopKind = iota
	While
)

// JumpRole says what an unconditional jump left in straight-line code means.
type JumpRole uint8

const (
	NoRole JumpRole = iota
	Break
	Continue
	Structural // consumed by the enclosing region
)

func (r JumpRole) String() string {
	switch r {
	case Break:
		return "break"
	case Continue:
		return "continue"
	case Structural:
		return "structural"
	}
	return "none"
}

// KeepOp is the operator of a value-position boolean.
type KeepOp uint8

const (
	NoKeep KeepOp = iota
	KeepAnd
	KeepOr
)

// Region is one node of the recovered statement structure. Which fields are
// set depends on Kind.
type Region struct {
	Kind       Kind
	Start, End int // byte offsets

	Instrs []disasm.Instruction // Linear
	Diag   diag.Diagnostic      // Placeholder

	// Conditional: Body is the then-arm and Else the else-arm. A value
	// boolean (Keep) has only Body, the right operand, unless Cond is set:
	// then it is `Cond and Body or Else` for KeepOr and
	// `(Cond or Body) and Else` for KeepAnd. An Escape conditional
	// has neither and stands for `if cond: break` or `if cond: continue`.
	// Loop: Cond is the while test, nil for `while True` and for-loops.
	// Guard is the entry test of a loop compiled with its test at the
	// bottom; its leaves repeat Cond and only consume carried values.
	// Chain marks a value boolean that continues a comparison chain.
	Cond   *Cond
	Guard  *Cond
	Body   []*Region
	Else   []*Region
	Keep   KeepOp
	Chain  bool
	Escape JumpRole

	Loop     LoopKind
	Async    bool
	Handlers []*Handler // TryExcept
	Grouped  bool       // except* clauses
	Finally  []*Region  // TryFinally
	Cases    []*Case    // MatchDispatch
}

// Handler is one except clause. Type holds the instructions that compute
// the exception type; it is empty for a bare except.
type Handler struct {
	Type  []disasm.Instruction
	Name  string
	Body  []*Region
	Start int
}

// PatternKind classifies a node of a case pattern.
type PatternKind uint8

const (
	PatternValue PatternKind = iota
	PatternSingleton
	PatternCapture
	PatternWildcard
	PatternClass
	PatternSequence
	PatternMapping
	PatternOr
	PatternAs
	PatternStar
)

var patternNames = [...]string{"value", "singleton", "capture", "wildcard", "class", "sequence", "mapping", "or", "as", "star"}

func (k PatternKind) String() string {
	if int(k) < len(patternNames) {
		return patternNames[k]
	}
	return fmt.Sprintf("PatternKind(%d)", uint8(k))
}

// Pattern is one node of a recovered case pattern.
type Pattern struct {
	Kind   PatternKind
	Instrs []disasm.Instruction // the value, or the class tested against
	Value  any                  // singleton constant
	Name   string               // capture, as and star binding
	// Sub holds sequence elements, alternatives, the as-pattern's inner
	// pattern, mapping values, or class arguments: Args positional ones
	// followed by one per KwdAttrs entry.
	Sub      []*Pattern
	Args     int
	KwdAttrs []string
	Keys     []MapKey
	Rest     *Pattern // the **rest capture of a mapping
}

// MapKey is one mapping pattern key. Instrs is nil for a folded constant.
type MapKey struct {
	Instrs []disasm.Instruction
	Value  any
}

func (p *Pattern) String() string {
	s := p.Kind.String()
	if p.Name != "" {
		s += " " + p.Name
	}
	if len(p.Sub) > 0 {
		parts := make([]string, len(p.Sub))
		for i, sub := range p.Sub {
			parts[i] = sub.String()
		}
		s += "(" + strings.Join(parts, ", ") + ")"
	}
	return s
}

// Case is one arm of a match statement.
type Case struct {
	Pattern *Pattern
	Guard   *Cond
	Body    []*Region
	Start   int
}

// Tree is the result of recovery for one code unit.
type Tree struct {
	Graph *Graph
	Body  []*Region
	Roles map[int]JumpRole // jump offset -> role
}

// Role returns the recorded role of the jump at offset.
func (t *Tree) Role(offset int) JumpRole {
	return t.Roles[offset]
}

// Diagnostics collects the diagnostics of every placeholder region.
func (t *Tree) Diagnostics() []diag.Diagnostic {
	var out []diag.Diagnostic
	Walk(t.Body, func(r *Region) {
		if r.Kind == Placeholder {
			out = append(out, r.Diag)
		}
	})
	return out
}

// Walk visits regions depth first.
func Walk(body []*Region, fn func(*Region)) {
	for _, r := range body {
		fn(r)
		Walk(r.Body, fn)
		Walk(r.Else, fn)
		Walk(r.Finally, fn)
		for _, h := range r.Handlers {
			Walk(h.Body, fn)
		}
		for _, c := range r.Cases {
			Walk(c.Body, fn)
		}
	}
}

// Dump renders the region tree for debugging and tests.
func Dump(body []*Region) string {
	var b strings.Builder
	dump(&b, body, 0)
	return b.String()
}

func dump(b *strings.Builder, body []*Region, depth int) {
	pad := strings.Repeat("  ", depth)
	for _, r := range body {
		fmt.Fprintf(b, "%s%s [%d, %d)", pad, r.Kind, r.Start, r.End)
		switch {
		case r.Kind == Placeholder:
			fmt.Fprintf(b, " %s", r.Diag.Kind)
		case r.Keep != NoKeep:
			b.WriteString(" keep")
		case r.Escape != NoRole:
			fmt.Fprintf(b, " %s", r.Escape)
		case r.Kind == Loop && r.Loop == For:
			b.WriteString(" for")
		case r.Kind == Loop:
			b.WriteString(" while")
		}
		if r.Cond != nil {
			fmt.Fprintf(b, " if %s", r.Cond)
		}
		b.WriteByte('\n')
		dump(b, r.Body, depth+1)
		if len(r.Else) > 0 {
			fmt.Fprintf(b, "%selse\n", pad)
			dump(b, r.Else, depth+1)
		}
		for _, h := range r.Handlers {
			fmt.Fprintf(b, "%sexcept %d %s\n", pad, len(h.Type), h.Name)
			dump(b, h.Body, depth+1)
		}
		for _, c := range r.Cases {
			fmt.Fprintf(b, "%scase %s\n", pad, c.Pattern)
			dump(b, c.Body, depth+1)
		}
		if len(r.Finally) > 0 {
			fmt.Fprintf(b, "%sfinally\n", pad)
			dump(b, r.Finally, depth+1)
		}
	}
}

// Recover builds the block graph and the region tree of one code unit.
// Recovery never fails: shapes it cannot classify become Placeholder
// regions carrying a diagnostic.
func Recover(instrs []disasm.Instruction, unit *pyc.CodeUnit, bundle *registry.Bundle) *Tree {
	g := BuildGraph(instrs, unit, bundle)
	b := &builder{
		g:        g,
		in:       instrs,
		bundle:   bundle,
		f:        bundle.Features,
		consumed: make([]bool, len(instrs)),
		roles:    make(map[int]JumpRole),
		active:   make(map[int]bool),
		headers:  make(map[int]bool),
		jumpsTo:  make(map[int][]int),
		exits:    make(map[int]bool),
	}
	b.prepare()
	body := b.structure(0, len(instrs), b.end())
	return &Tree{Graph: g, Body: body, Roles: b.roles}
}

type loopCtx struct {
	conts   map[int]bool // offsets a continue jumps to
	contEnd int          // offset that stands for "end of body"
	brk     int          // break target offset
	isFor   bool
	blocks  bool // pre-3.8 SETUP_LOOP bracket
}

type builder struct {
	g        *Graph
	in       []disasm.Instruction
	bundle   *registry.Bundle
	f        registry.Features
	consumed []bool
	roles    map[int]JumpRole
	loops    []*loopCtx
	active   map[int]bool // try sites being structured, by handler offset
	headers  map[int]bool // loop headers whose body is being structured
	jumpsTo  map[int][]int
	irred    map[int]int          // first index -> end index
	tsites   map[int][]*tableSite // by first protected index, outermost first
	handlers map[int]*tableSite   // by handler index
	exits    map[int]bool         // offsets of finally copies that leave a try
}

func (b *builder) prepare() {
	for i := range b.in {
		in := &b.in[i]
		if in.IsJump() && in.Target >= 0 {
			b.jumpsTo[in.Target] = append(b.jumpsTo[in.Target], i)
		}
	}
	b.irred = make(map[int]int)
	for _, s := range b.g.Irreducible() {
		b.irred[s[0]] = s[1]
	}
	for i := range b.in {
		// SEND; YIELD_VALUE; RESUME; JUMP_BACKWARD_NO_INTERRUPT is one await
		// or yield from; the SEND stays for the reducer.
		if b.is(i, "SEND") && b.is(i+1, "YIELD_VALUE") && b.is(i+2, "RESUME") &&
			b.is(i+3, "JUMP_BACKWARD_NO_INTERRUPT") && b.in[i+3].Target == b.in[i].Offset {
			b.consume(i+1, i+4)
		}
	}
	if b.f.ExceptionTable {
		b.tableSites()
		b.consumeCleanups()
	}
}

// off returns the offset of instruction i, or the end of code for i == len.
func (b *builder) off(i int) int {
	if i < len(b.in) {
		return b.in[i].Offset
	}
	return b.end()
}

func (b *builder) end() int {
	if len(b.in) == 0 {
		return 0
	}
	return b.in[len(b.in)-1].Next()
}

// at returns the instruction index at offset, len(in) for the end of code
// and -1 for anything else.
func (b *builder) at(offset int) int {
	if offset == b.end() {
		return len(b.in)
	}
	return b.g.Index.Of(offset)
}

func (b *builder) loop() *loopCtx {
	if len(b.loops) == 0 {
		return nil
	}
	return b.loops[len(b.loops)-1]
}

// target returns the jump target of instruction i with continue jumps
// mapped to the end of the innermost loop body.
func (b *builder) target(i int) int {
	t := b.in[i].Target
	if l := b.loop(); l != nil && l.conts[t] {
		return l.contEnd
	}
	return t
}

func (b *builder) is(i int, names ...string) bool {
	return i >= 0 && i < len(b.in) && b.in[i].Is(names...)
}

// loadsNone reports whether instruction i is LOAD_CONST None.
func (b *builder) loadsNone(i int) bool {
	if !b.is(i, "LOAD_CONST") {
		return false
	}
	_, ok := b.in[i].Argval.(pyc.NoneType)
	return ok
}

func (b *builder) consume(from, to int) {
	for i := from; i < to && i < len(b.in); i++ {
		if i >= 0 {
			b.consumed[i] = true
		}
	}
}

func (b *builder) linear(instrs []disasm.Instruction) *Region {
	return &Region{
		Kind:   Linear,
		Start:  instrs[0].Offset,
		End:    instrs[len(instrs)-1].Next(),
		Instrs: instrs,
	}
}

func (b *builder) placeholder(kind diag.Kind, cause error, lo, hi int, format string, args ...any) *Region {
	start, end := b.off(lo), b.off(hi)
	return &Region{
		Kind:  Placeholder,
		Start: start,
		End:   end,
		Diag:  diag.New(kind, cause, start, end, format, args...),
	}
}

// structure recovers the regions of instructions [lo, hi). exit is the
// offset control reaches after hi; jumps to it end the enclosing arm.
func (b *builder) structure(lo, hi, exit int) []*Region {
	var out []*Region
	var run []disasm.Instruction
	flush := func() {
		if len(run) > 0 {
			out = append(out, b.linear(run))
			run = nil
		}
	}
	emit := func(rs []*Region) {
		flush()
		out = append(out, rs...)
	}
	for i := lo; i < hi; {
		if b.consumed[i] || !b.g.Live(i) {
			i++
			continue
		}
		if end, ok := b.irred[i]; ok && end <= hi {
			emit([]*Region{b.placeholder(diag.IrreducibleControlFlow, ErrIrreducible, i, end,
				"back edge into %d is not dominated by its header", b.off(end-1))})
			i = end
			continue
		}
		if blk := b.g.BlockAt(i); blk.First == i || i == lo {
			if u := b.unknownIn(i, blk.Last); u >= 0 {
				end := min(blk.Last, hi)
				emit([]*Region{b.placeholder(diag.UnknownOpcode, disasm.ErrUnknownOpcode, i, end,
					"block contains an undecodable opcode at %d", b.off(u))})
				i = end
				continue
			}
		}
		if next, rs := b.recognize(i, hi, exit); rs != nil {
			emit(rs)
			i = next
			continue
		}
		b.markJump(i, hi, exit)
		run = append(run, b.in[i])
		i++
	}
	flush()
	return out
}

func (b *builder) unknownIn(from, to int) int {
	for k := from; k < to; k++ {
		if b.in[k].Opcode == nil {
			return k
		}
	}
	return -1
}

// recognize tries every compound shape that can start at i.
func (b *builder) recognize(i, hi, exit int) (int, []*Region) {
	recognizers := []func(i, hi, exit int) (int, []*Region){
		b.asyncFor,
		b.tryTable,
		b.withTable,
		b.setupLoop,
		b.trySetup,
		b.withSetup,
		b.forLoop,
		b.whileLoop,
		b.match,
		b.keep,
		b.conditional,
	}
	for _, r := range recognizers {
		if next, rs := r(i, hi, exit); rs != nil {
			return next, rs
		}
	}
	return i, nil
}

// markJump records the role of an unconditional jump left in straight-line
// code.
func (b *builder) markJump(i, hi, exit int) {
	in := &b.in[i]
	switch {
	case in.Flow() == registry.FlowBreak:
		b.roles[in.Offset] = Break
		return
	case in.Flow() != registry.FlowJump || in.Target < 0:
		return
	}
	l := b.loop()
	raw := in.Target
	switch {
	case l != nil && in.Op == "CONTINUE_LOOP":
		b.roles[in.Offset] = Continue
	case l != nil && l.conts[raw]:
		if i == hi-1 && exit == l.contEnd {
			b.roles[in.Offset] = Structural
		} else {
			b.roles[in.Offset] = Continue
		}
	case l != nil && raw == l.brk:
		b.roles[in.Offset] = Break
	case raw == exit || raw >= b.off(hi):
		b.roles[in.Offset] = Structural
	}
}

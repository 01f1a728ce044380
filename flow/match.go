package flow

import (
	"strings"

	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// caseShape is one parsed case arm before its instructions are consumed.
type caseShape struct {
	c      *Case
	copied bool // the arm tests a copy of the subject
	test   [2]int
	guard  [2]int
	pop    int // POP_TOP of the subject on success, -1 when absent
	lo, hi int // body
	fail   int // raw failure target offset, -1 for an irrefutable arm
}

func (b *builder) copiesSubject(k int) bool {
	return b.is(k, "DUP_TOP") || b.is(k, "COPY") && b.in[k].Arg == 1
}

// slotRole says what a value on the simulated stack of a pattern test is.
type slotRole uint8

const (
	subjectSlot slotRole = iota // a value matched against pat
	restSlot                    // the dict bound by a mapping's **rest
	exprSlot                    // a loaded value, class or key expression
	attrsSlot                   // the attribute tuple of class pat
	keysSlot                    // the key tuple of mapping pat
	valuesSlot                  // the value tuple of mapping pat
	lenSlot                     // len() of the subject of pat
	indexSlot                   // a subscript counted from the end
	otherSlot
)

// slot is one value on the simulated stack. Storing a subject or rest
// slot names pat and the matching captures of later or-alternatives.
type slot struct {
	role   slotRole
	pat    *Pattern
	alias  []*Pattern
	copy   bool
	lo, hi int      // expression instructions
	keys   []MapKey // a BUILD_TUPLE of mapping keys
	n      int      // indexSlot distance from the end
}

// lenTest is the length check of a sequence pattern.
type lenTest struct {
	n       int
	atLeast bool
}

// matcher reads the pattern test of one case arm by simulating the stack
// the compiler's pattern code maintains. Captures and wildcards resolve
// when their value is stored or popped, so reordered stores and swaps
// need no special casing.
type matcher struct {
	b     *builder
	k, hi int
	stack []*slot
	fails []int // conditional failure jumps of the innermost test
	alt   int   // or-alternative nesting; stores only follow the whole test
	lens  map[*Pattern]lenTest
	front map[*Pattern]int // last leading subscript of a starred sequence
}

func (m *matcher) push(s *slot) { m.stack = append(m.stack, s) }

func (m *matcher) pop() *slot {
	if len(m.stack) == 0 {
		return nil
	}
	s := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return s
}

// peek returns the slot n places from the top, counting from 1.
func (m *matcher) peek(n int) *slot {
	if n < 1 || n > len(m.stack) {
		return nil
	}
	return m.stack[len(m.stack)-n]
}

func (m *matcher) save() matcher {
	c := *m
	c.stack = append([]*slot(nil), m.stack...)
	c.fails = append([]int(nil), m.fails...)
	return c
}

// pending marks a pattern whose kind the simulation has not settled yet.
const pending PatternKind = 255

func fresh() *Pattern { return &Pattern{Kind: pending} }

func (s *slot) undecided() bool {
	return s != nil && s.role == subjectSlot && !s.copy && s.pat.Kind == pending
}

func (m *matcher) constant(s *slot) (any, bool) {
	if s == nil || s.role != exprSlot || s.hi != s.lo+1 || !m.b.is(s.lo, "LOAD_CONST") {
		return nil, false
	}
	return m.b.in[s.lo].Argval, true
}

func (m *matcher) constInt(s *slot) (int, bool) {
	v, ok := m.constant(s)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return int(n), ok
}

// run simulates instructions until done reports true or an unconditional
// jump is reached. It fails on anything outside the pattern language.
func (m *matcher) run(done func() bool) bool {
	for !done() {
		if m.k >= m.hi || m.b.consumed[m.k] {
			return false
		}
		if m.b.in[m.k].Flow() == registry.FlowJump {
			return true
		}
		if !m.step() {
			return false
		}
	}
	return true
}

// rotate moves the top slot n places down.
func (m *matcher) rotate(n int) bool {
	if n < 1 || n > len(m.stack) {
		return false
	}
	top := m.stack[len(m.stack)-1]
	base := len(m.stack) - n
	copy(m.stack[base+1:], m.stack[base:len(m.stack)-1])
	m.stack[base] = top
	return true
}

func (m *matcher) step() bool {
	b := m.b
	in := &b.in[m.k]
	switch op := in.Op; {
	case op == "NOP":

	case op == "LOAD_CONST", op == "LOAD_NAME", op == "LOAD_FAST", op == "LOAD_DEREF",
		op == "LOAD_CLASSDEREF", op == "LOAD_FAST_CHECK", op == "LOAD_FROM_DICT_OR_GLOBALS":
		m.push(&slot{role: exprSlot, lo: m.k, hi: m.k + 1})
	case op == "LOAD_GLOBAL":
		if b.f.LocalsPlus && in.Arg&1 != 0 {
			return false
		}
		m.push(&slot{role: exprSlot, lo: m.k, hi: m.k + 1})
	case op == "LOAD_ATTR":
		s := m.peek(1)
		if s == nil || s.role != exprSlot || s.hi != m.k || b.bundle.Revision.AtLeast(3, 12) && in.Arg&1 != 0 {
			return false
		}
		s.hi = m.k + 1

	case op == "COMPARE_OP":
		r, l := m.pop(), m.pop()
		if r == nil || l == nil || r.role != exprSlot {
			return false
		}
		switch cmp := in.Argval; {
		case l.role == lenSlot && (cmp == "==" || cmp == ">="):
			n, ok := m.constInt(r)
			if !ok {
				return false
			}
			if l.pat.Kind == PatternSequence {
				m.lens[l.pat] = lenTest{n: n, atLeast: cmp == ">="}
			}
		case l.undecided() && cmp == "==":
			l.pat.Kind, l.pat.Instrs = PatternValue, b.in[r.lo:r.hi]
		default:
			return false
		}
		m.push(&slot{role: otherSlot})
	case op == "IS_OP":
		r, l := m.pop(), m.pop()
		v, ok := m.constant(r)
		if !ok || l == nil {
			return false
		}
		switch {
		case in.Arg == 0 && l.undecided() && singleton(v):
			l.pat.Kind, l.pat.Value = PatternSingleton, v
		case in.Arg == 1 && (l.role == attrsSlot || l.role == valuesSlot):
			if _, none := v.(pyc.NoneType); !none {
				return false
			}
		default:
			return false
		}
		m.push(&slot{role: otherSlot})
	case isBranch(in):
		if in.Target <= in.Offset {
			return false
		}
		s := m.pop()
		switch {
		case s == nil:
			return false
		case strings.HasSuffix(op, "_IF_FALSE") && s.role == otherSlot:
		case strings.HasSuffix(op, "_IF_NOT_NONE") && s.undecided():
			s.pat.Kind, s.pat.Value = PatternSingleton, pyc.None
		case strings.HasSuffix(op, "_IF_NONE") && (s.role == attrsSlot || s.role == valuesSlot):
		default:
			return false
		}
		m.fails = append(m.fails, m.k)

	case op == "MATCH_SEQUENCE", op == "MATCH_MAPPING":
		s := m.peek(1)
		if !s.undecided() {
			return false
		}
		s.pat.Kind = PatternSequence
		if op == "MATCH_MAPPING" {
			s.pat.Kind = PatternMapping
		}
		m.push(&slot{role: otherSlot})
	case op == "MATCH_CLASS":
		names, cls, subj := m.pop(), m.pop(), m.pop()
		v, ok := m.constant(names)
		attrs, isTuple := v.(pyc.Tuple)
		if !ok || !isTuple || cls == nil || cls.role != exprSlot || !subj.undecided() {
			return false
		}
		p := subj.pat
		p.Kind, p.Instrs, p.Args = PatternClass, b.in[cls.lo:cls.hi], in.Arg
		for _, a := range attrs {
			name, ok := a.(string)
			if !ok {
				return false
			}
			p.KwdAttrs = append(p.KwdAttrs, name)
		}
		p.Sub = wildcards(in.Arg + len(attrs))
		m.push(&slot{role: attrsSlot, pat: p})
		if b.bundle.Revision.Before(3, 11) {
			m.push(&slot{role: otherSlot})
		}
	case op == "GET_LEN":
		s := m.peek(1)
		if s == nil || s.role != subjectSlot || s.pat.Kind != PatternSequence && s.pat.Kind != PatternMapping {
			return false
		}
		m.push(&slot{role: lenSlot, pat: s.pat})
	case op == "BUILD_TUPLE":
		if in.Arg > len(m.stack) {
			return false
		}
		t := &slot{role: exprSlot, lo: -1, hi: -1}
		for _, s := range m.stack[len(m.stack)-in.Arg:] {
			if s.role != exprSlot || s.keys != nil {
				return false
			}
			t.keys = append(t.keys, MapKey{Instrs: b.in[s.lo:s.hi]})
		}
		m.stack = m.stack[:len(m.stack)-in.Arg]
		m.push(t)
	case op == "MATCH_KEYS":
		keys, subj := m.peek(1), m.peek(2)
		if keys == nil || keys.role != exprSlot || subj == nil || subj.role != subjectSlot || subj.pat.Kind != PatternMapping {
			return false
		}
		p := subj.pat
		switch v, _ := m.constant(keys); {
		case keys.keys != nil:
			p.Keys = keys.keys
		case v != nil:
			t, ok := v.(pyc.Tuple)
			if !ok {
				return false
			}
			for _, k := range t {
				p.Keys = append(p.Keys, MapKey{Value: k})
			}
		default:
			return false
		}
		p.Sub = wildcards(len(p.Keys))
		m.stack[len(m.stack)-1] = &slot{role: keysSlot, pat: p}
		m.push(&slot{role: valuesSlot, pat: p})
		if b.bundle.Revision.Before(3, 11) {
			m.push(&slot{role: otherSlot})
		}
	case op == "UNPACK_SEQUENCE", op == "UNPACK_EX":
		s := m.pop()
		n, star := in.Arg, -1
		if op == "UNPACK_EX" {
			star = in.Arg & 0xff
			n = star + 1 + in.Arg>>8
		}
		switch {
		case s == nil:
			return false
		case s.role == keysSlot:
			for range n {
				m.push(&slot{role: otherSlot})
			}
			m.k++
			return true
		case s.role == subjectSlot && !s.copy && s.pat.Kind == PatternSequence && s.pat.Sub == nil:
			s.pat.Sub = make([]*Pattern, n)
			for i := range n {
				s.pat.Sub[i] = fresh()
			}
			if star >= 0 {
				s.pat.Sub[star].Kind = PatternStar
			}
		case s.role == valuesSlot && !s.copy && star < 0 && len(s.pat.Sub) == n:
			for i := range n {
				s.pat.Sub[i] = fresh()
			}
		default:
			return false
		}
		for i := n - 1; i >= 0; i-- {
			m.push(&slot{role: subjectSlot, pat: s.pat.Sub[i]})
		}
	case op == "BINARY_SUBSCR":
		idx, obj := m.pop(), m.pop()
		if idx == nil || obj == nil || !obj.copy {
			return false
		}
		var pos int
		switch {
		case obj.role == attrsSlot || obj.role == valuesSlot:
			i, ok := m.constInt(idx)
			if !ok || i < 0 || i >= len(obj.pat.Sub) {
				return false
			}
			pos = i
		case obj.role == subjectSlot && obj.pat.Kind == PatternSequence:
			p := obj.pat
			lt, ok := m.lens[p]
			if !ok || !lt.atLeast {
				return false
			}
			if p.Sub == nil {
				p.Sub = wildcards(lt.n + 1)
				m.front[p] = -1
			}
			if idx.role == indexSlot {
				pos = len(p.Sub) - idx.n
			} else if pos, ok = m.constInt(idx); !ok {
				return false
			} else {
				m.front[p] = max(m.front[p], pos)
			}
			if pos < 0 || pos >= len(p.Sub) {
				return false
			}
		default:
			return false
		}
		sub := fresh()
		obj.pat.Sub[pos] = sub
		m.push(&slot{role: subjectSlot, pat: sub})
	case op == "BINARY_SUBTRACT", op == "BINARY_OP" && b.bundle.BinaryOp(in.Arg) == "-":
		r, l := m.pop(), m.pop()
		n, ok := m.constInt(r)
		if !ok || l == nil || l.role != lenSlot {
			return false
		}
		m.push(&slot{role: indexSlot, n: n})

	case op == "POP_TOP":
		s := m.pop()
		if s == nil {
			return false
		}
		if s.undecided() {
			s.pat.Kind = PatternWildcard
		}
	case op == "STORE_NAME", op == "STORE_FAST", op == "STORE_GLOBAL", op == "STORE_DEREF":
		s := m.pop()
		name, _ := in.Argval.(string)
		if m.alt > 0 || s == nil || s.copy || name == "" || s.role != subjectSlot && s.role != restSlot {
			return false
		}
		for _, p := range append([]*Pattern{s.pat}, s.alias...) {
			switch p.Kind {
			case pending:
				p.Kind = PatternCapture
			case PatternCapture, PatternAs, PatternStar:
			default:
				return false
			}
			p.Name = name
		}
	case op == "ROT_TWO", op == "ROT_THREE", op == "ROT_FOUR", op == "ROT_N":
		n := map[string]int{"ROT_TWO": 2, "ROT_THREE": 3, "ROT_FOUR": 4}[op]
		if op == "ROT_N" {
			n = in.Arg
		}
		if !m.rotate(n) {
			return false
		}
	case op == "SWAP":
		n := in.Arg
		if n < 1 || n > len(m.stack) {
			return false
		}
		t := len(m.stack) - 1
		m.stack[t], m.stack[t+1-n] = m.stack[t+1-n], m.stack[t]
	case op == "DUP_TOP", op == "COPY":
		n := 1
		if op == "COPY" {
			n = in.Arg
		}
		s := m.peek(n)
		switch {
		case s == nil:
			return false
		case s.undecided() && n == 1:
			return m.alternatives(s)
		case s.undecided():
			return false
		}
		c := *s
		c.copy = true
		m.push(&c)

	case op == "COPY_DICT_WITHOUT_KEYS":
		s := m.peek(1)
		if s == nil || s.role != keysSlot {
			return false
		}
		r := fresh()
		s.pat.Rest = r
		m.stack[len(m.stack)-1] = &slot{role: restSlot, pat: r}
	case op == "BUILD_MAP" && in.Arg == 0:
		m.push(&slot{role: restSlot, pat: fresh()})
	case op == "DICT_UPDATE":
		s := m.pop()
		d := m.peek(in.Arg)
		if s == nil || s.role != subjectSlot || s.pat.Kind != PatternMapping || d == nil || d.role != restSlot {
			return false
		}
		s.pat.Rest = d.pat
	case op == "DELETE_SUBSCR":
		if m.pop() == nil || m.pop() == nil {
			return false
		}
	default:
		return false
	}
	m.k++
	return true
}

func singleton(v any) bool {
	switch v.(type) {
	case pyc.NoneType, bool:
		return true
	}
	return false
}

func wildcards(n int) []*Pattern {
	out := make([]*Pattern, n)
	for i := range out {
		out[i] = &Pattern{Kind: PatternWildcard}
	}
	return out
}

// alternatives handles a copy of an unsettled subject: the first of the
// copies an or-pattern makes for each alternative, or the copy an as-pattern
// keeps for its binding.
func (m *matcher) alternatives(v *slot) bool {
	saved := m.save()
	if m.orPattern(v) {
		return true
	}
	*m = saved
	inner := fresh()
	v.pat.Kind, v.pat.Sub = PatternAs, []*Pattern{inner}
	m.push(&slot{role: subjectSlot, pat: inner})
	m.k++
	return true
}

// orPattern reads the alternatives of an or-pattern. Each one tests its
// own copy of the subject and jumps to a shared end; the last falls into
// a POP_TOP and a jump that fails the enclosing test.
func (m *matcher) orPattern(v *slot) bool {
	b := m.b
	outer := m.fails
	base := append([]*slot(nil), m.stack...)
	var alts []*Pattern
	var first []*slot
	end := -1
	m.alt++
	for m.k < m.hi && !b.consumed[m.k] && b.copiesSubject(m.k) {
		alt := fresh()
		m.stack = append(append([]*slot(nil), base...), &slot{role: subjectSlot, pat: alt})
		m.fails = nil
		m.k++
		if !m.run(func() bool { return false }) || m.k >= m.hi {
			return false
		}
		j := &b.in[m.k]
		if j.Target <= j.Offset || len(m.stack) < len(base) || m.stack[len(base)-1] != v {
			return false
		}
		caps := m.stack[len(base):]
		for _, c := range caps {
			if c.role != subjectSlot || c.copy {
				return false
			}
		}
		switch {
		case end < 0:
			end, first = j.Target, caps
		case j.Target != end || len(caps) != len(first):
			return false
		default:
			for x, c := range caps {
				first[x].alias = append(append(first[x].alias, c.pat), c.alias...)
			}
		}
		for _, f := range m.fails {
			if t := b.in[f].Target; t <= j.Offset || t >= end {
				return false
			}
		}
		alts = append(alts, alt)
		for m.k++; m.k < m.hi && b.is(m.k, "POP_TOP"); m.k++ {
		}
	}
	if len(alts) < 2 || m.k >= m.hi || b.in[m.k].Flow() != registry.FlowJump ||
		!b.is(m.k-1, "POP_TOP") || b.at(end) != m.k+1 || b.in[m.k].Target <= b.in[m.k].Offset {
		return false
	}
	m.alt--
	m.fails = append(outer, m.k)
	m.stack = append(base, first...)
	v.pat.Kind, v.pat.Sub = PatternOr, alts
	m.k++
	return true
}

// settle places the star of subscripted sequences and rejects patterns the
// simulation left open.
func (m *matcher) settle(p *Pattern) bool {
	switch p.Kind {
	case pending:
		return false
	case PatternSequence:
		if p.Sub == nil {
			lt := m.lens[p]
			p.Sub = wildcards(lt.n)
			if lt.atLeast || lt.n == 0 && !hasLen(m.lens, p) {
				p.Sub = append(p.Sub, &Pattern{Kind: PatternStar})
			}
		} else if f, ok := m.front[p]; ok {
			p.Sub[f+1] = &Pattern{Kind: PatternStar}
		}
	case PatternCapture, PatternAs:
		if p.Name == "" {
			return false
		}
	}
	for _, s := range p.Sub {
		if !m.settle(s) {
			return false
		}
	}
	if p.Rest != nil && (p.Rest.Kind != PatternCapture || p.Rest.Name == "") {
		return false
	}
	return true
}

func hasLen(lens map[*Pattern]lenTest, p *Pattern) bool {
	_, ok := lens[p]
	return ok
}

// structural reports whether p tests more than a plain value, so that an
// arm without a subject copy cannot be mistaken for an if statement.
func structural(p *Pattern) bool {
	switch p.Kind {
	case PatternClass, PatternSequence, PatternMapping, PatternOr:
		return true
	}
	for _, s := range p.Sub {
		if structural(s) {
			return true
		}
	}
	return false
}

// parseCase reads the arm starting at k without consuming anything. The
// arm tests a copy of the subject when copied is set.
func (b *builder) parseCase(k, hi int, copied bool) *caseShape {
	cs := &caseShape{c: &Case{Start: b.off(k), Pattern: fresh()}, copied: copied, fail: -1, pop: -1, guard: [2]int{-1, -1}}
	m := &matcher{b: b, k: k, hi: hi, lens: map[*Pattern]lenTest{}, front: map[*Pattern]int{}}
	depth := 0
	if copied {
		m.push(&slot{role: otherSlot})
		depth = 1
		m.k++
	}
	m.push(&slot{role: subjectSlot, pat: cs.c.Pattern})
	done := func() bool { return len(m.stack) == depth }
	if !m.run(done) || !done() || !m.settle(cs.c.Pattern) {
		return nil
	}
	cs.test = [2]int{k, m.k}
	for _, j := range m.fails {
		t := b.in[j].Target
		switch {
		case cs.fail < 0:
			cs.fail = t
		case b.resolveFail(t) != b.resolveFail(cs.fail):
			return nil
		}
		cs.fail = min(cs.fail, t)
	}

	s := m.k
	ch := b.collectChain(s, hi, false)
	for n := len(ch.leaves); n >= 1; n-- {
		last := ch.leaves[n-1]
		f := b.in[last].Target
		if cs.fail >= 0 && b.resolveFail(f) != b.resolveFail(cs.fail) {
			continue
		}
		if g := ch.fold(n, b.off(last+1), f); g != nil {
			cs.c.Guard = g
			cs.guard = [2]int{s, last + 1}
			if cs.fail < 0 || f < cs.fail {
				cs.fail = f
			}
			s = last + 1
			break
		}
	}
	if copied {
		if cs.fail < 0 || !b.is(s, "POP_TOP") {
			return nil
		}
		cs.pop = s
		s++
	}
	cs.lo = s
	return cs
}

// resolveFail follows the POP_TOP trampolines a failed pattern jumps
// through and returns the index of the next arm.
func (b *builder) resolveFail(off int) int {
	k := b.at(off)
	for k >= 0 && b.is(k, "POP_TOP") {
		k++
	}
	return k
}

// match recognizes a match statement whose subject was computed by the
// preceding run. Every arm but the last refutable one tests a copy of the
// subject; a trailing wildcard arm becomes the default.
func (b *builder) match(i, hi, exit int) (int, []*Region) {
	if !b.f.PatternMatching {
		return i, nil
	}
	var shapes []*caseShape
	k := i
	dflt := -1
	for k < hi {
		var cs *caseShape
		if b.copiesSubject(k) {
			cs = b.parseCase(k, hi, true)
		}
		if cs == nil {
			cs = b.parseCase(k, hi, false)
		}
		if cs == nil {
			if len(shapes) > 0 && shapes[len(shapes)-1].copied {
				return i, nil
			}
			break
		}
		if len(shapes) == 0 && !cs.copied && !structural(cs.c.Pattern) {
			return i, nil
		}
		shapes = append(shapes, cs)
		if cs.fail < 0 {
			break
		}
		cs.hi = b.at(cs.fail)
		if cs.hi < cs.lo || cs.hi > hi {
			return i, nil
		}
		k = b.resolveFail(cs.fail)
		if !cs.copied {
			dflt = k
			break
		}
	}
	if len(shapes) == 0 {
		return i, nil
	}

	end := -1
	for _, cs := range shapes {
		if cs.fail < 0 || cs.hi-1 < cs.lo {
			continue
		}
		if in := &b.in[cs.hi-1]; in.Flow() == registry.FlowJump && in.Target > in.Offset {
			end = in.Target
			break
		}
	}
	last := shapes[len(shapes)-1]
	switch {
	case end >= 0:
	case dflt >= 0 && dflt < hi:
		// every arm returns; the default runs to the end of the block
		end = b.off(hi)
	case last.fail >= 0:
		end = b.off(b.resolveFail(last.fail))
	default:
		end = b.off(hi)
	}
	endIdx := b.clampIndex(end, hi)
	if last.fail < 0 {
		last.hi = endIdx
	}

	for _, cs := range shapes {
		b.consume(cs.test[0], cs.test[1])
		if cs.guard[0] >= 0 {
			b.consume(cs.guard[0], cs.guard[1])
		}
		if cs.pop >= 0 {
			b.consumed[cs.pop] = true
		}
		if cs.fail >= 0 {
			b.consume(b.at(cs.fail), b.resolveFail(cs.fail))
		}
		if j := cs.hi - 1; j >= cs.lo && b.in[j].Flow() == registry.FlowJump && b.in[j].Target == end {
			b.consumed[j] = true
			b.roles[b.in[j].Offset] = Structural
		}
	}

	r := &Region{Kind: MatchDispatch, Start: b.off(i)}
	for _, cs := range shapes {
		cs.c.Body = b.structure(cs.lo, cs.hi, end)
		r.Cases = append(r.Cases, cs.c)
	}
	if dflt >= 0 && dflt < endIdx {
		c := &Case{Pattern: &Pattern{Kind: PatternWildcard}, Start: b.off(dflt)}
		lo := dflt
		if b.is(lo, "NOP") {
			b.consumed[lo] = true
			lo++
		}
		c.Body = b.structure(lo, endIdx, end)
		r.Cases = append(r.Cases, c)
	}
	r.End = b.off(endIdx)
	return endIdx, []*Region{r}
}

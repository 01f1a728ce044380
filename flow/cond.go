package flow

import (
	"fmt"
	"strings"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/registry"
)

// CondOp is the operator of a condition tree node.
type CondOp uint8

const (
	CondLeaf CondOp = iota
	CondAnd
	CondOr
	CondNot
)

// Cond is a boolean condition folded from a chain of conditional jumps.
// A leaf's value is computed by Instrs, or sits on the carried stack when
// Carried is set. TestNone leaves test `value is None`.
type Cond struct {
	Op       CondOp
	Args     []*Cond
	Instrs   []disasm.Instruction
	Branch   disasm.Instruction
	Carried  bool
	TestNone bool
}

func (c *Cond) String() string {
	switch c.Op {
	case CondNot:
		return "not " + c.Args[0].String()
	case CondAnd, CondOr:
		sep := " and "
		if c.Op == CondOr {
			sep = " or "
		}
		parts := make([]string, len(c.Args))
		for i, a := range c.Args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	if c.Carried {
		return fmt.Sprintf("@%d", c.Branch.Offset)
	}
	return fmt.Sprintf("L%d", c.Branch.Offset)
}

// Leaves returns the leaves of c in evaluation order.
func (c *Cond) Leaves() []*Cond {
	if c.Op == CondLeaf {
		return []*Cond{c}
	}
	var out []*Cond
	for _, a := range c.Args {
		out = append(out, a.Leaves()...)
	}
	return out
}

func negate(c *Cond) *Cond {
	if c.Op == CondNot {
		return c.Args[0]
	}
	return &Cond{Op: CondNot, Args: []*Cond{c}}
}

func join(op CondOp, l, r *Cond) *Cond {
	var args []*Cond
	for _, x := range []*Cond{l, r} {
		if x.Op == op {
			args = append(args, x.Args...)
		} else {
			args = append(args, x)
		}
	}
	return &Cond{Op: op, Args: args}
}

// jumpsOnTrue reports whether a conditional jump is taken when its leaf
// value is true. For the None tests the leaf value is `x is None`.
func jumpsOnTrue(op string) bool {
	if strings.HasSuffix(op, "IF_NOT_NONE") {
		return false
	}
	return strings.Contains(op, "IF_TRUE") || strings.HasSuffix(op, "IF_NONE")
}

func testsNone(op string) bool {
	return strings.HasSuffix(op, "IF_NONE") || strings.HasSuffix(op, "IF_NOT_NONE")
}

// maxLeaves bounds the condition chains folded into one tree.
const maxLeaves = 12

// pure reports whether the instruction only computes a value.
func pure(in *disasm.Instruction) bool {
	if in.Opcode == nil || in.Flow() != registry.FlowNext {
		return false
	}
	switch in.Op {
	case "LOAD_FAST_AND_CLEAR", "LIST_APPEND", "SET_ADD", "MAP_ADD":
		return false
	case "PRECALL", "KW_NAMES", "PUSH_NULL", "COMPARE_OP", "IS_OP", "CONTAINS_OP",
		"FORMAT_VALUE", "LIST_EXTEND", "SET_UPDATE", "DICT_UPDATE", "DICT_MERGE",
		"LIST_TO_TUPLE", "MAKE_FUNCTION", "MAKE_CLOSURE", "NOP", "CACHE":
		return true
	}
	for _, p := range []string{"LOAD_", "BINARY_", "UNARY_", "BUILD_", "CALL", "SLICE+"} {
		if strings.HasPrefix(in.Op, p) {
			return true
		}
	}
	return false
}

func isBranch(in *disasm.Instruction) bool {
	return in.Flow() == registry.FlowBranch && in.Target >= 0 && !in.Is("JUMP_IF_NOT_EXC_MATCH")
}

// chain is a run of conditional jumps that may fold into one condition.
type chain struct {
	b       *builder
	leaves  []int // branch instruction indices
	starts  []int // first instruction computing each leaf
	carried bool  // the first leaf's value is already on the stack
	memo    map[[4]int]*Cond
	tried   map[[4]int]bool
}

// collectChain gathers the longest run of leaves starting at i. When carried
// is set, in[i] is itself the first branch; otherwise the first leaf is a
// pure run starting at i.
func (b *builder) collectChain(i, hi int, carried bool) *chain {
	c := &chain{b: b, carried: carried, memo: map[[4]int]*Cond{}, tried: map[[4]int]bool{}}
	k := i
	if carried {
		c.leaves = append(c.leaves, i)
		c.starts = append(c.starts, i)
		k = i + 1
	}
	for len(c.leaves) < maxLeaves {
		j := k
		for j < hi && !b.consumed[j] && pure(&b.in[j]) {
			j++
		}
		if j == k || j >= hi || b.consumed[j] || !isBranch(&b.in[j]) {
			break
		}
		if len(c.leaves) > 0 && !c.enterable(k) {
			break
		}
		c.leaves = append(c.leaves, j)
		c.starts = append(c.starts, k)
		k = j + 1
	}
	return c
}

// enterable reports whether a leaf may start at k: only earlier leaves of
// the chain jump there.
func (c *chain) enterable(k int) bool {
	for _, src := range c.b.jumpsTo[c.b.off(k)] {
		found := false
		for _, l := range c.leaves {
			if l == src {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *chain) start(k int) int {
	return c.b.off(c.starts[k])
}

// fall is the offset leaf k falls through to.
func (c *chain) fall(k, n int) int {
	if k+1 < n {
		return c.start(k + 1)
	}
	return c.b.off(c.leaves[k] + 1)
}

func (c *chain) leaf(k int) *Cond {
	b := c.b
	br := b.in[c.leaves[k]]
	l := &Cond{Op: CondLeaf, Branch: br, TestNone: testsNone(br.Op)}
	if k == 0 && c.carried {
		l.Carried = true
	} else {
		l.Instrs = b.in[c.starts[k]:c.leaves[k]]
	}
	return l
}

// targetsOK checks that every leaf of the first n jumps to t, f or a later
// leaf of the chain.
func (c *chain) targetsOK(n, t, f int) bool {
	for k := 0; k < n; k++ {
		tgt := c.b.target(c.leaves[k])
		if tgt == t || tgt == f {
			continue
		}
		ok := false
		for m := k + 1; m < n; m++ {
			if tgt == c.start(m) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// fold reconstructs the condition of leaves [0, n) that leads to t when
// true and to f when false.
func (c *chain) fold(n, t, f int) *Cond {
	if !c.targetsOK(n, t, f) {
		return nil
	}
	c.memo, c.tried = map[[4]int]*Cond{}, map[[4]int]bool{}
	return c.build(0, n, n, t, f)
}

func (c *chain) build(i, j, n, t, f int) *Cond {
	key := [4]int{i, j, t, f}
	if c.tried[key] {
		return c.memo[key]
	}
	c.tried[key] = true
	var out *Cond
	if j-i == 1 {
		out = c.single(i, n, t, f)
	} else {
		for k := i + 1; k < j && out == nil; k++ {
			if l := c.build(i, k, n, c.start(k), f); l != nil {
				if r := c.build(k, j, n, t, f); r != nil {
					out = join(CondAnd, l, r)
					break
				}
			}
			if l := c.build(i, k, n, t, c.start(k)); l != nil {
				if r := c.build(k, j, n, t, f); r != nil {
					out = join(CondOr, l, r)
				}
			}
		}
	}
	c.memo[key] = out
	return out
}

func (c *chain) single(k, n, t, f int) *Cond {
	tgt, fall := c.b.target(c.leaves[k]), c.fall(k, n)
	onTrue := jumpsOnTrue(c.b.in[c.leaves[k]].Op)
	p := c.leaf(k)
	switch {
	case tgt == t && fall == f:
		if onTrue {
			return p
		}
		return negate(p)
	case tgt == f && fall == t:
		if onTrue {
			return negate(p)
		}
		return p
	}
	return nil
}

// conditional recognizes an if statement whose first test value was
// computed by the preceding run and is branched on at i.
func (b *builder) conditional(i, hi, exit int) (int, []*Region) {
	if !isBranch(&b.in[i]) {
		return i, nil
	}
	ch := b.collectChain(i, hi, true)
	for n := len(ch.leaves); n >= 1; n-- {
		last := ch.leaves[n-1]
		f, s := b.target(last), b.off(last+1)
		if f < s {
			continue
		}
		cond := ch.fold(n, s, f)
		if cond == nil {
			continue
		}
		b.consume(i+1, last+1)
		if next, rs := b.andOr(i, last+1, hi, cond, f); rs != nil {
			return next, rs
		}
		return b.arms(i, last+1, hi, exit, cond, f)
	}
	return i, nil
}

// arms lays out the then and else arms of a conditional whose leaves end
// before s and whose false target is f.
func (b *builder) arms(i, s, hi, exit int, cond *Cond, f int) (int, []*Region) {
	r := &Region{Kind: Conditional, Start: b.off(i), Cond: cond}
	fi := b.at(f)
	l := b.loop()
	switch {
	case fi >= s && fi <= hi:
		if next, rs := b.invertedLoop(i, s, fi, hi, exit, cond, f); rs != nil {
			return next, rs
		}
		if t := fi - 1; fi < hi && t >= s && b.elseJump(t, f, hi, exit) {
			m := b.target(t)
			mi := b.at(m)
			if mi < 0 || mi > hi {
				mi = hi
			}
			b.consumed[t] = true
			b.roles[b.in[t].Offset] = Structural
			r.Body = b.structure(s, t, m)
			r.Else = b.structure(fi, mi, m)
			r.End = b.off(mi)
			return mi, []*Region{r}
		}
		r.Body = b.structure(s, fi, f)
		r.End = f
		return fi, []*Region{r}
	case f == exit:
		r.Body = b.structure(s, hi, exit)
	case l != nil && f == l.brk:
		r.Cond, r.Escape, r.End = negate(cond), Break, b.off(s)
		return s, []*Region{r}
	case l != nil && f == l.contEnd:
		r.Cond, r.Escape, r.End = negate(cond), Continue, b.off(s)
		return s, []*Region{r}
	default:
		r.Body = b.structure(s, hi, exit)
	}
	r.End = b.off(hi)
	return hi, []*Region{r}
}

// elseJump reports whether the jump ending a then-arm at t skips an else arm
// that starts at f.
func (b *builder) elseJump(t, f, hi, exit int) bool {
	in := &b.in[t]
	if b.consumed[t] || in.Flow() != registry.FlowJump || in.Target < 0 {
		return false
	}
	if l := b.loop(); l != nil && (l.conts[in.Target] || in.Target == l.brk) && in.Target != exit {
		return false
	}
	m := b.target(t)
	return m > f && (m <= b.off(hi) || m == exit)
}

// invertedLoop folds a guard conditional whose then-arm ends with a
// backward test into one while loop. Loops compiled this way carry the test
// twice: once before the body and once at its end.
func (b *builder) invertedLoop(i, s, fi, hi, exit int, guard *Cond, f int) (int, []*Region) {
	if !b.bundle.Revision.AtLeast(3, 10) || fi <= s {
		return i, nil
	}
	lastBranch, jumpAt, ok := b.bottomTest(s, fi, f)
	if !ok {
		return i, nil
	}
	tt, ff := b.off(s), f
	if jumpAt >= 0 {
		tt = b.off(jumpAt)
	}
	q0 := lastBranch
	for q0 > s && !b.consumed[q0-1] && (pure(&b.in[q0-1]) || isBranch(&b.in[q0-1])) {
		q0--
	}
	var cond *Cond
	q := -1
	for k := q0; k < lastBranch && cond == nil; k++ {
		if k != q0 && !isBranch(&b.in[k-1]) {
			continue
		}
		ch := b.collectChain(k, lastBranch+1, false)
		if n := len(ch.leaves); n > 0 && ch.leaves[n-1] == lastBranch {
			if c := ch.fold(n, tt, ff); c != nil {
				cond, q = c, k
			}
		}
	}
	if cond == nil {
		return i, nil
	}
	brk, elseEnd := f, -1
	for k := s; k < q; k++ {
		in := &b.in[k]
		if in.Flow() == registry.FlowJump && in.Target > f && (in.Target <= b.off(hi) || in.Target == exit) {
			brk = in.Target
			if elseEnd = b.at(brk); elseEnd < 0 || elseEnd > hi {
				elseEnd = hi
			}
			break
		}
	}
	gs := i
	for gs > 0 && !b.consumed[gs-1] && pure(&b.in[gs-1]) {
		gs--
	}
	b.consume(q, lastBranch+1)
	if jumpAt >= 0 {
		b.consumed[jumpAt] = true
	}
	r := &Region{Kind: Loop, Loop: While, Start: b.off(i), Cond: cond, Guard: guard}
	b.loops = append(b.loops, &loopCtx{
		conts:   map[int]bool{b.off(q): true, b.off(gs): true},
		contEnd: b.off(q),
		brk:     brk,
	})
	r.Body = b.structure(s, q, b.off(q))
	b.loops = b.loops[:len(b.loops)-1]
	next := fi
	if elseEnd >= 0 {
		r.Else = b.structure(fi, elseEnd, brk)
		next = elseEnd
	}
	r.End = b.off(next)
	return next, []*Region{r}
}

// andOr recognizes `x and y or z` and `(x or y) and z` in value position.
// The test jumps past the kept operand y to z, and y ends in a keep jump to
// the end of the expression.
func (b *builder) andOr(i, s, hi int, cond *Cond, f int) (int, []*Region) {
	fi := b.at(f)
	if fi < s+2 || fi > hi {
		return i, nil
	}
	k, j := -1, -1
	switch {
	case b.in[fi-1].Flow() == registry.FlowBranchKeep && !b.is(fi-1, "SEND"):
		k, j = fi-1, fi-1
	case fi-3 >= s && b.is(fi-3, "COPY") && b.in[fi-3].Arg == 1 &&
		b.is(fi-2, "POP_JUMP_IF_FALSE", "POP_JUMP_IF_TRUE", "POP_JUMP_FORWARD_IF_FALSE", "POP_JUMP_FORWARD_IF_TRUE") &&
		b.is(fi-1, "POP_TOP"):
		k, j = fi-3, fi-2
	default:
		return i, nil
	}
	end := b.in[j].Target
	ei := b.at(end)
	if end <= f || ei < 0 || ei > hi || b.consumed[k] {
		return i, nil
	}
	r := &Region{Kind: Conditional, Start: b.off(i), Cond: cond, Keep: KeepOr, End: end}
	if strings.Contains(b.in[j].Op, "FALSE") {
		r.Keep = KeepAnd
		r.Cond = negate(cond)
	}
	b.consume(k, fi)
	r.Body = b.structure(s, k, b.off(k))
	r.Else = b.structure(fi, ei, end)
	return ei, []*Region{r}
}

// keep recognizes a value-position boolean: the left operand stays on the
// stack when the jump is taken and the right operand replaces it otherwise.
func (b *builder) keep(i, hi, exit int) (int, []*Region) {
	in := &b.in[i]
	switch {
	case in.Flow() == registry.FlowBranchKeep && !in.Is("SEND") && in.Target > in.Offset:
		op := KeepOr
		if strings.Contains(in.Op, "FALSE") {
			op = KeepAnd
		}
		return b.keepRegion(i, i+1, hi, in.Target, op)
	case in.Is("COPY") && in.Arg == 1 && b.is(i+1, "POP_JUMP_IF_FALSE", "POP_JUMP_IF_TRUE", "POP_JUMP_FORWARD_IF_FALSE", "POP_JUMP_FORWARD_IF_TRUE") &&
		b.is(i+2, "POP_TOP") && b.in[i+1].Target > b.in[i+2].Offset:
		op := KeepOr
		if strings.Contains(b.in[i+1].Op, "FALSE") {
			op = KeepAnd
		}
		if next, rs := b.keepRegion(i, i+3, hi, b.in[i+1].Target, op); rs != nil {
			b.consume(i+1, i+3)
			return next, rs
		}
	}
	return i, nil
}

func (b *builder) keepRegion(i, bs, hi, target int, op KeepOp) (int, []*Region) {
	m := b.at(target)
	if m < bs || m > hi {
		return i, nil
	}
	r := &Region{Kind: Conditional, Start: b.off(i), Keep: op}
	if j := m - 1; j >= bs && m+1 < len(b.in) && b.in[j].Flow() == registry.FlowJump &&
		b.in[j].Target == b.off(m+2) && b.is(m, "ROT_TWO", "SWAP") && b.is(m+1, "POP_TOP") {
		b.consume(j, m+2)
		r.Chain = true
		r.Body = b.structure(bs, j, b.off(j))
		r.End = b.off(m + 2)
		return m + 2, []*Region{r}
	}
	r.Body = b.structure(bs, m, target)
	r.End = target
	return m, []*Region{r}
}

package flow

import (
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/registry"
)

// popBlock finds the POP_BLOCK closing the block opened just before from.
func (b *builder) popBlock(from, to int) int {
	depth, p := 0, -1
	for k := from; k < to; k++ {
		switch {
		case b.in[k].Flow() == registry.FlowSetup:
			depth++
		case b.is(k, "POP_BLOCK"):
			if depth == 0 {
				p = k
			} else {
				depth--
			}
		}
	}
	return p
}

// closer finds the instruction named op that ends the handler starting at
// h, skipping the ones closing nested handlers.
func (b *builder) closer(h int, op string) int {
	depth := 0
	for k := h; k < len(b.in); k++ {
		switch {
		case b.in[k].Flow() == registry.FlowSetup && !b.is(k, "SETUP_LOOP"):
			depth++
		case b.is(k, op):
			if depth == 0 {
				return k
			}
			depth--
		}
	}
	return -1
}

func (b *builder) handlerStart(h int) bool {
	return b.is(h, "DUP_TOP") || b.is(h, "POP_TOP") && b.is(h+1, "POP_TOP") && b.is(h+2, "POP_TOP")
}

// excMatch reports whether in[k] tests a raised exception against a type.
func (b *builder) excMatch(k int) bool {
	if !b.is(k, "COMPARE_OP") {
		return false
	}
	in := &b.in[k]
	return in.Argrepr == "exception match" || in.Arg == 10
}

// trySetup recognizes a try statement bracketed by SETUP_EXCEPT or
// SETUP_FINALLY.
func (b *builder) trySetup(i, hi, exit int) (int, []*Region) {
	if !b.f.SetupBlocks || !b.is(i, "SETUP_EXCEPT", "SETUP_FINALLY") || b.in[i].Target < 0 {
		return i, nil
	}
	h := b.at(b.in[i].Target)
	if h <= i || h >= len(b.in) || h > hi {
		return i, nil
	}
	p := b.popBlock(i+1, h)
	b.consumed[i] = true
	if b.in[i].Op == "SETUP_EXCEPT" || b.handlerStart(h) {
		return b.tryExcept(i, h, p, hi, exit)
	}
	return b.tryFinally(i, h, p, hi)
}

func (b *builder) tryFinally(i, h, p, hi int) (int, []*Region) {
	bodyEnd := h
	var finEnd int
	if b.bundle.Revision.Before(3, 9) {
		if p >= 0 {
			b.consumed[p] = true
			bodyEnd = p
			if b.is(p+1, "BEGIN_FINALLY", "LOAD_CONST") && p+2 == h {
				b.consumed[p+1] = true
			}
		}
		finEnd = b.closer(h, "END_FINALLY")
		if finEnd < 0 {
			return h, []*Region{b.placeholder(diag.UnsupportedShape, nil, i, h, "finally block without END_FINALLY")}
		}
	} else {
		finEnd = b.closer(h, "RERAISE")
		if finEnd < 0 {
			return h, []*Region{b.placeholder(diag.UnsupportedShape, nil, i, h, "finally block without RERAISE")}
		}
		bodyEnd = b.finallyCopies(i+1, h, h, finEnd-h, p)
	}
	b.consumed[finEnd] = true
	next := finEnd + 1
	r := &Region{Kind: TryFinally, Start: b.in[i].Offset, End: b.off(next)}
	r.Body = b.structure(i+1, bodyEnd, b.off(bodyEnd))
	r.Finally = b.structure(h, finEnd, b.off(finEnd))
	return next, []*Region{r}
}

// finallyCopy is one inlined run of a finally body on a path leaving the
// try: POP_BLOCK at at, the copy, then the tail at tail.
type finallyCopy struct {
	at, tail int
	end      int // index after the tail when it leaves the statement, else -1
}

// finallyCopies consumes the copies of the finally body [h, h+n) that the
// paths out of a try body run, each opened by the POP_BLOCK of the finally
// block. It returns where the try body ends: the first of the trailing
// copies that leave the statement, or hi when there are none. p is the
// POP_BLOCK closing the block, used when the finally body is empty.
func (b *builder) finallyCopies(lo, hi, h, n, p int) int {
	var copies []finallyCopy
	for k := lo; k < hi; k++ {
		if !b.is(k, "POP_BLOCK") || b.consumed[k] || n == 0 && k != p {
			continue
		}
		if k+1+n > hi || !b.sameCode(k+1, h, n) {
			continue
		}
		c := finallyCopy{at: k, tail: k + 1 + n, end: -1}
		switch t := c.tail; {
		case t < hi && b.in[t].Flow() == registry.FlowJump && b.in[t].Target > b.in[t].Offset:
			c.end = t + 1
		case b.loadsNone(t) && b.is(t+1, "RETURN_VALUE") && t+2 <= hi:
			c.end = t + 2
		}
		copies = append(copies, c)
		k = c.tail - 1
	}
	stop := hi
	run := len(copies)
	for run > 0 && copies[run-1].end == stop {
		run--
		stop = copies[run].at
	}
	if p >= 0 {
		b.consumed[p] = true
	}
	for x, c := range copies {
		b.exits[b.off(c.at)] = true
		if x < run {
			b.consume(c.at, c.tail)
			continue
		}
		b.consume(c.at, c.end)
		if in := &b.in[c.end-1]; in.Flow() == registry.FlowJump {
			b.roles[in.Offset] = Structural
		}
	}
	return stop
}

// sameCode reports whether the n instructions at x repeat the ones at y,
// with jump targets compared relative to each run.
func (b *builder) sameCode(x, y, n int) bool {
	if x < 0 || y < 0 || x+n > len(b.in) || y+n > len(b.in) {
		return false
	}
	dx, dy := b.off(x), b.off(y)
	for k := 0; k < n; k++ {
		u, v := &b.in[x+k], &b.in[y+k]
		if u.Op != v.Op {
			return false
		}
		if u.IsJump() {
			if u.Target-dx != v.Target-dy {
				return false
			}
			continue
		}
		if u.Arg != v.Arg {
			return false
		}
	}
	return true
}

type clause struct {
	typ    []disasm.Instruction
	name   string
	start  int // first instruction of the clause
	lo, hi int // body
}

func (b *builder) tryExcept(i, h, p, hi, exit int) (int, []*Region) {
	rev := b.bundle.Revision
	bodyEnd := h
	elseLo, elseHi := -1, -1
	limit := hi
	endOff, jumpOff := -1, -1
	if p >= 0 {
		b.consumed[p] = true
		bodyEnd = p
		switch {
		case rev.AtLeast(3, 10):
			if j := h - 1; j > p && b.in[j].Flow() == registry.FlowJump && b.in[j].Target > b.in[h].Offset {
				elseLo, elseHi = p+1, j
				endOff = b.in[j].Target
				b.consumed[j] = true
				b.roles[b.in[j].Offset] = Structural
				limit = b.clampIndex(endOff, hi)
			} else {
				bodyEnd = h
			}
		case p+1 < h && b.in[p+1].Flow() == registry.FlowJump && b.in[p+1].Target > b.in[h].Offset:
			jumpOff = b.in[p+1].Target
			b.consumed[p+1] = true
			b.roles[b.in[p+1].Offset] = Structural
			limit = b.clampIndex(jumpOff, hi)
		default:
			bodyEnd = h
		}
	}

	clauses, k := b.setupClauses(h, limit)
	if len(clauses) == 0 {
		return limit, []*Region{b.placeholder(diag.UnsupportedShape, nil, i, limit, "unrecognized exception handler")}
	}
	if endOff < 0 {
		endOff = b.clauseExit(clauses, limit)
	}
	for _, c := range clauses {
		b.trimHandler(c, endOff)
	}

	next := k
	if jumpOff >= 0 {
		next = b.clampIndex(jumpOff, hi)
		if endOff > jumpOff {
			elseLo, elseHi = next, b.clampIndex(endOff, hi)
			next = elseHi
		}
	} else if rev.AtLeast(3, 10) && endOff >= 0 {
		if e := b.clampIndex(endOff, hi); e > next {
			next = e
		}
	}

	r := &Region{Kind: TryExcept, Start: b.in[i].Offset, End: b.off(next)}
	r.Body = b.structure(i+1, bodyEnd, b.off(bodyEnd))
	for _, c := range clauses {
		r.Handlers = append(r.Handlers, &Handler{
			Type:  c.typ,
			Name:  c.name,
			Start: b.off(c.start),
			Body:  b.structure(c.lo, c.hi, b.off(c.hi)),
		})
	}
	if elseLo >= 0 && elseHi > elseLo {
		r.Else = b.structure(elseLo, elseHi, b.off(elseHi))
	}
	return next, []*Region{r}
}

// setupClauses parses the except clauses of a handler starting at h. It
// returns the clauses and the index after the last one.
func (b *builder) setupClauses(h, limit int) ([]*clause, int) {
	var out []*clause
	k := h
	for k < limit {
		if b.is(k, "END_FINALLY", "RERAISE") {
			b.consumed[k] = true
			k++
			break
		}
		if b.is(k, "POP_TOP") && b.is(k+1, "POP_TOP") && b.is(k+2, "POP_TOP") {
			b.consume(k, k+3)
			out = append(out, &clause{start: k, lo: k + 3, hi: limit})
			k = limit
			break
		}
		if !b.is(k, "DUP_TOP") {
			break
		}
		m := k + 1
		for m < limit && pure(&b.in[m]) && !b.excMatch(m) {
			m++
		}
		var next, c int
		switch {
		case b.excMatch(m) && isBranch(&b.in[m+1]):
			next, c = b.at(b.in[m+1].Target), m+2
		case b.is(m, "JUMP_IF_NOT_EXC_MATCH"):
			next, c = b.at(b.in[m].Target), m+1
		default:
			return out, k
		}
		if next <= c || next > limit || !b.is(c, "POP_TOP") {
			return out, k
		}
		cl := &clause{typ: b.in[k+1 : m], start: k}
		switch {
		case b.is(c+1, "STORE_NAME", "STORE_FAST", "STORE_GLOBAL", "STORE_DEREF"):
			cl.name, _ = b.in[c+1].Argval.(string)
		case b.is(c+1, "POP_TOP"):
		default:
			return out, k
		}
		if !b.is(c+2, "POP_TOP") {
			return out, k
		}
		b.consume(k, c+3)
		cl.lo, cl.hi = c+3, next
		if cl.name != "" && b.is(cl.lo, "SETUP_FINALLY") {
			b.consumed[cl.lo] = true
			cl.lo++
		}
		out = append(out, cl)
		k = next
	}
	return out, k
}

// clauseExit returns the offset the handler bodies jump to when they
// finish, or -1 when none of them does.
func (b *builder) clauseExit(clauses []*clause, limit int) int {
	for _, c := range clauses {
		if j := c.hi - 1; j >= c.lo && b.in[j].Flow() == registry.FlowJump && b.in[j].Target >= b.off(limit) {
			return b.in[j].Target
		}
	}
	return -1
}

// trimHandler consumes the cleanup code that ends an except clause body:
// block pops, finally markers, the jump out of the handler and the
// deletion of the bound name.
func (b *builder) trimHandler(c *clause, endOff int) {
	if c.name != "" {
		b.consumeUnbind(c.lo, c.hi, c.name)
	}
	for c.hi > c.lo {
		k := c.hi - 1
		in := &b.in[k]
		switch {
		case b.consumed[k]:
		case in.Is("POP_EXCEPT", "POP_BLOCK", "BEGIN_FINALLY", "END_FINALLY", "RERAISE", "POP_FINALLY"):
			b.consumed[k] = true
		case in.Flow() == registry.FlowJump && (endOff >= 0 && in.Target == endOff || b.exits[in.Target]):
			b.consumed[k] = true
			b.roles[in.Offset] = Structural
		case b.loadsNone(k) && k-1 >= c.lo && b.is(k-1, "POP_BLOCK"),
			in.Is("POP_TOP") && k-1 >= c.lo && b.is(k-1, "LIST_APPEND"):
			b.consume(k-1, k+1)
			c.hi--
		default:
			return
		}
		c.hi--
	}
}

// consumeUnbind removes every `name = None; del name` pair in [lo, hi).
func (b *builder) consumeUnbind(lo, hi int, name string) {
	for k := lo; k+2 < hi; k++ {
		if b.loadsNone(k) &&
			b.is(k+1, "STORE_NAME", "STORE_FAST", "STORE_GLOBAL", "STORE_DEREF") && b.in[k+1].Argval == name &&
			b.is(k+2, "DELETE_NAME", "DELETE_FAST", "DELETE_GLOBAL", "DELETE_DEREF") && b.in[k+2].Argval == name {
			b.consume(k, k+3)
		}
	}
}

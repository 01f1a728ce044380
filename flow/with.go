package flow

import "github.com/chazu/pyrecon/registry"

// awaited returns the index after the await that starts at k with
// GET_AWAITABLE or GET_ANEXT, or -1.
func (b *builder) awaited(k int) int {
	if !b.is(k, "GET_AWAITABLE", "GET_ANEXT") || !b.loadsNone(k+1) {
		return -1
	}
	m := k + 2
	switch {
	case b.is(m, "YIELD_FROM"):
		return m + 1
	case b.is(m, "SEND"):
		m++
		for b.is(m, "YIELD_VALUE", "RESUME", "JUMP_BACKWARD_NO_INTERRUPT", "CLEANUP_THROW") {
			m++
		}
		if b.is(m, "END_SEND") {
			m++
		}
		return m
	}
	return -1
}

// exitCall returns the index after the __exit__(None, None, None) call at
// k and the POP_TOP of its result, or -1. On 3.8 the call is spelled as an
// inline finally block.
func (b *builder) exitCall(k int) int {
	var m int
	switch {
	case b.f.ExceptionTable:
		if !b.loadsNone(k) || !b.loadsNone(k+1) || !b.loadsNone(k+2) {
			return -1
		}
		m = k + 3
		if b.is(m, "PRECALL") {
			m++
		}
		if !b.is(m, "CALL") || b.in[m].Arg != 2 {
			return -1
		}
		m++
	case b.bundle.Revision.AtLeast(3, 9):
		if !b.loadsNone(k) || !b.is(k+1, "DUP_TOP") || !b.is(k+2, "DUP_TOP") ||
			!b.is(k+3, "CALL_FUNCTION") || b.in[k+3].Arg != 3 {
			return -1
		}
		m = k + 4
	case b.bundle.Revision.AtLeast(3, 8):
		if !b.is(k, "BEGIN_FINALLY") || !b.is(k+1, "WITH_CLEANUP_START") {
			return -1
		}
		m = k + 2
		if e := b.awaited(m); e > 0 {
			m = e
		}
		if !b.is(m, "WITH_CLEANUP_FINISH") || !b.is(m+1, "POP_FINALLY") {
			return -1
		}
		return m + 2
	default:
		return -1
	}
	if e := b.awaited(m); e > 0 {
		m = e
	}
	if !b.is(m, "POP_TOP") {
		return -1
	}
	return m + 1
}

// withUnwind matches the code that leaves a with body at k: the block pop,
// a rotation that keeps a return value on top, and the exit call. keeps
// reports the rotation.
func (b *builder) withUnwind(k int) (end int, keeps bool) {
	m := k
	if b.f.SetupBlocks {
		if !b.is(m, "POP_BLOCK") {
			return -1, false
		}
		m++
	}
	if b.is(m, "ROT_TWO") || b.is(m, "SWAP") && b.in[m].Arg == 2 {
		keeps = true
		m++
	}
	if end = b.exitCall(m); end < 0 {
		return -1, false
	}
	return end, keeps
}

// consumeWithExits removes the inline exit calls that run before a return,
// break or continue leaves a with body.
func (b *builder) consumeWithExits(lo, hi int) {
	for k := lo; k < hi; k++ {
		if b.consumed[k] {
			continue
		}
		if e, _ := b.withUnwind(k); e > 0 && e <= hi {
			b.consume(k, e)
			k = e - 1
		}
	}
}

// suppressed finds the block that resumes after __exit__ swallowed an
// exception, the target of the handler's first forward jump on true. It
// returns the block's bounds, or -1, -1.
func (b *builder) suppressed(h int) (int, int) {
	for k := h; k < h+12 && k < len(b.in); k++ {
		in := &b.in[k]
		if in.Flow() != registry.FlowBranch || in.Target <= in.Offset || !jumpsOnTrue(in.Op) {
			continue
		}
		s := b.at(in.Target)
		switch {
		case b.is(s, "POP_TOP") && b.is(s+1, "POP_TOP") && b.is(s+2, "POP_TOP") && b.is(s+3, "POP_EXCEPT") && b.is(s+4, "POP_TOP"):
			return s, s + 5
		case b.is(s, "POP_TOP") && b.is(s+1, "POP_EXCEPT") && b.is(s+2, "POP_TOP") && b.is(s+3, "POP_TOP"):
			return s, s + 4
		}
		break
	}
	return -1, -1
}

// returnTail returns the length of the short straight run at e that ends
// in a return, or 0.
func (b *builder) returnTail(e int) int {
	for k := e; k < len(b.in) && k < e+4; k++ {
		switch {
		case b.is(k, "RETURN_VALUE", "RETURN_CONST"):
			return k + 1 - e
		case b.in[k].Flow() != registry.FlowNext:
			return 0
		}
	}
	return 0
}

// withExit classifies the code at e that follows the last exit call of a
// with body. h is the handler and after the first index past the suppress
// block. When the exit call ends the body's normal path, withExit returns
// where the statement's successor starts and true. When it belongs to a
// return inside the body, it returns the index after that return and
// false.
func (b *builder) withExit(e, h, after int) (int, bool) {
	if e >= len(b.in) || e == h {
		return after, true
	}
	in := &b.in[e]
	if in.Flow() == registry.FlowJump {
		if e+1 == h && in.Target > in.Offset {
			b.consumed[e] = true
			b.roles[in.Offset] = Structural
			return after, true
		}
		return e, true
	}
	if j := after; j < len(b.in) && b.in[j].Flow() == registry.FlowJump && b.in[j].Target == in.Offset {
		// the handler's copy resumes at the code after the statement
		b.consumed[j] = true
		return e, true
	}
	n := b.returnTail(e)
	switch {
	case n == 0:
		return e, true
	case b.sameCode(e, after, n) && e+n == h:
		b.consume(e, e+n)
		return after, true
	case b.sameCode(e, after, n):
		b.consume(after, after+n)
		return e, true
	}
	return e + n, false
}

// withSetup recognizes a with statement bracketed by SETUP_WITH, or by
// BEFORE_ASYNC_WITH and an await ahead of SETUP_ASYNC_WITH. The context
// expression was computed by the preceding run; the body starts with the
// store of the `as` target, or a POP_TOP without one.
func (b *builder) withSetup(i, hi, exit int) (int, []*Region) {
	if !b.f.SetupBlocks {
		return i, nil
	}
	s, async := i, false
	switch {
	case b.is(i, "SETUP_WITH"):
	case b.is(i, "BEFORE_ASYNC_WITH"):
		if s = b.awaited(i + 1); s < 0 || !b.is(s, "SETUP_ASYNC_WITH") {
			return i, nil
		}
		async = true
	default:
		return i, nil
	}
	if b.in[s].Target < 0 {
		return i, nil
	}
	h := b.at(b.in[s].Target)
	if h <= s || h > hi {
		return i, nil
	}

	var bodyEnd, next int
	if b.bundle.Revision.Before(3, 9) {
		r := b.closer(h, "END_FINALLY")
		if r < 0 {
			return i, nil
		}
		bodyEnd, next = h, r+1
		if b.is(h-2, "POP_BLOCK") && (b.is(h-1, "BEGIN_FINALLY") || b.loadsNone(h-1)) {
			bodyEnd = h - 2
		}
		b.consume(bodyEnd, next)
	} else {
		_, after := b.suppressed(h)
		if after < 0 {
			return i, nil
		}
		bodyEnd, next = h, after
		if p := b.popBlock(s+1, h); p >= 0 {
			if e, keeps := b.withUnwind(p); e > 0 && !keeps {
				if nx, normal := b.withExit(e, h, after); normal {
					b.consume(p, e)
					bodyEnd, next = p, nx
				}
			}
		}
		b.consume(h, after)
	}
	b.consume(i, s+1)
	b.consumeWithExits(s+1, bodyEnd)
	next = min(next, hi)
	r := &Region{Kind: ContextManaged, Async: async, Start: b.in[i].Offset, End: b.off(next)}
	r.Body = b.structure(s+1, bodyEnd, b.off(bodyEnd))
	return next, []*Region{r}
}

// withTable recognizes a with statement entered by BEFORE_WITH at i, or by
// BEFORE_ASYNC_WITH and its await.
func (b *builder) withTable(i, hi, exit int) (int, []*Region) {
	if !b.f.ExceptionTable {
		return i, nil
	}
	lo, async := i+1, false
	switch {
	case b.is(i, "BEFORE_WITH"):
	case b.is(i, "BEFORE_ASYNC_WITH"):
		if lo = b.awaited(i + 1); lo < 0 {
			return i, nil
		}
		async = true
	default:
		return i, nil
	}
	var t *tableSite
	for _, s := range b.tsites[lo] {
		if !b.active[s.h] && b.is(s.h+1, "WITH_EXCEPT_START") && s.hi <= hi {
			t = s
			break
		}
	}
	if t == nil {
		return i, nil
	}
	_, after := b.suppressed(t.h)
	if after < 0 {
		return i, nil
	}
	b.consume(i, lo)
	b.consume(t.h, after)
	if t.c >= 0 {
		b.consume(t.c, t.c+3)
	}
	if j := after; j < len(b.in) && t.c == j+1 && b.in[j].Flow() == registry.FlowJump && b.in[j].Target > b.in[j].Offset {
		// the suppress block jumps over the cleanup to code moved out of line
		b.consumed[j] = true
	}

	k := t.hi
	bodyEnd, next := k, k
	if e, keeps := b.withUnwind(k); e > 0 {
		switch {
		case keeps:
			if n := b.returnTail(e); n > 0 {
				bodyEnd, next = e+n, e+n
			}
		default:
			nx, normal := b.withExit(e, t.h, after)
			if normal {
				b.consume(k, e)
			} else {
				bodyEnd = nx
			}
			next = nx
		}
	}
	b.consumeWithExits(lo, bodyEnd)
	b.active[t.h] = true
	r := &Region{Kind: ContextManaged, Async: async, Start: b.off(i)}
	r.Body = b.structure(lo, bodyEnd, b.off(bodyEnd))
	delete(b.active, t.h)
	next = min(next, hi)
	r.End = b.off(next)
	return next, []*Region{r}
}

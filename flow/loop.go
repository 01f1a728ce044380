package flow

import "github.com/chazu/pyrecon/registry"

func (b *builder) pushLoop(l *loopCtx) {
	b.loops = append(b.loops, l)
}

func (b *builder) popLoop() {
	b.loops = b.loops[:len(b.loops)-1]
}

// breakBeyond returns the first unconditional jump target in [from, to)
// that lies past natural and inside the enclosing range, or -1.
func (b *builder) breakBeyond(from, to, natural, hi, exit int) int {
	for k := from; k < to; k++ {
		in := &b.in[k]
		if b.consumed[k] || in.Flow() != registry.FlowJump || in.Target < 0 {
			continue
		}
		if in.Target > natural && (in.Target <= b.off(hi) || in.Target == exit) {
			return in.Target
		}
	}
	return -1
}

// clampIndex maps offset to an instruction index no later than hi.
func (b *builder) clampIndex(offset, hi int) int {
	i := b.at(offset)
	if i < 0 || i > hi {
		return hi
	}
	return i
}

// forLoop recognizes FOR_ITER at i. The iterable was computed by the
// preceding run; the body starts with the store of the loop target.
func (b *builder) forLoop(i, hi, exit int) (int, []*Region) {
	in := &b.in[i]
	if in.Flow() != registry.FlowForIter || in.Target <= in.Offset {
		return i, nil
	}
	x := b.at(in.Target)
	if x < 0 || x > hi {
		return i, nil
	}
	natural := x
	if b.is(x, "END_FOR") {
		b.consumed[x] = true
		natural = x + 1
	}
	return b.forBody(i, i+1, x, natural, hi, exit, b.off(natural))
}

// forBody structures the loop whose header is at i, whose body starts at lo
// and whose exhausted branch lands at x. Control leaves the loop at
// natural; brk is the break target known from an enclosing bracket, or the
// natural exit.
func (b *builder) forBody(i, lo, x, natural, hi, exit, brk int) (int, []*Region) {
	in := &b.in[i]
	bodyEnd := x
	if j := x - 1; j > i && b.in[j].Flow() == registry.FlowJump && b.in[j].Target == in.Offset {
		bodyEnd = j
		b.consumed[j] = true
		b.roles[b.in[j].Offset] = Structural
	}
	next := natural
	elseEnd := -1
	if t := b.breakBeyond(lo, bodyEnd, b.off(natural), hi, exit); t >= 0 && !b.f.LoopBlocks {
		brk = t
		if e := b.clampIndex(t, hi); e > natural {
			elseEnd = e
		}
	}
	if !b.f.LoopBlocks {
		b.consumeForExits(lo, bodyEnd, brk)
	}
	r := &Region{Kind: Loop, Loop: For, Start: in.Offset}
	b.pushLoop(&loopCtx{
		conts:   map[int]bool{in.Offset: true},
		contEnd: b.off(bodyEnd),
		brk:     brk,
		isFor:   true,
		blocks:  b.f.LoopBlocks,
	})
	r.Body = b.structure(lo, bodyEnd, b.off(bodyEnd))
	b.popLoop()
	if elseEnd >= 0 {
		r.Else = b.structure(natural, elseEnd, brk)
		next = elseEnd
	}
	r.End = b.off(next)
	return next, []*Region{r}
}

// consumeForExits removes the iterator pops that precede returns and
// breaks leaving a for loop.
func (b *builder) consumeForExits(from, to, brk int) {
	prev := func(k int) int {
		for k--; k >= from && b.consumed[k]; k-- {
		}
		return k
	}
	for k := from; k < to; k++ {
		in := &b.in[k]
		switch {
		case in.Is("RETURN_VALUE"):
			p := prev(k)
			if p >= from && b.is(p, "POP_TOP") {
				if q := prev(p); q >= from && (b.is(q, "ROT_TWO") || b.is(q, "SWAP") && b.in[q].Arg == 2) {
					b.consumed[p], b.consumed[q] = true, true
				}
			}
		case in.Is("RETURN_CONST"):
			if p := prev(k); p >= from && b.is(p, "POP_TOP") {
				b.consumed[p] = true
			}
		case in.Flow() == registry.FlowJump && in.Target == brk:
			if p := prev(k); p >= from && b.is(p, "POP_TOP") {
				b.consumed[p] = true
			}
		}
	}
}

// setupLoop recognizes a loop bracketed by SETUP_LOOP ... POP_BLOCK.
func (b *builder) setupLoop(i, hi, exit int) (int, []*Region) {
	if !b.is(i, "SETUP_LOOP") || b.in[i].Target < 0 {
		return i, nil
	}
	e := b.clampIndex(b.in[i].Target, hi)
	b.consumed[i] = true
	brk := b.in[i].Target

	k := i + 1
	for k < e && pure(&b.in[k]) {
		k++
	}
	if b.is(k, "GET_ITER") && b.is(k+1, "FOR_ITER") {
		f := k + 1
		x := b.at(b.in[f].Target)
		if x > f && x < e {
			var out []*Region
			out = append(out, b.linear(b.in[i+1:f]))
			b.consume(i+1, f)
			natural := x
			if b.is(x, "POP_BLOCK") {
				b.consumed[x] = true
				natural = x + 1
			}
			_, rs := b.forBody(f, f+1, x, natural, natural, b.off(natural), brk)
			out = append(out, rs...)
			if natural < e {
				out[len(out)-1].Else = b.structure(natural, e, brk)
			}
			out[len(out)-1].End = b.off(e)
			return e, out
		}
	}

	h := i + 1
	j := -1
	for _, src := range b.jumpsTo[b.off(h)] {
		if src > h && src < e && !b.consumed[src] && b.in[src].Flow() == registry.FlowJump && src > j {
			j = src
		}
	}
	r := &Region{Kind: Loop, Loop: While, Start: b.in[i].Offset, End: b.off(e)}
	bodyEnd, s := e, h
	if j >= 0 {
		bodyEnd = j
		b.consumed[j] = true
		b.roles[b.in[j].Offset] = Structural
		if b.is(j+1, "POP_BLOCK") {
			b.consumed[j+1] = true
		}
		ch := b.collectChain(h, j, false)
		for n := len(ch.leaves); n >= 1; n-- {
			last := ch.leaves[n-1]
			if b.target(last) != b.off(j+1) {
				continue
			}
			if c := ch.fold(n, b.off(last+1), b.off(j+1)); c != nil {
				r.Cond, s = c, last+1
				b.consume(h, s)
				break
			}
		}
	} else {
		for k := e - 1; k > h; k-- {
			if b.is(k, "POP_BLOCK") {
				b.consumed[k] = true
				bodyEnd = k
				break
			}
		}
	}
	b.pushLoop(&loopCtx{
		conts:   map[int]bool{b.off(h): true},
		contEnd: b.off(bodyEnd),
		brk:     brk,
		blocks:  true,
	})
	b.headers[h] = true
	r.Body = b.structure(s, bodyEnd, b.off(bodyEnd))
	delete(b.headers, h)
	b.popLoop()
	if els := bodyEnd + 2; j >= 0 && els < e {
		r.Else = b.structure(els, e, brk)
	}
	return e, []*Region{r}
}

// whileLoop recognizes a loop whose header i is the target of a later
// unconditional jump: a head-tested while, `while True`, or a loop that
// leaves through a conditional back jump at its end.
func (b *builder) whileLoop(i, hi, exit int) (int, []*Region) {
	if b.headers[i] {
		return i, nil
	}
	j := -1
	for _, src := range b.jumpsTo[b.in[i].Offset] {
		if src > i && src < hi && !b.consumed[src] && src > j {
			j = src
		}
	}
	if j < 0 {
		return i, nil
	}
	switch b.in[j].Flow() {
	case registry.FlowJump:
		if b.guardsInvertedLoop(i, hi) {
			return i, nil
		}
		return b.headLoop(i, j, hi, exit)
	case registry.FlowBranch:
		return b.tailLoop(i, j)
	}
	return i, nil
}

// guardsInvertedLoop reports whether i starts the guard test of a loop
// compiled with its test at the bottom. Such guards are recovered by the
// conditional recognizer.
func (b *builder) guardsInvertedLoop(i, hi int) bool {
	if !b.bundle.Revision.AtLeast(3, 10) {
		return false
	}
	ch := b.collectChain(i, hi, false)
	if len(ch.leaves) == 0 {
		return false
	}
	last := ch.leaves[len(ch.leaves)-1]
	fi := b.at(b.in[last].Target)
	if fi <= last+1 || fi > hi {
		return false
	}
	_, _, ok := b.bottomTest(last+1, fi, b.in[last].Target)
	return ok
}

// bottomTest finds the backward test closing the then-arm [s, fi). It
// returns the final branch index and the unconditional jump following it,
// or -1 when the branch jumps back itself.
func (b *builder) bottomTest(s, fi, f int) (lastBranch, jumpAt int, ok bool) {
	t := fi - 1
	if t < s {
		return -1, -1, false
	}
	top := b.off(s)
	switch in := &b.in[t]; {
	case isBranch(in) && in.Target == top:
		return t, -1, true
	case in.Flow() == registry.FlowJump && in.Target == top && t-1 >= s && isBranch(&b.in[t-1]) && b.in[t-1].Target == f:
		return t - 1, t, true
	}
	return -1, -1, false
}

func (b *builder) headLoop(i, j, hi, exit int) (int, []*Region) {
	r := &Region{Kind: Loop, Loop: While, Start: b.in[i].Offset}
	after := b.off(j + 1)
	s := i
	ch := b.collectChain(i, j, false)
	for n := len(ch.leaves); n >= 1; n-- {
		last := ch.leaves[n-1]
		if b.target(last) != after {
			continue
		}
		if c := ch.fold(n, b.off(last+1), after); c != nil {
			r.Cond, s = c, last+1
			b.consume(i, s)
			break
		}
	}
	brk := after
	next := j + 1
	elseEnd := -1
	if t := b.breakBeyond(s, j, after, hi, exit); t >= 0 {
		brk = t
		if r.Cond != nil {
			if e := b.clampIndex(t, hi); e > j+1 {
				elseEnd = e
			}
		}
	}
	b.consumed[j] = true
	b.roles[b.in[j].Offset] = Structural
	b.pushLoop(&loopCtx{
		conts:   map[int]bool{b.in[i].Offset: true},
		contEnd: b.off(j),
		brk:     brk,
	})
	b.headers[i] = true
	r.Body = b.structure(s, j, b.off(j))
	delete(b.headers, i)
	b.popLoop()
	if elseEnd >= 0 {
		r.Else = b.structure(j+1, elseEnd, brk)
		next = elseEnd
	}
	r.End = b.off(next)
	return next, []*Region{r}
}

// tailLoop recovers `while True: ...; if not c: break` from a loop whose
// last back jump is conditional.
func (b *builder) tailLoop(i, j int) (int, []*Region) {
	br := b.in[j]
	b.consumed[j] = true
	b.headers[i] = true
	b.pushLoop(&loopCtx{
		conts:   map[int]bool{b.in[i].Offset: true},
		contEnd: br.Offset,
		brk:     br.Next(),
	})
	body := b.structure(i, j, br.Offset)
	b.popLoop()
	delete(b.headers, i)

	leaf := &Cond{Op: CondLeaf, Branch: br, Carried: true, TestNone: testsNone(br.Op)}
	cond := leaf
	if jumpsOnTrue(br.Op) {
		cond = negate(leaf)
	}
	body = append(body, &Region{Kind: Conditional, Start: br.Offset, End: br.Next(), Cond: cond, Escape: Break})
	r := &Region{Kind: Loop, Loop: While, Start: b.in[i].Offset, End: br.Next(), Body: body}
	return j + 1, []*Region{r}
}

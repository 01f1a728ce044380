package flow

import "github.com/chazu/pyrecon/registry"

// asyncFor recognizes an async for loop. The async iterator was computed by
// the preceding run; each revision family brackets the awaited __anext__
// call differently.
func (b *builder) asyncFor(i, hi, exit int) (int, []*Region) {
	switch {
	case b.f.LoopBlocks:
		return b.asyncForExcept(i, hi)
	case b.f.SetupBlocks:
		return b.asyncForFinally(i, hi, exit)
	case b.f.ExceptionTable:
		return b.asyncForTable(i, hi, exit)
	}
	return i, nil
}

// asyncForFinally handles SETUP_FINALLY around GET_ANEXT with END_ASYNC_FOR
// as the handler.
func (b *builder) asyncForFinally(i, hi, exit int) (int, []*Region) {
	if !b.is(i, "SETUP_FINALLY") || !b.is(i+1, "GET_ANEXT") || b.in[i].Target < 0 {
		return i, nil
	}
	x := b.at(b.in[i].Target)
	if x <= i || x > hi || !b.is(x, "END_ASYNC_FOR") {
		return i, nil
	}
	m := b.awaited(i + 1)
	if m < 0 || !b.is(m, "POP_BLOCK") {
		return i, nil
	}
	b.consume(i, m+1)
	b.consumed[x] = true
	next, rs := b.forBody(i, m+1, x, x+1, hi, exit, b.off(x+1))
	rs[0].Async = true
	return next, rs
}

// asyncForTable handles GET_ANEXT under an exception-table entry whose
// handler is END_ASYNC_FOR.
func (b *builder) asyncForTable(i, hi, exit int) (int, []*Region) {
	if !b.is(i, "GET_ANEXT") {
		return i, nil
	}
	s, ok := b.g.Covering(b.in[i].Offset)
	if !ok {
		return i, nil
	}
	x := b.at(s.Handler)
	if x <= i || !b.is(x, "END_ASYNC_FOR") {
		return i, nil
	}
	m := b.awaited(i)
	if m < 0 {
		return i, nil
	}
	j := -1
	for _, src := range b.jumpsTo[b.in[i].Offset] {
		if src > i && src < x && !b.consumed[src] && b.in[src].Flow() == registry.FlowJump && src > j {
			j = src
		}
	}
	if j < 0 {
		return i, nil
	}
	natural := x + 1
	if x > j+1 {
		// END_ASYNC_FOR was moved out of line
		natural = j + 1
	}
	if natural > hi {
		return i, nil
	}
	b.consume(i, m)
	b.consumed[x] = true
	next, rs := b.forBody(i, m, j+1, natural, hi, exit, b.off(natural))
	rs[0].Async = true
	return next, rs
}

// asyncForExcept handles the SETUP_LOOP form where a SETUP_EXCEPT block
// catches StopAsyncIteration around the awaited GET_ANEXT.
func (b *builder) asyncForExcept(i, hi int) (int, []*Region) {
	if !b.is(i, "SETUP_LOOP") || !b.is(i+1, "SETUP_EXCEPT") || !b.is(i+2, "GET_ANEXT") {
		return i, nil
	}
	e := b.clampIndex(b.in[i].Target, hi)
	ex := b.at(b.in[i+1].Target)
	m := b.awaited(i + 2)
	if ex < 0 || ex > e || m < 0 {
		return i, nil
	}
	p := m
	for p < ex && !b.is(p, "POP_BLOCK") {
		p++
	}
	if !b.is(p+1, "JUMP_FORWARD") || !b.is(ex, "DUP_TOP") || !b.is(ex+2, "COMPARE_OP") ||
		!b.is(ex+4, "END_FINALLY") || b.at(b.in[p+1].Target) != ex+5 {
		return i, nil
	}
	c := b.at(b.in[ex+3].Target)
	j := c - 1
	if c <= ex || c > e || !b.is(j, "JUMP_ABSOLUTE") || b.in[j].Target != b.in[i+1].Offset {
		return i, nil
	}
	els := c
	for b.is(els, "POP_TOP") {
		els++
	}
	if !b.is(els, "POP_EXCEPT") {
		return i, nil
	}
	for els++; b.is(els, "POP_TOP"); els++ {
	}
	if !b.is(els, "POP_BLOCK") {
		return i, nil
	}
	els++

	b.consume(i, m)
	b.consume(p, p+2)
	b.consume(ex, ex+5)
	b.consume(j, els)
	brk := b.in[i].Target
	r := &Region{Kind: Loop, Loop: For, Async: true, Start: b.in[i].Offset, End: b.off(e)}
	b.pushLoop(&loopCtx{
		conts:   map[int]bool{b.in[i+1].Offset: true},
		contEnd: b.off(j),
		brk:     brk,
		isFor:   true,
		blocks:  true,
	})
	r.Body = append(b.structure(m, p, b.off(p)), b.structure(ex+5, j, b.off(j))...)
	b.popLoop()
	if els < e {
		r.Else = b.structure(els, e, brk)
	}
	return e, []*Region{r}
}

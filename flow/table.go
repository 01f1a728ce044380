package flow

import (
	"sort"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// tableSite is one try or with statement recovered from the exception
// table: the union of the entries that share a PUSH_EXC_INFO handler.
type tableSite struct {
	lo, hi  int // protected extent [lo, hi)
	h       int // handler index
	c       int // index of the COPY 3; POP_EXCEPT; RERAISE 1 cleanup, -1 when absent
	entries [][2]int
}

func (t *tableSite) widen(lo, hi int) bool {
	if t.lo >= 0 && lo >= t.lo && hi <= t.hi {
		return false
	}
	if t.lo < 0 {
		t.lo, t.hi = lo, hi
		return true
	}
	t.lo, t.hi = min(t.lo, lo), max(t.hi, hi)
	return true
}

func (b *builder) tableSites() {
	b.tsites = make(map[int][]*tableSite)
	b.handlers = make(map[int]*tableSite)
	var all []*tableSite
	for _, s := range b.g.Sites {
		h := b.at(s.Handler)
		if h < 0 || h >= len(b.in) || !b.is(h, "PUSH_EXC_INFO") {
			continue
		}
		lo, hi := b.at(s.Start), b.at(s.End)
		if lo < 0 || hi < 0 {
			continue
		}
		t := b.handlers[h]
		if t == nil {
			t = &tableSite{h: h, c: b.cleanupOf(h)}
			b.handlers[h] = t
			all = append(all, t)
		}
		t.entries = append(t.entries, [2]int{lo, hi})
	}

	// The entries of a statement that fall inside the handler code of a try
	// nested in it only guard that handler's exits; the nested try's own
	// range stands in for them, since its first instructions are not
	// covered by the outer handler.
	nested := make(map[*tableSite][]*tableSite)
	depth := make(map[*tableSite]int)
	for _, u := range all {
		if t := b.enclosing(u); t != nil {
			nested[t] = append(nested[t], u)
		}
		for t, n := b.enclosing(u), 0; t != nil && n < len(all); t, n = b.enclosing(t), n+1 {
			depth[u]++
		}
	}
	for _, t := range all {
		t.lo, t.hi = -1, -1
		for _, e := range t.entries {
			if !b.inHandlerOf(e[0], nested[t]) {
				t.widen(e[0], e[1])
			}
		}
	}
	for changed := true; changed; {
		changed = false
		for t, us := range nested {
			for _, u := range us {
				if u.lo >= 0 && t.widen(u.lo, u.hi) {
					changed = true
				}
			}
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].lo != all[j].lo {
			return all[i].lo < all[j].lo
		}
		if all[i].hi != all[j].hi {
			return all[i].hi > all[j].hi
		}
		if depth[all[i]] != depth[all[j]] {
			return depth[all[i]] < depth[all[j]]
		}
		return all[i].h < all[j].h
	})
	for _, t := range all {
		if t.lo >= 0 {
			b.tsites[t.lo] = append(b.tsites[t.lo], t)
		}
	}
}

// enclosing returns the site whose handler protects the cleanup of u.
func (b *builder) enclosing(u *tableSite) *tableSite {
	if u.c < 0 {
		return nil
	}
	s, ok := b.g.Covering(b.off(u.c))
	if !ok {
		return nil
	}
	if t := b.handlers[b.at(s.Handler)]; t != u {
		return t
	}
	return nil
}

func (b *builder) inHandlerOf(k int, us []*tableSite) bool {
	for _, u := range us {
		if k >= u.h && k < b.spanEnd(u) {
			return true
		}
	}
	return false
}

func (b *builder) cleanupAt(c int) bool {
	return b.is(c, "COPY") && b.in[c].Arg == 3 && b.is(c+1, "POP_EXCEPT") && b.is(c+2, "RERAISE") && b.in[c+2].Arg == 1
}

// cleanupOf finds the block that restores the previous exception when the
// handler at h raises.
func (b *builder) cleanupOf(h int) int {
	if s, ok := b.g.Covering(b.off(h)); ok {
		if c := b.at(s.Handler); c >= 0 && b.cleanupAt(c) {
			return c
		}
	}
	for k := h + 1; k < len(b.in); k++ {
		if b.cleanupAt(k) {
			return k
		}
	}
	return -1
}

// consumeCleanups removes handler blocks that only restore state and
// re-raise: the cleanups of except clauses, of bound exception names and of
// generator frames.
func (b *builder) consumeCleanups() {
	for _, s := range b.g.Sites {
		t := b.at(s.Handler)
		if t < 0 || t >= len(b.in) || b.is(t, "PUSH_EXC_INFO") {
			continue
		}
		blk := b.g.BlockAt(t)
		if blk.First != t {
			continue
		}
		if b.is(blk.Last-1, "RERAISE") || b.is(t, "CLEANUP_THROW") || b.collectsRaised(blk) {
			b.consume(blk.First, blk.Last)
		}
	}
}

// collectsRaised reports whether blk is the handler of an except* clause
// body: it adds what the body raised to the result list and jumps to the
// clause's join.
func (b *builder) collectsRaised(blk *Block) bool {
	k := blk.Last - 3
	return k >= blk.First && b.is(k, "LIST_APPEND") && b.in[k].Arg == 3 && b.is(k+1, "POP_TOP") &&
		b.in[k+2].Flow() == registry.FlowJump
}

// spanEnd is the index after the last instruction belonging to the handler
// of t.
func (b *builder) spanEnd(t *tableSite) int {
	if t.c >= 0 {
		return t.c + 3
	}
	for k := t.h + 1; k < len(b.in); k++ {
		if b.is(k, "RERAISE") && b.in[k].Arg == 0 {
			return k + 1
		}
	}
	return len(b.in)
}

// tryTable recognizes a try statement whose protected range starts at i.
func (b *builder) tryTable(i, hi, exit int) (int, []*Region) {
	if !b.f.ExceptionTable {
		return i, nil
	}
	var t *tableSite
	for _, s := range b.tsites[i] {
		if !b.active[s.h] && !b.is(s.h+1, "WITH_EXCEPT_START") && s.hi <= hi && s.h > i {
			t = s
			break
		}
	}
	if t == nil {
		return i, nil
	}
	b.active[t.h] = true
	defer delete(b.active, t.h)

	first := t.h + 1
	switch {
	case b.is(first, "COPY") && b.in[first].Arg == 1 && b.is(first+1, "BUILD_LIST") && b.is(first+2, "SWAP"):
		return b.tableExcept(i, t, hi, true)
	case b.is(first, "POP_TOP") || b.checksMatch(first):
		return b.tableExcept(i, t, hi, false)
	}
	return b.tableFinally(i, t, hi)
}

// checksMatch reports whether the handler code at k starts with a typed
// except clause.
func (b *builder) checksMatch(k int) bool {
	for k < len(b.in) && pure(&b.in[k]) {
		k++
	}
	return b.is(k, "CHECK_EXC_MATCH")
}

// normalExit consumes the jump that carries the normal path over the
// handler at t and returns its target, or -1.
func (b *builder) normalExit(t *tableSite) (jump, end int) {
	j := t.h - 1
	if j < t.hi || b.consumed[j] {
		return -1, -1
	}
	in := &b.in[j]
	if in.Flow() != registry.FlowJump || in.Target <= b.off(t.h) {
		return -1, -1
	}
	b.consumed[j] = true
	b.roles[in.Offset] = Structural
	return j, in.Target
}

// resume picks the index structuring continues from after a table site.
func (b *builder) resume(t *tableSite, after, hi, end int) int {
	next := after
	if t.h <= hi && t.h <= after+1 {
		next = max(next, b.spanEnd(t))
	}
	if end >= 0 {
		if e := b.at(end); e > next && e <= hi {
			next = e
		}
	}
	return min(next, hi)
}

func (b *builder) tableExcept(i int, t *tableSite, hi int, grouped bool) (int, []*Region) {
	r := &Region{Kind: TryExcept, Start: b.off(i), Grouped: grouped}
	j, end := b.normalExit(t)
	after := t.hi
	elseLo, elseHi := -1, -1
	if j >= 0 {
		elseLo, elseHi, after = t.hi, j, j
	}

	stop := t.c
	if stop < 0 {
		stop = b.spanEnd(t)
	}
	k := t.h + 1
	if grouped {
		k += 3
	}
	var clauses []*clause
	for k < stop {
		if b.is(k, "RERAISE") {
			b.consumed[k] = true
			k++
			break
		}
		cl, next := b.tableClause(k, stop, grouped)
		if cl == nil {
			break
		}
		clauses = append(clauses, cl)
		k = next
	}
	if len(clauses) == 0 {
		span := b.spanEnd(t)
		b.consume(i, span)
		return span, []*Region{b.placeholder(diag.UnsupportedShape, nil, i, span, "unrecognized exception handler")}
	}

	joins := make([]int, len(clauses))
	if grouped {
		// each clause body leaves through its own join; the last join
		// re-raises what no clause matched
		for n, c := range clauses {
			joins[n] = -1
			if j := c.hi - 1; j >= c.lo {
				if in := &b.in[j]; in.Flow() == registry.FlowJump && in.Target >= b.off(c.hi) {
					joins[n] = in.Target
				}
			}
		}
		for m := k; m < stop; m++ {
			if in := &b.in[m]; end < 0 && in.Flow() == registry.FlowJump && in.Target >= b.off(stop) {
				end = in.Target
			}
		}
	}
	if end < 0 {
		end = b.clauseExit(clauses, stop)
	}
	for n, c := range clauses {
		trim := end
		if grouped && joins[n] >= 0 {
			trim = joins[n]
		}
		b.trimHandler(c, trim)
	}

	r.Body = b.structure(i, t.hi, b.off(t.hi))
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
	b.consume(t.h, b.spanEnd(t))
	next := b.resume(t, after, hi, end)
	r.End = b.off(next)
	return next, []*Region{r}
}

// tableClause parses one except clause of a table handler starting at k.
func (b *builder) tableClause(k, stop int, grouped bool) (*clause, int) {
	if !grouped && b.is(k, "POP_TOP") {
		b.consumed[k] = true
		return &clause{start: k, lo: k + 1, hi: stop}, stop
	}
	m := k
	for m < stop && pure(&b.in[m]) {
		m++
	}
	if m == k {
		return nil, k
	}
	var bind, next, bodyHi int
	switch {
	case !grouped && b.is(m, "CHECK_EXC_MATCH") && m+1 < stop && isBranch(&b.in[m+1]):
		next = b.at(b.in[m+1].Target)
		bind, bodyHi = m+2, next
	case grouped && b.is(m, "CHECK_EG_MATCH") && b.is(m+1, "COPY") && m+2 < stop && isBranch(&b.in[m+2]):
		skip := b.at(b.in[m+2].Target)
		bind, bodyHi, next = m+3, skip, skip
		if b.is(skip, "POP_TOP") {
			b.consumed[skip] = true
			next = skip + 1
		}
	default:
		return nil, k
	}
	if next <= bind || next > stop {
		return nil, k
	}
	cl := &clause{typ: b.in[k:m], start: k, lo: bind + 1, hi: bodyHi}
	switch {
	case b.is(bind, "STORE_NAME", "STORE_FAST", "STORE_GLOBAL", "STORE_DEREF"):
		cl.name, _ = b.in[bind].Argval.(string)
	case b.is(bind, "POP_TOP"):
	default:
		return nil, k
	}
	b.consume(k, bind+1)
	return cl, next
}

func (b *builder) tableFinally(i int, t *tableSite, hi int) (int, []*Region) {
	stop := t.c
	if stop < 0 {
		stop = b.spanEnd(t)
	}
	re := -1
	for k := stop - 1; k > t.h; k-- {
		if b.is(k, "RERAISE") {
			re = k
			break
		}
	}
	if re < 0 {
		span := b.spanEnd(t)
		b.consume(i, span)
		return span, []*Region{b.placeholder(diag.UnsupportedShape, nil, i, span, "finally block without RERAISE")}
	}
	n := re - (t.h + 1)
	bodyEnd, after, end := t.hi, t.hi, -1
	if k := b.normalCopy(i, t, n, hi); k >= 0 {
		bodyEnd, after = k, k+n
		if after < hi {
			if in := &b.in[after]; in.Flow() == registry.FlowJump && in.Target > in.Offset {
				b.consumed[after] = true
				b.roles[in.Offset] = Structural
				end = in.Target
				after++
			} else if w := b.returnsNone(after); w > 0 && (after+w >= min(t.h, hi) || b.handlers[after+w] != nil) {
				// the code ends with the statement
				after += w
			}
		}
		b.consume(k, after)
		b.exitCopies(i, t, n, k)
	} else {
		j, e := b.normalExit(t)
		end = e
		switch {
		case j >= 0:
			b.consume(t.hi, j)
			after = j
		case t.h <= hi:
			b.consume(t.hi, t.h)
			after = t.h
		}
	}
	r := &Region{Kind: TryFinally, Start: b.off(i)}
	r.Body = b.structure(i, bodyEnd, b.off(bodyEnd))
	r.Finally = b.structure(t.h+1, re, b.off(re))
	b.consume(t.h, b.spanEnd(t))
	next := b.resume(t, after, hi, end)
	r.End = b.off(next)
	return next, []*Region{r}
}

// ownedBy reports whether in[k] is protected by the handler of t or by a
// handler between i and t's.
func (b *builder) ownedBy(k, i int, t *tableSite) bool {
	s, ok := b.g.Covering(b.off(k))
	if !ok {
		return false
	}
	h := b.at(s.Handler)
	return h == t.h || h > i && h < t.h
}

// normalCopy finds the copy of the n-instruction finally body of t that the
// normal path runs after the protected body starting at i, or -1. It is
// the first unprotected run equal to the finally body outside the handlers
// of nested statements.
func (b *builder) normalCopy(i int, t *tableSite, n, hi int) int {
	if n == 0 {
		return -1
	}
	limit := min(t.h, hi)
	for k := i; k+n <= limit; k++ {
		if u := b.handlers[k]; u != nil && u != t {
			k = b.spanEnd(u) - 1
			continue
		}
		if b.consumed[k] || b.ownedBy(k, i, t) || !b.sameCode(k, t.h+1, n) {
			continue
		}
		// a copy followed by more of the body is a return from inside it
		if m := k + n + b.returnsNone(k+n); m < limit && b.ownedBy(m, i, t) && b.handlers[m] == nil {
			continue
		}
		return k
	}
	return -1
}

// exitCopies consumes the copies of the finally body that end handler
// clauses of nested statements, with the implicit return that follows them.
func (b *builder) exitCopies(i int, t *tableSite, n, normal int) {
	for k := i; k+n <= t.h; k++ {
		if k == normal || b.consumed[k] || b.ownedBy(k, i, t) || !b.inNestedHandler(k, i, t) {
			continue
		}
		if !b.sameCode(k, t.h+1, n) {
			continue
		}
		w := b.returnsNone(k + n)
		if w == 0 {
			continue
		}
		b.consume(k, k+n+w)
		k += n + w - 1
	}
	b.exits[b.off(normal)] = true
}

func (b *builder) inNestedHandler(k, i int, t *tableSite) bool {
	for h, u := range b.handlers {
		if u != t && h > i && h < t.h && k >= h && k < b.spanEnd(u) {
			return true
		}
	}
	return false
}

// returnsNone returns the width of the `return None` at k, or 0.
func (b *builder) returnsNone(k int) int {
	switch {
	case b.is(k, "RETURN_CONST"):
		if _, ok := b.in[k].Argval.(pyc.NoneType); ok {
			return 1
		}
	case b.loadsNone(k) && b.is(k+1, "RETURN_VALUE"):
		return 2
	}
	return 0
}

// Package flow recovers structured control flow from a decoded instruction
// list: basic blocks, dominators, exception sites and the region tree the
// grammar reducer walks.
package flow

import (
	"errors"
	"sort"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

var (
	ErrIrreducible = errors.New("irreducible control flow")
)

// EdgeKind tags a successor edge.
type EdgeKind uint8

const (
	EdgeFall EdgeKind = iota
	EdgeJump
	EdgeCond
	EdgeException
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFall:
		return "fall"
	case EdgeJump:
		return "jump"
	case EdgeCond:
		return "cond"
	case EdgeException:
		return "exception"
	}
	return "edge"
}

// Edge points at a successor block.
type Edge struct {
	To   int
	Kind EdgeKind
}

// Block is a maximal straight-line run of instructions [First, Last).
type Block struct {
	Index       int
	First, Last int // instruction indices
	Start, End  int // byte offsets
	Succs       []Edge
	Preds       []int
}

// Site is a protected range and its handler, taken from a SETUP_*
// instruction or from an exception table entry.
type Site struct {
	Start, End int // protected byte range
	Handler    int // handler offset
	Depth      int
	Lasti      bool
	Setup      string // mnemonic of the SETUP_* instruction, empty for table entries
}

// Graph is the block graph of one code unit.
type Graph struct {
	Instrs []disasm.Instruction
	Index  disasm.Index
	Blocks []*Block
	Sites  []Site

	blockOf []int // instruction index -> block index
	idom    []int
	order   []int // reverse postorder position, -1 when unreachable
	live    []bool
}

// BuildGraph splits instrs into blocks and computes dominators over the
// normal (non-exception) edges.
func BuildGraph(instrs []disasm.Instruction, unit *pyc.CodeUnit, bundle *registry.Bundle) *Graph {
	g := &Graph{Instrs: instrs, Index: disasm.NewIndex(instrs)}
	g.collectSites(unit, bundle)
	g.split()
	g.link()
	g.dominators()
	g.liveness()
	return g
}

func (g *Graph) collectSites(unit *pyc.CodeUnit, bundle *registry.Bundle) {
	if bundle.Features.ExceptionTable {
		for _, e := range unit.Exceptions {
			g.Sites = append(g.Sites, Site{Start: e.Start, End: e.End, Handler: e.Target, Depth: e.Depth, Lasti: e.Lasti})
		}
		return
	}
	for i := range g.Instrs {
		in := &g.Instrs[i]
		if in.Flow() == registry.FlowSetup && in.Target >= 0 {
			g.Sites = append(g.Sites, Site{Start: in.Next(), End: in.Target, Handler: in.Target, Setup: in.Op})
		}
	}
}

func (g *Graph) split() {
	n := len(g.Instrs)
	if n == 0 {
		return
	}
	leader := make([]bool, n)
	leader[0] = true
	mark := func(off int) {
		if i := g.Index.Of(off); i >= 0 {
			leader[i] = true
		}
	}
	for i := range g.Instrs {
		in := &g.Instrs[i]
		if in.IsJump() && in.Target >= 0 {
			mark(in.Target)
		}
		if in.IsJump() || in.Flow().Terminal() || in.Flow() == registry.FlowSetup {
			if i+1 < n {
				leader[i+1] = true
			}
		}
	}
	for _, s := range g.Sites {
		mark(s.Start)
		mark(s.End)
		mark(s.Handler)
	}
	g.blockOf = make([]int, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && !leader[j] {
			j++
		}
		b := &Block{
			Index: len(g.Blocks),
			First: i,
			Last:  j,
			Start: g.Instrs[i].Offset,
			End:   g.Instrs[j-1].Next(),
		}
		for k := i; k < j; k++ {
			g.blockOf[k] = b.Index
		}
		g.Blocks = append(g.Blocks, b)
		i = j
	}
}

func (g *Graph) link() {
	add := func(b *Block, off int, kind EdgeKind) {
		i := g.Index.Of(off)
		if i < 0 {
			return
		}
		to := g.blockOf[i]
		for _, e := range b.Succs {
			if e.To == to && e.Kind == kind {
				return
			}
		}
		b.Succs = append(b.Succs, Edge{To: to, Kind: kind})
		g.Blocks[to].Preds = append(g.Blocks[to].Preds, b.Index)
	}
	for _, b := range g.Blocks {
		last := &g.Instrs[b.Last-1]
		fall := b.Last < len(g.Instrs)
		switch last.Flow() {
		case registry.FlowJump:
			add(b, last.Target, EdgeJump)
			fall = false
		case registry.FlowBranch, registry.FlowBranchKeep, registry.FlowForIter:
			add(b, last.Target, EdgeCond)
		case registry.FlowSetup:
			add(b, last.Target, EdgeException)
		case registry.FlowReturn, registry.FlowRaise, registry.FlowBreak:
			fall = false
		}
		if fall {
			add(b, g.Instrs[b.Last].Offset, EdgeFall)
		}
		for _, s := range g.Sites {
			if s.Setup == "" && b.Start >= s.Start && b.Start < s.End {
				add(b, s.Handler, EdgeException)
			}
		}
	}
}

// dominators runs the Cooper-Harvey-Kennedy iteration over normal edges.
func (g *Graph) dominators() {
	n := len(g.Blocks)
	g.idom = make([]int, n)
	g.order = make([]int, n)
	for i := range g.idom {
		g.idom[i] = -1
		g.order[i] = -1
	}
	if n == 0 {
		return
	}
	var post []int
	seen := make([]bool, n)
	var visit func(int)
	visit = func(b int) {
		seen[b] = true
		for _, e := range g.Blocks[b].Succs {
			if e.Kind != EdgeException && !seen[e.To] {
				visit(e.To)
			}
		}
		post = append(post, b)
	}
	visit(0)
	rpo := make([]int, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	for i, b := range rpo {
		g.order[b] = i
	}
	intersect := func(a, b int) int {
		for a != b {
			for g.order[a] > g.order[b] {
				a = g.idom[a]
			}
			for g.order[b] > g.order[a] {
				b = g.idom[b]
			}
		}
		return a
	}
	g.idom[0] = 0
	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			nd := -1
			for _, p := range g.Blocks[b].Preds {
				if g.idom[p] < 0 || !g.normalEdge(p, b) {
					continue
				}
				if nd < 0 {
					nd = p
				} else {
					nd = intersect(p, nd)
				}
			}
			if nd >= 0 && g.idom[b] != nd {
				g.idom[b] = nd
				changed = true
			}
		}
	}
}

func (g *Graph) normalEdge(from, to int) bool {
	for _, e := range g.Blocks[from].Succs {
		if e.To == to && e.Kind != EdgeException {
			return true
		}
	}
	return false
}

// liveness marks blocks reachable from the entry over any edge.
func (g *Graph) liveness() {
	g.live = make([]bool, len(g.Blocks))
	if len(g.Blocks) == 0 {
		return
	}
	stack := []int{0}
	g.live[0] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Blocks[b].Succs {
			if !g.live[e.To] {
				g.live[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
}

// Dominates reports whether block a dominates block b. Blocks unreachable
// on the normal path are dominated by nothing.
func (g *Graph) Dominates(a, b int) bool {
	if g.order[b] < 0 || g.order[a] < 0 {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == 0 {
			return false
		}
		b = g.idom[b]
	}
}

// BlockAt returns the block holding instruction index i.
func (g *Graph) BlockAt(i int) *Block {
	if i < 0 || i >= len(g.blockOf) {
		return nil
	}
	return g.Blocks[g.blockOf[i]]
}

// Live reports whether the block holding instruction i is reachable.
func (g *Graph) Live(i int) bool {
	b := g.BlockAt(i)
	return b != nil && g.live[b.Index]
}

// Irreducible returns the instruction spans [first, last) of loops whose
// back edge targets a block that does not dominate the edge's source. The
// span starts at the earliest jump entering the loop from outside.
func (g *Graph) Irreducible() [][2]int {
	var spans [][2]int
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if e.Kind == EdgeException {
				continue
			}
			h := g.Blocks[e.To]
			if h.Start > b.Start || g.order[b.Index] < 0 || g.Dominates(h.Index, b.Index) {
				continue
			}
			first, last := h.First, b.Last
			for _, m := range g.Blocks[h.Index+1 : b.Index+1] {
				for _, p := range m.Preds {
					pb := g.Blocks[p]
					if j := pb.Last - 1; pb.Start < h.Start && j < first {
						first = j
					}
				}
			}
			spans = append(spans, [2]int{first, last})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	return merge(spans)
}

func merge(spans [][2]int) [][2]int {
	var out [][2]int
	for _, s := range spans {
		if n := len(out); n > 0 && s[0] <= out[n-1][1] {
			if s[1] > out[n-1][1] {
				out[n-1][1] = s[1]
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// Covering returns the innermost table entry covering offset, if any.
func (g *Graph) Covering(offset int) (Site, bool) {
	best, ok := Site{}, false
	for _, s := range g.Sites {
		if s.Setup != "" || offset < s.Start || offset >= s.End {
			continue
		}
		if !ok || s.End-s.Start < best.End-best.Start {
			best, ok = s, true
		}
	}
	return best, ok
}

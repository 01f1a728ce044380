package registry

import (
	"math/bits"
	"sort"
)

// ---------------------------------------------------------------------------
// Grammar rules
// ---------------------------------------------------------------------------

// SymKind classifies one right-hand-side symbol of a rule.
type SymKind uint8

const (
	SymOp    SymKind = iota // an unreduced instruction with one of Names
	SymExpr                 // any expression-valued symbol
	SymExprs                // a run of expressions whose length comes from Count
	SymNT                   // a nonterminal named in Names
	SymAny                  // any symbol; repeated Count times when Count is set
)

// CountMode derives the length of a variadic run from the trigger operand.
type CountMode uint8

const (
	CountNone         CountMode = iota
	CountArg                    // arg
	CountArgPair                // 2*arg
	CountMakeFunction           // one slot per flag in the low nibble
	CountPy2Call                // positional + 2*keyword (2.x call encoding)
	CountFormatSpec             // 1 when a format spec is on the stack
	CountCallEx                 // 1 when a keyword mapping is on the stack
	CountPy3Function            // defaults + 2*keyword defaults + annotations (3.0 to 3.5)
)

// Count returns the run length for the given trigger operand.
func (m CountMode) Count(arg int) int {
	switch m {
	case CountArg:
		return arg
	case CountArgPair:
		return 2 * arg
	case CountMakeFunction:
		return bits.OnesCount(uint(arg & 0xF))
	case CountPy2Call:
		return arg&0xFF + 2*(arg>>8&0xFF)
	case CountFormatSpec:
		return (arg & 4) >> 2
	case CountCallEx:
		return arg & 1
	case CountPy3Function:
		return arg&0xFF + 2*(arg>>8&0xFF) + arg>>16&0x7FFF
	}
	return 1
}

// Sym is one right-hand-side symbol.
type Sym struct {
	Kind  SymKind
	Names []string
	Count CountMode
}

func Op(names ...string) Sym   { return Sym{Kind: SymOp, Names: names} }
func Expr() Sym                { return Sym{Kind: SymExpr} }
func Exprs(mode CountMode) Sym { return Sym{Kind: SymExprs, Count: mode} }
func NT(names ...string) Sym   { return Sym{Kind: SymNT, Names: names} }
func Any() Sym                 { return Sym{Kind: SymAny} }
func Anys(mode CountMode) Sym  { return Sym{Kind: SymAny, Count: mode} }

// Variadic reports whether the symbol matches a counted run.
func (s Sym) Variadic() bool { return s.Count != CountNone }

func (s Sym) matchesName(n string) bool {
	for _, name := range s.Names {
		if name == n {
			return true
		}
	}
	return false
}

// AnyArg accepts every trigger operand.
const AnyArg = -1

// Rule is one production. The final RHS symbol is always the trigger
// instruction; the symbols before it are matched against the top of the
// reduction stack.
type Rule struct {
	Name     string
	LHS      string
	RHS      []Sym
	Priority int
	Action   string
	Arg      int    // required trigger operand, or AnyArg
	Since    string // first revision the rule applies to
	Until    string // last revision the rule applies to
}

func rule(name, lhs, action string, rhs ...Sym) Rule {
	return Rule{Name: name, LHS: lhs, RHS: rhs, Priority: 5, Action: action, Arg: AnyArg}
}

func (r Rule) prio(p int) Rule       { r.Priority = p; return r }
func (r Rule) arg(a int) Rule        { r.Arg = a; return r }
func (r Rule) since(tag string) Rule { r.Since = tag; return r }
func (r Rule) until(tag string) Rule { r.Until = tag; return r }

// Trigger returns the trigger symbol.
func (r *Rule) Trigger() Sym {
	return r.RHS[len(r.RHS)-1]
}

// Specificity ranks the rule's nonterminal for tie-breaking. Named
// constructs beat the generic stack shuffles and catch-alls.
func (r *Rule) Specificity() int {
	if s, ok := specificity[r.LHS]; ok {
		return s
	}
	return 1
}

var specificity = map[string]int{
	"shuffle": -1,
	"expr":    0,
	"stmt":    0,
	"discard": 0,
}

func (r Rule) applies(rev Revision) bool {
	if r.Since != "" {
		if s, ok := revisionByTag(r.Since); ok && rev.Before(s.Major, s.Minor) {
			return false
		}
	}
	if r.Until != "" {
		if u, ok := revisionByTag(r.Until); ok && u.Before(rev.Major, rev.Minor) {
			return false
		}
	}
	return true
}

// RuleSet holds the rules of one revision indexed by trigger mnemonic.
type RuleSet struct {
	byTrigger map[string][]*Rule
	waiting   map[string]bool
	all       []*Rule
}

func newRuleSet(rev Revision, ops *OpcodeTable, rules []Rule) *RuleSet {
	rs := &RuleSet{byTrigger: map[string][]*Rule{}, waiting: map[string]bool{}}
	for _, r := range rules {
		if !r.applies(rev) {
			continue
		}
		r, ok := restrict(r, ops)
		if !ok {
			continue
		}
		rp := &r
		rs.all = append(rs.all, rp)
		for _, name := range r.Trigger().Names {
			rs.byTrigger[name] = append(rs.byTrigger[name], rp)
		}
		for _, s := range r.RHS[:len(r.RHS)-1] {
			if s.Kind == SymOp {
				for _, name := range s.Names {
					rs.waiting[name] = true
				}
			}
		}
	}
	for _, list := range rs.byTrigger {
		sort.SliceStable(list, func(i, j int) bool {
			return ruleBefore(list[i], list[j], len(list[i].RHS), len(list[j].RHS))
		})
	}
	return rs
}

// restrict drops mnemonics the revision does not define. A rule whose Op
// symbol ends up empty cannot fire and is discarded.
func restrict(r Rule, ops *OpcodeTable) (Rule, bool) {
	rhs := make([]Sym, len(r.RHS))
	for i, s := range r.RHS {
		if s.Kind == SymOp {
			var names []string
			for _, n := range s.Names {
				if ops.Has(n) {
					names = append(names, n)
				}
			}
			if len(names) == 0 {
				return r, false
			}
			s.Names = names
		}
		rhs[i] = s
	}
	r.RHS = rhs
	return r, true
}

// ruleBefore orders two candidate matches: priority, matched length,
// specificity, then name.
func ruleBefore(a, b *Rule, lenA, lenB int) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if lenA != lenB {
		return lenA > lenB
	}
	if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
		return sa > sb
	}
	return a.Name < b.Name
}

// Better reports whether rule a matching lenA symbols beats rule b matching lenB.
func Better(a, b *Rule, lenA, lenB int) bool {
	return ruleBefore(a, b, lenA, lenB)
}

// Candidates returns the rules triggered by a mnemonic in preference order.
func (rs *RuleSet) Candidates(mnemonic string) []*Rule {
	return rs.byTrigger[mnemonic]
}

// Waiting reports whether the mnemonic appears before the trigger of some
// rule, so an unreduced instance may still be consumed later.
func (rs *RuleSet) Waiting(mnemonic string) bool {
	return rs.waiting[mnemonic]
}

// Rules returns every rule of the revision.
func (rs *RuleSet) Rules() []*Rule {
	return rs.all
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.all)
}

func (s Sym) Matches(mnemonic string) bool {
	return s.Kind == SymOp && s.matchesName(mnemonic)
}

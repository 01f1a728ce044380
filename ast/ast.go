// Package ast is the semantic tree produced by the grammar reducer and
// consumed by the unparser.
package ast

import "github.com/chazu/pyrecon/diag"

// Node is any tree node.
type Node interface {
	node()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Pattern is a match-statement pattern.
type Pattern interface {
	Node
	patternNode()
}

// Module is the root of a decompiled artifact.
type Module struct {
	Body []Stmt
	// Py2 selects 2.x surface syntax when rendering.
	Py2 bool
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

type (
	Assign struct {
		Targets []Expr // chained assignment when more than one
		Value   Expr
	}

	AugAssign struct {
		Target Expr
		Op     string // "+=", "<<=", ...
		Value  Expr
	}

	AnnAssign struct {
		Target     Expr
		Annotation Expr
		Value      Expr // nil for a bare annotation
	}

	ExprStmt struct {
		X Expr
	}

	If struct {
		Test Expr
		Body []Stmt
		Else []Stmt // a lone If here renders as elif
	}

	For struct {
		Target Expr
		Iter   Expr
		Body   []Stmt
		Else   []Stmt
		Async  bool
	}

	While struct {
		Test Expr
		Body []Stmt
		Else []Stmt
	}

	Try struct {
		Body     []Stmt
		Handlers []*ExceptHandler
		Grouped  []*GroupedExceptionHandler // except* clauses; exclusive with Handlers
		Else     []Stmt
	}

	TryFinally struct {
		Body    []Stmt
		Finally []Stmt
	}

	With struct {
		Items []*WithItem
		Body  []Stmt
		Async bool
	}

	Match struct {
		Subject Expr
		Cases   []*MatchCase
	}

	FunctionDef struct {
		Name       string
		Args       *Arguments
		Body       []Stmt
		Decorators []Expr
		Returns    Expr
		Async      bool
	}

	ClassDef struct {
		Name       string
		Bases      []Expr
		Keywords   []*Keyword
		Body       []Stmt
		Decorators []Expr
	}

	Return struct {
		Value Expr
	}

	Raise struct {
		Exc   Expr
		Cause Expr
	}

	Assert struct {
		Test Expr
		Msg  Expr
	}

	Delete struct {
		Targets []Expr
	}

	Import struct {
		Names []*Alias
	}

	ImportFrom struct {
		Module string
		Names  []*Alias
		Level  int
	}

	Global struct {
		Names []string
	}

	Nonlocal struct {
		Names []string
	}

	Pass     struct{}
	Break    struct{}
	Continue struct{}

	// Print is the 2.x print statement.
	Print struct {
		Dest   Expr
		Values []Expr
		NL     bool
	}

	// Exec is the 2.x exec statement.
	Exec struct {
		Body    Expr
		Globals Expr
		Locals  Expr
	}
)

// ExceptHandler is one except clause. Type nil means a bare except.
type ExceptHandler struct {
	Type Expr
	Name string
	Body []Stmt
}

// GroupedExceptionHandler is an except* clause. Remainder is the re-raise
// of the unmatched part of the group, kept explicit.
type GroupedExceptionHandler struct {
	ExceptHandler
	Remainder *Raise
}

type WithItem struct {
	Context Expr
	Vars    Expr
}

type MatchCase struct {
	Pattern Pattern
	Guard   Expr
	Body    []Stmt
}

type Alias struct {
	Name   string
	AsName string
}

type Keyword struct {
	Arg   string // empty for **mapping
	Value Expr
}

// Arguments is a parameter list. Defaults align with the tail of
// PosOnly+Args; KwDefaults align with KwOnly and may hold nils.
type Arguments struct {
	PosOnly    []*Arg
	Args       []*Arg
	VarArg     *Arg
	KwOnly     []*Arg
	KwDefaults []Expr
	KwArg      *Arg
	Defaults   []Expr
}

type Arg struct {
	Name       string
	Annotation Expr
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

type (
	BinOp struct {
		Left  Expr
		Op    string
		Right Expr
	}

	BoolOp struct {
		Op     string // "and" or "or"
		Values []Expr
	}

	UnaryOp struct {
		Op string // "not", "-", "+", "~"
		X  Expr
	}

	// Backquote is the 2.x `x` repr form.
	Backquote struct {
		X Expr
	}

	Compare struct {
		Left        Expr
		Ops         []string
		Comparators []Expr
	}

	Call struct {
		Func     Expr
		Args     []Expr
		Keywords []*Keyword
	}

	Attribute struct {
		X    Expr
		Attr string
	}

	Subscript struct {
		X     Expr
		Index Expr
	}

	Slice struct {
		Lower Expr
		Upper Expr
		Step  Expr
	}

	Starred struct {
		X Expr
	}

	Tuple struct {
		Elts []Expr
	}

	List struct {
		Elts []Expr
	}

	Set struct {
		Elts []Expr
	}

	// Dict keys are nil for **mapping entries.
	Dict struct {
		Keys   []Expr
		Values []Expr
	}

	Comp struct {
		Kind       CompKind
		Elt        Expr
		Value      Expr // dict comprehensions only
		Generators []*Generator
	}

	Lambda struct {
		Args *Arguments
		Body Expr
	}

	IfExp struct {
		Test Expr
		Body Expr
		Else Expr
	}

	NamedExpr struct {
		Target Expr
		Value  Expr
	}

	JoinedStr struct {
		Values []Expr // Constant strings and FormattedValues
	}

	FormattedValue struct {
		Value      Expr
		Conversion rune // 0, 's', 'r' or 'a'
		Spec       *JoinedStr
	}

	// Constant holds a marshal object (see package pyc).
	Constant struct {
		Value any
	}

	Name struct {
		ID string
	}

	Yield struct {
		Value Expr
	}

	YieldFrom struct {
		Value Expr
	}

	Await struct {
		Value Expr
	}
)

// CompKind distinguishes comprehension forms.
type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
	GenExp
)

func (k CompKind) String() string {
	switch k {
	case SetComp:
		return "setcomp"
	case DictComp:
		return "dictcomp"
	case GenExp:
		return "genexpr"
	}
	return "listcomp"
}

// Generator is one for-clause of a comprehension.
type Generator struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
	Async  bool
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

type (
	MatchValue struct {
		Value Expr
	}

	MatchSingleton struct {
		Value any // None, true or false
	}

	// MatchAs with a nil Pattern is a capture, or the wildcard when Name is
	// empty too.
	MatchAs struct {
		Pattern Pattern
		Name    string
	}

	MatchClass struct {
		Cls         Expr
		Patterns    []Pattern
		KwdAttrs    []string
		KwdPatterns []Pattern
	}

	MatchOr struct {
		Patterns []Pattern
	}

	MatchSequence struct {
		Patterns []Pattern
	}

	// MatchStar is the starred element of a sequence pattern; an empty
	// Name is *_.
	MatchStar struct {
		Name string
	}

	MatchMapping struct {
		Keys     []Expr
		Patterns []Pattern
		Rest     string
	}
)

// ---------------------------------------------------------------------------
// Placeholder
// ---------------------------------------------------------------------------

// Placeholder stands in for a span that could not be reconstructed. It is
// valid in statement, expression and pattern position.
type Placeholder struct {
	Diag diag.Diagnostic
}

// NewPlaceholder wraps a diagnostic.
func NewPlaceholder(d diag.Diagnostic) *Placeholder {
	return &Placeholder{Diag: d}
}

// ---------------------------------------------------------------------------
// Reduction intermediates
//
// These carry partially built values between reduction steps. The reducer
// folds every one of them away before a tree is returned.
// ---------------------------------------------------------------------------

type (
	// FunctionExpr is a function object built by MAKE_FUNCTION.
	FunctionExpr struct {
		Def *FunctionDef
	}

	// ClassExpr is a class object built by the class-construction call.
	ClassExpr struct {
		Def *ClassDef
	}

	// CompAppend is the per-item step of a comprehension body. Depth is
	// how far below the top of the stack the accumulator sits.
	CompAppend struct {
		Kind  CompKind
		Elt   Expr
		Value Expr
		Depth int
	}

	// CompStmt is a comprehension assembled from a loop body, waiting to
	// replace its accumulator.
	CompStmt struct {
		Comp  *Comp
		Depth int
	}

	// TargetBind records a store into the iteration or context value.
	TargetBind struct {
		Target Expr
		Source Expr
	}
)

func (*Module) node() {}

func (*Assign) node()      {}
func (*AugAssign) node()   {}
func (*AnnAssign) node()   {}
func (*ExprStmt) node()    {}
func (*If) node()          {}
func (*For) node()         {}
func (*While) node()       {}
func (*Try) node()         {}
func (*TryFinally) node()  {}
func (*With) node()        {}
func (*Match) node()       {}
func (*FunctionDef) node() {}
func (*ClassDef) node()    {}
func (*Return) node()      {}
func (*Raise) node()       {}
func (*Assert) node()      {}
func (*Delete) node()      {}
func (*Import) node()      {}
func (*ImportFrom) node()  {}
func (*Global) node()      {}
func (*Nonlocal) node()    {}
func (*Pass) node()        {}
func (*Break) node()       {}
func (*Continue) node()    {}
func (*Print) node()       {}
func (*Exec) node()        {}
func (*CompStmt) node()    {}
func (*TargetBind) node()  {}

func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*AnnAssign) stmtNode()   {}
func (*ExprStmt) stmtNode()    {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*Try) stmtNode()         {}
func (*TryFinally) stmtNode()  {}
func (*With) stmtNode()        {}
func (*Match) stmtNode()       {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Raise) stmtNode()       {}
func (*Assert) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Print) stmtNode()       {}
func (*Exec) stmtNode()        {}
func (*CompStmt) stmtNode()    {}
func (*TargetBind) stmtNode()  {}

func (*BinOp) node()          {}
func (*BoolOp) node()         {}
func (*UnaryOp) node()        {}
func (*Backquote) node()      {}
func (*Compare) node()        {}
func (*Call) node()           {}
func (*Attribute) node()      {}
func (*Subscript) node()      {}
func (*Slice) node()          {}
func (*Starred) node()        {}
func (*Tuple) node()          {}
func (*List) node()           {}
func (*Set) node()            {}
func (*Dict) node()           {}
func (*Comp) node()           {}
func (*Lambda) node()         {}
func (*IfExp) node()          {}
func (*NamedExpr) node()      {}
func (*JoinedStr) node()      {}
func (*FormattedValue) node() {}
func (*Constant) node()       {}
func (*Name) node()           {}
func (*Yield) node()          {}
func (*YieldFrom) node()      {}
func (*Await) node()          {}
func (*FunctionExpr) node()   {}
func (*ClassExpr) node()      {}
func (*CompAppend) node()     {}

func (*BinOp) exprNode()          {}
func (*BoolOp) exprNode()         {}
func (*UnaryOp) exprNode()        {}
func (*Backquote) exprNode()      {}
func (*Compare) exprNode()        {}
func (*Call) exprNode()           {}
func (*Attribute) exprNode()      {}
func (*Subscript) exprNode()      {}
func (*Slice) exprNode()          {}
func (*Starred) exprNode()        {}
func (*Tuple) exprNode()          {}
func (*List) exprNode()           {}
func (*Set) exprNode()            {}
func (*Dict) exprNode()           {}
func (*Comp) exprNode()           {}
func (*Lambda) exprNode()         {}
func (*IfExp) exprNode()          {}
func (*NamedExpr) exprNode()      {}
func (*JoinedStr) exprNode()      {}
func (*FormattedValue) exprNode() {}
func (*Constant) exprNode()       {}
func (*Name) exprNode()           {}
func (*Yield) exprNode()          {}
func (*YieldFrom) exprNode()      {}
func (*Await) exprNode()          {}
func (*FunctionExpr) exprNode()   {}
func (*ClassExpr) exprNode()      {}
func (*CompAppend) exprNode()     {}

func (*MatchValue) node()     {}
func (*MatchSingleton) node() {}
func (*MatchAs) node()        {}
func (*MatchClass) node()     {}
func (*MatchOr) node()        {}
func (*MatchSequence) node()  {}
func (*MatchStar) node()      {}
func (*MatchMapping) node()   {}

func (*MatchValue) patternNode()     {}
func (*MatchSingleton) patternNode() {}
func (*MatchAs) patternNode()        {}
func (*MatchClass) patternNode()     {}
func (*MatchOr) patternNode()        {}
func (*MatchSequence) patternNode()  {}
func (*MatchStar) patternNode()      {}
func (*MatchMapping) patternNode()   {}

func (*Placeholder) node()        {}
func (*Placeholder) stmtNode()    {}
func (*Placeholder) exprNode()    {}
func (*Placeholder) patternNode() {}

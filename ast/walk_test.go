package ast

import (
	"strings"
	"testing"

	"github.com/chazu/pyrecon/diag"
)

func gap(start, end int) *Placeholder {
	return NewPlaceholder(diag.New(diag.NoMatch, nil, start, end, "no rule"))
}

func TestEqualIgnoresEmptyLists(t *testing.T) {
	a := &If{Test: &Name{ID: "x"}, Body: []Stmt{&Pass{}}}
	b := &If{Test: &Name{ID: "x"}, Body: []Stmt{&Pass{}}, Else: []Stmt{}}
	if !Equal(a, b) {
		t.Errorf("nil and empty else should compare equal:\n%s\n%s", Dump(a), Dump(b))
	}
	c := &If{Test: &Name{ID: "y"}, Body: []Stmt{&Pass{}}}
	if Equal(a, c) {
		t.Error("different tests should not compare equal")
	}
}

func TestEqualConstants(t *testing.T) {
	if Equal(&Constant{Value: false}, &Constant{Value: true}) {
		t.Error("False and True should differ")
	}
	if Equal(&Constant{Value: int64(0)}, &Constant{Value: "0"}) {
		t.Error("0 and '0' should differ")
	}
}

func TestPlaceholders(t *testing.T) {
	tree := &Module{Body: []Stmt{
		&Assign{Targets: []Expr{&Name{ID: "a"}}, Value: gap(4, 8)},
		&If{Test: &Name{ID: "x"}, Body: []Stmt{gap(10, 12)}},
		&ExprStmt{X: &Call{Func: &Name{ID: "f"}}},
	}}
	got := Placeholders(tree)
	if len(got) != 2 {
		t.Fatalf("got %d placeholders, want 2", len(got))
	}
	if got[0].Diag.Start != 4 || got[1].Diag.Start != 10 {
		t.Errorf("placeholders out of order: %d, %d", got[0].Diag.Start, got[1].Diag.Start)
	}
}

func TestInspectPrunes(t *testing.T) {
	tree := &Module{Body: []Stmt{
		&FunctionDef{Name: "f", Body: []Stmt{&Return{Value: &Name{ID: "inner"}}}},
		&ExprStmt{X: &Name{ID: "outer"}},
	}}
	var names []string
	Inspect(tree, func(n Node) bool {
		switch n := n.(type) {
		case *FunctionDef:
			return false
		case *Name:
			names = append(names, n.ID)
		}
		return true
	})
	if strings.Join(names, ",") != "outer" {
		t.Errorf("visited %v, want only outer", names)
	}
}

func TestDumpPlaceholder(t *testing.T) {
	if got := Dump(gap(2, 6)); got != "Placeholder(NoMatch,2,6)" {
		t.Errorf("Dump = %s", got)
	}
}

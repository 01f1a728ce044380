package disasm

import (
	"fmt"
	"strings"

	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

// Listing returns a human-readable dump of unit and every nested unit.
func Listing(unit *pyc.CodeUnit, bundle *registry.Bundle) string {
	var sb strings.Builder
	first := true
	unit.Walk(func(u *pyc.CodeUnit) {
		if !first {
			sb.WriteString("\n")
		}
		first = false
		writeUnit(&sb, u, bundle)
	})
	return sb.String()
}

func writeUnit(sb *strings.Builder, u *pyc.CodeUnit, bundle *registry.Bundle) {
	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", u.DisplayName()))
	sb.WriteString(fmt.Sprintf("; Revision %s, file %s, line %d\n", bundle.Tag(), u.Filename, u.FirstLine))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", u.Flags))
	if u.IsGenerator() {
		sb.WriteString(" [GENERATOR]")
	}
	if u.IsCoroutine() {
		sb.WriteString(" [COROUTINE]")
	}
	if u.HasVarArgs() {
		sb.WriteString(" [VARARGS]")
	}
	if u.HasVarKeywords() {
		sb.WriteString(" [VARKEYWORDS]")
	}
	sb.WriteString("\n")

	if args := u.ArgNames(); len(args) > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s\n", len(args), strings.Join(args, ", ")))
	}
	if len(u.VarNames) > 0 {
		sb.WriteString(fmt.Sprintf("; Locals: %s\n", strings.Join(u.VarNames, ", ")))
	}
	if len(u.CellVars) > 0 {
		sb.WriteString(fmt.Sprintf("; Cells: %s\n", strings.Join(u.CellVars, ", ")))
	}
	if len(u.FreeVars) > 0 {
		sb.WriteString(fmt.Sprintf("; Free: %s\n", strings.Join(u.FreeVars, ", ")))
	}
	sb.WriteString("\n")

	if len(u.Consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range u.Consts {
			display := pyc.Repr(c)
			if len(display) > 60 {
				display = display[:57] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}
	if len(u.Names) > 0 {
		sb.WriteString(fmt.Sprintf("; Names: %s\n\n", strings.Join(u.Names, ", ")))
	}
	if len(u.Exceptions) > 0 {
		sb.WriteString("; Exception table:\n")
		for _, e := range u.Exceptions {
			lasti := ""
			if e.Lasti {
				lasti = " lasti"
			}
			sb.WriteString(fmt.Sprintf(";   %d to %d -> %d [%d]%s\n", e.Start, e.End, e.Target, e.Depth, lasti))
		}
		sb.WriteString("\n")
	}

	instrs, diags := Disassemble(u, bundle)
	targets := make(map[int]bool)
	for _, in := range instrs {
		if in.Target >= 0 {
			targets[in.Target] = true
		}
	}

	// Code section
	sb.WriteString("; Code:\n")
	lastLine := -1
	for _, in := range instrs {
		line := "    "
		if in.Line >= 0 && in.Line != lastLine {
			line = fmt.Sprintf("%4d", in.Line)
			lastLine = in.Line
		}
		mark := "  "
		if targets[in.Offset] {
			mark = ">>"
		}
		text := in.Op
		if in.Opcode == nil || in.Opcode.Operand != registry.OperandNone {
			text = fmt.Sprintf("%-24s %d", in.Op, in.Arg)
		}
		if in.Argrepr != "" {
			text = fmt.Sprintf("%-30s (%s)", text, in.Argrepr)
		}
		sb.WriteString(fmt.Sprintf("%s %s %04d  %s\n", line, mark, in.Offset, text))
	}
	for _, d := range diags {
		sb.WriteString(fmt.Sprintf("; ! %s\n", d.Error()))
	}
}

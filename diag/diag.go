// Package diag defines the recoverable problems reported while decompiling.
// A Diagnostic never aborts a request; it ends up on a placeholder node and
// in the report.
package diag

import "fmt"

// Kind classifies a diagnostic.
type Kind string

const (
	UnknownOpcode          Kind = "UnknownOpcode"
	DanglingJump           Kind = "DanglingJump"
	GrammarConflict        Kind = "GrammarConflict"
	NoMatch                Kind = "NoMatch"
	IrreducibleControlFlow Kind = "IrreducibleControlFlow"
	UnsupportedShape       Kind = "UnsupportedShape"
)

// Diagnostic describes a problem confined to the byte span [Start, End) of
// one code unit.
type Diagnostic struct {
	Kind  Kind   `json:"kind" yaml:"kind" cbor:"1,keyasint"`
	Msg   string `json:"msg" yaml:"msg" cbor:"2,keyasint"`
	Start int    `json:"start" yaml:"start" cbor:"3,keyasint"`
	End   int    `json:"end" yaml:"end" cbor:"4,keyasint"`

	// Cause is the package sentinel the diagnostic stands for.
	Cause error `json:"-" yaml:"-" cbor:"-"`
}

// New builds a diagnostic.
func New(kind Kind, cause error, start, end int, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Msg: fmt.Sprintf(format, args...), Start: start, End: end, Cause: cause}
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s at [%d, %d): %s", d.Kind, d.Start, d.End, d.Msg)
}

func (d Diagnostic) Unwrap() error {
	return d.Cause
}

// String is the short form used inside placeholders.
func (d Diagnostic) String() string {
	if d.Msg == "" {
		return string(d.Kind)
	}
	return string(d.Kind) + ": " + d.Msg
}

// Package pyc reads and writes compiled Python artifacts: a small header
// followed by a marshal stream whose root is a code object.
//
// This package contains:
//   - the marshal object model (Object and its concrete kinds)
//   - CodeUnit, one compiled routine with its nested units
//   - Parse / ReadFile, the artifact reader
//   - line-table and exception-table decoders
//   - Writer, the inverse encoder used by tests and the disasm command
package pyc

import (
	"fmt"
	"math/big"
)

// Object is any value the marshal format can carry.
//
// Concrete kinds:
//
//	NoneType, EllipsisType, StopIterationType
//	bool, int64, *big.Int, float64, complex128
//	string (text; 2.x str), Unicode (2.x unicode), Bytes (3.x bytes)
//	Tuple, List, Set, FrozenSet, Dict
//	*CodeUnit
type Object any

type (
	NoneType          struct{}
	EllipsisType      struct{}
	StopIterationType struct{}

	// Unicode is a 2.x unicode string. Text in 3.x is a plain string.
	Unicode string
	// Bytes is a 3.x bytes object.
	Bytes []byte

	Tuple     []Object
	List      []Object
	Set       []Object
	FrozenSet []Object
	Dict      []DictItem
)

// DictItem is one key/value pair, kept in marshal order.
type DictItem struct {
	Key   Object
	Value Object
}

var (
	None          = NoneType{}
	Ellipsis      = EllipsisType{}
	StopIteration = StopIterationType{}
)

// Repr renders an object the way the disassembly listing shows operands.
func Repr(o Object) string {
	switch v := o.(type) {
	case nil:
		return "NULL"
	case NoneType:
		return "None"
	case EllipsisType:
		return "Ellipsis"
	case StopIterationType:
		return "StopIteration"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return fmt.Sprintf("%d", v)
	case *big.Int:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	case complex128:
		return fmt.Sprintf("%v", v)
	case string:
		return fmt.Sprintf("%q", v)
	case Unicode:
		return fmt.Sprintf("u%q", string(v))
	case Bytes:
		return fmt.Sprintf("b%q", string(v))
	case Tuple:
		return reprSeq("(", ")", v, len(v) == 1)
	case List:
		return reprSeq("[", "]", v, false)
	case Set:
		return reprSeq("{", "}", v, false)
	case FrozenSet:
		return "frozenset(" + reprSeq("{", "}", v, false) + ")"
	case Dict:
		s := "{"
		for i, it := range v {
			if i > 0 {
				s += ", "
			}
			s += Repr(it.Key) + ": " + Repr(it.Value)
		}
		return s + "}"
	case *CodeUnit:
		return fmt.Sprintf("<code object %s, file %q, line %d>", v.Name, v.Filename, v.FirstLine)
	}
	return fmt.Sprintf("%v", o)
}

func reprSeq(open, close string, items []Object, trailingComma bool) string {
	s := open
	for i, it := range items {
		if i > 0 {
			s += ", "
		}
		s += Repr(it)
	}
	if trailingComma {
		s += ","
	}
	return s + close
}

// IsString reports whether o is text of either major version.
func IsString(o Object) bool {
	switch o.(type) {
	case string, Unicode:
		return true
	}
	return false
}

// StringValue returns the text of a string-like object.
func StringValue(o Object) (string, bool) {
	switch v := o.(type) {
	case string:
		return v, true
	case Unicode:
		return string(v), true
	case Bytes:
		return string(v), true
	}
	return "", false
}

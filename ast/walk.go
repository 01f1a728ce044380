package ast

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
)

// Inspect walks the tree rooted at n depth first, calling fn for every node.
// Children are skipped when fn returns false.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil {
		return
	}
	inspect(reflect.ValueOf(n), fn)
}

var nodeType = reflect.TypeOf((*Node)(nil)).Elem()

func inspect(v reflect.Value, fn func(Node) bool) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			inspect(v.Elem(), fn)
		}
	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		if v.Type().Implements(nodeType) {
			if !fn(v.Interface().(Node)) {
				return
			}
		}
		if v.Elem().Kind() == reflect.Struct {
			inspect(v.Elem(), fn)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				inspect(v.Field(i), fn)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			inspect(v.Index(i), fn)
		}
	}
}

// Placeholders returns every placeholder under n in source order.
func Placeholders(n Node) []*Placeholder {
	var out []*Placeholder
	Inspect(n, func(n Node) bool {
		if p, ok := n.(*Placeholder); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Equal reports whether two trees have the same shape and values.
// Placeholders compare by diagnostic kind and span; nil and empty lists
// are the same.
func Equal(a, b Node) bool {
	return Dump(a) == Dump(b)
}

// Dump renders a tree as a compact single-line form for tests and logs.
func Dump(n Node) string {
	var sb strings.Builder
	if n == nil {
		return "nil"
	}
	dump(&sb, reflect.ValueOf(n))
	return sb.String()
}

func dump(sb *strings.Builder, v reflect.Value) {
	switch v.Kind() {
	case reflect.Invalid:
		sb.WriteString("nil")
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			sb.WriteString("nil")
			return
		}
		if v.CanInterface() {
			switch x := v.Interface().(type) {
			case *Placeholder:
				fmt.Fprintf(sb, "Placeholder(%s,%d,%d)", x.Diag.Kind, x.Diag.Start, x.Diag.End)
				return
			case *big.Int:
				sb.WriteString(x.String())
				return
			}
		}
		dump(sb, v.Elem())
	case reflect.Struct:
		sb.WriteString(v.Type().Name())
		sb.WriteString("(")
		first := true
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !v.Type().Field(i).IsExported() || empty(f) {
				continue
			}
			if !first {
				sb.WriteString(" ")
			}
			first = false
			sb.WriteString(v.Type().Field(i).Name)
			sb.WriteString("=")
			dump(sb, f)
		}
		sb.WriteString(")")
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			fmt.Fprintf(sb, "b%q", v.Bytes())
			return
		}
		sb.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				sb.WriteString(" ")
			}
			dump(sb, v.Index(i))
		}
		sb.WriteString("]")
	case reflect.String:
		fmt.Fprintf(sb, "%q", v.String())
	case reflect.Int32:
		fmt.Fprintf(sb, "%q", rune(v.Int()))
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

func empty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return v.IsZero()
}

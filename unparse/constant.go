package unparse

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/pyc"
)

func isNone(v any) bool {
	_, ok := v.(pyc.NoneType)
	return ok || v == nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, *big.Int, float64, complex128:
		return true
	}
	return false
}

func negativeNumber(v any) bool {
	switch n := v.(type) {
	case int64:
		return n < 0
	case *big.Int:
		return n.Sign() < 0
	case float64:
		return n < 0 || math.Signbit(n)
	case complex128:
		return real(n) == 0 && (imag(n) < 0 || math.Signbit(imag(n)))
	}
	return false
}

// constant renders a marshal object as a literal.
func (p *printer) constant(v any) string {
	switch v := v.(type) {
	case nil, pyc.NoneType:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case pyc.EllipsisType:
		if p.opts.Py2 {
			return "Ellipsis"
		}
		return "..."
	case pyc.StopIterationType:
		return "StopIteration"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case *big.Int:
		return v.String()
	case float64:
		return pyFloat(v)
	case complex128:
		return pyComplex(v)
	case string:
		if p.opts.Py2 {
			return quoteString(v, p.quote, "", bytesMode)
		}
		return quoteString(v, p.quote, "", textMode)
	case pyc.Unicode:
		if p.opts.Py2 {
			return quoteString(string(v), p.quote, "u", unicodeEscapeMode)
		}
		return quoteString(string(v), p.quote, "", textMode)
	case pyc.Bytes:
		if p.opts.Py2 {
			return quoteString(string(v), p.quote, "", bytesMode)
		}
		return quoteString(string(v), p.quote, "b", bytesMode)
	case pyc.Tuple:
		parts := p.constants(v)
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case pyc.List:
		return "[" + strings.Join(p.constants(v), ", ") + "]"
	case pyc.Set:
		if len(v) == 0 {
			return "set()"
		}
		return "{" + strings.Join(p.constants(v), ", ") + "}"
	case pyc.FrozenSet:
		if len(v) == 0 {
			return "frozenset()"
		}
		return "frozenset({" + strings.Join(p.constants(v), ", ") + "})"
	case pyc.Dict:
		parts := make([]string, len(v))
		for i, it := range v {
			parts[i] = p.constant(it.Key) + ": " + p.constant(it.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *pyc.CodeUnit:
		return p.gap(diag.New(diag.UnsupportedShape, nil, 0, 0, "code object %s", v.Name))
	}
	return p.gap(diag.New(diag.UnsupportedShape, nil, 0, 0, "constant %T", v))
}

func (p *printer) constants(items []pyc.Object) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = p.constant(it)
	}
	return out
}

func pyFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "1e309"
	case math.IsInf(f, -1):
		return "-1e309"
	case math.IsNaN(f):
		return "float('nan')"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func pyComplex(c complex128) string {
	im := strconv.FormatFloat(imag(c), 'g', -1, 64)
	if math.IsInf(imag(c), 0) || math.IsNaN(imag(c)) {
		return fmt.Sprintf("complex(%s, %s)", pyFloat(real(c)), pyFloat(imag(c)))
	}
	if real(c) == 0 && !math.Signbit(real(c)) {
		return im + "j"
	}
	sign := "+"
	if imag(c) < 0 || math.Signbit(imag(c)) {
		sign = "-"
		im = strings.TrimPrefix(im, "-")
	}
	return "(" + pyFloat(real(c)) + sign + im + "j)"
}

type quoteMode int

const (
	textMode          quoteMode = iota // printable unicode kept
	bytesMode                          // every byte above 0x7f escaped
	unicodeEscapeMode                  // non-ASCII runes escaped as \u
)

// quoteString renders s as a string literal. prefer is used unless s
// contains it and not the alternative.
func quoteString(s string, prefer byte, prefix string, mode quoteMode) string {
	q := prefer
	other := byte('"')
	if prefer == '"' {
		other = '\''
	}
	if strings.IndexByte(s, q) >= 0 && strings.IndexByte(s, other) < 0 {
		q = other
	}
	return prefix + string(q) + escape(s, q, false, mode) + string(q)
}

// escapeText escapes literal text for an f-string body.
func escapeText(s string, q byte, triple bool) string {
	return escape(s, q, triple, textMode)
}

func escape(s string, q byte, triple bool, mode quoteMode) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf || mode == bytesMode {
			i++
			switch {
			case c == '\\':
				sb.WriteString(`\\`)
			case c == q && !triple:
				sb.WriteByte('\\')
				sb.WriteByte(c)
			case c == q && triple:
				// Escape only where the quote could close the literal.
				if i < len(s) && s[i] == q || i == len(s) {
					sb.WriteByte('\\')
				}
				sb.WriteByte(c)
			case c == '\n':
				if triple {
					sb.WriteByte('\n')
				} else {
					sb.WriteString(`\n`)
				}
			case c == '\r':
				sb.WriteString(`\r`)
			case c == '\t':
				sb.WriteString(`\t`)
			case c < 0x20 || c >= 0x7f:
				fmt.Fprintf(&sb, `\x%02x`, c)
			default:
				sb.WriteByte(c)
			}
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, `\x%02x`, s[i-1])
		case mode == unicodeEscapeMode || !unicode.IsPrint(r):
			if r > 0xffff {
				fmt.Fprintf(&sb, `\U%08x`, r)
			} else {
				fmt.Fprintf(&sb, `\u%04x`, r)
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

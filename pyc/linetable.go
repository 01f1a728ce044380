package pyc

import (
	"fmt"

	"github.com/chazu/pyrecon/registry"
)

// DecodeLines expands a unit's line table into byte ranges. codeLen is
// the length of the instruction stream, which closes the last lnotab range.
func DecodeLines(table []byte, firstLine, codeLen int, rev registry.Revision) ([]LineEntry, error) {
	switch {
	case rev.AtLeast(3, 11):
		return decodeLocations(table, firstLine)
	case rev.AtLeast(3, 10):
		return decodeLinetable310(table, firstLine)
	default:
		return decodeLnotab(table, firstLine, codeLen, rev.AtLeast(3, 6)), nil
	}
}

func appendLine(out []LineEntry, e LineEntry) []LineEntry {
	if e.End <= e.Start {
		return out
	}
	if n := len(out); n > 0 && out[n-1].End == e.Start && out[n-1].Line == e.Line {
		out[n-1].End = e.End
		return out
	}
	return append(out, e)
}

// decodeLnotab reads (byte increment, line increment) pairs. Line
// increments are signed from 3.6.
func decodeLnotab(table []byte, firstLine, codeLen int, signed bool) []LineEntry {
	var out []LineEntry
	line, addr := firstLine, 0
	for i := 0; i+1 < len(table); i += 2 {
		if b := int(table[i]); b != 0 {
			out = appendLine(out, LineEntry{Start: addr, End: addr + b, Line: line})
			addr += b
		}
		delta := int(table[i+1])
		if signed && delta >= 0x80 {
			delta -= 0x100
		}
		line += delta
	}
	return appendLine(out, LineEntry{Start: addr, End: codeLen, Line: line})
}

func decodeLinetable310(table []byte, firstLine int) ([]LineEntry, error) {
	if len(table)%2 != 0 {
		return nil, fmt.Errorf("line table has odd length %d", len(table))
	}
	var out []LineEntry
	line, end := firstLine, 0
	for i := 0; i < len(table); i += 2 {
		start := end
		end = start + int(table[i])
		delta := int(table[i+1])
		if delta == 0x80 {
			out = appendLine(out, LineEntry{Start: start, End: end, Line: -1})
			continue
		}
		if delta > 0x80 {
			delta -= 0x100
		}
		line += delta
		out = appendLine(out, LineEntry{Start: start, End: end, Line: line})
	}
	return out, nil
}

// decodeLocations reads the 3.11 location table. Only line numbers are
// kept; column data is skipped.
func decodeLocations(table []byte, firstLine int) ([]LineEntry, error) {
	var out []LineEntry
	r := &tableReader{data: table}
	line, addr := firstLine, 0
	for !r.done() {
		first := r.next()
		if first&0x80 == 0 {
			return nil, fmt.Errorf("location entry at %d lacks start bit", r.pos-1)
		}
		code := int(first>>3) & 15
		length := (int(first&7) + 1) * 2
		entryLine := line
		switch {
		case code == 15:
			entryLine = -1
		case code == 14:
			line += r.svarint()
			entryLine = line
			r.varint() // end line delta
			r.varint() // column
			r.varint() // end column
		case code == 13:
			line += r.svarint()
			entryLine = line
		case code >= 10:
			line += code - 10
			entryLine = line
			r.next()
			r.next()
		default:
			r.next()
		}
		if r.err != nil {
			return nil, r.err
		}
		out = appendLine(out, LineEntry{Start: addr, End: addr + length, Line: entryLine})
		addr += length
	}
	return out, nil
}

// DecodeExceptionTable reads the 3.11+ exception table. Offsets in the
// result are bytes.
func DecodeExceptionTable(table []byte) ([]ExceptionEntry, error) {
	var out []ExceptionEntry
	r := &tableReader{data: table}
	for !r.done() {
		if r.data[r.pos]&0x80 == 0 {
			return nil, fmt.Errorf("exception entry at %d lacks start bit", r.pos)
		}
		start := r.msbVarint() * 2
		length := r.msbVarint() * 2
		target := r.msbVarint() * 2
		dl := r.msbVarint()
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, ExceptionEntry{
			Start:  start,
			End:    start + length,
			Target: target,
			Depth:  dl >> 1,
			Lasti:  dl&1 != 0,
		})
	}
	return out, nil
}

type tableReader struct {
	data []byte
	pos  int
	err  error
}

func (r *tableReader) done() bool { return r.err != nil || r.pos >= len(r.data) }

func (r *tableReader) next() byte {
	if r.pos >= len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("table truncated at %d", r.pos)
		}
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

// varint reads an LSB-first varint of 6-bit chunks.
func (r *tableReader) varint() int {
	b := r.next()
	v := int(b & 63)
	shift := 0
	for b&64 != 0 && r.err == nil {
		b = r.next()
		shift += 6
		v |= int(b&63) << shift
	}
	return v
}

func (r *tableReader) svarint() int {
	v := r.varint()
	if v&1 != 0 {
		return -(v >> 1)
	}
	return v >> 1
}

// msbVarint reads an MSB-first varint of 6-bit chunks.
func (r *tableReader) msbVarint() int {
	b := r.next()
	v := int(b & 63)
	for b&64 != 0 && r.err == nil {
		v <<= 6
		b = r.next()
		v |= int(b & 63)
	}
	return v
}

// EncodeExceptionTable is the inverse of DecodeExceptionTable.
func EncodeExceptionTable(entries []ExceptionEntry) []byte {
	var out []byte
	for _, e := range entries {
		dl := e.Depth << 1
		if e.Lasti {
			dl |= 1
		}
		out = appendMSBVarint(out, e.Start/2, true)
		out = appendMSBVarint(out, (e.End-e.Start)/2, false)
		out = appendMSBVarint(out, e.Target/2, false)
		out = appendMSBVarint(out, dl, false)
	}
	return out
}

func appendMSBVarint(out []byte, v int, first bool) []byte {
	var chunks []byte
	for {
		chunks = append(chunks, byte(v&63))
		v >>= 6
		if v == 0 {
			break
		}
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		b := chunks[i]
		if i > 0 {
			b |= 64
		}
		if first && i == len(chunks)-1 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func appendVarint(out []byte, v int) []byte {
	for v >= 64 {
		out = append(out, byte(v&63)|64)
		v >>= 6
	}
	return append(out, byte(v))
}

func appendSvarint(out []byte, v int) []byte {
	if v < 0 {
		return appendVarint(out, (-v)<<1|1)
	}
	return appendVarint(out, v<<1)
}

// EncodeLines builds a line table in the revision's format. Entries must
// be sorted and contiguous from offset zero.
func EncodeLines(entries []LineEntry, firstLine int, rev registry.Revision) []byte {
	switch {
	case rev.AtLeast(3, 11):
		return encodeLocations(entries, firstLine)
	case rev.AtLeast(3, 10):
		return encodeLinetable310(entries, firstLine)
	default:
		return encodeLnotab(entries, firstLine, rev.AtLeast(3, 6))
	}
}

func encodeLnotab(entries []LineEntry, firstLine int, signed bool) []byte {
	var out []byte
	line, addr := firstLine, 0
	for _, e := range entries {
		if e.Line < 0 {
			continue
		}
		for b := e.Start - addr; b > 0; {
			step := min(b, 255)
			out = append(out, byte(step), 0)
			b -= step
		}
		addr = e.Start
		lo, hi := -128, 127
		if !signed {
			lo, hi = 0, 255
		}
		for d := e.Line - line; d != 0; {
			step := max(min(d, hi), lo)
			if step == 0 {
				break
			}
			out = append(out, 0, byte(step))
			d -= step
		}
		line = e.Line
	}
	return out
}

func encodeLinetable310(entries []LineEntry, firstLine int) []byte {
	var out []byte
	line := firstLine
	for _, e := range entries {
		delta := 0x80
		if e.Line >= 0 {
			d := e.Line - line
			for d > 127 || d < -127 {
				step := max(min(d, 127), -127)
				out = append(out, 0, byte(step))
				d -= step
			}
			delta = d
			line = e.Line
		}
		first := true
		for n := e.End - e.Start; n > 0 || first; first = false {
			step := min(n, 254)
			out = append(out, byte(step), byte(delta))
			if e.Line >= 0 {
				delta = 0
			}
			n -= step
		}
	}
	return out
}

func encodeLocations(entries []LineEntry, firstLine int) []byte {
	var out []byte
	line := firstLine
	for _, e := range entries {
		units := (e.End - e.Start) / 2
		first := true
		for units > 0 {
			n := min(units, 8)
			units -= n
			if e.Line < 0 {
				out = append(out, 0x80|15<<3|byte(n-1))
				continue
			}
			out = append(out, 0x80|13<<3|byte(n-1))
			d := 0
			if first {
				d = e.Line - line
				line = e.Line
			}
			out = appendSvarint(out, d)
			first = false
		}
	}
	return out
}

package pyc

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/chazu/pyrecon/registry"
)

// Writer encodes objects in one revision's marshal dialect. It never emits
// references, so every object is written in full.
type Writer struct {
	rev registry.Revision
	buf []byte
}

// NewWriter returns a writer for a registry tag.
func NewWriter(revision string) (*Writer, error) {
	b, err := registry.Lookup(revision)
	if err != nil {
		return nil, err
	}
	return &Writer{rev: b.Revision}, nil
}

// Build encodes code as a complete artifact: header then marshal stream.
func Build(code *CodeUnit, revision string) ([]byte, error) {
	w, err := NewWriter(revision)
	if err != nil {
		return nil, err
	}
	return w.Artifact(code, Header{})
}

// Artifact writes the header followed by code. A zero Magic in h uses the
// revision's release magic.
func (w *Writer) Artifact(code *CodeUnit, h Header) ([]byte, error) {
	if h.Magic == 0 {
		h.Magic = w.rev.Magic
	}
	w.buf = w.buf[:0]
	w.buf = binary.LittleEndian.AppendUint16(w.buf, h.Magic)
	w.buf = append(w.buf, '\r', '\n')
	switch {
	case w.rev.Major == 2 || w.rev.Before(3, 3):
		w.u32(h.Mtime)
	case w.rev.Before(3, 7):
		w.u32(h.Mtime)
		w.u32(h.SourceSize)
	default:
		w.u32(h.Flags)
		if h.Flags&1 != 0 {
			hash := make([]byte, 8)
			copy(hash, h.SourceHash)
			w.buf = append(w.buf, hash...)
		} else {
			w.u32(h.Mtime)
			w.u32(h.SourceSize)
		}
	}
	if err := w.object(code); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.buf...), nil
}

// Marshal encodes a single object without a header.
func (w *Writer) Marshal(o Object) ([]byte, error) {
	w.buf = w.buf[:0]
	if err := w.object(o); err != nil {
		return nil, err
	}
	return append([]byte(nil), w.buf...), nil
}

func (w *Writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) i32(v int) {
	w.u32(uint32(int32(v)))
}

func (w *Writer) sized(tag byte, b []byte) {
	w.buf = append(w.buf, tag)
	w.i32(len(b))
	w.buf = append(w.buf, b...)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func (w *Writer) text(s string) {
	switch {
	case w.rev.Major == 2:
		w.sized(tagString, []byte(s))
	case w.rev.Before(3, 4):
		w.sized(tagUnicode, []byte(s))
	case isASCII(s) && len(s) < 256:
		w.buf = append(w.buf, tagShortASCII, byte(len(s)))
		w.buf = append(w.buf, s...)
	case isASCII(s):
		w.sized(tagASCII, []byte(s))
	default:
		w.sized(tagUnicode, []byte(s))
	}
}

func (w *Writer) seq(tag byte, items []Object) error {
	if tag == tagTuple && len(items) < 256 && w.rev.AtLeast(3, 4) {
		w.buf = append(w.buf, tagSmallTuple, byte(len(items)))
	} else {
		w.buf = append(w.buf, tag)
		w.i32(len(items))
	}
	for _, it := range items {
		if err := w.object(it); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) long(v *big.Int) {
	w.buf = append(w.buf, tagLong)
	mag := new(big.Int).Abs(v)
	var digits []uint16
	mask := big.NewInt(1<<15 - 1)
	for mag.Sign() > 0 {
		digits = append(digits, uint16(new(big.Int).And(mag, mask).Uint64()))
		mag.Rsh(mag, 15)
	}
	n := len(digits)
	if v.Sign() < 0 {
		n = -n
	}
	w.i32(n)
	for _, d := range digits {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, d)
	}
}

func (w *Writer) float(f float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(f))
}

func (w *Writer) object(o Object) error {
	switch v := o.(type) {
	case NoneType:
		w.buf = append(w.buf, tagNone)
	case EllipsisType:
		w.buf = append(w.buf, tagEllipsis)
	case StopIterationType:
		w.buf = append(w.buf, tagStopIteration)
	case bool:
		if v {
			w.buf = append(w.buf, tagTrue)
		} else {
			w.buf = append(w.buf, tagFalse)
		}
	case int:
		return w.object(int64(v))
	case int64:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			w.buf = append(w.buf, tagInt)
			w.i32(int(v))
		} else {
			w.long(big.NewInt(v))
		}
	case *big.Int:
		w.long(v)
	case float64:
		w.buf = append(w.buf, tagBinaryFloat)
		w.float(v)
	case complex128:
		w.buf = append(w.buf, tagBinaryComplex)
		w.float(real(v))
		w.float(imag(v))
	case string:
		w.text(v)
	case Unicode:
		w.sized(tagUnicode, []byte(v))
	case Bytes:
		w.sized(tagString, v)
	case Tuple:
		return w.seq(tagTuple, v)
	case List:
		return w.seq(tagList, v)
	case Set:
		return w.seq(tagSet, v)
	case FrozenSet:
		return w.seq(tagFrozenSet, v)
	case Dict:
		w.buf = append(w.buf, tagDict)
		for _, it := range v {
			if err := w.object(it.Key); err != nil {
				return err
			}
			if err := w.object(it.Value); err != nil {
				return err
			}
		}
		w.buf = append(w.buf, tagNull)
	case *CodeUnit:
		return w.code(v)
	default:
		return fmt.Errorf("cannot marshal %T", o)
	}
	return nil
}

func (w *Writer) names(names []string) {
	items := make([]Object, len(names))
	for i, n := range names {
		items[i] = n
	}
	w.seq(tagTuple, items)
}

func (w *Writer) rawBytes(b []byte) {
	w.sized(tagString, b)
}

func (w *Writer) code(c *CodeUnit) error {
	rev := w.rev
	w.buf = append(w.buf, tagCode)
	switch {
	case rev.Major == 2:
		w.i32(c.ArgCount)
		w.i32(c.NLocals)
	case rev.Before(3, 8):
		w.i32(c.ArgCount)
		w.i32(c.KwOnlyArgCount)
		w.i32(c.NLocals)
	case rev.Before(3, 11):
		w.i32(c.ArgCount)
		w.i32(c.PosOnlyArgCount)
		w.i32(c.KwOnlyArgCount)
		w.i32(c.NLocals)
	default:
		w.i32(c.ArgCount)
		w.i32(c.PosOnlyArgCount)
		w.i32(c.KwOnlyArgCount)
	}
	w.i32(c.StackSize)
	w.i32(int(c.Flags))
	w.rawBytes(c.Code)
	if err := w.seq(tagTuple, c.Consts); err != nil {
		return err
	}
	w.names(c.Names)
	if rev.AtLeast(3, 11) {
		names, kinds := c.LocalsPlusNames, c.LocalsPlusKinds
		if len(names) == 0 {
			names, kinds = c.localsPlus()
		}
		w.names(names)
		w.rawBytes(kinds)
	} else {
		w.names(c.VarNames)
		w.names(c.FreeVars)
		w.names(c.CellVars)
	}
	w.text(c.Filename)
	w.text(c.Name)
	if rev.AtLeast(3, 11) {
		qual := c.QualName
		if qual == "" {
			qual = c.Name
		}
		w.text(qual)
	}
	w.i32(c.FirstLine)
	table := c.LineTable
	if table == nil && c.Lines != nil {
		table = EncodeLines(c.Lines, c.FirstLine, rev)
	}
	w.rawBytes(table)
	if rev.AtLeast(3, 11) {
		ex := c.ExceptionTable
		if ex == nil && c.Exceptions != nil {
			ex = EncodeExceptionTable(c.Exceptions)
		}
		w.rawBytes(ex)
	}
	return nil
}

// localsPlus composes the 3.11+ layout from the classic name tables.
func (c *CodeUnit) localsPlus() ([]string, []byte) {
	nargs := len(c.ArgNames())
	var names []string
	var kinds []byte
	cells := map[string]bool{}
	for _, n := range c.CellVars {
		cells[n] = true
	}
	for i, n := range c.VarNames {
		k := byte(KindLocal)
		if i < nargs {
			k |= KindArg
		}
		if cells[n] {
			k |= KindCell
			delete(cells, n)
		}
		names = append(names, n)
		kinds = append(kinds, k)
	}
	for _, n := range c.CellVars {
		if cells[n] {
			names = append(names, n)
			kinds = append(kinds, KindCell)
		}
	}
	for _, n := range c.FreeVars {
		names = append(names, n)
		kinds = append(kinds, KindFree)
	}
	return names, kinds
}

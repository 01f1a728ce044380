package pyc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"strconv"

	"github.com/chazu/pyrecon/registry"
)

var (
	ErrMalformedArtifact = errors.New("malformed artifact")
)

// maxDepth bounds object nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// Marshal type tags.
const (
	tagNull          = '0'
	tagNone          = 'N'
	tagFalse         = 'F'
	tagTrue          = 'T'
	tagStopIteration = 'S'
	tagEllipsis      = '.'
	tagInt           = 'i'
	tagInt64         = 'I'
	tagLong          = 'l'
	tagFloat         = 'f'
	tagBinaryFloat   = 'g'
	tagComplex       = 'x'
	tagBinaryComplex = 'y'
	tagString        = 's'
	tagInterned      = 't'
	tagStringRef     = 'R'
	tagUnicode       = 'u'
	tagASCII         = 'a'
	tagASCIIInterned = 'A'
	tagShortASCII    = 'z'
	tagShortASCIIInt = 'Z'
	tagTuple         = '('
	tagSmallTuple    = ')'
	tagList          = '['
	tagDict          = '{'
	tagSet           = '<'
	tagFrozenSet     = '>'
	tagCode          = 'c'
	tagRef           = 'r'

	flagRef = 0x80
)

// Header is the fixed prefix of an artifact.
type Header struct {
	Magic      uint16
	Flags      uint32
	Mtime      uint32
	SourceSize uint32
	SourceHash []byte
}

// Artifact is a parsed compiled module.
type Artifact struct {
	Header   Header
	Revision string
	Code     *CodeUnit
}

// ReadFile reads and parses the artifact at path. See Parse for revision.
func ReadFile(path, revision string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data, revision)
}

// Magic returns the revision magic at the start of data.
func Magic(data []byte) (uint16, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: header truncated (%d bytes)", ErrMalformedArtifact, len(data))
	}
	if data[2] != '\r' || data[3] != '\n' {
		return 0, fmt.Errorf("%w: bad magic terminator %#x %#x", ErrMalformedArtifact, data[2], data[3])
	}
	return binary.LittleEndian.Uint16(data), nil
}

// Parse decodes an artifact. revision is a registry tag; "" or "auto"
// detects it from the magic number.
func Parse(data []byte, revision string) (*Artifact, error) {
	magic, err := Magic(data)
	if err != nil {
		return nil, err
	}
	if revision == "" || revision == "auto" {
		revision, err = registry.Detect(magic)
		if err != nil {
			return nil, err
		}
	}
	bundle, err := registry.Lookup(revision)
	if err != nil {
		return nil, err
	}
	rev := bundle.Revision
	if magic < rev.MagicMin || magic > rev.MagicMax {
		return nil, fmt.Errorf("%w: magic %d does not belong to revision %s", ErrMalformedArtifact, magic, rev.Tag)
	}

	size := rev.HeaderSize()
	if len(data) < size {
		return nil, fmt.Errorf("%w: header truncated (%d of %d bytes)", ErrMalformedArtifact, len(data), size)
	}
	h := Header{Magic: magic}
	switch {
	case rev.Major == 2 || rev.Before(3, 3):
		h.Mtime = binary.LittleEndian.Uint32(data[4:])
	case rev.Before(3, 7):
		h.Mtime = binary.LittleEndian.Uint32(data[4:])
		h.SourceSize = binary.LittleEndian.Uint32(data[8:])
	default:
		h.Flags = binary.LittleEndian.Uint32(data[4:])
		if h.Flags&1 != 0 {
			h.SourceHash = append([]byte(nil), data[8:16]...)
		} else {
			h.Mtime = binary.LittleEndian.Uint32(data[8:])
			h.SourceSize = binary.LittleEndian.Uint32(data[12:])
		}
	}

	u := &unmarshaller{data: data, pos: size, rev: rev}
	root, err := u.readObject()
	if err != nil {
		return nil, err
	}
	code, ok := root.(*CodeUnit)
	if !ok {
		return nil, fmt.Errorf("%w: root object is %T, not a code object", ErrMalformedArtifact, root)
	}
	return &Artifact{Header: h, Revision: rev.Tag, Code: code}, nil
}

// Unmarshal decodes a bare marshal stream (no header) for a revision.
func Unmarshal(data []byte, revision string) (Object, error) {
	bundle, err := registry.Lookup(revision)
	if err != nil {
		return nil, err
	}
	u := &unmarshaller{data: data, rev: bundle.Revision}
	return u.readObject()
}

type unmarshaller struct {
	data     []byte
	pos      int
	rev      registry.Revision
	refs     []Object
	building []bool
	interned []string // 2.x string reference table
	depth    int
}

func (u *unmarshaller) fail(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformedArtifact, u.pos, fmt.Sprintf(format, args...))
}

func (u *unmarshaller) need(n int) error {
	if n < 0 || u.pos+n > len(u.data) {
		return u.fail("truncated stream: need %d bytes, have %d", n, len(u.data)-u.pos)
	}
	return nil
}

func (u *unmarshaller) byte() (byte, error) {
	if err := u.need(1); err != nil {
		return 0, err
	}
	b := u.data[u.pos]
	u.pos++
	return b, nil
}

func (u *unmarshaller) int32() (int32, error) {
	if err := u.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(u.data[u.pos:]))
	u.pos += 4
	return v, nil
}

func (u *unmarshaller) bytes(n int) ([]byte, error) {
	if err := u.need(n); err != nil {
		return nil, err
	}
	b := u.data[u.pos : u.pos+n]
	u.pos += n
	return b, nil
}

func (u *unmarshaller) sized(short bool) ([]byte, error) {
	var n int
	if short {
		b, err := u.byte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	} else {
		v, err := u.int32()
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, u.fail("negative length %d", v)
		}
		n = int(v)
	}
	return u.bytes(n)
}

func (u *unmarshaller) reserve(flag bool) int {
	if !flag {
		return -1
	}
	u.refs = append(u.refs, nil)
	u.building = append(u.building, true)
	return len(u.refs) - 1
}

func (u *unmarshaller) settle(idx int, v Object) {
	if idx >= 0 {
		u.refs[idx] = v
		u.building[idx] = false
	}
}

func (u *unmarshaller) remember(flag bool, v Object) Object {
	if flag {
		u.refs = append(u.refs, v)
		u.building = append(u.building, false)
	}
	return v
}

func (u *unmarshaller) readObject() (Object, error) {
	u.depth++
	defer func() { u.depth-- }()
	if u.depth > maxDepth {
		return nil, u.fail("objects nested deeper than %d", maxDepth)
	}

	code, err := u.byte()
	if err != nil {
		return nil, err
	}
	flag := code&flagRef != 0
	tag := code &^ flagRef
	py2 := u.rev.Major == 2

	switch tag {
	case tagNull:
		return nil, nil
	case tagNone:
		return u.remember(flag, None), nil
	case tagFalse:
		return u.remember(flag, false), nil
	case tagTrue:
		return u.remember(flag, true), nil
	case tagStopIteration:
		return u.remember(flag, StopIteration), nil
	case tagEllipsis:
		return u.remember(flag, Ellipsis), nil

	case tagInt:
		v, err := u.int32()
		if err != nil {
			return nil, err
		}
		return u.remember(flag, int64(v)), nil
	case tagInt64:
		b, err := u.bytes(8)
		if err != nil {
			return nil, err
		}
		return u.remember(flag, int64(binary.LittleEndian.Uint64(b))), nil
	case tagLong:
		v, err := u.readLong()
		if err != nil {
			return nil, err
		}
		return u.remember(flag, v), nil

	case tagFloat:
		f, err := u.textFloat()
		if err != nil {
			return nil, err
		}
		return u.remember(flag, f), nil
	case tagBinaryFloat:
		b, err := u.bytes(8)
		if err != nil {
			return nil, err
		}
		return u.remember(flag, math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case tagComplex:
		re, err := u.textFloat()
		if err != nil {
			return nil, err
		}
		im, err := u.textFloat()
		if err != nil {
			return nil, err
		}
		return u.remember(flag, complex(re, im)), nil
	case tagBinaryComplex:
		b, err := u.bytes(16)
		if err != nil {
			return nil, err
		}
		re := math.Float64frombits(binary.LittleEndian.Uint64(b))
		im := math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
		return u.remember(flag, complex(re, im)), nil

	case tagString:
		b, err := u.sized(false)
		if err != nil {
			return nil, err
		}
		if py2 {
			return u.remember(flag, string(b)), nil
		}
		return u.remember(flag, Bytes(append([]byte(nil), b...))), nil
	case tagInterned:
		b, err := u.sized(false)
		if err != nil {
			return nil, err
		}
		s := string(b)
		if py2 {
			u.interned = append(u.interned, s)
		}
		return u.remember(flag, s), nil
	case tagStringRef:
		if !py2 {
			return nil, u.fail("string reference outside 2.x stream")
		}
		i, err := u.int32()
		if err != nil {
			return nil, err
		}
		if i < 0 || int(i) >= len(u.interned) {
			return nil, u.fail("string reference %d out of range", i)
		}
		return u.remember(flag, u.interned[i]), nil
	case tagUnicode:
		b, err := u.sized(false)
		if err != nil {
			return nil, err
		}
		if py2 {
			return u.remember(flag, Unicode(b)), nil
		}
		return u.remember(flag, string(b)), nil
	case tagASCII, tagASCIIInterned:
		b, err := u.sized(false)
		if err != nil {
			return nil, err
		}
		return u.remember(flag, string(b)), nil
	case tagShortASCII, tagShortASCIIInt:
		b, err := u.sized(true)
		if err != nil {
			return nil, err
		}
		return u.remember(flag, string(b)), nil

	case tagTuple, tagSmallTuple, tagList, tagSet, tagFrozenSet:
		return u.readSequence(tag, flag)
	case tagDict:
		idx := u.reserve(flag)
		var d Dict
		for {
			k, err := u.readObject()
			if err != nil {
				return nil, err
			}
			if k == nil {
				break
			}
			v, err := u.readObject()
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, u.fail("dict value is NULL")
			}
			d = append(d, DictItem{Key: k, Value: v})
		}
		u.settle(idx, d)
		return d, nil

	case tagCode:
		idx := u.reserve(flag)
		c, err := u.readCode()
		if err != nil {
			return nil, err
		}
		u.settle(idx, c)
		return c, nil

	case tagRef:
		i, err := u.int32()
		if err != nil {
			return nil, err
		}
		if i < 0 || int(i) >= len(u.refs) {
			return nil, u.fail("reference %d out of range (%d known)", i, len(u.refs))
		}
		if u.building[i] {
			return nil, u.fail("reference %d points at an object under construction", i)
		}
		return u.refs[i], nil
	}
	return nil, u.fail("unknown type tag %q (%#x)", rune(tag), code)
}

func (u *unmarshaller) readSequence(tag byte, flag bool) (Object, error) {
	var n int
	if tag == tagSmallTuple {
		b, err := u.byte()
		if err != nil {
			return nil, err
		}
		n = int(b)
	} else {
		v, err := u.int32()
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, u.fail("negative sequence length %d", v)
		}
		n = int(v)
	}
	if n > len(u.data)-u.pos {
		return nil, u.fail("sequence of %d items exceeds remaining input", n)
	}
	idx := u.reserve(flag)
	items := make([]Object, n)
	for i := range items {
		v, err := u.readObject()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, u.fail("NULL item in sequence")
		}
		items[i] = v
	}
	var out Object
	switch tag {
	case tagList:
		out = List(items)
	case tagSet:
		out = Set(items)
	case tagFrozenSet:
		out = FrozenSet(items)
	default:
		out = Tuple(items)
	}
	u.settle(idx, out)
	return out, nil
}

func (u *unmarshaller) readLong() (Object, error) {
	n, err := u.int32()
	if err != nil {
		return nil, err
	}
	size := int(n)
	if size < 0 {
		size = -size
	}
	digits, err := u.bytes(2 * size)
	if err != nil {
		return nil, err
	}
	v := new(big.Int)
	for i := size - 1; i >= 0; i-- {
		d := binary.LittleEndian.Uint16(digits[2*i:])
		if d >= 1<<15 {
			return nil, u.fail("long digit out of range")
		}
		v.Lsh(v, 15)
		v.Or(v, big.NewInt(int64(d)))
	}
	if n < 0 {
		v.Neg(v)
	}
	if v.IsInt64() {
		return v.Int64(), nil
	}
	return v, nil
}

func (u *unmarshaller) textFloat() (float64, error) {
	b, err := u.sized(true)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, u.fail("bad float literal %q", b)
	}
	return f, nil
}

func (u *unmarshaller) long() (int, error) {
	v, err := u.int32()
	return int(v), err
}

func (u *unmarshaller) stringField(what string) (string, error) {
	o, err := u.readObject()
	if err != nil {
		return "", err
	}
	s, ok := StringValue(o)
	if !ok {
		return "", u.fail("%s is %T, not a string", what, o)
	}
	return s, nil
}

func (u *unmarshaller) bytesField(what string) ([]byte, error) {
	o, err := u.readObject()
	if err != nil {
		return nil, err
	}
	switch v := o.(type) {
	case Bytes:
		return []byte(v), nil
	case string:
		return []byte(v), nil
	}
	return nil, u.fail("%s is %T, not bytes", what, o)
}

func (u *unmarshaller) namesField(what string) ([]string, error) {
	o, err := u.readObject()
	if err != nil {
		return nil, err
	}
	t, ok := o.(Tuple)
	if !ok {
		return nil, u.fail("%s is %T, not a tuple", what, o)
	}
	names := make([]string, len(t))
	for i, item := range t {
		s, ok := StringValue(item)
		if !ok {
			return nil, u.fail("%s[%d] is %T, not a string", what, i, item)
		}
		names[i] = s
	}
	return names, nil
}

// readCode reads the revision-specific field layout of a code object.
func (u *unmarshaller) readCode() (*CodeUnit, error) {
	rev := u.rev
	c := &CodeUnit{Revision: rev.Tag}
	var err error
	ints := func(dst ...*int) error {
		for _, d := range dst {
			if *d, err = u.long(); err != nil {
				return err
			}
		}
		return nil
	}

	var flags int
	switch {
	case rev.Major == 2:
		err = ints(&c.ArgCount, &c.NLocals, &c.StackSize, &flags)
	case rev.Before(3, 8):
		err = ints(&c.ArgCount, &c.KwOnlyArgCount, &c.NLocals, &c.StackSize, &flags)
	case rev.Before(3, 11):
		err = ints(&c.ArgCount, &c.PosOnlyArgCount, &c.KwOnlyArgCount, &c.NLocals, &c.StackSize, &flags)
	default:
		err = ints(&c.ArgCount, &c.PosOnlyArgCount, &c.KwOnlyArgCount, &c.StackSize, &flags)
	}
	if err != nil {
		return nil, err
	}
	c.Flags = uint32(flags)

	if c.Code, err = u.bytesField("co_code"); err != nil {
		return nil, err
	}
	consts, err := u.readObject()
	if err != nil {
		return nil, err
	}
	ct, ok := consts.(Tuple)
	if !ok {
		return nil, u.fail("co_consts is %T, not a tuple", consts)
	}
	c.Consts = []Object(ct)
	if c.Names, err = u.namesField("co_names"); err != nil {
		return nil, err
	}

	if rev.AtLeast(3, 11) {
		if c.LocalsPlusNames, err = u.namesField("co_localsplusnames"); err != nil {
			return nil, err
		}
		if c.LocalsPlusKinds, err = u.bytesField("co_localspluskinds"); err != nil {
			return nil, err
		}
		c.splitLocalsPlus()
	} else {
		if c.VarNames, err = u.namesField("co_varnames"); err != nil {
			return nil, err
		}
		if c.FreeVars, err = u.namesField("co_freevars"); err != nil {
			return nil, err
		}
		if c.CellVars, err = u.namesField("co_cellvars"); err != nil {
			return nil, err
		}
	}

	if c.Filename, err = u.stringField("co_filename"); err != nil {
		return nil, err
	}
	if c.Name, err = u.stringField("co_name"); err != nil {
		return nil, err
	}
	if rev.AtLeast(3, 11) {
		if c.QualName, err = u.stringField("co_qualname"); err != nil {
			return nil, err
		}
	}
	if c.FirstLine, err = u.long(); err != nil {
		return nil, err
	}
	if c.LineTable, err = u.bytesField("co_linetable"); err != nil {
		return nil, err
	}
	if rev.AtLeast(3, 11) {
		if c.ExceptionTable, err = u.bytesField("co_exceptiontable"); err != nil {
			return nil, err
		}
	}

	if c.Lines, err = DecodeLines(c.LineTable, c.FirstLine, len(c.Code), rev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, c.Name, err)
	}
	if rev.AtLeast(3, 11) {
		if c.Exceptions, err = DecodeExceptionTable(c.ExceptionTable); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, c.Name, err)
		}
	}
	return c, nil
}

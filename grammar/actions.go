package grammar

import (
	"slices"
	"strings"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/pyc"
)

func init() {
	actions = map[string]action{
		// atoms
		"const":           actConst,
		"name":            actName,
		"assertion_error": actAssertionError,
		"build_class":     actBuildClass,
		"null":            actNull,
		"locals":          actLocals,
		"saved":           actSaved,
		"gen":             actGen,

		// attributes and subscripts
		"attr":           actAttr,
		"aug_attr_load":  actAugAttrLoad,
		"import_attr":    actImportAttr,
		"load_method":    actLoadMethod,
		"super_attr":     actSuperAttr,
		"subscr":         actSubscr,
		"binary_slice":   actBinarySlice,
		"build_slice":    actBuildSlice,
		"slice27":        actSlice27,
		"store_slice27":  actStoreSlice27,
		"delete_slice27": actDeleteSlice27,

		// operators
		"binop":                 actBinop,
		"inplace":               actInplace,
		"unary":                 actUnary,
		"compare":               actCompare,
		"intrinsic1":            actIntrinsic1,
		"import_star_intrinsic": actImportStarIntrinsic,
		"intrinsic2":            actIntrinsic2,

		// displays
		"build_seq":        actBuildSeq,
		"build_map":        actBuildMap,
		"build_map27":      actBuildMap27,
		"store_map":        actStoreMap,
		"const_key_map":    actConstKeyMap,
		"build_string":     actBuildString,
		"format_value":     actFormatValue,
		"convert_value":    actConvertValue,
		"format_simple":    actFormatSimple,
		"format_spec":      actFormatSpec,
		"seq_extend":       actSeqExtend,
		"dict_update":      actDictUpdate,
		"list_to_tuple":    actListToTuple,
		"build_unpack":     actBuildUnpack,
		"build_map_unpack": actBuildMapUnpack,
		"comp_append":      actCompAppend,
		"comp_map_add":     actCompMapAdd,

		// calls, functions, classes
		"call":              actCall,
		"call_kw":           actCallKW,
		"call27":            actCall27,
		"call_ex":           actCallEx,
		"call_method":       actCallMethod,
		"call_null":         actCallNull,
		"call_self":         actCallSelf,
		"make_function":     actMakeFunction,
		"set_function_attr": actSetFunctionAttr,
		"build_class27":     actBuildClass27,

		// iteration and generators
		"get_iter":        actGetIter,
		"aiter_await":     actAiterAwait,
		"yield_from_iter": actYieldFromIter,
		"awaitable":       actAwaitable,
		"yield_from":      actYieldFrom,
		"yield":           actYield,

		// stores and deletes
		"store":             actStore,
		"unpack_store":      actUnpackStore,
		"aug_store":         actAugStore,
		"chain_store":       actChainStore,
		"dup_store":         actDupStore,
		"import_store":      actImportStore,
		"import_from_store": actImportFromStore,
		"discard":           actDiscard,
		"store_slice":       actStoreSlice,
		"store_annotation":  actStoreAnnotation,
		"unpack":            actUnpack,
		"unpack_nested":     actUnpackNested,
		"delete":            actDelete,

		// statements
		"expr_stmt": actExprStmt,
		"return":    actReturn,
		"raise":     actRaise,
		"exec":      actExec,

		// imports
		"import_name":   actImportName,
		"import_from":   actImportFrom,
		"import_star":   actImportStar,
		"import_rot":    actImportRot,
		"import_finish": actImportFinish,

		// print statement
		"print_item":       actPrintItem,
		"print_newline":    actPrintNewline,
		"print_item_to":    actPrintItemTo,
		"print_newline_to": actPrintNewlineTo,
		"printto_dup":      actPrintToDup,
		"print_finish":     actPrintFinish,

		// stack shuffles
		"dup":       actDup,
		"dup_two":   actDupTwo,
		"copy_half": actCopyHalf,
		"aug_rot":   actAugRot,
		"aug_swap3": actAugSwap3,
		"aug_swap2": actAugSwap2,
		"rotate":    actRotate,
		"swap":      actSwap,
		"copy":      actCopy,
		"jump":      actJump,
	}
}

// HasAction reports whether the reducer implements the named rule action.
func HasAction(name string) bool {
	_, ok := actions[name]
	return ok
}

func one(e ast.Expr) []*symbol {
	return []*symbol{exprSym(e)}
}

func argString(in *disasm.Instruction) string {
	s, _ := in.Argval.(string)
	return s
}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

func actConst(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if u, ok := m.in.Argval.(*pyc.CodeUnit); ok {
		return []*symbol{partSym(ntCode, u)}, true
	}
	return one(&ast.Constant{Value: m.in.Argval}), true
}

func actName(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	n := name(argString(m.in))
	if m.in.Is("LOAD_GLOBAL") && r.bundle.Features.InlineCaches && m.in.Arg&1 != 0 {
		if r.bundle.Revision.AtLeast(3, 13) {
			return []*symbol{exprSym(n), partSym(ntNull, nil)}, true
		}
		return []*symbol{partSym(ntNull, nil), exprSym(n)}, true
	}
	return one(n), true
}

func actAssertionError(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return one(name("AssertionError")), true
}

func actBuildClass(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{{nt: ntBuildClass, node: name("__build_class__")}}, true
}

func actNull(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntNull, nil)}, true
}

func actLocals(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{{nt: ntLocals, node: &ast.Call{Func: name("locals")}}}, true
}

func actSaved(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntSaved, argString(m.in))}, true
}

func actGen(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntGen, nil)}, true
}

// ---------------------------------------------------------------------------
// Attributes, subscripts, slices
// ---------------------------------------------------------------------------

func methodSyms(callee ast.Expr) []*symbol {
	return []*symbol{{nt: ntMethod, node: callee}, partSym(ntMethSelf, nil)}
}

func actAttr(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	a := &ast.Attribute{X: m.expr(0), Attr: argString(m.in)}
	if r.bundle.Revision.AtLeast(3, 12) && m.in.Arg&1 != 0 {
		return methodSyms(a), true
	}
	return one(a), true
}

// actAugAttrLoad reads the attribute an augmented assignment updates. The
// duplicated object stays behind for the store.
func actAugAttrLoad(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	x := m.expr(0)
	return []*symbol{
		{nt: ntAugAttr, node: x, part: x},
		exprSym(&ast.Attribute{X: x, Attr: argString(m.in)}),
	}, true
}

func actLoadMethod(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return methodSyms(&ast.Attribute{X: m.expr(0), Attr: argString(m.in)}), true
}

func actSuperAttr(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	call := &ast.Call{Func: m.expr(0)}
	if m.in.Arg&2 != 0 {
		call.Args = []ast.Expr{m.expr(1), m.expr(2)}
	}
	a := &ast.Attribute{X: call, Attr: argString(m.in)}
	if m.in.Arg&1 != 0 {
		return methodSyms(a), true
	}
	return one(a), true
}

func actSubscr(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return one(&ast.Subscript{X: m.expr(0), Index: m.expr(1)}), true
}

func actBinarySlice(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	sl := &ast.Slice{Lower: noneToNil(m.expr(1)), Upper: noneToNil(m.expr(2))}
	return one(&ast.Subscript{X: m.expr(0), Index: sl}), true
}

func actBuildSlice(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	e := m.exprs(0)
	if len(e) < 2 {
		return nil, false
	}
	sl := &ast.Slice{Lower: noneToNil(e[0]), Upper: noneToNil(e[1])}
	if len(e) > 2 {
		sl.Step = noneToNil(e[2])
	}
	return one(sl), true
}

// slice27 splits the operands of a 2.x slice opcode into the sliced value
// and its bounds. The opcode suffix says which bounds are present.
func slice27(op string, vals []ast.Expr) (ast.Expr, *ast.Slice) {
	sl := &ast.Slice{}
	switch op[len(op)-1] {
	case '1':
		sl.Lower = vals[1]
	case '2':
		sl.Upper = vals[1]
	case '3':
		sl.Lower, sl.Upper = vals[1], vals[2]
	}
	return vals[0], sl
}

func actSlice27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	x, sl := slice27(m.in.Op, exprsOf(m.all()))
	return one(&ast.Subscript{X: x, Index: sl}), true
}

func actStoreSlice27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	vals := exprsOf(m.all())
	x, sl := slice27(m.in.Op, vals[1:])
	f.emit(&ast.Assign{Targets: []ast.Expr{&ast.Subscript{X: x, Index: sl}}, Value: vals[0]})
	return nil, true
}

func actDeleteSlice27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	x, sl := slice27(m.in.Op, exprsOf(m.all()))
	f.emit(&ast.Delete{Targets: []ast.Expr{&ast.Subscript{X: x, Index: sl}}})
	return nil, true
}

func exprsOf(syms []*symbol) []ast.Expr {
	out := make([]ast.Expr, len(syms))
	for i, s := range syms {
		out[i] = s.node
	}
	return out
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var binaryOps = map[string]string{
	"BINARY_POWER":           "**",
	"BINARY_MULTIPLY":        "*",
	"BINARY_MATRIX_MULTIPLY": "@",
	"BINARY_DIVIDE":          "/",
	"BINARY_FLOOR_DIVIDE":    "//",
	"BINARY_TRUE_DIVIDE":     "/",
	"BINARY_MODULO":          "%",
	"BINARY_ADD":             "+",
	"BINARY_SUBTRACT":        "-",
	"BINARY_LSHIFT":          "<<",
	"BINARY_RSHIFT":          ">>",
	"BINARY_AND":             "&",
	"BINARY_XOR":             "^",
	"BINARY_OR":              "|",
}

var unaryOps = map[string]string{
	"UNARY_POSITIVE": "+",
	"UNARY_NEGATIVE": "-",
	"UNARY_NOT":      "not",
	"UNARY_INVERT":   "~",
}

// augValue is the result of the in-place operator of an augmented
// assignment, waiting for its store.
type augValue struct {
	op    string
	value ast.Expr
}

func augSyms(left ast.Expr, op string, right ast.Expr) []*symbol {
	return []*symbol{{
		nt:   ntAugValue,
		node: &ast.BinOp{Left: left, Op: strings.TrimSuffix(op, "="), Right: right},
		part: &augValue{op: op, value: right},
	}}
}

func actBinop(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	l, rt := m.expr(0), m.expr(1)
	op := binaryOps[m.in.Op]
	if m.in.Is("BINARY_OP") {
		op, _ = m.in.Argval.(string)
		if strings.HasSuffix(op, "=") {
			return augSyms(l, op, rt), true
		}
	}
	if op == "" || strings.HasPrefix(op, "<") && strings.HasSuffix(op, ">") {
		return nil, false
	}
	return one(&ast.BinOp{Left: l, Op: op, Right: rt}), true
}

func actInplace(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	op, ok := binaryOps["BINARY_"+strings.TrimPrefix(m.in.Op, "INPLACE_")]
	if !ok {
		return nil, false
	}
	return augSyms(m.expr(0), op+"=", m.expr(1)), true
}

func actUnary(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if m.in.Is("UNARY_CONVERT") {
		return one(&ast.Backquote{X: m.expr(0)}), true
	}
	return one(&ast.UnaryOp{Op: unaryOps[m.in.Op], X: m.expr(0)}), true
}

func actCompare(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	var op string
	switch m.in.Op {
	case "IS_OP":
		op = "is"
		if m.in.Arg == 1 {
			op = "is not"
		}
	case "CONTAINS_OP":
		op = "in"
		if m.in.Arg == 1 {
			op = "not in"
		}
	default:
		op, _ = m.in.Argval.(string)
		if op == "" || op == "exception match" || op == "BAD" || strings.HasPrefix(op, "<") && len(op) > 2 {
			return nil, false
		}
	}
	return one(&ast.Compare{Left: m.expr(0), Ops: []string{op}, Comparators: []ast.Expr{m.expr(1)}}), true
}

// Operands of CALL_INTRINSIC_1.
const (
	intrinsicPrint         = 1
	intrinsicStopIteration = 3
	intrinsicAsyncGenWrap  = 4
	intrinsicUnaryPositive = 5
	intrinsicListToTuple   = 6
)

func actIntrinsic1(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	v := m.sym(0)
	switch m.in.Arg {
	case intrinsicPrint, intrinsicStopIteration, intrinsicAsyncGenWrap:
		return []*symbol{v}, true
	case intrinsicUnaryPositive:
		return one(&ast.UnaryOp{Op: "+", X: v.node}), true
	case intrinsicListToTuple:
		return listToTuple(v.node)
	}
	return nil, false
}

func actImportStarIntrinsic(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntImportStar, m.sym(0).part)}, true
}

// actIntrinsic2 covers type-parameter and except* helpers, which have no
// source form of their own.
func actIntrinsic2(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return nil, false
}

// ---------------------------------------------------------------------------
// Displays
// ---------------------------------------------------------------------------

func actBuildSeq(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	elts := m.exprs(0)
	switch m.in.Op {
	case "BUILD_LIST":
		return one(&ast.List{Elts: elts}), true
	case "BUILD_SET":
		return one(&ast.Set{Elts: elts}), true
	}
	return one(&ast.Tuple{Elts: elts}), true
}

func actBuildMap(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	e := m.exprs(0)
	d := &ast.Dict{}
	for i := 0; i+1 < len(e); i += 2 {
		d.Keys = append(d.Keys, e[i])
		d.Values = append(d.Values, e[i+1])
	}
	return one(d), true
}

func actBuildMap27(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return one(&ast.Dict{}), true
}

func actStoreMap(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	d, ok := m.expr(0).(*ast.Dict)
	if !ok {
		return nil, false
	}
	return one(&ast.Dict{
		Keys:   append(append([]ast.Expr{}, d.Keys...), m.expr(2)),
		Values: append(append([]ast.Expr{}, d.Values...), m.expr(1)),
	}), true
}

func actConstKeyMap(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	vals := m.exprs(0)
	keys, ok := constElts(m.expr(1))
	if !ok || len(keys) != len(vals) {
		return nil, false
	}
	return one(&ast.Dict{Keys: keys, Values: vals}), true
}

func actBuildString(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	js := &ast.JoinedStr{}
	for _, e := range m.exprs(0) {
		switch v := e.(type) {
		case *ast.JoinedStr:
			js.Values = append(js.Values, v.Values...)
		case *ast.Constant:
			js.Values = append(js.Values, v)
		default:
			js.Values = append(js.Values, &ast.FormattedValue{Value: v})
		}
	}
	return one(js), true
}

var conversions = [...]rune{0, 's', 'r', 'a'}

func actFormatValue(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	fv := &ast.FormattedValue{Value: m.expr(0), Conversion: conversions[m.in.Arg&3]}
	if len(m.groups[1]) == 1 {
		fv.Spec = formatSpec(m.groups[1][0].node)
	}
	return one(&ast.JoinedStr{Values: []ast.Expr{fv}}), true
}

func formatSpec(e ast.Expr) *ast.JoinedStr {
	switch spec := e.(type) {
	case *ast.JoinedStr:
		return spec
	case *ast.Constant:
		return &ast.JoinedStr{Values: []ast.Expr{spec}}
	}
	return &ast.JoinedStr{Values: []ast.Expr{&ast.FormattedValue{Value: e}}}
}

// convertPart is a value CONVERT_VALUE applied !s, !r or !a to, waiting
// for the instruction that formats it.
type convertPart struct {
	value ast.Expr
	conv  rune
}

func actConvertValue(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if m.in.Arg < 1 || m.in.Arg >= len(conversions) {
		return nil, false
	}
	return []*symbol{partSym(ntConverted, &convertPart{value: m.expr(0), conv: conversions[m.in.Arg]})}, true
}

func formatted(s *symbol) *ast.FormattedValue {
	if c, ok := s.part.(*convertPart); ok && s.nt == ntConverted {
		return &ast.FormattedValue{Value: c.value, Conversion: c.conv}
	}
	return &ast.FormattedValue{Value: s.node}
}

func actFormatSimple(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return one(&ast.JoinedStr{Values: []ast.Expr{formatted(m.sym(0))}}), true
}

func actFormatSpec(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	fv := formatted(m.sym(0))
	fv.Spec = formatSpec(m.expr(1))
	return one(&ast.JoinedStr{Values: []ast.Expr{fv}}), true
}

// spread returns the items an iterable contributes to a display.
func spread(e ast.Expr) []ast.Expr {
	if elts, ok := constElts(e); ok {
		return elts
	}
	return []ast.Expr{&ast.Starred{X: e}}
}

func actSeqExtend(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	if m.in.Arg != 1 {
		return nil, false
	}
	switch acc := m.expr(0).(type) {
	case *ast.List:
		return one(&ast.List{Elts: append(append([]ast.Expr{}, acc.Elts...), spread(m.expr(1))...)}), true
	case *ast.Set:
		return one(&ast.Set{Elts: append(append([]ast.Expr{}, acc.Elts...), spread(m.expr(1))...)}), true
	}
	return nil, false
}

func actDictUpdate(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	acc, ok := m.expr(0).(*ast.Dict)
	if !ok || m.in.Arg != 1 {
		return nil, false
	}
	keys, values := []ast.Expr{nil}, []ast.Expr{m.expr(1)}
	if lit, ok := m.expr(1).(*ast.Dict); ok && !slices.Contains(lit.Keys, nil) {
		keys, values = lit.Keys, lit.Values
	}
	return one(&ast.Dict{
		Keys:   append(append([]ast.Expr{}, acc.Keys...), keys...),
		Values: append(append([]ast.Expr{}, acc.Values...), values...),
	}), true
}

func listToTuple(e ast.Expr) ([]*symbol, bool) {
	l, ok := e.(*ast.List)
	if !ok {
		return nil, false
	}
	return one(&ast.Tuple{Elts: l.Elts}), true
}

func actListToTuple(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return listToTuple(m.expr(0))
}

func actBuildUnpack(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	var elts []ast.Expr
	for _, e := range m.exprs(0) {
		switch v := e.(type) {
		case *ast.Tuple:
			elts = append(elts, v.Elts...)
		case *ast.List:
			elts = append(elts, v.Elts...)
		case *ast.Set:
			elts = append(elts, v.Elts...)
		default:
			elts = append(elts, spread(e)...)
		}
	}
	switch m.in.Op {
	case "BUILD_LIST_UNPACK":
		return one(&ast.List{Elts: elts}), true
	case "BUILD_SET_UNPACK":
		return one(&ast.Set{Elts: elts}), true
	}
	return one(&ast.Tuple{Elts: elts}), true
}

func actBuildMapUnpack(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	d := &ast.Dict{}
	for _, e := range m.exprs(0) {
		if v, ok := e.(*ast.Dict); ok {
			d.Keys = append(d.Keys, v.Keys...)
			d.Values = append(d.Values, v.Values...)
			continue
		}
		d.Keys = append(d.Keys, nil)
		d.Values = append(d.Values, e)
	}
	return one(d), true
}

// actCompAppend handles LIST_APPEND and SET_ADD. Operand 1 appends to a
// display being built right below; deeper operands feed a comprehension
// accumulator.
func actCompAppend(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	v := m.expr(0)
	kind := ast.ListComp
	if m.in.Is("SET_ADD") {
		kind = ast.SetComp
	}
	if m.in.Arg == 1 && len(f.stack) >= 2 {
		below := f.stack[len(f.stack)-2]
		switch d := below.node.(type) {
		case *ast.List:
			if kind == ast.ListComp {
				below.node = &ast.List{Elts: append(append([]ast.Expr{}, d.Elts...), v)}
				return nil, true
			}
		case *ast.Set:
			if kind == ast.SetComp {
				below.node = &ast.Set{Elts: append(append([]ast.Expr{}, d.Elts...), v)}
				return nil, true
			}
		}
	}
	f.emit(&ast.ExprStmt{X: &ast.CompAppend{Kind: kind, Elt: v, Depth: m.in.Arg}})
	return nil, true
}

func actCompMapAdd(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	key, val := m.expr(0), m.expr(1)
	if r.bundle.Revision.Before(3, 8) {
		key, val = val, key
	}
	f.emit(&ast.ExprStmt{X: &ast.CompAppend{Kind: ast.DictComp, Elt: key, Value: val, Depth: m.in.Arg}})
	return nil, true
}

// ---------------------------------------------------------------------------
// Iteration and generators
// ---------------------------------------------------------------------------

func actGetIter(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{{nt: ntIter, node: m.expr(0)}}, true
}

// actAiterAwait drops the await of the async iterator older revisions
// emit after GET_AITER.
func actAiterAwait(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{m.sym(0)}, true
}

func actYieldFromIter(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntYFIter, m.expr(0))}, true
}

func actAwaitable(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return []*symbol{partSym(ntAwaitable, m.expr(0))}, true
}

func actYieldFrom(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	src := m.sym(0)
	v, _ := src.part.(ast.Expr)
	if src.nt == ntAwaitable {
		return one(&ast.Await{Value: v}), true
	}
	return one(&ast.YieldFrom{Value: v}), true
}

func actYield(r *reducer, f *frame, m *match) ([]*symbol, bool) {
	return one(&ast.Yield{Value: noneToNil(m.expr(0))}), true
}

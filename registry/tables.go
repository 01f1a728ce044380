package registry

// ---------------------------------------------------------------------------
// Opcode tables
//
// 3.8 is the base table. Older and newer releases are derived from it by
// removing and adding entries; 2.7, 3.11 and 3.13 are written out in full
// because their numbering diverges too far for a delta to be readable.
// ---------------------------------------------------------------------------

func op(code byte, name string, operand OperandKind, flow Flow) *Opcode {
	return &Opcode{Code: code, Name: name, Operand: operand, Flow: flow}
}

func cached(o *Opcode, n int) *Opcode {
	o.Caches = n
	return o
}

func plain(code byte, name string) *Opcode {
	return op(code, name, OperandNone, FlowNext)
}

// derive copies base, drops the named opcodes and adds (or overrides) the given ones.
func derive(base []*Opcode, remove []string, add ...*Opcode) []*Opcode {
	drop := make(map[string]bool, len(remove))
	for _, name := range remove {
		drop[name] = true
	}
	replaced := make(map[byte]bool, len(add))
	for _, o := range add {
		replaced[o.Code] = true
	}
	out := make([]*Opcode, 0, len(base)+len(add))
	for _, o := range base {
		if drop[o.Name] || replaced[o.Code] {
			continue
		}
		out = append(out, o)
	}
	return append(out, add...)
}

func table38() []*Opcode {
	return []*Opcode{
		plain(1, "POP_TOP"),
		plain(2, "ROT_TWO"),
		plain(3, "ROT_THREE"),
		plain(4, "DUP_TOP"),
		plain(5, "DUP_TOP_TWO"),
		plain(6, "ROT_FOUR"),
		plain(9, "NOP"),
		plain(10, "UNARY_POSITIVE"),
		plain(11, "UNARY_NEGATIVE"),
		plain(12, "UNARY_NOT"),
		plain(15, "UNARY_INVERT"),
		plain(16, "BINARY_MATRIX_MULTIPLY"),
		plain(17, "INPLACE_MATRIX_MULTIPLY"),
		plain(19, "BINARY_POWER"),
		plain(20, "BINARY_MULTIPLY"),
		plain(22, "BINARY_MODULO"),
		plain(23, "BINARY_ADD"),
		plain(24, "BINARY_SUBTRACT"),
		plain(25, "BINARY_SUBSCR"),
		plain(26, "BINARY_FLOOR_DIVIDE"),
		plain(27, "BINARY_TRUE_DIVIDE"),
		plain(28, "INPLACE_FLOOR_DIVIDE"),
		plain(29, "INPLACE_TRUE_DIVIDE"),
		plain(50, "GET_AITER"),
		plain(51, "GET_ANEXT"),
		plain(52, "BEFORE_ASYNC_WITH"),
		plain(53, "BEGIN_FINALLY"),
		plain(54, "END_ASYNC_FOR"),
		plain(55, "INPLACE_ADD"),
		plain(56, "INPLACE_SUBTRACT"),
		plain(57, "INPLACE_MULTIPLY"),
		plain(59, "INPLACE_MODULO"),
		plain(60, "STORE_SUBSCR"),
		plain(61, "DELETE_SUBSCR"),
		plain(62, "BINARY_LSHIFT"),
		plain(63, "BINARY_RSHIFT"),
		plain(64, "BINARY_AND"),
		plain(65, "BINARY_XOR"),
		plain(66, "BINARY_OR"),
		plain(67, "INPLACE_POWER"),
		plain(68, "GET_ITER"),
		plain(69, "GET_YIELD_FROM_ITER"),
		plain(70, "PRINT_EXPR"),
		plain(71, "LOAD_BUILD_CLASS"),
		plain(72, "YIELD_FROM"),
		plain(73, "GET_AWAITABLE"),
		plain(75, "INPLACE_LSHIFT"),
		plain(76, "INPLACE_RSHIFT"),
		plain(77, "INPLACE_AND"),
		plain(78, "INPLACE_XOR"),
		plain(79, "INPLACE_OR"),
		plain(81, "WITH_CLEANUP_START"),
		plain(82, "WITH_CLEANUP_FINISH"),
		op(83, "RETURN_VALUE", OperandNone, FlowReturn),
		plain(84, "IMPORT_STAR"),
		plain(85, "SETUP_ANNOTATIONS"),
		plain(86, "YIELD_VALUE"),
		plain(87, "POP_BLOCK"),
		plain(88, "END_FINALLY"),
		plain(89, "POP_EXCEPT"),
		op(90, "STORE_NAME", OperandName, FlowNext),
		op(91, "DELETE_NAME", OperandName, FlowNext),
		op(92, "UNPACK_SEQUENCE", OperandCount, FlowNext),
		op(93, "FOR_ITER", OperandJumpRel, FlowForIter),
		op(94, "UNPACK_EX", OperandCount, FlowNext),
		op(95, "STORE_ATTR", OperandName, FlowNext),
		op(96, "DELETE_ATTR", OperandName, FlowNext),
		op(97, "STORE_GLOBAL", OperandName, FlowNext),
		op(98, "DELETE_GLOBAL", OperandName, FlowNext),
		op(100, "LOAD_CONST", OperandConst, FlowNext),
		op(101, "LOAD_NAME", OperandName, FlowNext),
		op(102, "BUILD_TUPLE", OperandCount, FlowNext),
		op(103, "BUILD_LIST", OperandCount, FlowNext),
		op(104, "BUILD_SET", OperandCount, FlowNext),
		op(105, "BUILD_MAP", OperandCount, FlowNext),
		op(106, "LOAD_ATTR", OperandName, FlowNext),
		op(107, "COMPARE_OP", OperandCompare, FlowNext),
		op(108, "IMPORT_NAME", OperandName, FlowNext),
		op(109, "IMPORT_FROM", OperandName, FlowNext),
		op(110, "JUMP_FORWARD", OperandJumpRel, FlowJump),
		op(111, "JUMP_IF_FALSE_OR_POP", OperandJumpAbs, FlowBranchKeep),
		op(112, "JUMP_IF_TRUE_OR_POP", OperandJumpAbs, FlowBranchKeep),
		op(113, "JUMP_ABSOLUTE", OperandJumpAbs, FlowJump),
		op(114, "POP_JUMP_IF_FALSE", OperandJumpAbs, FlowBranch),
		op(115, "POP_JUMP_IF_TRUE", OperandJumpAbs, FlowBranch),
		op(116, "LOAD_GLOBAL", OperandName, FlowNext),
		op(122, "SETUP_FINALLY", OperandJumpRel, FlowSetup),
		op(124, "LOAD_FAST", OperandLocal, FlowNext),
		op(125, "STORE_FAST", OperandLocal, FlowNext),
		op(126, "DELETE_FAST", OperandLocal, FlowNext),
		op(130, "RAISE_VARARGS", OperandCount, FlowRaise),
		op(131, "CALL_FUNCTION", OperandCount, FlowNext),
		op(132, "MAKE_FUNCTION", OperandFlags, FlowNext),
		op(133, "BUILD_SLICE", OperandCount, FlowNext),
		op(135, "LOAD_CLOSURE", OperandFree, FlowNext),
		op(136, "LOAD_DEREF", OperandFree, FlowNext),
		op(137, "STORE_DEREF", OperandFree, FlowNext),
		op(138, "DELETE_DEREF", OperandFree, FlowNext),
		op(141, "CALL_FUNCTION_KW", OperandCount, FlowNext),
		op(142, "CALL_FUNCTION_EX", OperandFlags, FlowNext),
		op(143, "SETUP_WITH", OperandJumpRel, FlowSetup),
		op(144, "EXTENDED_ARG", OperandRaw, FlowExtend),
		op(145, "LIST_APPEND", OperandCount, FlowNext),
		op(146, "SET_ADD", OperandCount, FlowNext),
		op(147, "MAP_ADD", OperandCount, FlowNext),
		op(148, "LOAD_CLASSDEREF", OperandFree, FlowNext),
		op(149, "BUILD_LIST_UNPACK", OperandCount, FlowNext),
		op(150, "BUILD_MAP_UNPACK", OperandCount, FlowNext),
		op(151, "BUILD_MAP_UNPACK_WITH_CALL", OperandCount, FlowNext),
		op(152, "BUILD_TUPLE_UNPACK", OperandCount, FlowNext),
		op(153, "BUILD_SET_UNPACK", OperandCount, FlowNext),
		op(154, "SETUP_ASYNC_WITH", OperandJumpRel, FlowSetup),
		op(155, "FORMAT_VALUE", OperandFlags, FlowNext),
		op(156, "BUILD_CONST_KEY_MAP", OperandCount, FlowNext),
		op(157, "BUILD_STRING", OperandCount, FlowNext),
		op(158, "BUILD_TUPLE_UNPACK_WITH_CALL", OperandCount, FlowNext),
		op(160, "LOAD_METHOD", OperandName, FlowNext),
		op(161, "CALL_METHOD", OperandCount, FlowNext),
		op(162, "CALL_FINALLY", OperandJumpRel, FlowNext),
		op(163, "POP_FINALLY", OperandRaw, FlowNext),
	}
}

func table37() []*Opcode {
	return derive(table38(),
		[]string{"ROT_FOUR", "BEGIN_FINALLY", "END_ASYNC_FOR", "CALL_FINALLY", "POP_FINALLY"},
		op(80, "BREAK_LOOP", OperandNone, FlowBreak),
		op(119, "CONTINUE_LOOP", OperandJumpAbs, FlowJump),
		op(120, "SETUP_LOOP", OperandJumpRel, FlowSetup),
		op(121, "SETUP_EXCEPT", OperandJumpRel, FlowSetup),
	)
}

func table36() []*Opcode {
	return derive(table37(),
		[]string{"LOAD_METHOD", "CALL_METHOD"},
		op(127, "STORE_ANNOTATION", OperandName, FlowNext),
	)
}

// table35 is the last release before wordcode. Function creation and the
// starred call forms still use the 2.x encodings.
func table35() []*Opcode {
	return derive(table36(),
		[]string{
			"FORMAT_VALUE", "BUILD_CONST_KEY_MAP", "BUILD_STRING", "BUILD_TUPLE_UNPACK_WITH_CALL",
			"SETUP_ANNOTATIONS", "STORE_ANNOTATION", "CALL_FUNCTION_EX",
		},
		op(132, "MAKE_FUNCTION", OperandCount, FlowNext),
		op(134, "MAKE_CLOSURE", OperandCount, FlowNext),
		op(140, "CALL_FUNCTION_VAR", OperandCount, FlowNext),
		op(142, "CALL_FUNCTION_VAR_KW", OperandCount, FlowNext),
	)
}

func table34() []*Opcode {
	return derive(table35(),
		[]string{
			"BINARY_MATRIX_MULTIPLY", "INPLACE_MATRIX_MULTIPLY", "GET_AITER", "GET_ANEXT",
			"BEFORE_ASYNC_WITH", "GET_YIELD_FROM_ITER", "GET_AWAITABLE",
			"WITH_CLEANUP_START", "WITH_CLEANUP_FINISH", "BUILD_LIST_UNPACK", "BUILD_MAP_UNPACK",
			"BUILD_MAP_UNPACK_WITH_CALL", "BUILD_TUPLE_UNPACK", "BUILD_SET_UNPACK", "SETUP_ASYNC_WITH",
		},
		plain(54, "STORE_MAP"),
		plain(81, "WITH_CLEANUP"),
	)
}

func table33() []*Opcode {
	return derive(table34(),
		[]string{"LOAD_CLASSDEREF"},
		plain(69, "STORE_LOCALS"),
	)
}

func table32() []*Opcode {
	return derive(table33(), []string{"YIELD_FROM"})
}

func table31() []*Opcode {
	return derive(table32(),
		[]string{"DUP_TOP_TWO", "DELETE_DEREF", "SETUP_WITH", "EXTENDED_ARG"},
		plain(5, "ROT_FOUR"),
		op(99, "DUP_TOPX", OperandCount, FlowNext),
		op(143, "EXTENDED_ARG", OperandRaw, FlowExtend),
	)
}

// table30 keeps the value on the stack across conditional jumps and has
// operandless comprehension appends.
func table30() []*Opcode {
	return derive(table31(),
		[]string{
			"JUMP_IF_FALSE_OR_POP", "JUMP_IF_TRUE_OR_POP", "POP_JUMP_IF_FALSE", "POP_JUMP_IF_TRUE",
			"LIST_APPEND", "SET_ADD", "MAP_ADD",
		},
		plain(17, "SET_ADD"),
		plain(18, "LIST_APPEND"),
		op(111, "JUMP_IF_FALSE", OperandJumpRel, FlowBranchKeep),
		op(112, "JUMP_IF_TRUE", OperandJumpRel, FlowBranchKeep),
	)
}

func table39() []*Opcode {
	return derive(table38(),
		[]string{
			"BEGIN_FINALLY", "WITH_CLEANUP_START", "WITH_CLEANUP_FINISH", "END_FINALLY",
			"BUILD_LIST_UNPACK", "BUILD_MAP_UNPACK", "BUILD_MAP_UNPACK_WITH_CALL",
			"BUILD_TUPLE_UNPACK", "BUILD_SET_UNPACK", "BUILD_TUPLE_UNPACK_WITH_CALL",
			"CALL_FINALLY", "POP_FINALLY",
		},
		op(48, "RERAISE", OperandNone, FlowRaise),
		plain(49, "WITH_EXCEPT_START"),
		plain(74, "LOAD_ASSERTION_ERROR"),
		plain(82, "LIST_TO_TUPLE"),
		op(117, "IS_OP", OperandRaw, FlowNext),
		op(118, "CONTAINS_OP", OperandRaw, FlowNext),
		op(121, "JUMP_IF_NOT_EXC_MATCH", OperandJumpAbs, FlowBranch),
		op(162, "LIST_EXTEND", OperandCount, FlowNext),
		op(163, "SET_UPDATE", OperandCount, FlowNext),
		op(164, "DICT_MERGE", OperandCount, FlowNext),
		op(165, "DICT_UPDATE", OperandCount, FlowNext),
	)
}

func table310() []*Opcode {
	return derive(table39(),
		[]string{"RERAISE"},
		plain(30, "GET_LEN"),
		plain(31, "MATCH_MAPPING"),
		plain(32, "MATCH_SEQUENCE"),
		plain(33, "MATCH_KEYS"),
		plain(34, "COPY_DICT_WITHOUT_KEYS"),
		op(99, "ROT_N", OperandCount, FlowNext),
		op(119, "RERAISE", OperandRaw, FlowRaise),
		op(129, "GEN_START", OperandRaw, FlowNext),
		op(152, "MATCH_CLASS", OperandCount, FlowNext),
	)
}

func table311() []*Opcode {
	return []*Opcode{
		op(0, "CACHE", OperandNone, FlowCache),
		plain(1, "POP_TOP"),
		plain(2, "PUSH_NULL"),
		plain(9, "NOP"),
		plain(10, "UNARY_POSITIVE"),
		plain(11, "UNARY_NEGATIVE"),
		plain(12, "UNARY_NOT"),
		plain(15, "UNARY_INVERT"),
		cached(plain(25, "BINARY_SUBSCR"), 4),
		plain(30, "GET_LEN"),
		plain(31, "MATCH_MAPPING"),
		plain(32, "MATCH_SEQUENCE"),
		plain(33, "MATCH_KEYS"),
		plain(35, "PUSH_EXC_INFO"),
		plain(36, "CHECK_EXC_MATCH"),
		plain(37, "CHECK_EG_MATCH"),
		plain(49, "WITH_EXCEPT_START"),
		plain(50, "GET_AITER"),
		plain(51, "GET_ANEXT"),
		plain(52, "BEFORE_ASYNC_WITH"),
		plain(53, "BEFORE_WITH"),
		plain(54, "END_ASYNC_FOR"),
		cached(plain(60, "STORE_SUBSCR"), 1),
		plain(61, "DELETE_SUBSCR"),
		plain(68, "GET_ITER"),
		plain(69, "GET_YIELD_FROM_ITER"),
		plain(70, "PRINT_EXPR"),
		plain(71, "LOAD_BUILD_CLASS"),
		plain(74, "LOAD_ASSERTION_ERROR"),
		plain(75, "RETURN_GENERATOR"),
		plain(82, "LIST_TO_TUPLE"),
		op(83, "RETURN_VALUE", OperandNone, FlowReturn),
		plain(84, "IMPORT_STAR"),
		plain(85, "SETUP_ANNOTATIONS"),
		plain(86, "YIELD_VALUE"),
		plain(87, "ASYNC_GEN_WRAP"),
		plain(88, "PREP_RERAISE_STAR"),
		plain(89, "POP_EXCEPT"),
		op(90, "STORE_NAME", OperandName, FlowNext),
		op(91, "DELETE_NAME", OperandName, FlowNext),
		cached(op(92, "UNPACK_SEQUENCE", OperandCount, FlowNext), 1),
		op(93, "FOR_ITER", OperandJumpRel, FlowForIter),
		op(94, "UNPACK_EX", OperandCount, FlowNext),
		cached(op(95, "STORE_ATTR", OperandName, FlowNext), 4),
		op(96, "DELETE_ATTR", OperandName, FlowNext),
		op(97, "STORE_GLOBAL", OperandName, FlowNext),
		op(98, "DELETE_GLOBAL", OperandName, FlowNext),
		op(99, "SWAP", OperandCount, FlowNext),
		op(100, "LOAD_CONST", OperandConst, FlowNext),
		op(101, "LOAD_NAME", OperandName, FlowNext),
		op(102, "BUILD_TUPLE", OperandCount, FlowNext),
		op(103, "BUILD_LIST", OperandCount, FlowNext),
		op(104, "BUILD_SET", OperandCount, FlowNext),
		op(105, "BUILD_MAP", OperandCount, FlowNext),
		cached(op(106, "LOAD_ATTR", OperandName, FlowNext), 4),
		cached(op(107, "COMPARE_OP", OperandCompare, FlowNext), 2),
		op(108, "IMPORT_NAME", OperandName, FlowNext),
		op(109, "IMPORT_FROM", OperandName, FlowNext),
		op(110, "JUMP_FORWARD", OperandJumpRel, FlowJump),
		op(111, "JUMP_IF_FALSE_OR_POP", OperandJumpRel, FlowBranchKeep),
		op(112, "JUMP_IF_TRUE_OR_POP", OperandJumpRel, FlowBranchKeep),
		op(114, "POP_JUMP_FORWARD_IF_FALSE", OperandJumpRel, FlowBranch),
		op(115, "POP_JUMP_FORWARD_IF_TRUE", OperandJumpRel, FlowBranch),
		cached(op(116, "LOAD_GLOBAL", OperandGlobal, FlowNext), 5),
		op(117, "IS_OP", OperandRaw, FlowNext),
		op(118, "CONTAINS_OP", OperandRaw, FlowNext),
		op(119, "RERAISE", OperandRaw, FlowRaise),
		op(120, "COPY", OperandCount, FlowNext),
		cached(op(122, "BINARY_OP", OperandBinaryOp, FlowNext), 1),
		op(123, "SEND", OperandJumpRel, FlowBranchKeep),
		op(124, "LOAD_FAST", OperandLocal, FlowNext),
		op(125, "STORE_FAST", OperandLocal, FlowNext),
		op(126, "DELETE_FAST", OperandLocal, FlowNext),
		op(128, "POP_JUMP_FORWARD_IF_NOT_NONE", OperandJumpRel, FlowBranch),
		op(129, "POP_JUMP_FORWARD_IF_NONE", OperandJumpRel, FlowBranch),
		op(130, "RAISE_VARARGS", OperandCount, FlowRaise),
		op(131, "GET_AWAITABLE", OperandRaw, FlowNext),
		op(132, "MAKE_FUNCTION", OperandFlags, FlowNext),
		op(133, "BUILD_SLICE", OperandCount, FlowNext),
		op(134, "JUMP_BACKWARD_NO_INTERRUPT", OperandJumpBack, FlowJump),
		op(135, "MAKE_CELL", OperandFree, FlowNext),
		op(136, "LOAD_CLOSURE", OperandFree, FlowNext),
		op(137, "LOAD_DEREF", OperandFree, FlowNext),
		op(138, "STORE_DEREF", OperandFree, FlowNext),
		op(139, "DELETE_DEREF", OperandFree, FlowNext),
		op(140, "JUMP_BACKWARD", OperandJumpBack, FlowJump),
		op(142, "CALL_FUNCTION_EX", OperandFlags, FlowNext),
		op(144, "EXTENDED_ARG", OperandRaw, FlowExtend),
		op(145, "LIST_APPEND", OperandCount, FlowNext),
		op(146, "SET_ADD", OperandCount, FlowNext),
		op(147, "MAP_ADD", OperandCount, FlowNext),
		op(148, "LOAD_CLASSDEREF", OperandFree, FlowNext),
		op(149, "COPY_FREE_VARS", OperandCount, FlowNext),
		op(151, "RESUME", OperandRaw, FlowNext),
		op(152, "MATCH_CLASS", OperandCount, FlowNext),
		op(155, "FORMAT_VALUE", OperandFlags, FlowNext),
		op(156, "BUILD_CONST_KEY_MAP", OperandCount, FlowNext),
		op(157, "BUILD_STRING", OperandCount, FlowNext),
		cached(op(160, "LOAD_METHOD", OperandName, FlowNext), 10),
		op(162, "LIST_EXTEND", OperandCount, FlowNext),
		op(163, "SET_UPDATE", OperandCount, FlowNext),
		op(164, "DICT_MERGE", OperandCount, FlowNext),
		op(165, "DICT_UPDATE", OperandCount, FlowNext),
		cached(op(166, "PRECALL", OperandCount, FlowNext), 1),
		cached(op(171, "CALL", OperandCount, FlowNext), 4),
		op(172, "KW_NAMES", OperandConst, FlowNext),
		op(173, "POP_JUMP_BACKWARD_IF_NOT_NONE", OperandJumpBack, FlowBranch),
		op(174, "POP_JUMP_BACKWARD_IF_NONE", OperandJumpBack, FlowBranch),
		op(175, "POP_JUMP_BACKWARD_IF_FALSE", OperandJumpBack, FlowBranch),
		op(176, "POP_JUMP_BACKWARD_IF_TRUE", OperandJumpBack, FlowBranch),
	}
}

func table312() []*Opcode {
	return derive(table311(),
		[]string{
			"UNARY_POSITIVE", "PRINT_EXPR", "IMPORT_STAR", "YIELD_VALUE", "ASYNC_GEN_WRAP",
			"PREP_RERAISE_STAR", "JUMP_IF_FALSE_OR_POP", "JUMP_IF_TRUE_OR_POP",
			"POP_JUMP_FORWARD_IF_FALSE", "POP_JUMP_FORWARD_IF_TRUE",
			"POP_JUMP_FORWARD_IF_NOT_NONE", "POP_JUMP_FORWARD_IF_NONE",
			"LOAD_CLASSDEREF", "LOAD_METHOD", "PRECALL",
			"POP_JUMP_BACKWARD_IF_NOT_NONE", "POP_JUMP_BACKWARD_IF_NONE",
			"POP_JUMP_BACKWARD_IF_FALSE", "POP_JUMP_BACKWARD_IF_TRUE",
		},
		plain(3, "INTERPRETER_EXIT"),
		plain(4, "END_FOR"),
		plain(5, "END_SEND"),
		plain(17, "RESERVED"),
		cached(plain(25, "BINARY_SUBSCR"), 1),
		plain(26, "BINARY_SLICE"),
		plain(27, "STORE_SLICE"),
		plain(55, "CLEANUP_THROW"),
		plain(87, "LOAD_LOCALS"),
		cached(op(93, "FOR_ITER", OperandJumpRel, FlowForIter), 1),
		cached(op(106, "LOAD_ATTR", OperandAttr, FlowNext), 9),
		cached(op(107, "COMPARE_OP", OperandCompare, FlowNext), 1),
		op(114, "POP_JUMP_IF_FALSE", OperandJumpRel, FlowBranch),
		op(115, "POP_JUMP_IF_TRUE", OperandJumpRel, FlowBranch),
		cached(op(116, "LOAD_GLOBAL", OperandGlobal, FlowNext), 4),
		op(121, "RETURN_CONST", OperandConst, FlowReturn),
		cached(op(123, "SEND", OperandJumpRel, FlowBranchKeep), 1),
		op(127, "LOAD_FAST_CHECK", OperandLocal, FlowNext),
		op(128, "POP_JUMP_IF_NOT_NONE", OperandJumpRel, FlowBranch),
		op(129, "POP_JUMP_IF_NONE", OperandJumpRel, FlowBranch),
		cached(op(141, "LOAD_SUPER_ATTR", OperandSuperAttr, FlowNext), 1),
		op(143, "LOAD_FAST_AND_CLEAR", OperandLocal, FlowNext),
		op(150, "YIELD_VALUE", OperandRaw, FlowNext),
		cached(op(171, "CALL", OperandCount, FlowNext), 3),
		op(173, "CALL_INTRINSIC_1", OperandRaw, FlowNext),
		op(174, "CALL_INTRINSIC_2", OperandRaw, FlowNext),
		op(175, "LOAD_FROM_DICT_OR_GLOBALS", OperandName, FlowNext),
		op(176, "LOAD_FROM_DICT_OR_DEREF", OperandFree, FlowNext),
	)
}

func table313() []*Opcode {
	return []*Opcode{
		op(0, "CACHE", OperandNone, FlowCache),
		plain(1, "BEFORE_ASYNC_WITH"),
		plain(2, "BEFORE_WITH"),
		plain(4, "BINARY_SLICE"),
		cached(plain(5, "BINARY_SUBSCR"), 1),
		plain(6, "CHECK_EG_MATCH"),
		plain(7, "CHECK_EXC_MATCH"),
		plain(8, "CLEANUP_THROW"),
		plain(9, "DELETE_SUBSCR"),
		plain(10, "END_ASYNC_FOR"),
		plain(11, "END_FOR"),
		plain(12, "END_SEND"),
		plain(13, "EXIT_INIT_CHECK"),
		plain(14, "FORMAT_SIMPLE"),
		plain(15, "FORMAT_WITH_SPEC"),
		plain(16, "GET_AITER"),
		plain(17, "RESERVED"),
		plain(18, "GET_ANEXT"),
		plain(19, "GET_ITER"),
		plain(20, "GET_LEN"),
		plain(21, "GET_YIELD_FROM_ITER"),
		plain(22, "INTERPRETER_EXIT"),
		plain(23, "LOAD_ASSERTION_ERROR"),
		plain(24, "LOAD_BUILD_CLASS"),
		plain(25, "LOAD_LOCALS"),
		plain(26, "MAKE_FUNCTION"),
		plain(27, "MATCH_KEYS"),
		plain(28, "MATCH_MAPPING"),
		plain(29, "MATCH_SEQUENCE"),
		plain(30, "NOP"),
		plain(31, "POP_EXCEPT"),
		plain(32, "POP_TOP"),
		plain(33, "PUSH_EXC_INFO"),
		plain(34, "PUSH_NULL"),
		plain(35, "RETURN_GENERATOR"),
		op(36, "RETURN_VALUE", OperandNone, FlowReturn),
		plain(37, "SETUP_ANNOTATIONS"),
		plain(38, "STORE_SLICE"),
		cached(plain(39, "STORE_SUBSCR"), 1),
		cached(plain(40, "TO_BOOL"), 3),
		plain(41, "UNARY_INVERT"),
		plain(42, "UNARY_NEGATIVE"),
		plain(43, "UNARY_NOT"),
		plain(44, "WITH_EXCEPT_START"),
		cached(op(45, "BINARY_OP", OperandBinaryOp, FlowNext), 1),
		op(46, "BUILD_CONST_KEY_MAP", OperandCount, FlowNext),
		op(47, "BUILD_LIST", OperandCount, FlowNext),
		op(48, "BUILD_MAP", OperandCount, FlowNext),
		op(49, "BUILD_SET", OperandCount, FlowNext),
		op(50, "BUILD_SLICE", OperandCount, FlowNext),
		op(51, "BUILD_STRING", OperandCount, FlowNext),
		op(52, "BUILD_TUPLE", OperandCount, FlowNext),
		cached(op(53, "CALL", OperandCount, FlowNext), 3),
		op(54, "CALL_FUNCTION_EX", OperandFlags, FlowNext),
		op(55, "CALL_INTRINSIC_1", OperandRaw, FlowNext),
		op(56, "CALL_INTRINSIC_2", OperandRaw, FlowNext),
		op(57, "CALL_KW", OperandCount, FlowNext),
		cached(op(58, "COMPARE_OP", OperandCompare, FlowNext), 1),
		cached(op(59, "CONTAINS_OP", OperandRaw, FlowNext), 1),
		op(60, "CONVERT_VALUE", OperandRaw, FlowNext),
		op(61, "COPY", OperandCount, FlowNext),
		op(62, "COPY_FREE_VARS", OperandCount, FlowNext),
		op(63, "DELETE_ATTR", OperandName, FlowNext),
		op(64, "DELETE_DEREF", OperandFree, FlowNext),
		op(65, "DELETE_FAST", OperandLocal, FlowNext),
		op(66, "DELETE_GLOBAL", OperandName, FlowNext),
		op(67, "DELETE_NAME", OperandName, FlowNext),
		op(68, "DICT_MERGE", OperandCount, FlowNext),
		op(69, "DICT_UPDATE", OperandCount, FlowNext),
		op(70, "ENTER_EXECUTOR", OperandRaw, FlowNext),
		op(71, "EXTENDED_ARG", OperandRaw, FlowExtend),
		cached(op(72, "FOR_ITER", OperandJumpRel, FlowForIter), 1),
		op(73, "GET_AWAITABLE", OperandRaw, FlowNext),
		op(74, "IMPORT_FROM", OperandName, FlowNext),
		op(75, "IMPORT_NAME", OperandName, FlowNext),
		op(76, "IS_OP", OperandRaw, FlowNext),
		cached(op(77, "JUMP_BACKWARD", OperandJumpBack, FlowJump), 1),
		op(78, "JUMP_BACKWARD_NO_INTERRUPT", OperandJumpBack, FlowJump),
		op(79, "JUMP_FORWARD", OperandJumpRel, FlowJump),
		op(80, "LIST_APPEND", OperandCount, FlowNext),
		op(81, "LIST_EXTEND", OperandCount, FlowNext),
		cached(op(82, "LOAD_ATTR", OperandAttr, FlowNext), 9),
		op(83, "LOAD_CONST", OperandConst, FlowNext),
		op(84, "LOAD_DEREF", OperandFree, FlowNext),
		op(85, "LOAD_FAST", OperandLocal, FlowNext),
		op(86, "LOAD_FAST_AND_CLEAR", OperandLocal, FlowNext),
		op(87, "LOAD_FAST_CHECK", OperandLocal, FlowNext),
		op(88, "LOAD_FAST_LOAD_FAST", OperandLocalPair, FlowNext),
		op(89, "LOAD_FROM_DICT_OR_DEREF", OperandFree, FlowNext),
		op(90, "LOAD_FROM_DICT_OR_GLOBALS", OperandName, FlowNext),
		cached(op(91, "LOAD_GLOBAL", OperandGlobal, FlowNext), 4),
		op(92, "LOAD_NAME", OperandName, FlowNext),
		cached(op(93, "LOAD_SUPER_ATTR", OperandSuperAttr, FlowNext), 1),
		op(94, "MAKE_CELL", OperandFree, FlowNext),
		op(95, "MAP_ADD", OperandCount, FlowNext),
		op(96, "MATCH_CLASS", OperandCount, FlowNext),
		cached(op(97, "POP_JUMP_IF_FALSE", OperandJumpRel, FlowBranch), 1),
		cached(op(98, "POP_JUMP_IF_NONE", OperandJumpRel, FlowBranch), 1),
		cached(op(99, "POP_JUMP_IF_NOT_NONE", OperandJumpRel, FlowBranch), 1),
		cached(op(100, "POP_JUMP_IF_TRUE", OperandJumpRel, FlowBranch), 1),
		op(101, "RAISE_VARARGS", OperandCount, FlowRaise),
		op(102, "RERAISE", OperandRaw, FlowRaise),
		op(103, "RETURN_CONST", OperandConst, FlowReturn),
		cached(op(104, "SEND", OperandJumpRel, FlowBranchKeep), 1),
		op(105, "SET_ADD", OperandCount, FlowNext),
		op(106, "SET_FUNCTION_ATTRIBUTE", OperandFlags, FlowNext),
		op(107, "SET_UPDATE", OperandCount, FlowNext),
		cached(op(108, "STORE_ATTR", OperandName, FlowNext), 4),
		op(109, "STORE_DEREF", OperandFree, FlowNext),
		op(110, "STORE_FAST", OperandLocal, FlowNext),
		op(111, "STORE_FAST_LOAD_FAST", OperandLocalPair, FlowNext),
		op(112, "STORE_FAST_STORE_FAST", OperandLocalPair, FlowNext),
		op(113, "STORE_GLOBAL", OperandName, FlowNext),
		op(114, "STORE_NAME", OperandName, FlowNext),
		op(115, "SWAP", OperandCount, FlowNext),
		op(116, "UNPACK_EX", OperandCount, FlowNext),
		cached(op(117, "UNPACK_SEQUENCE", OperandCount, FlowNext), 1),
		op(118, "YIELD_VALUE", OperandRaw, FlowNext),
		op(149, "RESUME", OperandRaw, FlowNext),
	}
}

func table27() []*Opcode {
	return []*Opcode{
		plain(0, "STOP_CODE"),
		plain(1, "POP_TOP"),
		plain(2, "ROT_TWO"),
		plain(3, "ROT_THREE"),
		plain(4, "DUP_TOP"),
		plain(5, "ROT_FOUR"),
		plain(9, "NOP"),
		plain(10, "UNARY_POSITIVE"),
		plain(11, "UNARY_NEGATIVE"),
		plain(12, "UNARY_NOT"),
		plain(13, "UNARY_CONVERT"),
		plain(15, "UNARY_INVERT"),
		plain(19, "BINARY_POWER"),
		plain(20, "BINARY_MULTIPLY"),
		plain(21, "BINARY_DIVIDE"),
		plain(22, "BINARY_MODULO"),
		plain(23, "BINARY_ADD"),
		plain(24, "BINARY_SUBTRACT"),
		plain(25, "BINARY_SUBSCR"),
		plain(26, "BINARY_FLOOR_DIVIDE"),
		plain(27, "BINARY_TRUE_DIVIDE"),
		plain(28, "INPLACE_FLOOR_DIVIDE"),
		plain(29, "INPLACE_TRUE_DIVIDE"),
		plain(30, "SLICE+0"),
		plain(31, "SLICE+1"),
		plain(32, "SLICE+2"),
		plain(33, "SLICE+3"),
		plain(40, "STORE_SLICE+0"),
		plain(41, "STORE_SLICE+1"),
		plain(42, "STORE_SLICE+2"),
		plain(43, "STORE_SLICE+3"),
		plain(50, "DELETE_SLICE+0"),
		plain(51, "DELETE_SLICE+1"),
		plain(52, "DELETE_SLICE+2"),
		plain(53, "DELETE_SLICE+3"),
		plain(54, "STORE_MAP"),
		plain(55, "INPLACE_ADD"),
		plain(56, "INPLACE_SUBTRACT"),
		plain(57, "INPLACE_MULTIPLY"),
		plain(58, "INPLACE_DIVIDE"),
		plain(59, "INPLACE_MODULO"),
		plain(60, "STORE_SUBSCR"),
		plain(61, "DELETE_SUBSCR"),
		plain(62, "BINARY_LSHIFT"),
		plain(63, "BINARY_RSHIFT"),
		plain(64, "BINARY_AND"),
		plain(65, "BINARY_XOR"),
		plain(66, "BINARY_OR"),
		plain(67, "INPLACE_POWER"),
		plain(68, "GET_ITER"),
		plain(70, "PRINT_EXPR"),
		plain(71, "PRINT_ITEM"),
		plain(72, "PRINT_NEWLINE"),
		plain(73, "PRINT_ITEM_TO"),
		plain(74, "PRINT_NEWLINE_TO"),
		plain(75, "INPLACE_LSHIFT"),
		plain(76, "INPLACE_RSHIFT"),
		plain(77, "INPLACE_AND"),
		plain(78, "INPLACE_XOR"),
		plain(79, "INPLACE_OR"),
		op(80, "BREAK_LOOP", OperandNone, FlowBreak),
		plain(81, "WITH_CLEANUP"),
		plain(82, "LOAD_LOCALS"),
		op(83, "RETURN_VALUE", OperandNone, FlowReturn),
		plain(84, "IMPORT_STAR"),
		plain(85, "EXEC_STMT"),
		plain(86, "YIELD_VALUE"),
		plain(87, "POP_BLOCK"),
		plain(88, "END_FINALLY"),
		plain(89, "BUILD_CLASS"),
		op(90, "STORE_NAME", OperandName, FlowNext),
		op(91, "DELETE_NAME", OperandName, FlowNext),
		op(92, "UNPACK_SEQUENCE", OperandCount, FlowNext),
		op(93, "FOR_ITER", OperandJumpRel, FlowForIter),
		op(94, "LIST_APPEND", OperandCount, FlowNext),
		op(95, "STORE_ATTR", OperandName, FlowNext),
		op(96, "DELETE_ATTR", OperandName, FlowNext),
		op(97, "STORE_GLOBAL", OperandName, FlowNext),
		op(98, "DELETE_GLOBAL", OperandName, FlowNext),
		op(99, "DUP_TOPX", OperandCount, FlowNext),
		op(100, "LOAD_CONST", OperandConst, FlowNext),
		op(101, "LOAD_NAME", OperandName, FlowNext),
		op(102, "BUILD_TUPLE", OperandCount, FlowNext),
		op(103, "BUILD_LIST", OperandCount, FlowNext),
		op(104, "BUILD_SET", OperandCount, FlowNext),
		op(105, "BUILD_MAP", OperandCount, FlowNext),
		op(106, "LOAD_ATTR", OperandName, FlowNext),
		op(107, "COMPARE_OP", OperandCompare, FlowNext),
		op(108, "IMPORT_NAME", OperandName, FlowNext),
		op(109, "IMPORT_FROM", OperandName, FlowNext),
		op(110, "JUMP_FORWARD", OperandJumpRel, FlowJump),
		op(111, "JUMP_IF_FALSE_OR_POP", OperandJumpAbs, FlowBranchKeep),
		op(112, "JUMP_IF_TRUE_OR_POP", OperandJumpAbs, FlowBranchKeep),
		op(113, "JUMP_ABSOLUTE", OperandJumpAbs, FlowJump),
		op(114, "POP_JUMP_IF_FALSE", OperandJumpAbs, FlowBranch),
		op(115, "POP_JUMP_IF_TRUE", OperandJumpAbs, FlowBranch),
		op(116, "LOAD_GLOBAL", OperandName, FlowNext),
		op(119, "CONTINUE_LOOP", OperandJumpAbs, FlowJump),
		op(120, "SETUP_LOOP", OperandJumpRel, FlowSetup),
		op(121, "SETUP_EXCEPT", OperandJumpRel, FlowSetup),
		op(122, "SETUP_FINALLY", OperandJumpRel, FlowSetup),
		op(124, "LOAD_FAST", OperandLocal, FlowNext),
		op(125, "STORE_FAST", OperandLocal, FlowNext),
		op(126, "DELETE_FAST", OperandLocal, FlowNext),
		op(130, "RAISE_VARARGS", OperandCount, FlowRaise),
		op(131, "CALL_FUNCTION", OperandCount, FlowNext),
		op(132, "MAKE_FUNCTION", OperandCount, FlowNext),
		op(133, "BUILD_SLICE", OperandCount, FlowNext),
		op(134, "MAKE_CLOSURE", OperandCount, FlowNext),
		op(135, "LOAD_CLOSURE", OperandFree, FlowNext),
		op(136, "LOAD_DEREF", OperandFree, FlowNext),
		op(137, "STORE_DEREF", OperandFree, FlowNext),
		op(140, "CALL_FUNCTION_VAR", OperandCount, FlowNext),
		op(141, "CALL_FUNCTION_KW", OperandCount, FlowNext),
		op(142, "CALL_FUNCTION_VAR_KW", OperandCount, FlowNext),
		op(143, "SETUP_WITH", OperandJumpRel, FlowSetup),
		op(145, "EXTENDED_ARG", OperandRaw, FlowExtend),
		op(146, "SET_ADD", OperandCount, FlowNext),
		op(147, "MAP_ADD", OperandCount, FlowNext),
	}
}

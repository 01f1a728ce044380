package registry

// Mnemonic groups shared by several rules. Names a revision lacks are
// dropped when its rule set is built.
var (
	loadOps = []string{
		"LOAD_NAME", "LOAD_FAST", "LOAD_GLOBAL", "LOAD_DEREF", "LOAD_CLASSDEREF",
		"LOAD_CLOSURE", "LOAD_FAST_CHECK", "LOAD_FROM_DICT_OR_GLOBALS",
	}
	storeOps  = []string{"STORE_NAME", "STORE_FAST", "STORE_GLOBAL", "STORE_DEREF"}
	deleteOps = []string{"DELETE_NAME", "DELETE_FAST", "DELETE_GLOBAL", "DELETE_DEREF"}
	binaryMn  = []string{
		"BINARY_POWER", "BINARY_MULTIPLY", "BINARY_MATRIX_MULTIPLY", "BINARY_DIVIDE",
		"BINARY_FLOOR_DIVIDE", "BINARY_TRUE_DIVIDE", "BINARY_MODULO", "BINARY_ADD",
		"BINARY_SUBTRACT", "BINARY_LSHIFT", "BINARY_RSHIFT", "BINARY_AND", "BINARY_XOR",
		"BINARY_OR",
	}
	inplaceMn = []string{
		"INPLACE_POWER", "INPLACE_MULTIPLY", "INPLACE_MATRIX_MULTIPLY", "INPLACE_DIVIDE",
		"INPLACE_FLOOR_DIVIDE", "INPLACE_TRUE_DIVIDE", "INPLACE_MODULO", "INPLACE_ADD",
		"INPLACE_SUBTRACT", "INPLACE_LSHIFT", "INPLACE_RSHIFT", "INPLACE_AND", "INPLACE_XOR",
		"INPLACE_OR",
	}
	unaryMn = []string{"UNARY_POSITIVE", "UNARY_NEGATIVE", "UNARY_NOT", "UNARY_INVERT", "UNARY_CONVERT"}
	jumpMn  = []string{
		"JUMP_FORWARD", "JUMP_ABSOLUTE", "JUMP_BACKWARD", "JUMP_BACKWARD_NO_INTERRUPT",
		"CONTINUE_LOOP", "BREAK_LOOP",
	}
	discardMn = []string{
		"NOP", "RESUME", "PRECALL", "COPY_FREE_VARS", "MAKE_CELL", "GEN_START",
		"SETUP_ANNOTATIONS", "END_FOR", "POP_BLOCK", "POP_EXCEPT", "BEGIN_FINALLY",
		"END_FINALLY", "END_SEND", "CALL_FINALLY", "POP_FINALLY", "WITH_CLEANUP_START",
		"WITH_CLEANUP_FINISH",
	}
	popTop = "POP_TOP"
)

// grammarRules lists every production. Actions are implemented by the
// reducer and looked up by name.
func grammarRules() []Rule {
	return []Rule{
		// Atoms
		rule("const", "expr", "const", Op("LOAD_CONST")),
		rule("name", "expr", "name", Op(loadOps...)),
		rule("dict_or_deref", "expr", "name", NT("locals"), Op("LOAD_FROM_DICT_OR_DEREF")),
		rule("assertion_error", "expr", "assertion_error", Op("LOAD_ASSERTION_ERROR")),
		rule("build_class", "buildclass", "build_class", Op("LOAD_BUILD_CLASS")),
		rule("null", "null", "null", Op("PUSH_NULL")),
		rule("locals", "locals", "locals", Op("LOAD_LOCALS")),
		rule("saved", "saved", "saved", Op("LOAD_FAST_AND_CLEAR")),
		rule("return_generator", "gen", "gen", Op("RETURN_GENERATOR")),

		// Attributes
		rule("attr", "expr", "attr", Expr(), Op("LOAD_ATTR")),
		rule("aug_attr_load", "augattr", "aug_attr_load", Expr(), NT("dup"), Op("LOAD_ATTR")).prio(10),
		rule("import_attr", "importmod", "import_attr", NT("importmod"), Op("LOAD_ATTR")).prio(10),
		rule("load_method", "method", "load_method", Expr(), Op("LOAD_METHOD")),
		rule("super_attr", "expr", "super_attr", Expr(), Expr(), Expr(), Op("LOAD_SUPER_ATTR")),

		// Subscripts and slices
		rule("subscr", "expr", "subscr", Expr(), Expr(), Op("BINARY_SUBSCR")),
		rule("binary_slice", "expr", "binary_slice", Expr(), Expr(), Expr(), Op("BINARY_SLICE")),
		rule("build_slice", "expr", "build_slice", Exprs(CountArg), Op("BUILD_SLICE")),
		rule("slice27_0", "expr", "slice27", Expr(), Op("SLICE+0")),
		rule("slice27_1", "expr", "slice27", Expr(), Expr(), Op("SLICE+1", "SLICE+2")),
		rule("slice27_3", "expr", "slice27", Expr(), Expr(), Expr(), Op("SLICE+3")),
		rule("store_slice27_0", "stmt", "store_slice27", Expr(), Expr(), Op("STORE_SLICE+0")),
		rule("store_slice27_1", "stmt", "store_slice27", Expr(), Expr(), Expr(), Op("STORE_SLICE+1", "STORE_SLICE+2")),
		rule("store_slice27_3", "stmt", "store_slice27", Expr(), Expr(), Expr(), Expr(), Op("STORE_SLICE+3")),
		rule("delete_slice27_0", "stmt", "delete_slice27", Expr(), Op("DELETE_SLICE+0")),
		rule("delete_slice27_1", "stmt", "delete_slice27", Expr(), Expr(), Op("DELETE_SLICE+1", "DELETE_SLICE+2")),
		rule("delete_slice27_3", "stmt", "delete_slice27", Expr(), Expr(), Expr(), Op("DELETE_SLICE+3")),

		// Operators
		rule("binop", "expr", "binop", Expr(), Expr(), Op(binaryMn...)),
		rule("binary_op", "expr", "binop", Expr(), Expr(), Op("BINARY_OP")),
		rule("inplace", "augvalue", "inplace", Expr(), Expr(), Op(inplaceMn...)),
		rule("unary", "expr", "unary", Expr(), Op(unaryMn...)),
		rule("compare", "expr", "compare", Expr(), Expr(), Op("COMPARE_OP", "IS_OP", "CONTAINS_OP")),
		rule("intrinsic1", "expr", "intrinsic1", Expr(), Op("CALL_INTRINSIC_1")),
		rule("import_star_intrinsic", "importstar", "import_star_intrinsic", NT("importmod"), Op("CALL_INTRINSIC_1")).arg(2).prio(10),
		rule("intrinsic2", "expr", "intrinsic2", Expr(), Expr(), Op("CALL_INTRINSIC_2")),

		// Displays
		rule("build_seq", "expr", "build_seq", Exprs(CountArg), Op("BUILD_TUPLE", "BUILD_LIST", "BUILD_SET")),
		rule("build_map", "expr", "build_map", Exprs(CountArgPair), Op("BUILD_MAP")).since("3.5"),
		rule("build_map27", "expr", "build_map27", Op("BUILD_MAP")).until("3.4"),
		rule("store_map", "expr", "store_map", Expr(), Expr(), Expr(), Op("STORE_MAP")),
		rule("const_key_map", "expr", "const_key_map", Exprs(CountArg), Expr(), Op("BUILD_CONST_KEY_MAP")),
		rule("build_string", "expr", "build_string", Exprs(CountArg), Op("BUILD_STRING")),
		rule("format_value", "expr", "format_value", Expr(), Exprs(CountFormatSpec), Op("FORMAT_VALUE")),
		rule("convert_value", "converted", "convert_value", Expr(), Op("CONVERT_VALUE")),
		rule("format_simple", "expr", "format_simple", Expr(), Op("FORMAT_SIMPLE")),
		rule("format_simple_conv", "expr", "format_simple", NT("converted"), Op("FORMAT_SIMPLE")).prio(6),
		rule("format_spec", "expr", "format_spec", Expr(), Expr(), Op("FORMAT_WITH_SPEC")),
		rule("format_spec_conv", "expr", "format_spec", NT("converted"), Expr(), Op("FORMAT_WITH_SPEC")).prio(6),
		rule("seq_extend", "expr", "seq_extend", Expr(), Expr(), Op("LIST_EXTEND", "SET_UPDATE")),
		rule("dict_update", "expr", "dict_update", Expr(), Expr(), Op("DICT_UPDATE", "DICT_MERGE")),
		rule("list_to_tuple", "expr", "list_to_tuple", Expr(), Op("LIST_TO_TUPLE")),
		rule("build_unpack", "expr", "build_unpack", Exprs(CountArg),
			Op("BUILD_LIST_UNPACK", "BUILD_TUPLE_UNPACK", "BUILD_SET_UNPACK", "BUILD_TUPLE_UNPACK_WITH_CALL")),
		rule("build_map_unpack", "expr", "build_map_unpack", Exprs(CountArg), Op("BUILD_MAP_UNPACK", "BUILD_MAP_UNPACK_WITH_CALL")),
		rule("comp_append", "stmt", "comp_append", Expr(), Op("LIST_APPEND", "SET_ADD")),
		rule("comp_map_add", "stmt", "comp_map_add", Expr(), Expr(), Op("MAP_ADD")),

		// Calls
		rule("call", "expr", "call", Expr(), Exprs(CountArg), Op("CALL_FUNCTION")).since("3.6"),
		rule("call_kw", "expr", "call_kw", Expr(), Exprs(CountArg), Expr(), Op("CALL_FUNCTION_KW")).since("3.6"),
		rule("call27", "expr", "call27", Expr(), Exprs(CountPy2Call), Op("CALL_FUNCTION")).until("3.5"),
		rule("call27_var", "expr", "call27", Expr(), Exprs(CountPy2Call), Expr(), Op("CALL_FUNCTION_VAR")),
		rule("call27_kw", "expr", "call27", Expr(), Exprs(CountPy2Call), Expr(), Op("CALL_FUNCTION_KW")).until("3.5"),
		rule("call27_var_kw", "expr", "call27", Expr(), Exprs(CountPy2Call), Expr(), Expr(), Op("CALL_FUNCTION_VAR_KW")),
		rule("call_ex", "expr", "call_ex", Expr(), Expr(), Exprs(CountCallEx), Op("CALL_FUNCTION_EX")),
		rule("call_ex_null", "expr", "call_ex", NT("null"), Expr(), Expr(), Exprs(CountCallEx), Op("CALL_FUNCTION_EX")).prio(6).until("3.12"),
		rule("call_ex_null_after", "expr", "call_ex", Expr(), NT("null"), Expr(), Exprs(CountCallEx), Op("CALL_FUNCTION_EX")).prio(6).since("3.13"),
		rule("call_method", "expr", "call_method", NT("method"), NT("methself"), Exprs(CountArg), Op("CALL_METHOD", "CALL")).prio(6),
		rule("call_method_kw", "expr", "call_method", NT("method"), NT("methself"), Exprs(CountArg), Op("KW_NAMES"), Op("CALL")).prio(6),
		rule("call_null", "expr", "call_null", NT("null"), Expr(), Exprs(CountArg), Op("CALL")).prio(6).until("3.12"),
		rule("call_null_kw", "expr", "call_null", NT("null"), Expr(), Exprs(CountArg), Op("KW_NAMES"), Op("CALL")).prio(6),
		rule("call_self", "expr", "call_self", Expr(), Expr(), Exprs(CountArg), Op("CALL")).prio(4),
		rule("call_self_kw", "expr", "call_self", Expr(), Expr(), Exprs(CountArg), Op("KW_NAMES"), Op("CALL")).prio(4),
		rule("call_method_kw_names", "expr", "call_method", NT("method"), NT("methself"), Exprs(CountArg), Expr(), Op("CALL_KW")).prio(6),
		rule("call_null_kw_names", "expr", "call_null", NT("null"), Expr(), Exprs(CountArg), Expr(), Op("CALL_KW")).prio(6).until("3.12"),
		rule("call_self_kw_names", "expr", "call_self", Expr(), Expr(), Exprs(CountArg), Expr(), Op("CALL_KW")).prio(4),
		rule("call_null_after", "expr", "call_method", Expr(), NT("null"), Exprs(CountArg), Op("CALL")).prio(6).since("3.13"),
		rule("call_null_after_kw_names", "expr", "call_method", Expr(), NT("null"), Exprs(CountArg), Expr(), Op("CALL_KW")).prio(6).since("3.13"),

		// Functions and classes
		rule("make_function", "expr", "make_function", Exprs(CountMakeFunction), NT("code"), Expr(), Op("MAKE_FUNCTION")).since("3.6").until("3.10"),
		rule("make_function311", "expr", "make_function", Exprs(CountMakeFunction), NT("code"), Op("MAKE_FUNCTION")).since("3.11"),
		rule("make_function30", "expr", "make_function", Exprs(CountPy3Function), NT("code"), Op("MAKE_FUNCTION")).since("3.0").until("3.2"),
		rule("make_function33", "expr", "make_function", Exprs(CountPy3Function), NT("code"), Expr(), Op("MAKE_FUNCTION")).since("3.3").until("3.5"),
		rule("make_closure30", "expr", "make_function", Exprs(CountPy3Function), Expr(), NT("code"), Op("MAKE_CLOSURE")).since("3.0").until("3.2"),
		rule("make_closure33", "expr", "make_function", Exprs(CountPy3Function), Expr(), NT("code"), Expr(), Op("MAKE_CLOSURE")).since("3.3").until("3.5"),
		rule("make_function27", "expr", "make_function", Exprs(CountArg), NT("code"), Op("MAKE_FUNCTION")).until("2.7"),
		rule("make_closure27", "expr", "make_function", Exprs(CountArg), Expr(), NT("code"), Op("MAKE_CLOSURE")).until("2.7"),
		rule("set_function_attr", "expr", "set_function_attr", Expr(), Expr(), Op("SET_FUNCTION_ATTRIBUTE")),
		rule("store_locals", "discard", "discard", Expr(), Op("STORE_LOCALS")),
		rule("build_class27", "expr", "build_class27", Expr(), Expr(), Expr(), Op("BUILD_CLASS")),

		// Iteration, generators, coroutines
		rule("get_iter", "iter", "get_iter", Expr(), Op("GET_ITER")),
		rule("get_aiter", "iter", "get_iter", Expr(), Op("GET_AITER")),
		rule("aiter_await", "iter", "aiter_await", NT("iter"), Expr(), Op("YIELD_FROM")).prio(7).until("3.6"),
		rule("get_yield_from_iter", "yfiter", "yield_from_iter", Expr(), Op("GET_YIELD_FROM_ITER")),
		rule("get_awaitable", "awaitable", "awaitable", Expr(), Op("GET_AWAITABLE")),
		rule("yield_from", "expr", "yield_from", NT("yfiter", "awaitable"), Expr(), Op("YIELD_FROM")).prio(6),
		rule("send", "expr", "yield_from", NT("yfiter", "awaitable"), Expr(), Op("SEND")).prio(6),
		rule("yield", "expr", "yield", Expr(), Op("YIELD_VALUE")),

		// Stores
		rule("store", "stmt", "store", Expr(), Op(storeOps...)),
		rule("store_unpack", "unpack", "unpack_store", NT("unpack"), Op(storeOps...)).prio(6),
		rule("store_aug", "stmt", "aug_store", NT("augvalue"), Op(storeOps...)).prio(6),
		rule("store_chain", "chain", "chain_store", NT("chain"), Op(storeOps...)).prio(7),
		rule("store_dup", "chain", "dup_store", Expr(), NT("dup"), Op(storeOps...)).prio(8),
		rule("store_import", "stmt", "import_store", NT("importmod"), Op(storeOps...)).prio(6),
		rule("store_import_from", "importmod", "import_from_store", NT("importmod"), NT("importfrom"), Op(storeOps...)).prio(7),
		rule("store_saved", "discard", "discard", NT("saved"), Op("STORE_FAST")).prio(7),
		rule("store_attr", "stmt", "store", Expr(), Expr(), Op("STORE_ATTR")),
		rule("store_attr_unpack", "unpack", "unpack_store", NT("unpack"), Expr(), Op("STORE_ATTR")).prio(6),
		rule("store_attr_aug", "stmt", "aug_store", NT("augvalue"), NT("augattr"), Op("STORE_ATTR")).prio(8),
		rule("store_attr_chain", "chain", "chain_store", NT("chain"), Expr(), Op("STORE_ATTR")).prio(7),
		rule("store_attr_dup", "chain", "dup_store", Expr(), NT("dup"), Expr(), Op("STORE_ATTR")).prio(8),
		rule("store_subscr", "stmt", "store", Expr(), Expr(), Expr(), Op("STORE_SUBSCR")),
		rule("store_subscr_unpack", "unpack", "unpack_store", NT("unpack"), Expr(), Expr(), Op("STORE_SUBSCR")).prio(6),
		rule("store_subscr_aug", "stmt", "aug_store", NT("augvalue"), NT("augsub"), Op("STORE_SUBSCR")).prio(8),
		rule("store_subscr_chain", "chain", "chain_store", NT("chain"), Expr(), Expr(), Op("STORE_SUBSCR")).prio(7),
		rule("store_subscr_dup", "chain", "dup_store", Expr(), NT("dup"), Expr(), Expr(), Op("STORE_SUBSCR")).prio(8),
		rule("store_slice", "stmt", "store_slice", Expr(), Expr(), Expr(), Expr(), Op("STORE_SLICE")),
		rule("store_annotation", "stmt", "store_annotation", Expr(), Op("STORE_ANNOTATION")),
		rule("unpack", "unpack", "unpack", Expr(), Op("UNPACK_SEQUENCE", "UNPACK_EX")),
		rule("unpack_nested", "unpack", "unpack_nested", NT("unpack"), Op("UNPACK_SEQUENCE", "UNPACK_EX")).prio(6),

		// Deletes
		rule("delete", "stmt", "delete", Op(deleteOps...)),
		rule("delete_attr", "stmt", "delete", Expr(), Op("DELETE_ATTR")),
		rule("delete_subscr", "stmt", "delete", Expr(), Expr(), Op("DELETE_SUBSCR")),

		// Statements
		rule("expr_stmt", "stmt", "expr_stmt", Expr(), Op(popTop)),
		rule("print_expr", "stmt", "expr_stmt", Expr(), Op("PRINT_EXPR")),
		rule("pop_gen", "discard", "discard", NT("gen"), Op(popTop)).prio(6),
		rule("return", "stmt", "return", Expr(), Op("RETURN_VALUE")),
		rule("return_const", "stmt", "return", Op("RETURN_CONST")),
		rule("raise", "stmt", "raise", Exprs(CountArg), Op("RAISE_VARARGS")),
		rule("exec", "stmt", "exec", Expr(), Expr(), Expr(), Op("EXEC_STMT")),

		// Imports
		rule("import_name", "importmod", "import_name", Expr(), Expr(), Op("IMPORT_NAME")),
		rule("import_from", "importfrom", "import_from", NT("importmod"), Op("IMPORT_FROM")),
		rule("import_star", "stmt", "import_star", NT("importmod"), Op("IMPORT_STAR")),
		rule("import_rot", "importmod", "import_rot", NT("importmod"), NT("importfrom"), Op("ROT_TWO", "SWAP")).prio(10),
		rule("import_rot_pop", "discard", "discard", NT("importrot"), Op(popTop)).prio(10),
		rule("import_finish", "stmt", "import_finish", NT("importmod", "importstar"), Op(popTop)).prio(6),

		// 2.x print statement
		rule("print_item", "print", "print_item", Expr(), Op("PRINT_ITEM")),
		rule("print_item_more", "print", "print_item", NT("print"), Expr(), Op("PRINT_ITEM")).prio(6),
		rule("print_newline", "stmt", "print_newline", Op("PRINT_NEWLINE")),
		rule("print_newline_more", "stmt", "print_newline", NT("print"), Op("PRINT_NEWLINE")).prio(6),
		rule("print_item_to", "printto", "print_item_to", Expr(), Expr(), Expr(), Op("PRINT_ITEM_TO")),
		rule("print_item_to_more", "printto", "print_item_to", NT("printto"), Expr(), Expr(), Op("PRINT_ITEM_TO")).prio(6),
		rule("print_newline_to", "stmt", "print_newline_to", Expr(), Op("PRINT_NEWLINE_TO")),
		rule("print_newline_to_more", "stmt", "print_newline_to", NT("printto"), Op("PRINT_NEWLINE_TO")).prio(6),
		rule("printto_dup", "printto", "printto_dup", NT("printto"), Op("DUP_TOP")).prio(6),
		rule("printto_pop", "stmt", "print_finish", NT("printto"), Op(popTop)).prio(6),

		// Duplication and augmented assignment
		rule("dup", "dup", "dup", Expr(), Op("DUP_TOP")),
		rule("copy_dup", "dup", "dup", Expr(), Op("COPY")).arg(1).prio(6),
		rule("dup_two", "augsub", "dup_two", Expr(), Expr(), Op("DUP_TOP_TWO")),
		rule("dup_topx", "augsub", "dup_two", Expr(), Expr(), Op("DUP_TOPX")).arg(2),
		rule("copy_half", "copyhalf", "copy_half", Expr(), Expr(), Op("COPY")).arg(2).prio(6),
		rule("copy_two", "augsub", "dup_two", Expr(), Expr(), NT("copyhalf"), Op("COPY")).arg(2).prio(7),
		rule("aug_rot_attr", "augvalue", "aug_rot", NT("augattr"), NT("augvalue"), Op("ROT_TWO", "SWAP")).prio(10),
		rule("aug_rot_subscr", "augvalue", "aug_rot", NT("augsub"), NT("augvalue"), Op("ROT_THREE")).prio(10),
		rule("aug_swap3", "augvalue", "aug_swap3", NT("augsub"), NT("augvalue"), Op("SWAP")).arg(3).prio(10),
		rule("aug_swap2", "augvalue", "aug_swap2", NT("augvalue"), NT("augsubpend"), Op("SWAP")).arg(2).prio(10),

		// Generic stack shuffles
		rule("rot_two", "shuffle", "rotate", Any(), Any(), Op("ROT_TWO")).prio(0),
		rule("rot_three", "shuffle", "rotate", Any(), Any(), Any(), Op("ROT_THREE")).prio(0),
		rule("rot_four", "shuffle", "rotate", Any(), Any(), Any(), Any(), Op("ROT_FOUR")).prio(0),
		rule("rot_n", "shuffle", "rotate", Anys(CountArg), Op("ROT_N")).prio(0),
		rule("swap", "shuffle", "swap", Anys(CountArg), Op("SWAP")).prio(0),
		rule("copy", "shuffle", "copy", Anys(CountArg), Op("COPY")).prio(0),

		// Control transfers left in straight-line code, and no-ops
		rule("jump", "stmt", "jump", Op(jumpMn...)),
		rule("discard", "discard", "discard", Op(discardMn...)),
	}
}

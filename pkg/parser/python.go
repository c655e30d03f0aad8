package parser

import "github.com/panbanda/connascence/pkg/ast"

var pythonGrammar = &grammar{
	kinds: map[string]ast.Kind{
		"module":                  ast.KindModule,
		"class_definition":        ast.KindClass,
		"function_definition":     ast.KindFunction,
		"lambda":                  ast.KindLambda,
		"decorator":               ast.KindDecorator,
		"block":                   ast.KindBlock,
		"parameters":              ast.KindParams,
		"lambda_parameters":       ast.KindParams,
		"expression_statement":    ast.KindExprStmt,
		"assignment":              ast.KindAssign,
		"augmented_assignment":    ast.KindAugAssign,
		"if_statement":            ast.KindIf,
		"match_statement":         ast.KindIf,
		"elif_clause":             ast.KindElseIf,
		"else_clause":             ast.KindElse,
		"while_statement":         ast.KindWhile,
		"for_statement":           ast.KindFor,
		"try_statement":           ast.KindTry,
		"except_clause":           ast.KindExcept,
		"except_group_clause":     ast.KindExcept,
		"finally_clause":          ast.KindFinally,
		"with_statement":          ast.KindWith,
		"return_statement":        ast.KindReturn,
		"assert_statement":        ast.KindAssert,
		"raise_statement":         ast.KindRaise,
		"break_statement":         ast.KindBreak,
		"continue_statement":      ast.KindContinue,
		"pass_statement":          ast.KindPass,
		"global_statement":        ast.KindGlobal,
		"nonlocal_statement":      ast.KindGlobal,
		"import_statement":        ast.KindImport,
		"import_from_statement":   ast.KindImport,
		"future_import_statement": ast.KindImport,
		"call":                    ast.KindCall,
		"argument_list":           ast.KindArgs,
		"keyword_argument":        ast.KindKeywordArg,
		"attribute":               ast.KindAttribute,
		"identifier":              ast.KindIdentifier,
		"comparison_operator":     ast.KindCompare,
		"boolean_operator":        ast.KindBoolOp,
		"binary_operator":         ast.KindBinaryOp,
		"unary_operator":          ast.KindUnaryOp,
		"not_operator":            ast.KindNot,
		"subscript":               ast.KindSubscript,
		"await":                   ast.KindAwait,
		"conditional_expression":  ast.KindConditional,
		"parenthesized_expression": ast.KindParen,
		"integer":                 ast.KindNumber,
		"float":                   ast.KindNumber,
		"string":                  ast.KindString,
		"concatenated_string":     ast.KindString,
		"true":                    ast.KindTrue,
		"false":                   ast.KindFalse,
		"none":                    ast.KindNone,
		"list":                    ast.KindList,
		"dictionary":              ast.KindDict,
		"set":                     ast.KindSet,
		"tuple":                   ast.KindTuple,
		"pattern_list":            ast.KindTuple,
		"expression_list":         ast.KindTuple,
		"tuple_pattern":           ast.KindTuple,
		"list_comprehension":      ast.KindComprehension,
		"dictionary_comprehension": ast.KindComprehension,
		"set_comprehension":       ast.KindComprehension,
		"generator_expression":    ast.KindComprehension,
		"type":                    ast.KindTypeAnnotation,
		"comment":                 ast.KindComment,
	},
	fields: map[string]string{
		"name":        ast.FieldName,
		"parameters":  ast.FieldParams,
		"body":        ast.FieldBody,
		"return_type": ast.FieldReturnType,
		"superclasses": ast.FieldBases,
		"condition":   ast.FieldCond,
		"consequence": ast.FieldThen,
		"alternative": ast.FieldElse,
		"left":        ast.FieldLeft,
		"right":       ast.FieldRight,
		"function":    ast.FieldFunc,
		"arguments":   ast.FieldArgs,
		"object":      ast.FieldObject,
		"attribute":   ast.FieldAttr,
		"type":        ast.FieldType,
		"value":       ast.FieldValue,
		"operator":    ast.FieldOperator,
		"operators":   ast.FieldOperator,
		"argument":    ast.FieldOperand,
		"definition":  ast.FieldDefinition,
		"subscript":   ast.FieldIndex,
	},
	leaves: map[string]bool{
		"identifier":          true,
		"integer":             true,
		"float":               true,
		"string":              true,
		"concatenated_string": true,
		"true":                true,
		"false":               true,
		"none":                true,
		"type":                true,
		"comment":             true,
	},
	finish: finishPython,
}

func finishPython(n *ast.Node) {
	switch n.Kind {
	case ast.KindFunction:
		nameFromField(n)
		if n.HasKeyword("async") {
			n.Flags |= ast.FlagAsync
		}
	case ast.KindClass:
		nameFromField(n)
	case ast.KindParams:
		for _, p := range n.Children {
			pythonParam(p)
		}
		markKeywordOnly(n)
	}
}

// pythonParam rewrites one entry of a parameter list into a KindParam.
func pythonParam(p *ast.Node) {
	switch p.Type {
	case "identifier":
		p.Kind, p.Name = ast.KindParam, p.Text
	case "typed_parameter":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagTyped
		if t := p.Child(ast.FieldType); t != nil {
			p.Text = t.Text
		}
		for _, c := range p.Children {
			switch c.Type {
			case "identifier":
				p.Name = c.Text
			case "list_splat_pattern":
				p.Flags |= ast.FlagVariadic
				p.Name = splatName(c)
			case "dictionary_splat_pattern":
				p.Flags |= ast.FlagKeywordVariadic
				p.Name = splatName(c)
			}
			if p.Name != "" {
				break
			}
		}
	case "default_parameter", "typed_default_parameter":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagDefault
		nameFromField(p)
		if t := p.Child(ast.FieldType); t != nil {
			p.Flags |= ast.FlagTyped
			p.Text = t.Text
		}
	case "list_splat_pattern":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagVariadic
		p.Name = splatName(p)
	case "dictionary_splat_pattern":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagKeywordVariadic
		p.Name = splatName(p)
	case "keyword_separator":
		p.Kind = ast.KindParamSeparator
	case "tuple_pattern":
		p.Kind = ast.KindParam
	}
}

func splatName(n *ast.Node) string {
	if id := n.FirstOfKind(ast.KindIdentifier); id != nil {
		return id.Text
	}
	return ""
}

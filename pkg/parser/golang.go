package parser

import "github.com/panbanda/connascence/pkg/ast"

var goGrammar = &grammar{
	kinds: map[string]ast.Kind{
		"source_file":                 ast.KindModule,
		"function_declaration":        ast.KindFunction,
		"method_declaration":          ast.KindFunction,
		"func_literal":                ast.KindLambda,
		"block":                       ast.KindBlock,
		"parameter_list":              ast.KindParams,
		"expression_statement":        ast.KindExprStmt,
		"var_declaration":             ast.KindExprStmt,
		"const_declaration":           ast.KindExprStmt,
		"defer_statement":             ast.KindExprStmt,
		"var_spec":                    ast.KindAssign,
		"const_spec":                  ast.KindAssign,
		"assignment_statement":        ast.KindAssign,
		"short_var_declaration":       ast.KindAssign,
		"inc_statement":               ast.KindAugAssign,
		"dec_statement":               ast.KindAugAssign,
		"if_statement":                ast.KindIf,
		"expression_switch_statement": ast.KindIf,
		"type_switch_statement":       ast.KindIf,
		"select_statement":            ast.KindIf,
		"for_statement":               ast.KindFor,
		"return_statement":            ast.KindReturn,
		"go_statement":                ast.KindSpawn,
		"break_statement":             ast.KindBreak,
		"continue_statement":          ast.KindContinue,
		"empty_statement":             ast.KindPass,
		"import_declaration":          ast.KindImport,
		"call_expression":             ast.KindCall,
		"argument_list":               ast.KindArgs,
		"selector_expression":         ast.KindAttribute,
		"index_expression":            ast.KindSubscript,
		"identifier":                  ast.KindIdentifier,
		"field_identifier":            ast.KindIdentifier,
		"package_identifier":          ast.KindIdentifier,
		"type_identifier":             ast.KindIdentifier,
		"binary_expression":           ast.KindBinaryOp,
		"unary_expression":            ast.KindUnaryOp,
		"parenthesized_expression":    ast.KindParen,
		"int_literal":                 ast.KindNumber,
		"float_literal":               ast.KindNumber,
		"imaginary_literal":           ast.KindNumber,
		"interpreted_string_literal":  ast.KindString,
		"raw_string_literal":          ast.KindString,
		"rune_literal":                ast.KindString,
		"true":                        ast.KindTrue,
		"false":                       ast.KindFalse,
		"nil":                         ast.KindNone,
		"composite_literal":           ast.KindList,
		"comment":                     ast.KindComment,
	},
	fields: map[string]string{
		"name":        ast.FieldName,
		"parameters":  ast.FieldParams,
		"result":      ast.FieldReturnType,
		"body":        ast.FieldBody,
		"receiver":    ast.FieldReceiver,
		"condition":   ast.FieldCond,
		"consequence": ast.FieldThen,
		"alternative": ast.FieldElse,
		"function":    ast.FieldFunc,
		"arguments":   ast.FieldArgs,
		"operand":     ast.FieldObject,
		"field":       ast.FieldAttr,
		"left":        ast.FieldLeft,
		"right":       ast.FieldRight,
		"operator":    ast.FieldOperator,
		"type":        ast.FieldType,
		"value":       ast.FieldValue,
		"index":       ast.FieldIndex,
	},
	leaves: map[string]bool{
		"identifier":                 true,
		"field_identifier":           true,
		"package_identifier":         true,
		"type_identifier":            true,
		"int_literal":                true,
		"float_literal":              true,
		"imaginary_literal":          true,
		"interpreted_string_literal": true,
		"raw_string_literal":         true,
		"rune_literal":               true,
		"true":                       true,
		"false":                      true,
		"nil":                        true,
		"comment":                    true,
	},
	finish: finishGo,
}

func finishGo(n *ast.Node) {
	switch n.Type {
	case "type_spec":
		// Struct types play the role of classes; methods join them by receiver.
		if t := n.Child(ast.FieldType); t != nil && t.Type == "struct_type" {
			n.Kind = ast.KindClass
			nameFromField(n)
		}
		return
	case "field_declaration_list":
		n.Children = goFields(n.Children)
		return
	}
	switch n.Kind {
	case ast.KindFunction:
		nameFromField(n)
	case ast.KindParams:
		n.Children = goParams(n.Children)
		markKeywordOnly(n)
	case ast.KindAssign:
		if n.Type == "var_spec" || n.Type == "const_spec" {
			renameField(n, ast.FieldName, ast.FieldLeft)
			renameField(n, ast.FieldValue, ast.FieldRight)
		}
	case ast.KindFor:
		refineGoFor(n)
	case ast.KindBinaryOp:
		refineBinary(n)
	case ast.KindUnaryOp:
		refineUnary(n)
	}
}

// goParams expands grouped declarations such as (a, b int) into one
// parameter per name.
func goParams(children []*ast.Node) []*ast.Node {
	out := make([]*ast.Node, 0, len(children))
	for _, c := range children {
		switch c.Type {
		case "parameter_declaration", "variadic_parameter_declaration":
			var typeText string
			if t := c.Child(ast.FieldType); t != nil {
				typeText = goTypeText(t)
			}
			flags := ast.FlagTyped
			if c.Type == "variadic_parameter_declaration" {
				flags |= ast.FlagVariadic
			}
			names := c.ChildrenByField(ast.FieldName)
			if len(names) == 0 {
				out = append(out, &ast.Node{Kind: ast.KindParam, Type: c.Type, Field: c.Field, Text: typeText, Flags: flags, Span: c.Span})
				continue
			}
			for _, name := range names {
				out = append(out, &ast.Node{
					Kind:  ast.KindParam,
					Type:  c.Type,
					Field: c.Field,
					Name:  name.Text,
					Text:  typeText,
					Flags: flags,
					Span:  name.Span,
				})
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// goFields expands struct field declarations into one field node per
// declared name. Embedded fields are named by their type.
func goFields(children []*ast.Node) []*ast.Node {
	out := make([]*ast.Node, 0, len(children))
	for _, c := range children {
		if c.Type != "field_declaration" {
			out = append(out, c)
			continue
		}
		names := c.ChildrenByField(ast.FieldName)
		if len(names) == 0 {
			if t := c.Child(ast.FieldType); t != nil {
				out = append(out, &ast.Node{Kind: ast.KindField, Type: c.Type, Name: goBaseType(t), Span: c.Span})
			}
			continue
		}
		for _, name := range names {
			out = append(out, &ast.Node{Kind: ast.KindField, Type: c.Type, Name: name.Text, Span: name.Span})
		}
	}
	return out
}

// goBaseType returns the bare type name of an embedded field type such as
// *pkg.Base or Base[T].
func goBaseType(t *ast.Node) string {
	switch t.Type {
	case "generic_type":
		if len(t.Children) > 0 {
			return goBaseType(t.Children[0])
		}
	case "qualified_type":
		if name := t.Child(ast.FieldName); name != nil {
			return name.Text
		}
	case "pointer_type":
		for _, c := range t.Children {
			if c.Kind != ast.KindOperator {
				return goBaseType(c)
			}
		}
	}
	return t.Text
}

// goTypeText reconstructs a compact spelling of a type expression, enough
// to tell pointer depth apart.
func goTypeText(t *ast.Node) string {
	if t.Text != "" {
		return t.Text
	}
	if t.Type == "generic_type" && len(t.Children) > 0 {
		// drop the type arguments
		return goTypeText(t.Children[0])
	}
	var s string
	for _, c := range t.Children {
		s += goTypeText(c)
	}
	return s
}

// refineGoFor distinguishes counted and range loops from condition-only
// and infinite loops, which behave like while loops.
func refineGoFor(n *ast.Node) {
	for _, c := range n.Children {
		if c.Type == "for_clause" || c.Type == "range_clause" {
			return
		}
	}
	n.Kind = ast.KindWhile
	for _, c := range n.Children {
		if c.Field == "" && c.Kind != ast.KindKeyword && c.Kind != ast.KindComment {
			c.Field = ast.FieldCond
			return
		}
	}
}

package parser

import "github.com/panbanda/connascence/pkg/ast"

// javascriptGrammar covers JavaScript, TypeScript and TSX; the TypeScript
// grammars extend the JavaScript node set.
var javascriptGrammar = &grammar{
	kinds: map[string]ast.Kind{
		"program":                         ast.KindModule,
		"class_declaration":               ast.KindClass,
		"abstract_class_declaration":      ast.KindClass,
		"class":                           ast.KindClass,
		"class_body":                      ast.KindBlock,
		"method_definition":               ast.KindFunction,
		"function_declaration":            ast.KindFunction,
		"function_expression":             ast.KindFunction,
		"function":                        ast.KindFunction,
		"generator_function_declaration":  ast.KindFunction,
		"arrow_function":                  ast.KindLambda,
		"decorator":                       ast.KindDecorator,
		"statement_block":                 ast.KindBlock,
		"formal_parameters":               ast.KindParams,
		"expression_statement":            ast.KindExprStmt,
		"lexical_declaration":             ast.KindExprStmt,
		"variable_declaration":            ast.KindExprStmt,
		"variable_declarator":             ast.KindAssign,
		"field_definition":                ast.KindAssign,
		"public_field_definition":         ast.KindAssign,
		"assignment_expression":           ast.KindAssign,
		"augmented_assignment_expression": ast.KindAugAssign,
		"update_expression":               ast.KindAugAssign,
		"if_statement":                    ast.KindIf,
		"switch_statement":                ast.KindIf,
		"else_clause":                     ast.KindElse,
		"while_statement":                 ast.KindWhile,
		"do_statement":                    ast.KindWhile,
		"for_statement":                   ast.KindFor,
		"for_in_statement":                ast.KindFor,
		"try_statement":                   ast.KindTry,
		"catch_clause":                    ast.KindExcept,
		"finally_clause":                  ast.KindFinally,
		"return_statement":                ast.KindReturn,
		"throw_statement":                 ast.KindRaise,
		"break_statement":                 ast.KindBreak,
		"continue_statement":              ast.KindContinue,
		"empty_statement":                 ast.KindPass,
		"import_statement":                ast.KindImport,
		"call_expression":                 ast.KindCall,
		"new_expression":                  ast.KindCall,
		"arguments":                       ast.KindArgs,
		"member_expression":               ast.KindAttribute,
		"subscript_expression":            ast.KindSubscript,
		"identifier":                      ast.KindIdentifier,
		"property_identifier":             ast.KindIdentifier,
		"shorthand_property_identifier":   ast.KindIdentifier,
		"private_property_identifier":     ast.KindIdentifier,
		"this":                            ast.KindIdentifier,
		"binary_expression":               ast.KindBinaryOp,
		"unary_expression":                ast.KindUnaryOp,
		"parenthesized_expression":        ast.KindParen,
		"await_expression":                ast.KindAwait,
		"ternary_expression":              ast.KindConditional,
		"number":                          ast.KindNumber,
		"string":                          ast.KindString,
		"template_string":                 ast.KindString,
		"true":                            ast.KindTrue,
		"false":                           ast.KindFalse,
		"null":                            ast.KindNone,
		"undefined":                       ast.KindNone,
		"array":                           ast.KindList,
		"object":                          ast.KindDict,
		"type_annotation":                 ast.KindTypeAnnotation,
		"comment":                         ast.KindComment,
	},
	fields: map[string]string{
		"name":        ast.FieldName,
		"parameters":  ast.FieldParams,
		"body":        ast.FieldBody,
		"return_type": ast.FieldReturnType,
		"condition":   ast.FieldCond,
		"consequence": ast.FieldThen,
		"alternative": ast.FieldElse,
		"left":        ast.FieldLeft,
		"right":       ast.FieldRight,
		"function":    ast.FieldFunc,
		"constructor": ast.FieldFunc,
		"arguments":   ast.FieldArgs,
		"object":      ast.FieldObject,
		"property":    ast.FieldAttr,
		"index":       ast.FieldIndex,
		"type":        ast.FieldType,
		"value":       ast.FieldValue,
		"operator":    ast.FieldOperator,
		"argument":    ast.FieldOperand,
		"pattern":     ast.FieldName,
		"decorator":   ast.FieldDefinition,
	},
	leaves: map[string]bool{
		"identifier":                    true,
		"property_identifier":           true,
		"shorthand_property_identifier": true,
		"private_property_identifier":   true,
		"this":                          true,
		"number":                        true,
		"string":                        true,
		"template_string":               true,
		"true":                          true,
		"false":                         true,
		"null":                          true,
		"undefined":                     true,
		"type_annotation":               true,
		"comment":                       true,
		"regex":                         true,
	},
	finish: finishJavaScript,
}

func finishJavaScript(n *ast.Node) {
	switch n.Kind {
	case ast.KindFunction, ast.KindLambda:
		nameFromField(n)
		if n.HasKeyword("async") {
			n.Flags |= ast.FlagAsync
		}
		// arrow functions with a single bare parameter have no parameter list
		if n.Kind == ast.KindLambda && n.Child(ast.FieldParams) == nil {
			for _, c := range n.Children {
				if c.Type == "identifier" && c.Field == "parameter" {
					c.Kind, c.Name, c.Field = ast.KindParam, c.Text, ast.FieldParams
				}
			}
		}
	case ast.KindClass:
		nameFromField(n)
	case ast.KindParams:
		for _, p := range n.Children {
			javascriptParam(p)
		}
		markKeywordOnly(n)
	case ast.KindAssign:
		switch n.Type {
		case "variable_declarator":
			renameField(n, ast.FieldName, ast.FieldLeft)
			renameField(n, ast.FieldValue, ast.FieldRight)
		case "field_definition", "public_field_definition":
			renameField(n, ast.FieldAttr, ast.FieldLeft)
			renameField(n, ast.FieldName, ast.FieldLeft)
			renameField(n, ast.FieldValue, ast.FieldRight)
		}
	case ast.KindBinaryOp:
		refineBinary(n)
	case ast.KindUnaryOp:
		refineUnary(n)
	}
}

func javascriptParam(p *ast.Node) {
	switch p.Type {
	case "identifier":
		p.Kind, p.Name = ast.KindParam, p.Text
	case "assignment_pattern":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagDefault
		if left := p.Child(ast.FieldLeft); left != nil {
			p.Name = left.Text
		}
	case "rest_pattern":
		p.Kind = ast.KindParam
		p.Flags |= ast.FlagVariadic
		if id := p.FirstOfKind(ast.KindIdentifier); id != nil {
			p.Name = id.Text
		}
	case "required_parameter", "optional_parameter":
		p.Kind = ast.KindParam
		if p.Type == "optional_parameter" || p.Child(ast.FieldValue) != nil {
			p.Flags |= ast.FlagDefault
		}
		if t := p.FirstOfKind(ast.KindTypeAnnotation); t != nil {
			p.Flags |= ast.FlagTyped
			p.Text = t.Text
		}
		if name := p.Child(ast.FieldName); name != nil {
			switch name.Type {
			case "identifier":
				p.Name = name.Text
			case "rest_pattern":
				p.Flags |= ast.FlagVariadic
				if id := name.FirstOfKind(ast.KindIdentifier); id != nil {
					p.Name = id.Text
				}
			}
		}
	case "object_pattern", "array_pattern":
		p.Kind = ast.KindParam
	}
}

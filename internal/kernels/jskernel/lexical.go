package jskernel

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// lexicalNames lists the names bound by top-level let and const declarations.
// They live in the global lexical scope but not on the global object.
func lexicalNames(code string) []string {
	program, err := parser.ParseFile(nil, "", code, 0)
	if err != nil {
		return nil
	}
	var names []string
	for _, stmt := range program.Body {
		decl, ok := stmt.(*ast.LexicalDeclaration)
		if !ok {
			continue
		}
		for _, binding := range decl.List {
			names = appendTargetNames(names, binding.Target)
		}
	}
	return names
}

func appendTargetNames(names []string, target ast.Expression) []string {
	switch t := target.(type) {
	case *ast.Identifier:
		names = append(names, t.Name.String())
	case *ast.AssignExpression:
		names = appendTargetNames(names, t.Left)
	case *ast.ArrayPattern:
		for _, elem := range t.Elements {
			names = appendTargetNames(names, elem)
		}
		names = appendTargetNames(names, t.Rest)
	case *ast.ObjectPattern:
		for _, prop := range t.Properties {
			switch p := prop.(type) {
			case *ast.PropertyShort:
				names = append(names, p.Name.Name.String())
			case *ast.PropertyKeyed:
				names = appendTargetNames(names, p.Value)
			}
		}
		names = appendTargetNames(names, t.Rest)
	}
	return names
}

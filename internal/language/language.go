package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable GraphQL document. Only syntax is checked;
// there is no schema on the client side to validate against.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindOperation returns the operation called name, or the only operation in
// doc when name is empty. It returns nil when no single operation matches.
func FindOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if name != "" {
		return doc.Operations.ForName(name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

// FindFragment looks up a fragment definition by name.
func FindFragment(doc *QueryDocument, name string) *FragmentDefinition {
	if doc == nil {
		return nil
	}
	if fd := doc.Fragments.ForName(name); fd != nil {
		return fd
	}
	for _, f := range doc.Fragments {
		if f != nil && f.Name == name {
			return f
		}
	}
	return nil
}

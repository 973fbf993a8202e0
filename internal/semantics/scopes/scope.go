package scopes

import (
	"fmt"

	"github.com/indutny/escape.js/internal/ast"
)

// ScopeKind categorizes lexical scopes
type ScopeKind int

const (
	ProgramScope ScopeKind = iota
	FunctionScope
	MethodScope
	BlockScope
)

func (k ScopeKind) String() string {
	switch k {
	case ProgramScope:
		return "program"
	case FunctionScope:
		return "function"
	case MethodScope:
		return "method"
	case BlockScope:
		return "block"
	default:
		return "unknown"
	}
}

// BindingKind categorizes bindings
type BindingKind int

const (
	BindingVar BindingKind = iota
	BindingParam
	BindingFunc
	BindingClass
	BindingThis
	BindingGlobal
)

// Binding represents a name declared in a scope. A name may denote different
// heap values over time; the binding itself is stable and identity-comparable.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope   // scope the binding is declared in
	Decl  ast.Node // node that declared this binding (nil for globals)
}

// Scope is a lexical region forming a tree rooted at the program scope.
// It owns the bindings declared directly in it and is the deallocation
// boundary for values that never escape it.
type Scope struct {
	Kind     ScopeKind
	Parent   *Scope
	Children []*Scope
	Node     ast.Node // node that introduced this scope
	Depth    int

	bindings map[string]*Binding
	order    []*Binding
}

// NewScope creates a new scope under the given parent
func NewScope(parent *Scope, kind ScopeKind, node ast.Node) *Scope {
	s := &Scope{
		Kind:     kind,
		Parent:   parent,
		Node:     node,
		bindings: make(map[string]*Binding),
	}
	if parent != nil {
		s.Depth = parent.Depth + 1
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Declare adds a binding to the scope
func (s *Scope) Declare(name string, kind BindingKind, decl ast.Node) (*Binding, error) {
	if _, exists := s.bindings[name]; exists {
		return nil, fmt.Errorf("'%s' already declared in this scope", name)
	}
	b := &Binding{Name: name, Kind: kind, Scope: s, Decl: decl}
	s.bindings[name] = b
	s.order = append(s.order, b)
	return b, nil
}

// Lookup finds a binding in this scope or enclosing scopes
func (s *Scope) Lookup(name string) (*Binding, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if b, ok := cur.bindings[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// GetBinding finds a binding declared directly in this scope
func (s *Scope) GetBinding(name string) (*Binding, bool) {
	b, ok := s.bindings[name]
	return b, ok
}

// Bindings returns the bindings declared in this scope, in declaration order
func (s *Scope) Bindings() []*Binding {
	return s.order
}

// Function returns the nearest enclosing function-like scope (function,
// method, or program), skipping block scopes.
func (s *Scope) Function() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind != BlockScope {
			return cur
		}
	}
	return nil
}

// Encloses reports whether s is an ancestor of other (or other itself).
func (s *Scope) Encloses(other *Scope) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == s {
			return true
		}
	}
	return false
}

func (s *Scope) String() string {
	return fmt.Sprintf("scope(%s depth=%d)", s.Kind, s.Depth)
}

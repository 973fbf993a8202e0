package scopes

import (
	"testing"
)

func TestDeclareAndLookup(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)

	binding, err := root.Declare("x", BindingVar, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if binding.Name != "x" || binding.Scope != root {
		t.Errorf("binding not anchored to its scope: %+v", binding)
	}

	found, ok := root.Lookup("x")
	if !ok || found != binding {
		t.Error("lookup should return the declared binding")
	}
	if _, ok := root.Lookup("y"); ok {
		t.Error("lookup of undeclared name should fail")
	}
}

func TestDuplicateDeclaration(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)

	if _, err := root.Declare("x", BindingVar, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := root.Declare("x", BindingVar, nil); err == nil {
		t.Error("redeclaring in the same scope must fail")
	}
}

func TestShadowing(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)
	inner := NewScope(root, BlockScope, nil)

	outer, _ := root.Declare("x", BindingVar, nil)
	shadow, err := inner.Declare("x", BindingVar, nil)
	if err != nil {
		t.Fatalf("shadowing in a nested scope must be allowed: %v", err)
	}

	if found, _ := inner.Lookup("x"); found != shadow {
		t.Error("inner lookup should find the shadowing binding")
	}
	if found, _ := root.Lookup("x"); found != outer {
		t.Error("outer lookup should find the original binding")
	}
}

func TestLookupWalksEnclosingScopes(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)
	fn := NewScope(root, FunctionScope, nil)
	block := NewScope(fn, BlockScope, nil)

	binding, _ := root.Declare("g", BindingVar, nil)
	found, ok := block.Lookup("g")
	if !ok || found != binding {
		t.Error("lookup should walk up to the program scope")
	}
}

func TestEncloses(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)
	fn := NewScope(root, FunctionScope, nil)
	other := NewScope(root, FunctionScope, nil)

	if !root.Encloses(fn) {
		t.Error("root should enclose its child")
	}
	if !fn.Encloses(fn) {
		t.Error("a scope encloses itself")
	}
	if fn.Encloses(other) {
		t.Error("siblings do not enclose each other")
	}
	if fn.Encloses(root) {
		t.Error("a child does not enclose its parent")
	}
}

func TestBindingsKeepDeclarationOrder(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)
	names := []string{"c", "a", "d"}
	for _, name := range names {
		root.Declare(name, BindingVar, nil)
	}

	bindings := root.Bindings()
	if len(bindings) != len(names) {
		t.Fatalf("expected %d bindings, got %d", len(names), len(bindings))
	}
	for i, binding := range bindings {
		if binding.Name != names[i] {
			t.Errorf("binding %d: expected %s, got %s", i, names[i], binding.Name)
		}
	}
}

func TestFunctionSkipsBlockScopes(t *testing.T) {
	root := NewScope(nil, ProgramScope, nil)
	fn := NewScope(root, FunctionScope, nil)
	block := NewScope(fn, BlockScope, nil)
	nested := NewScope(block, BlockScope, nil)

	if got := nested.Function(); got != fn {
		t.Errorf("expected nearest function scope, got %v", got)
	}
	if got := root.Function(); got != root {
		t.Errorf("program scope is its own function scope, got %v", got)
	}
}

package scopes

import (
	"fmt"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
)

// Info is the result of scope construction: the scope tree, every resolved
// identifier reference, and the candidate-capture set of every closure.
type Info struct {
	Program *ast.Program
	Root    *Scope

	Scopes   map[ast.Node]*Scope        // scope introduced by a Program/Func/Method/Block node
	Refs     map[*ast.Ident]*Binding    // resolved identifier references
	ThisRefs map[*ast.ThisExpr]*Binding // resolved `this` references
	Captures map[*ast.FuncExpr][]*Binding

	// Top-level declarations that failed resolution; escape analysis skips
	// them but continues with their siblings.
	Failed map[ast.Node]bool
}

type builder struct {
	info    *Info
	bag     *diagnostics.DiagnosticBag
	globals map[string]*Binding

	current  *Scope
	topLevel ast.Node       // top-level node being walked, for Failed tracking
	closures []*ast.FuncExpr // stack of open closures, for capture recording
}

// Build walks the program tree and produces the scope tree with resolved
// bindings. The globals table lists names resolvable without a declaration
// (configured function signatures). Resolution failures are reported to the
// bag as UnresolvedIdentifierError diagnostics.
func Build(prog *ast.Program, globals []string, bag *diagnostics.DiagnosticBag) *Info {
	info := &Info{
		Program:  prog,
		Scopes:   make(map[ast.Node]*Scope),
		Refs:     make(map[*ast.Ident]*Binding),
		ThisRefs: make(map[*ast.ThisExpr]*Binding),
		Captures: make(map[*ast.FuncExpr][]*Binding),
		Failed:   make(map[ast.Node]bool),
	}

	b := &builder{
		info:    info,
		bag:     bag,
		globals: make(map[string]*Binding),
	}
	for _, name := range globals {
		b.globals[name] = &Binding{Name: name, Kind: BindingGlobal}
	}

	info.Root = NewScope(nil, ProgramScope, prog)
	info.Scopes[prog] = info.Root
	b.current = info.Root

	// Function and class declarations are hoisted so that call sites may
	// precede the declaration, matching the surface language.
	for _, node := range prog.Nodes {
		switch decl := node.(type) {
		case *ast.FuncDecl:
			b.declare(decl.Name, BindingFunc, decl)
		case *ast.ClassDecl:
			b.declare(decl.Name, BindingClass, decl)
		}
	}

	for _, node := range prog.Nodes {
		b.topLevel = node
		b.walkNode(node)
	}
	b.topLevel = nil

	return info
}

func (b *builder) declare(name *ast.Ident, kind BindingKind, decl ast.Node) *Binding {
	binding, err := b.current.Declare(name.Name, kind, decl)
	if err != nil {
		b.bag.Add(diagnostics.NewError(err.Error()).
			WithCode(diagnostics.ErrDuplicateDeclaration).
			WithPrimaryLabel(name.Loc(), "redeclared here"))
		// Resolution continues against the earlier binding
		binding, _ = b.current.GetBinding(name.Name)
	}
	b.info.Refs[name] = binding
	return binding
}

func (b *builder) fail() {
	if b.topLevel != nil {
		b.info.Failed[b.topLevel] = true
	}
}

func (b *builder) enterScope(kind ScopeKind, node ast.Node) *Scope {
	scope := NewScope(b.current, kind, node)
	b.info.Scopes[node] = scope
	b.current = scope
	return scope
}

func (b *builder) leaveScope() {
	b.current = b.current.Parent
}

func (b *builder) walkNode(node ast.Node) {
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *ast.Block:
		b.enterScope(BlockScope, n)
		for _, child := range n.Nodes {
			b.walkNode(child)
		}
		b.leaveScope()

	case *ast.VarDecl:
		// Initializer resolves before the name is visible (no self-reference)
		if n.Value != nil {
			b.walkExpr(n.Value)
		}
		b.declare(n.Name, BindingVar, n)

	case *ast.FuncDecl:
		// Name was hoisted; nested declarations are declared in place
		if _, ok := b.info.Refs[n.Name]; !ok {
			b.declare(n.Name, BindingFunc, n)
		}
		b.walkFunction(FunctionScope, n, n.Params, n.Body)

	case *ast.ClassDecl:
		if _, ok := b.info.Refs[n.Name]; !ok {
			b.declare(n.Name, BindingClass, n)
		}
		for _, method := range n.Methods {
			b.walkMethod(method)
		}

	case *ast.AssignStmt:
		b.walkExpr(n.Rhs)
		b.walkExpr(n.Lhs)

	case *ast.ReturnStmt:
		if n.Result != nil {
			b.walkExpr(n.Result)
		}

	case *ast.ExprStmt:
		b.walkExpr(n.X)

	case *ast.IfStmt:
		b.walkExpr(n.Cond)
		b.walkNode(n.Body)
		b.walkNode(n.Else)

	case *ast.WhileStmt:
		b.walkExpr(n.Cond)
		b.walkNode(n.Body)
	}
}

func (b *builder) walkFunction(kind ScopeKind, node ast.Node, params []*ast.Ident, body *ast.Block) {
	b.enterScope(kind, node)
	for _, param := range params {
		b.declare(param, BindingParam, node)
	}
	if body != nil {
		b.walkNode(body)
	}
	b.leaveScope()
}

func (b *builder) walkMethod(method *ast.MethodDecl) {
	scope := b.enterScope(MethodScope, method)
	// `this` is an ordinary implicit first parameter
	scope.Declare("this", BindingThis, method)
	for _, param := range method.Params {
		b.declare(param, BindingParam, method)
	}
	if method.Body != nil {
		b.walkNode(method.Body)
	}
	b.leaveScope()
}

func (b *builder) walkClosure(fn *ast.FuncExpr) {
	b.closures = append(b.closures, fn)
	if _, ok := b.info.Captures[fn]; !ok {
		b.info.Captures[fn] = nil
	}
	b.walkFunction(FunctionScope, fn, fn.Params, fn.Body)
	b.closures = b.closures[:len(b.closures)-1]
}

func (b *builder) walkExpr(expr ast.Expression) {
	if expr == nil {
		return
	}

	switch e := expr.(type) {
	case *ast.Ident:
		b.resolve(e)

	case *ast.ThisExpr:
		b.resolveThis(e)

	case *ast.MemberExpr:
		b.walkExpr(e.Object)

	case *ast.CallExpr:
		b.walkExpr(e.Callee)
		for _, arg := range e.Args {
			b.walkExpr(arg)
		}

	case *ast.NewExpr:
		b.walkExpr(e.Callee)
		for _, arg := range e.Args {
			b.walkExpr(arg)
		}

	case *ast.FuncExpr:
		b.walkClosure(e)

	case *ast.ObjectLit:
		for i := range e.Props {
			b.walkExpr(e.Props[i].Value)
		}

	case *ast.ArrayLit:
		for _, elem := range e.Elems {
			b.walkExpr(elem)
		}

	case *ast.BasicLit:
		return
	}
}

func (b *builder) resolve(ident *ast.Ident) {
	if binding, ok := b.current.Lookup(ident.Name); ok {
		b.info.Refs[ident] = binding
		b.recordCapture(binding)
		return
	}
	if global, ok := b.globals[ident.Name]; ok {
		b.info.Refs[ident] = global
		return
	}

	b.bag.Add(diagnostics.NewError(fmt.Sprintf("unresolved identifier '%s'", ident.Name)).
		WithCode(diagnostics.ErrUnresolvedIdentifier).
		WithPrimaryLabel(ident.Loc(), "not found in any enclosing scope").
		WithHelp("declare the variable with 'let' or register the name in the signature table"))
	b.fail()
}

func (b *builder) resolveThis(expr *ast.ThisExpr) {
	for cur := b.current; cur != nil; cur = cur.Parent {
		if cur.Kind == MethodScope {
			if binding, ok := cur.GetBinding("this"); ok {
				b.info.ThisRefs[expr] = binding
				// The receiver is a free name for any closure between the
				// method scope and this reference
				b.recordCapture(binding)
				return
			}
		}
	}

	b.bag.Add(diagnostics.NewError("'this' used outside of a method body").
		WithCode(diagnostics.ErrUnresolvedIdentifier).
		WithPrimaryLabel(expr.Loc(), "no enclosing method"))
	b.fail()
}

// recordCapture registers binding as a candidate capture of every open
// closure declared inside the binding's scope. A closure captures a name
// when the name resolves outside the closure's own scope subtree.
func (b *builder) recordCapture(binding *Binding) {
	for _, fn := range b.closures {
		fnScope, ok := b.info.Scopes[fn]
		if !ok {
			continue
		}
		if fnScope.Encloses(binding.Scope) {
			// Declared inside this closure: not free
			continue
		}
		if b.hasCapture(fn, binding) {
			continue
		}
		b.info.Captures[fn] = append(b.info.Captures[fn], binding)
	}
}

func (b *builder) hasCapture(fn *ast.FuncExpr, binding *Binding) bool {
	for _, captured := range b.info.Captures[fn] {
		if captured == binding {
			return true
		}
	}
	return false
}

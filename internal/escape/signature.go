package escape

import (
	"sync"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/semantics/scopes"
)

// Signature summarizes how a callable treats its arguments and receiver.
// Known signatures let call sites avoid the conservative all-arguments-escape
// treatment; unknown signatures are resolvable names with no usable summary.
type Signature struct {
	Name  string
	Known bool

	// ParamEscapes[i] reports that argument i leaks beyond the call in a way
	// the caller cannot recapture (stored globally, captured by an escaping
	// closure, passed onward to an unknown callee). A parameter that is only
	// returned does not count; the caller re-captures it at the call site.
	ParamEscapes []bool

	// ParamStored[i] reports that argument i is stored into a property of
	// the receiver. The argument's ownership transfers to the receiver
	// rather than leaving the program.
	ParamStored []bool

	ReturnsParam int // index of the parameter returned unchanged, or -1
	ReturnsThis  bool
	ReturnsFresh bool // at least one return produces a new allocation
}

// SignatureTable maps callable names to signatures. The configured entries
// are installed before analysis; derived entries for program-level function
// declarations are merged in behind a barrier before call-site rules run.
type SignatureTable struct {
	mu   sync.Mutex
	sigs map[string]*Signature
}

func NewSignatureTable() *SignatureTable {
	return &SignatureTable{sigs: make(map[string]*Signature)}
}

// DefaultTable returns the base environment: output builtins that are known
// not to retain their arguments.
func DefaultTable() *SignatureTable {
	t := NewSignatureTable()
	t.RegisterBuiltin("log")
	t.RegisterBuiltin("print")
	return t
}

// RegisterBuiltin installs a known signature that retains nothing. Variadic
// builtins are modeled with empty parameter lists; absent entries default to
// non-escaping for known signatures.
func (t *SignatureTable) RegisterBuiltin(name string) {
	t.Register(&Signature{Name: name, Known: true, ReturnsParam: -1})
}

// RegisterExternal installs a resolvable name with an unknown signature.
// Calls through it escape every argument conservatively.
func (t *SignatureTable) RegisterExternal(name string) {
	t.Register(&Signature{Name: name, Known: false, ReturnsParam: -1})
}

func (t *SignatureTable) Register(sig *Signature) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sigs[sig.Name] = sig
}

func (t *SignatureTable) Lookup(name string) (*Signature, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.sigs[name]
	return sig, ok
}

// Names returns every registered name, for seeding global resolution.
func (t *SignatureTable) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.sigs))
	for name := range t.sigs {
		names = append(names, name)
	}
	return names
}

// escapesParam reports whether argument i leaks beyond a call through this
// signature. Unknown signatures escape everything.
func (sig *Signature) escapesParam(i int) bool {
	if !sig.Known {
		return true
	}
	return i < len(sig.ParamEscapes) && sig.ParamEscapes[i]
}

func (sig *Signature) storesParam(i int) bool {
	return sig.Known && i < len(sig.ParamStored) && sig.ParamStored[i]
}

// deriveSignatures computes signatures for every program-level function
// declaration and every class method. Functions are independent during
// derivation, so each one is summarized on its own goroutine; results merge
// into the table only after all workers finish. Derivation consults the
// pre-configured table for builtin callees but never another derived
// signature; a call to a not-yet-summarized function is treated as unknown.
func deriveSignatures(prog *ast.Program, info *scopes.Info, table *SignatureTable) map[*ast.MethodDecl]*Signature {
	var funcs []*ast.FuncDecl
	var methods []*ast.MethodDecl
	for _, node := range prog.Nodes {
		if info.Failed[node] {
			continue
		}
		switch decl := node.(type) {
		case *ast.FuncDecl:
			funcs = append(funcs, decl)
		case *ast.ClassDecl:
			methods = append(methods, decl.Methods...)
		}
	}

	funcSigs := make([]*Signature, len(funcs))
	methodSigs := make([]*Signature, len(methods))

	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func(i int, fn *ast.FuncDecl) {
			defer wg.Done()
			funcSigs[i] = summarizeFunction(fn.Name.Name, fn, fn.Params, fn.Body, info, table)
		}(i, fn)
	}
	for i, m := range methods {
		wg.Add(1)
		go func(i int, m *ast.MethodDecl) {
			defer wg.Done()
			methodSigs[i] = summarizeFunction(m.Name.Name, m, m.Params, m.Body, info, table)
		}(i, m)
	}
	wg.Wait()

	// Merge barrier: no call-site rule observes a partially filled table
	for _, sig := range funcSigs {
		table.Register(sig)
	}
	byDecl := make(map[*ast.MethodDecl]*Signature, len(methods))
	for i, m := range methods {
		byDecl[m] = methodSigs[i]
	}
	return byDecl
}

// summarizer tracks which local bindings alias which parameter while walking
// one function body.
type summarizer struct {
	info    *scopes.Info
	table   *SignatureTable
	fnScope *scopes.Scope

	aliases map[*scopes.Binding]int // binding -> parameter index
	sig     *Signature

	returnCount  int
	thisReturns  int
	thisCaptured bool // a nested closure captures the receiver
	paramReturn  int  // parameter index seen returned, -1 none, -2 ambiguous
}

func summarizeFunction(name string, decl ast.Node, params []*ast.Ident, body *ast.Block, info *scopes.Info, table *SignatureTable) *Signature {
	fnScope, ok := info.Scopes[decl]
	if !ok {
		return &Signature{Name: name, Known: false, ReturnsParam: -1}
	}

	s := &summarizer{
		info:    info,
		table:   table,
		fnScope: fnScope,
		aliases: make(map[*scopes.Binding]int),
		sig: &Signature{
			Name:         name,
			Known:        true,
			ParamEscapes: make([]bool, len(params)),
			ParamStored:  make([]bool, len(params)),
			ReturnsParam: -1,
		},
		paramReturn: -1,
	}
	for i, param := range params {
		if binding, ok := fnScope.GetBinding(param.Name); ok {
			s.aliases[binding] = i
		}
	}

	s.walkNode(body)

	// paramReturn is -2 when different parameters return on different
	// paths; those were marked escaping during the walk.
	if s.paramReturn >= 0 {
		s.sig.ReturnsParam = s.paramReturn
	}
	// A receiver captured by a nested closure may outlive the call through
	// that closure, so the returns-this rebind cannot recapture it.
	s.sig.ReturnsThis = s.returnCount > 0 && s.thisReturns == s.returnCount && !s.thisCaptured
	return s.sig
}

// paramOf resolves an expression to the parameter it aliases, or -1.
func (s *summarizer) paramOf(expr ast.Expression) int {
	ident, ok := expr.(*ast.Ident)
	if !ok {
		return -1
	}
	binding, ok := s.info.Refs[ident]
	if !ok {
		return -1
	}
	if i, ok := s.aliases[binding]; ok {
		return i
	}
	return -1
}

func (s *summarizer) isThis(expr ast.Expression) bool {
	_, ok := expr.(*ast.ThisExpr)
	return ok
}

func (s *summarizer) escape(i int) {
	if i >= 0 {
		s.sig.ParamEscapes[i] = true
	}
}

func (s *summarizer) walkNode(node ast.Node) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ast.Block:
		for _, child := range n.Nodes {
			s.walkNode(child)
		}

	case *ast.VarDecl:
		s.walkExpr(n.Value)
		if binding, ok := s.info.Refs[n.Name]; ok {
			if i := s.paramOf(n.Value); i >= 0 {
				s.aliases[binding] = i
			} else {
				delete(s.aliases, binding)
			}
		}

	case *ast.FuncDecl:
		// Nested declaration: not summarized separately, and its lifetime
		// is unresolvable from here, so every parameter it references is
		// assumed to outlive the call.
		s.escapeReferenced(n.Body)

	case *ast.AssignStmt:
		s.walkAssign(n)

	case *ast.ReturnStmt:
		s.walkReturn(n)

	case *ast.ExprStmt:
		s.walkExpr(n.X)

	case *ast.IfStmt:
		s.walkExpr(n.Cond)
		s.walkNode(n.Body)
		s.walkNode(n.Else)

	case *ast.WhileStmt:
		s.walkExpr(n.Cond)
		s.walkNode(n.Body)
	}
}

func (s *summarizer) walkAssign(n *ast.AssignStmt) {
	s.walkExpr(n.Rhs)
	rhsParam := s.paramOf(n.Rhs)

	switch lhs := n.Lhs.(type) {
	case *ast.Ident:
		binding, ok := s.info.Refs[lhs]
		if !ok {
			return
		}
		if binding.Scope == nil || !s.fnScope.Encloses(binding.Scope) {
			// Stored outside the function: the argument outlives the call
			s.escape(rhsParam)
			return
		}
		if rhsParam >= 0 {
			s.aliases[binding] = rhsParam
		} else {
			delete(s.aliases, binding)
		}

	case *ast.MemberExpr:
		s.walkExpr(lhs.Object)
		if rhsParam < 0 {
			return
		}
		if s.isThis(lhs.Object) {
			s.sig.ParamStored[rhsParam] = true
			return
		}
		// Stored into some other object; where that object goes is not
		// tracked across the summary, so the argument escapes.
		s.escape(rhsParam)
	}
}

func (s *summarizer) walkReturn(n *ast.ReturnStmt) {
	s.returnCount++
	if n.Result == nil {
		return
	}
	s.walkExpr(n.Result)

	if s.isThis(n.Result) {
		s.thisReturns++
		return
	}
	if i := s.paramOf(n.Result); i >= 0 {
		switch s.paramReturn {
		case -1:
			s.paramReturn = i
		case i:
		default:
			// Ambiguous: both candidates escape through the return
			s.escape(s.paramReturn)
			s.escape(i)
			s.paramReturn = -2
		}
		return
	}

	switch n.Result.(type) {
	case *ast.ObjectLit, *ast.ArrayLit, *ast.NewExpr, *ast.FuncExpr, *ast.BasicLit:
		s.sig.ReturnsFresh = true
	}
}

func (s *summarizer) walkExpr(expr ast.Expression) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.CallExpr:
		s.walkExpr(e.Callee)
		callee := s.calleeSignature(e)
		for i, arg := range e.Args {
			s.walkExpr(arg)
			p := s.paramOf(arg)
			if p < 0 {
				continue
			}
			if callee == nil || callee.escapesParam(i) || callee.storesParam(i) {
				s.escape(p)
			}
		}

	case *ast.NewExpr:
		// Constructor bodies are summarized independently; without the
		// merged table the argument is assumed retained by the instance.
		for _, arg := range e.Args {
			s.walkExpr(arg)
			s.escape(s.paramOf(arg))
		}

	case *ast.FuncExpr:
		// Every parameter referenced inside the closure is in its capture
		// set, so the body itself does not need a walk; walking it would
		// also conflate the closure's returns with the outer function's.
		s.escapeCaptured(e)

	case *ast.MemberExpr:
		s.walkExpr(e.Object)

	case *ast.ObjectLit:
		for i := range e.Props {
			s.walkExpr(e.Props[i].Value)
			// Ownership moves into the literal; whether the literal
			// escapes is the caller's concern, so be conservative.
			s.escape(s.paramOf(e.Props[i].Value))
		}

	case *ast.ArrayLit:
		for _, elem := range e.Elems {
			s.walkExpr(elem)
			s.escape(s.paramOf(elem))
		}
	}
}

// calleeSignature resolves a call's target against the configured table.
// Only global names are consultable during derivation.
func (s *summarizer) calleeSignature(call *ast.CallExpr) *Signature {
	ident, ok := call.Callee.(*ast.Ident)
	if !ok {
		return nil
	}
	binding, ok := s.info.Refs[ident]
	if !ok || binding.Kind != scopes.BindingGlobal {
		return nil
	}
	sig, ok := s.table.Lookup(ident.Name)
	if !ok || !sig.Known {
		return nil
	}
	return sig
}

// escapeCaptured marks every parameter captured by a nested closure as
// escaping, and remembers when the closure captures the receiver. The
// closure's lifetime is not resolvable from inside a summary.
func (s *summarizer) escapeCaptured(fn *ast.FuncExpr) {
	for _, binding := range s.info.Captures[fn] {
		if binding.Kind == scopes.BindingThis {
			s.thisCaptured = true
			continue
		}
		if i, ok := s.aliases[binding]; ok {
			s.escape(i)
		}
	}
}

// escapeReferenced conservatively escapes every parameter mentioned anywhere
// under the given subtree.
func (s *summarizer) escapeReferenced(node ast.Node) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ast.Block:
		for _, child := range n.Nodes {
			s.escapeReferenced(child)
		}
	case *ast.VarDecl:
		s.escapeReferenced(n.Value)
	case *ast.FuncDecl:
		s.escapeReferenced(n.Body)
	case *ast.AssignStmt:
		s.escapeReferenced(n.Lhs)
		s.escapeReferenced(n.Rhs)
	case *ast.ReturnStmt:
		s.escapeReferenced(n.Result)
	case *ast.ExprStmt:
		s.escapeReferenced(n.X)
	case *ast.IfStmt:
		s.escapeReferenced(n.Cond)
		s.escapeReferenced(n.Body)
		s.escapeReferenced(n.Else)
	case *ast.WhileStmt:
		s.escapeReferenced(n.Cond)
		s.escapeReferenced(n.Body)
	case *ast.Ident:
		s.escape(s.paramOf(n))
	case *ast.MemberExpr:
		s.escapeReferenced(n.Object)
	case *ast.CallExpr:
		s.escapeReferenced(n.Callee)
		for _, arg := range n.Args {
			s.escapeReferenced(arg)
		}
	case *ast.NewExpr:
		s.escapeReferenced(n.Callee)
		for _, arg := range n.Args {
			s.escapeReferenced(arg)
		}
	case *ast.FuncExpr:
		s.escapeReferenced(n.Body)
	case *ast.ObjectLit:
		for i := range n.Props {
			s.escapeReferenced(n.Props[i].Value)
		}
	case *ast.ArrayLit:
		for _, elem := range n.Elems {
			s.escapeReferenced(elem)
		}
	}
}

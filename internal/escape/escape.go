package escape

import (
	"fmt"

	"github.com/indutny/escape.js/colors"
	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
	"github.com/indutny/escape.js/internal/semantics/scopes"
	"github.com/indutny/escape.js/internal/source"
)

// useRecord remembers one read or write of a heap value through a binding.
// Records are checked retroactively once every escape fact is known, so a
// use that precedes a later-discovered escape is judged correctly.
type useRecord struct {
	value  *Value
	seq    int
	refSeq int // statement at which the binding began aliasing the value
	loc    *source.Location
	name   string
}

// callSite remembers one invocation of a closure value. If the closure is
// later found to escape, every recorded call becomes an error.
type callSite struct {
	seq int
	loc *source.Location
}

type returnCtx struct {
	inline bool
	caller *scopes.Scope
	result *Value
}

// Analyzer runs the escape propagation over a resolved program.
type Analyzer struct {
	prog  *ast.Program
	info  *scopes.Info
	table *SignatureTable
	bag   *diagnostics.DiagnosticBag
	debug bool

	seq     int
	nextID  int
	values  []*Value
	scope   *scopes.Scope
	returns []*returnCtx

	bindingVals map[*scopes.Binding]*Value
	bindingSeq  map[*scopes.Binding]int

	uses         []useRecord
	closureCalls map[*Value][]callSite
	callMemo     map[*Value]map[string]*Value

	classes    map[*scopes.Binding]*ast.ClassDecl
	methodSigs map[*ast.MethodDecl]*Signature

	allocOrder map[*scopes.Scope][]*Value

	worklist        []*Value
	escapedClosures map[*Value]bool
	escapedList     []*Value
	inlineStack     []*Value
}

func newAnalyzer(prog *ast.Program, info *scopes.Info, table *SignatureTable, bag *diagnostics.DiagnosticBag, debug bool) *Analyzer {
	return &Analyzer{
		prog:            prog,
		info:            info,
		table:           table,
		bag:             bag,
		debug:           debug,
		bindingVals:     make(map[*scopes.Binding]*Value),
		bindingSeq:      make(map[*scopes.Binding]int),
		closureCalls:    make(map[*Value][]callSite),
		callMemo:        make(map[*Value]map[string]*Value),
		classes:         make(map[*scopes.Binding]*ast.ClassDecl),
		allocOrder:      make(map[*scopes.Scope][]*Value),
		escapedClosures: make(map[*Value]bool),
	}
}

func (a *Analyzer) debugf(format string, args ...any) {
	if a.debug {
		colors.GREY.Printf("[escape] "+format+"\n", args...)
	}
}

func (a *Analyzer) nextSeq() int {
	a.seq++
	return a.seq
}

func (a *Analyzer) newValue(kind ValueKind, alloc ast.Node) *Value {
	v := &Value{ID: a.nextID, Kind: kind, Alloc: alloc, Owner: a.scope}
	a.nextID++
	a.values = append(a.values, v)
	a.addToScopeOrder(a.scope, v)
	return v
}

func (a *Analyzer) addToScopeOrder(scope *scopes.Scope, v *Value) {
	if scope == nil {
		return
	}
	for _, existing := range a.allocOrder[scope] {
		if existing == v {
			return
		}
	}
	a.allocOrder[scope] = append(a.allocOrder[scope], v)
}

func (a *Analyzer) bind(binding *scopes.Binding, v *Value) {
	if binding == nil {
		return
	}
	a.bindingVals[binding] = v
	a.bindingSeq[binding] = a.seq
}

func (a *Analyzer) recordUse(binding *scopes.Binding, v *Value, loc *source.Location) {
	if v == nil {
		return
	}
	a.uses = append(a.uses, useRecord{
		value:  v,
		seq:    a.seq,
		refSeq: a.bindingSeq[binding],
		loc:    loc,
		name:   binding.Name,
	})
}

// addEscape records the edge and flips the status. The transition is
// monotonic; closures are queued for capture propagation exactly once.
func (a *Analyzer) addEscape(v *Value, mech Mechanism, seq int, loc *source.Location, destScope *scopes.Scope, destValue *Value) {
	v.Edges = append(v.Edges, EscapeEdge{Mechanism: mech, Seq: seq, Loc: loc, DestScope: destScope, DestValue: destValue})
	v.Status = Escaped
	a.debugf("%s escapes via %s at seq %d", v, mech, seq)
	if v.Kind == ClosureValue && !a.escapedClosures[v] {
		a.escapedClosures[v] = true
		a.escapedList = append(a.escapedList, v)
		a.worklist = append(a.worklist, v)
	}
}

// detachOwner removes v from its owning composite value, if any, marking
// that edge transferred so the parent's free skips it.
func (a *Analyzer) detachOwner(v *Value) {
	if v.OwnerValue == nil {
		return
	}
	if edge := v.OwnerValue.ownEdge(v); edge != nil {
		edge.Transferred = true
		v.OwnerValue.Partial = true
	}
	v.OwnerValue = nil
}

func (a *Analyzer) escapeExternal(v *Value, mech Mechanism, loc *source.Location) {
	a.escapeExternalAt(v, mech, a.seq, loc)
}

func (a *Analyzer) escapeExternalAt(v *Value, mech Mechanism, seq int, loc *source.Location) {
	if v.External {
		return
	}
	a.detachOwner(v)
	v.External = true
	v.Owner = nil
	a.addEscape(v, mech, seq, loc, nil, nil)
}

// escapeToScope moves ownership to a concrete destination scope; the value
// will be freed when that scope exits instead of its allocating scope.
func (a *Analyzer) escapeToScope(v *Value, mech Mechanism, loc *source.Location, dest *scopes.Scope) {
	a.detachOwner(v)
	v.Owner = dest
	a.addToScopeOrder(dest, v)
	a.addEscape(v, mech, a.seq, loc, dest, nil)
}

// escapeToValue moves ownership into a composite value (an escaping receiver
// or an escaping closure's capture set).
func (a *Analyzer) escapeToValue(v *Value, mech Mechanism, seq int, loc *source.Location, parent *Value, name string) {
	if v != parent && !v.External {
		a.detachOwner(v)
		parent.Own = append(parent.Own, OwnEdge{Name: name, Child: v, Seq: seq, Loc: loc})
		v.OwnerValue = parent
	} else if v == parent {
		parent.Own = append(parent.Own, OwnEdge{Name: name, Child: v, Seq: seq, Loc: loc})
	}
	a.addEscape(v, mech, seq, loc, nil, parent)
}

// transferToValue records plain ownership (a property store on a local
// receiver). This is not an escape: the stored value remains local and
// usable; it is simply freed through its new parent.
func (a *Analyzer) transferToValue(v *Value, parent *Value, name string, loc *source.Location) {
	if v != parent {
		a.detachOwner(v)
	}
	parent.Own = append(parent.Own, OwnEdge{Name: name, Child: v, Seq: a.seq, Loc: loc})
	if v != parent {
		v.OwnerValue = parent
	}
}

// flowToScope applies the outward-motion rule: a value flowing to a binding
// in a scope that strictly encloses its owner escapes to that scope. Flow
// within the same scope or inward is plain aliasing.
func (a *Analyzer) flowToScope(v *Value, mech Mechanism, loc *source.Location, dest *scopes.Scope) {
	if v.External || dest == nil {
		return
	}
	root := v.rootOwnerScope()
	if root == nil || dest == root || root.Encloses(dest) {
		return
	}
	a.escapeToScope(v, mech, loc, dest)
}

// --- statement walking ---

func (a *Analyzer) walkTop() {
	a.scope = a.info.Root
	for _, node := range a.prog.Nodes {
		if a.info.Failed[node] {
			continue
		}
		switch node.(type) {
		case *ast.FuncDecl, *ast.ClassDecl:
			// Bodies are analyzed as standalone invocations below
			continue
		}
		a.walkStmt(node)
	}

	for _, node := range a.prog.Nodes {
		if a.info.Failed[node] {
			continue
		}
		switch n := node.(type) {
		case *ast.FuncDecl:
			a.walkFunctionBody(n, n.Params, n.Body)
		case *ast.ClassDecl:
			for _, method := range n.Methods {
				a.walkFunctionBody(method, method.Params, method.Body)
			}
		}
	}
}

// walkFunctionBody analyzes a declared function or method as one generic
// invocation: parameters stand in for caller-owned values and returned
// values pass out of the analyzed region.
func (a *Analyzer) walkFunctionBody(decl ast.Node, params []*ast.Ident, body *ast.Block) {
	scope, ok := a.info.Scopes[decl]
	if !ok {
		return
	}
	prev := a.scope
	a.scope = scope
	a.seq = a.nextSeq()

	if this, ok := scope.GetBinding("this"); ok {
		pv := a.newValue(ParamValue, nil)
		a.bind(this, pv)
	}
	for _, param := range params {
		binding, ok := scope.GetBinding(param.Name)
		if !ok {
			continue
		}
		pv := a.newValue(ParamValue, param)
		a.bind(binding, pv)
	}

	a.returns = append(a.returns, &returnCtx{inline: false})
	a.walkStmt(body)
	a.returns = a.returns[:len(a.returns)-1]
	a.scope = prev
}

func (a *Analyzer) walkStmt(node ast.Node) {
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *ast.Block:
		scope, ok := a.info.Scopes[n]
		if ok {
			prev := a.scope
			a.scope = scope
			for _, child := range n.Nodes {
				a.walkStmt(child)
			}
			a.scope = prev
		} else {
			for _, child := range n.Nodes {
				a.walkStmt(child)
			}
		}

	case *ast.VarDecl:
		a.seq = a.nextSeq()
		v := a.evalExpr(n.Value)
		binding, ok := a.info.Refs[n.Name]
		if !ok {
			return
		}
		a.bind(binding, v)

	case *ast.FuncDecl:
		// Nested declarations are modeled through their derived signature
		// at call sites; the body itself is not re-walked per call.
		return

	case *ast.ClassDecl:
		return

	case *ast.AssignStmt:
		a.walkAssign(n)

	case *ast.ReturnStmt:
		a.walkReturn(n)

	case *ast.ExprStmt:
		a.seq = a.nextSeq()
		if call, ok := n.X.(*ast.CallExpr); ok {
			a.evalCall(call, false)
			return
		}
		a.evalExpr(n.X)

	case *ast.IfStmt:
		a.seq = a.nextSeq()
		a.evalExpr(n.Cond)
		// Both branches may run: their effects apply cumulatively,
		// which over-approximates but never misses an escape.
		a.walkStmt(n.Body)
		a.walkStmt(n.Else)

	case *ast.WhileStmt:
		a.seq = a.nextSeq()
		a.evalExpr(n.Cond)
		a.walkStmt(n.Body)
	}
}

func (a *Analyzer) walkAssign(n *ast.AssignStmt) {
	a.seq = a.nextSeq()

	switch lhs := n.Lhs.(type) {
	case *ast.Ident:
		v := a.evalExpr(n.Rhs)
		binding, ok := a.info.Refs[lhs]
		if !ok {
			return
		}
		if binding.Kind == scopes.BindingGlobal {
			if v != nil {
				a.escapeExternal(v, MechOuterAssign, n.Loc())
			}
			return
		}
		if v != nil {
			a.flowToScope(v, MechOuterAssign, n.Loc(), binding.Scope)
		}
		a.bind(binding, v)

	case *ast.MemberExpr:
		rv := a.evalExpr(lhs.Object)
		v := a.evalExpr(n.Rhs)
		if v == nil {
			return
		}
		if rv == nil {
			// Receiver not tracked: assume the store leaks the value
			a.escapeExternal(v, MechPropertyAssign, n.Loc())
			return
		}
		if rv.External {
			a.escapeExternal(v, MechPropertyAssign, n.Loc())
			return
		}
		if rv.Status == Escaped {
			// Escape is transitive through storage on escaping receivers
			a.escapeToValue(v, MechPropertyAssign, a.seq, n.Loc(), rv, lhs.Property)
			return
		}

		oldRoot := v.rootOwnerScope()
		a.transferToValue(v, rv, lhs.Property, n.Loc())
		if v == rv {
			return
		}
		newRoot := rv.rootOwnerScope()
		if newRoot != nil && oldRoot != nil && newRoot != oldRoot && newRoot.Encloses(oldRoot) {
			// Receiver lives in an enclosing scope: the value moved outward
			a.addEscape(v, MechPropertyAssign, a.seq, n.Loc(), newRoot, rv)
		}
	}
}

func (a *Analyzer) walkReturn(n *ast.ReturnStmt) {
	a.seq = a.nextSeq()
	var v *Value
	if n.Result != nil {
		v = a.evalExpr(n.Result)
	}
	if v == nil {
		return
	}

	if len(a.returns) == 0 {
		a.escapeExternal(v, MechReturn, n.Loc())
		return
	}
	ctx := a.returns[len(a.returns)-1]
	if !ctx.inline {
		// Returning from an analyzed function body: responsibility for the
		// value transfers to the unknown caller
		if !v.External {
			a.escapeExternal(v, MechReturn, n.Loc())
		}
		return
	}
	if ctx.result == nil {
		ctx.result = v
	}
	a.flowToScope(v, MechReturn, n.Loc(), ctx.caller)
}

// --- expression evaluation ---

// evalExpr computes the heap value an expression denotes, or nil for
// expressions that never allocate (numbers, booleans, null, untracked reads).
func (a *Analyzer) evalExpr(expr ast.Expression) *Value {
	if expr == nil {
		return nil
	}

	switch e := expr.(type) {
	case *ast.Ident:
		binding, ok := a.info.Refs[e]
		if !ok {
			return nil
		}
		v := a.bindingVals[binding]
		a.recordUse(binding, v, e.Loc())
		return v

	case *ast.ThisExpr:
		binding, ok := a.info.ThisRefs[e]
		if !ok {
			return nil
		}
		v := a.bindingVals[binding]
		a.recordUse(binding, v, e.Loc())
		return v

	case *ast.BasicLit:
		if e.Kind == ast.StringLit {
			return a.newValue(StringValue, e)
		}
		return nil

	case *ast.ObjectLit:
		v := a.newValue(ObjectValue, e)
		for i := range e.Props {
			prop := &e.Props[i]
			pv := a.evalExpr(prop.Value)
			if pv != nil {
				a.transferToValue(pv, v, prop.Key, &prop.Location)
			}
		}
		return v

	case *ast.ArrayLit:
		v := a.newValue(ArrayValue, e)
		for i, elem := range e.Elems {
			ev := a.evalExpr(elem)
			if ev != nil {
				a.transferToValue(ev, v, fmt.Sprintf("[%d]", i), elem.Loc())
			}
		}
		return v

	case *ast.FuncExpr:
		v := a.newValue(ClosureValue, e)
		v.Fn = e
		v.Captures = a.info.Captures[e]
		return v

	case *ast.MemberExpr:
		rv := a.evalExpr(e.Object)
		if rv == nil {
			return nil
		}
		return rv.propChild(e.Property)

	case *ast.CallExpr:
		return a.evalCall(e, true)

	case *ast.NewExpr:
		return a.evalNew(e)
	}
	return nil
}

func (a *Analyzer) evalArgs(args []ast.Expression) []*Value {
	vals := make([]*Value, len(args))
	for i, arg := range args {
		vals[i] = a.evalExpr(arg)
	}
	return vals
}

// escapeUnknownArgs applies the conservative rule for calls with no usable
// signature: every heap argument escapes the program.
func (a *Analyzer) escapeUnknownArgs(name string, args []*Value, loc *source.Location) {
	escaped := 0
	for _, v := range args {
		if v == nil || v.External {
			continue
		}
		a.escapeExternal(v, MechArgument, loc)
		escaped++
	}
	if escaped == 0 {
		return
	}
	a.bag.Add(diagnostics.NewWarning(
		fmt.Sprintf("'%s' has no known signature; %d argument(s) conservatively escape", name, escaped)).
		WithCode(diagnostics.WarnUnknownSignatureEscape).
		WithPrimaryLabel(loc, "arguments may be retained by the callee").
		WithHelp(fmt.Sprintf("register a signature for '%s' to enable precise analysis", name)))
}

// applyKnownSig handles arguments of a call through a known signature and
// produces the call's result value.
func (a *Analyzer) applyKnownSig(sig *Signature, call *ast.CallExpr, args []*Value, receiver *Value) *Value {
	for i, v := range args {
		if v == nil || v.External {
			continue
		}
		if receiver != nil && sig.storesParam(i) {
			a.escapeToValue(v, MechArgStored, a.seq, call.Loc(), receiver, sig.Name)
			continue
		}
		if sig.escapesParam(i) || (receiver == nil && sig.storesParam(i)) {
			a.escapeExternal(v, MechArgument, call.Loc())
		}
	}

	if sig.ReturnsParam >= 0 && sig.ReturnsParam < len(args) {
		return args[sig.ReturnsParam]
	}
	if sig.ReturnsFresh {
		return a.newValue(ObjectValue, call)
	}
	return nil
}

func (a *Analyzer) evalCall(call *ast.CallExpr, resultUsed bool) *Value {
	switch callee := call.Callee.(type) {
	case *ast.Ident:
		binding, ok := a.info.Refs[callee]
		if !ok {
			args := a.evalArgs(call.Args)
			a.escapeUnknownArgs(callee.Name, args, call.Loc())
			return nil
		}

		switch binding.Kind {
		case scopes.BindingGlobal, scopes.BindingFunc:
			args := a.evalArgs(call.Args)
			sig, found := a.table.Lookup(callee.Name)
			if !found || !sig.Known {
				a.escapeUnknownArgs(callee.Name, args, call.Loc())
				return nil
			}
			return a.applyKnownSig(sig, call, args, nil)

		default:
			cv := a.evalExpr(callee)
			args := a.evalArgs(call.Args)
			if cv == nil || cv.Kind != ClosureValue {
				a.escapeUnknownArgs(callee.Name, args, call.Loc())
				return nil
			}
			return a.callTransparent(cv, args, call)
		}

	case *ast.MemberExpr:
		return a.evalMethodCall(call, callee, resultUsed)

	case *ast.FuncExpr:
		// Immediately invoked function expression
		cv := a.evalExpr(callee)
		args := a.evalArgs(call.Args)
		return a.callTransparent(cv, args, call)

	default:
		args := a.evalArgs(call.Args)
		a.escapeUnknownArgs("<expression>", args, call.Loc())
		return nil
	}
}

func (a *Analyzer) evalNew(e *ast.NewExpr) *Value {
	ident, _ := e.Callee.(*ast.Ident)
	var class *ast.ClassDecl
	if ident != nil {
		if binding, ok := a.info.Refs[ident]; ok {
			class = a.classes[binding]
		}
	}

	v := a.newValue(InstanceValue, e)
	v.Class = class
	args := a.evalArgs(e.Args)

	if class == nil {
		name := "<constructor>"
		if ident != nil {
			name = ident.Name
		}
		a.escapeUnknownArgs(name, args, e.Loc())
		return v
	}

	ctor := findMethod(class, "constructor")
	if ctor == nil {
		// No constructor retains anything; extra arguments are dropped
		return v
	}
	sig := a.methodSigs[ctor]
	if sig == nil {
		a.escapeUnknownArgs(class.Name.Name, args, e.Loc())
		return v
	}
	a.applyKnownSigNew(sig, e, args, v)
	return v
}

func (a *Analyzer) applyKnownSigNew(sig *Signature, e *ast.NewExpr, args []*Value, receiver *Value) {
	for i, v := range args {
		if v == nil || v.External {
			continue
		}
		if sig.storesParam(i) {
			a.escapeToValue(v, MechArgStored, a.seq, e.Loc(), receiver, sig.Name)
			continue
		}
		if sig.escapesParam(i) {
			a.escapeExternal(v, MechArgument, e.Loc())
		}
	}
}

func (a *Analyzer) evalMethodCall(call *ast.CallExpr, callee *ast.MemberExpr, resultUsed bool) *Value {
	rv := a.evalExpr(callee.Object)
	args := a.evalArgs(call.Args)

	if rv == nil {
		a.escapeUnknownArgs(callee.Property, args, call.Loc())
		return nil
	}

	if rv.Kind == InstanceValue && rv.Class != nil {
		method := findMethod(rv.Class, callee.Property)
		if method == nil {
			a.escapeExternal(rv, MechMethodReceiver, call.Loc())
			a.escapeUnknownArgs(callee.Property, args, call.Loc())
			return nil
		}
		sig := a.methodSigs[method]
		if sig == nil {
			a.escapeExternal(rv, MechMethodReceiver, call.Loc())
			a.escapeUnknownArgs(callee.Property, args, call.Loc())
			return nil
		}

		result := a.applyKnownSig(sig, call, args, rv)

		if sig.ReturnsThis {
			if resultUsed {
				// Chained or re-bound receiver: ownership returns to the
				// caller at this statement, no permanent escape
				return rv
			}
			// Result discarded: the receiver left through the call and
			// nothing recaptured it
			a.escapeExternal(rv, MechMethodReceiver, call.Loc())
			return nil
		}
		if !rv.External {
			a.escapeExternal(rv, MechMethodReceiver, call.Loc())
		}
		return result
	}

	// Plain object: a function stored as a property has no enumerable
	// invocation paths, so it is treated as an unknown signature even when
	// the stored closure was defined locally. The receiver crosses the same
	// boundary as the implicit this argument.
	if !rv.External {
		a.escapeExternal(rv, MechMethodReceiver, call.Loc())
	}
	a.escapeUnknownArgs(callee.Property, args, call.Loc())
	return nil
}

func findMethod(class *ast.ClassDecl, name string) *ast.MethodDecl {
	for _, method := range class.Methods {
		if method.Name.Name == name {
			return method
		}
	}
	return nil
}

func (a *Analyzer) collectClasses() {
	for _, node := range a.prog.Nodes {
		decl, ok := node.(*ast.ClassDecl)
		if !ok || a.info.Failed[node] {
			continue
		}
		if binding, ok := a.info.Refs[decl.Name]; ok {
			a.classes[binding] = decl
		}
	}
}

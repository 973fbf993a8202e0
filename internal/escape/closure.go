package escape

import (
	"fmt"
	"strings"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
)

// A closure that never escapes is transparent: its body is evaluated as if
// inlined at every call site, so captured variables are read and written in
// place and the analysis stays exact. The moment a closure escapes, the
// transparent model collapses: call sites can no longer be enumerated, every
// recorded invocation becomes an error, and the capture set escapes with it.

// callTransparent inlines one invocation of a closure value. Calls with the
// same argument values are merged: the body is walked once and the result
// value is shared, which keeps aliasing through repeated calls exact.
func (a *Analyzer) callTransparent(cv *Value, args []*Value, call *ast.CallExpr) *Value {
	if cv == nil || cv.Fn == nil {
		return nil
	}
	a.closureCalls[cv] = append(a.closureCalls[cv], callSite{seq: a.seq, loc: call.Loc()})

	for _, active := range a.inlineStack {
		if active == cv {
			// Self-recursive closure: cannot be inlined finitely, fall back
			// to the unknown-signature treatment for its arguments
			name := closureName(cv)
			a.escapeUnknownArgs(name, args, call.Loc())
			return nil
		}
	}

	key := memoKey(args)
	if memo, ok := a.callMemo[cv]; ok {
		if result, hit := memo[key]; hit {
			return result
		}
	}

	fnScope, ok := a.info.Scopes[cv.Fn]
	if !ok {
		return nil
	}

	caller := a.scope
	a.inlineStack = append(a.inlineStack, cv)
	a.scope = fnScope

	for i, param := range cv.Fn.Params {
		binding, ok := fnScope.GetBinding(param.Name)
		if !ok {
			continue
		}
		if i < len(args) {
			a.bind(binding, args[i])
		} else {
			a.bind(binding, nil)
		}
	}

	ctx := &returnCtx{inline: true, caller: caller}
	a.returns = append(a.returns, ctx)
	a.walkStmt(cv.Fn.Body)
	a.returns = a.returns[:len(a.returns)-1]

	a.scope = caller
	a.inlineStack = a.inlineStack[:len(a.inlineStack)-1]

	if a.callMemo[cv] == nil {
		a.callMemo[cv] = make(map[string]*Value)
	}
	a.callMemo[cv][key] = ctx.result
	return ctx.result
}

func memoKey(args []*Value) string {
	var sb strings.Builder
	for i, v := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		if v == nil {
			sb.WriteByte('_')
		} else {
			fmt.Fprintf(&sb, "%d", v.ID)
		}
	}
	return sb.String()
}

func closureName(cv *Value) string {
	if cv.Fn != nil && cv.Fn.Name != "" {
		return cv.Fn.Name
	}
	return "<closure>"
}

// resolveClosureEscapes runs the capture fixed point. When a closure escapes,
// every captured value escapes no earlier than the closure did; a captured
// closure escaping in turn re-enters the worklist, so the loop terminates once
// the escaped set stops growing. Statuses only move Local to Escaped, so the
// fixed point is reached in at most one pass per closure.
func (a *Analyzer) resolveClosureEscapes() {
	for len(a.worklist) > 0 {
		cv := a.worklist[0]
		a.worklist = a.worklist[1:]

		seq := cv.EscapeSeq()
		loc := cv.EscapeSite()
		a.debugf("propagating captures of %s (escaped at seq %d)", cv, seq)

		for _, binding := range cv.Captures {
			v := a.bindingVals[binding]
			if v == nil || v == cv {
				continue
			}
			if cv.External {
				// Ownership edge for cycle detection even when the capture
				// leaves the program with the closure
				cv.Own = append(cv.Own, OwnEdge{Name: binding.Name, Child: v, Seq: seq, Loc: loc})
				a.escapeExternalAt(v, MechClosureCapture, seq, loc)
				continue
			}
			a.escapeToValue(v, MechClosureCapture, seq, loc, cv, binding.Name)
		}
	}
}

// reportEscapedClosureCalls flags every recorded invocation of a closure that
// was later found to escape. The call may precede the escape in source order;
// transparency was assumed when it was inlined, and that assumption is now
// known to be wrong, so the invocation is rejected retroactively.
func (a *Analyzer) reportEscapedClosureCalls() {
	for _, cv := range a.escapedList {
		calls := a.closureCalls[cv]
		if len(calls) == 0 {
			continue
		}
		site := cv.EscapeSite()
		for _, call := range calls {
			diag := diagnostics.NewError(
				fmt.Sprintf("cannot invoke '%s': the closure escapes its defining scope", closureName(cv))).
				WithCode(diagnostics.ErrEscapedClosureInvocation).
				WithPrimaryLabel(call.loc, "invoked here")
			if site != nil {
				diag = diag.WithSecondaryLabel(site, "closure escapes here")
			}
			diag = diag.WithNote("escaping closures have unknowable call sites; their invocations cannot be analyzed").
				WithHelp("keep the closure local, or move the called logic into a declared function")
			a.bag.Add(diag)
		}
	}
}

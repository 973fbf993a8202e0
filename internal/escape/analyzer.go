package escape

import (
	"fmt"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
	"github.com/indutny/escape.js/internal/semantics/scopes"
)

// Options configures a single analysis run
type Options struct {
	Debug bool
}

// Result carries everything a code generator needs: the escape status of
// every allocation, the per-scope deallocation plan, and the value graph.
// The plan is nil when any error diagnostic was reported; a partial plan
// would make the emitted frees unsound.
type Result struct {
	Program *ast.Program
	Info    *scopes.Info
	Table   *SignatureTable
	Values  []*Value

	Annotations map[ast.Node]Status
	Plan        *Plan
}

// AnnotationTag renders the escape annotation for one node, for attaching
// to the serialized tree. Non-allocation nodes yield an empty tag.
func (r *Result) AnnotationTag(node ast.Node) string {
	if status, ok := r.Annotations[node]; ok {
		return status.String()
	}
	return ""
}

// Analyze runs the full pipeline over a decoded program: scope and binding
// resolution, parallel signature derivation, escape propagation, the closure
// capture fixed point, retroactive use checking, and cycle detection.
// Diagnostics accumulate in the bag; the caller decides how to emit them.
func Analyze(prog *ast.Program, table *SignatureTable, bag *diagnostics.DiagnosticBag, opts Options) *Result {
	if table == nil {
		table = DefaultTable()
	}

	info := scopes.Build(prog, table.Names(), bag)
	methodSigs := deriveSignatures(prog, info, table)

	a := newAnalyzer(prog, info, table, bag, opts.Debug)
	a.methodSigs = methodSigs
	a.collectClasses()

	a.walkTop()
	a.resolveClosureEscapes()
	a.reportEscapedClosureCalls()
	a.reportUseAfterEscape()
	a.detectCycles()

	result := &Result{
		Program:     prog,
		Info:        info,
		Table:       table,
		Values:      a.values,
		Annotations: a.annotations(),
	}
	if !bag.HasErrors() {
		result.Plan = a.buildPlan()
	}
	return result
}

// annotations collapses the value set to a per-allocation-site status. A
// site whose value escaped on any path is annotated Escaped.
func (a *Analyzer) annotations() map[ast.Node]Status {
	out := make(map[ast.Node]Status)
	for _, v := range a.values {
		if v.Alloc == nil || v.Kind == ParamValue {
			continue
		}
		if current, ok := out[v.Alloc]; !ok || v.Status > current {
			out[v.Alloc] = v.Status
		}
	}
	return out
}

// reportUseAfterEscape checks every recorded use against the final escape
// facts. A use is an error when the value escaped at an earlier statement
// through a binding established before the escape; the binding that received
// the value at the escape statement itself remains valid.
func (a *Analyzer) reportUseAfterEscape() {
	type useKey struct {
		value *Value
		seq   int
	}
	seen := make(map[useKey]bool)

	for _, use := range a.uses {
		edge := use.value.earliestEdge()
		if edge == nil || use.seq <= edge.Seq || use.refSeq >= edge.Seq {
			continue
		}
		key := useKey{use.value, use.seq}
		if seen[key] {
			continue
		}
		seen[key] = true

		diag := diagnostics.NewError(
			fmt.Sprintf("'%s' refers to a value that already escaped", use.name)).
			WithCode(diagnostics.ErrUseAfterEscape).
			WithPrimaryLabel(use.loc, "used here after the escape")
		if edge.Loc != nil {
			diag = diag.WithSecondaryLabel(edge.Loc, fmt.Sprintf("value escaped here (%s)", edge.Mechanism))
		}
		diag = diag.WithNote("once a value escapes, bindings established before the escape no longer guarantee its lifetime").
			WithHelp("re-establish the binding from the escape destination, or keep the value local")
		a.bag.Add(diag)
	}
}

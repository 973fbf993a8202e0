package escape

import (
	"testing"

	"github.com/indutny/escape.js/internal/diagnostics"
)

func TestAliasingWithoutEscape(t *testing.T) {
	b := &progBuilder{}
	// let a = {}; let b = a; log(a); log(b);
	prog := b.prog(
		b.let("a", b.obj()),
		b.let("b", b.id("a")),
		b.exprStmt(b.callName("log", b.id("a"))),
		b.exprStmt(b.callName("log", b.id("b"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if bag.WarningCount() != 0 {
		t.Errorf("expected no warnings, got %d", bag.WarningCount())
	}
	if result.Plan == nil {
		t.Fatal("expected a deallocation plan")
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Errorf("two aliases of one value must free once, got %d frees", got)
	}
	checkStatusInvariant(t, result)
}

func TestUseAfterEscape(t *testing.T) {
	b := &progBuilder{}
	// let value = {}; escape(value); log(value);
	prog := b.prog(
		b.let("value", b.obj()),
		b.exprStmt(b.callName("escape", b.id("value"))),
		b.exprStmt(b.callName("log", b.id("value"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("expected exactly one use-after-escape error, got %d", got)
	}
	if got := bag.CountCode(diagnostics.WarnUnknownSignatureEscape); got != 1 {
		t.Errorf("expected one unknown-signature warning, got %d", got)
	}
	if result.Plan != nil {
		t.Error("plan must be withheld when errors are present")
	}
	checkStatusInvariant(t, result)
}

func TestEscapeAtOwnStatementIsNotAUse(t *testing.T) {
	b := &progBuilder{}
	// The read that feeds the escaping call happens at the escape statement
	// itself and must not be flagged.
	prog := b.prog(
		b.let("value", b.obj()),
		b.exprStmt(b.callName("escape", b.id("value"))),
	)

	_, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 0 {
		t.Errorf("expected no use-after-escape errors, got %d", got)
	}
}

func TestTransparentClosureCall(t *testing.T) {
	b := &progBuilder{}
	// let x = {}; let get = function() { return x; }; let y = get(); log(y);
	prog := b.prog(
		b.let("x", b.obj()),
		b.let("get", b.closure(nil, b.ret(b.id("x")))),
		b.let("y", b.callName("get")),
		b.exprStmt(b.callName("log", b.id("y"))),
		b.exprStmt(b.callName("log", b.id("x"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if result.Plan == nil {
		t.Fatal("expected a deallocation plan")
	}
	// The object and the closure itself, nothing else
	if got := result.Plan.TotalFrees(); got != 2 {
		t.Errorf("expected 2 frees, got %d", got)
	}
	checkStatusInvariant(t, result)
}

func TestClosureResultStaleAfterCaptureEscapes(t *testing.T) {
	b := &progBuilder{}
	// let y = {}; let get = function() { return y; };
	// let x = get(); escape(y); log(x);
	prog := b.prog(
		b.let("y", b.obj()),
		b.let("get", b.closure(nil, b.ret(b.id("y")))),
		b.let("x", b.callName("get")),
		b.exprStmt(b.callName("escape", b.id("y"))),
		b.exprStmt(b.callName("log", b.id("x"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("x aliases the escaped value; expected 1 error, got %d", got)
	}
	if result.Plan != nil {
		t.Error("plan must be withheld when errors are present")
	}
	checkStatusInvariant(t, result)
}

func TestRepeatedTransparentCallsShareResult(t *testing.T) {
	b := &progBuilder{}
	// Two calls with identical static inputs return the same value
	prog := b.prog(
		b.let("x", b.obj()),
		b.let("get", b.closure(nil, b.ret(b.id("x")))),
		b.let("a", b.callName("get")),
		b.let("b", b.callName("get")),
		b.exprStmt(b.callName("log", b.id("a"), b.id("b"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 2 {
		t.Errorf("expected 2 frees (object and closure), got %d", got)
	}
}

func TestEscapedClosureInvocation(t *testing.T) {
	b := &progBuilder{}
	// let x = {}; let g = function() { return x; }; g(); escape(g);
	prog := b.prog(
		b.let("x", b.obj()),
		b.let("g", b.closure(nil, b.ret(b.id("x")))),
		b.exprStmt(b.callName("g")),
		b.exprStmt(b.callName("escape", b.id("g"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrEscapedClosureInvocation); got != 1 {
		t.Errorf("the earlier call is retroactively invalid; expected 1 error, got %d", got)
	}
	if result.Plan != nil {
		t.Error("plan must be withheld when errors are present")
	}
	checkStatusInvariant(t, result)
}

func TestEscapingClosureDragsCaptures(t *testing.T) {
	b := &progBuilder{}
	// let x = {}; let f = function() { return x; }; escape(f); log(x);
	prog := b.prog(
		b.let("x", b.obj()),
		b.let("f", b.closure(nil, b.ret(b.id("x")))),
		b.exprStmt(b.callName("escape", b.id("f"))),
		b.exprStmt(b.callName("log", b.id("x"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("captured value escapes with the closure; expected 1 error, got %d", got)
	}
	if got := bag.CountCode(diagnostics.ErrEscapedClosureInvocation); got != 0 {
		t.Errorf("closure was never invoked; expected no invocation errors, got %d", got)
	}
	checkStatusInvariant(t, result)
}

func TestCircularOwnership(t *testing.T) {
	b := &progBuilder{}
	// let a = {}; let b = {}; a.x = b; b.y = a;
	prog := b.prog(
		b.let("a", b.obj()),
		b.let("b", b.obj()),
		b.assign(b.member(b.id("a"), "x"), b.id("b")),
		b.assign(b.member(b.id("b"), "y"), b.id("a")),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrCircularReference); got != 1 {
		t.Errorf("expected exactly one circular-reference error, got %d", got)
	}
	if result.Plan != nil {
		t.Error("plan must be withheld when errors are present")
	}
}

func TestSelfReferenceIsACycle(t *testing.T) {
	b := &progBuilder{}
	// let a = {}; a.self = a;
	prog := b.prog(
		b.let("a", b.obj()),
		b.assign(b.member(b.id("a"), "self"), b.id("a")),
	)

	_, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrCircularReference); got != 1 {
		t.Errorf("expected exactly one circular-reference error, got %d", got)
	}
}

func TestMethodChainingRebindsReceiver(t *testing.T) {
	b := &progBuilder{}
	// class C { m() { return this; } }
	// let v = new C(); v = v.m(); v = v.m(); log(v);
	prog := b.prog(
		b.class("C", b.method("m", nil, b.ret(b.this()))),
		b.let("v", b.newExpr("C")),
		b.assign(b.id("v"), b.call(b.member(b.id("v"), "m"))),
		b.assign(b.id("v"), b.call(b.member(b.id("v"), "m"))),
		b.exprStmt(b.callName("log", b.id("v"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("re-bound returns-this chain must be clean, got %d errors", bag.ErrorCount())
	}
	if result.Plan == nil {
		t.Fatal("expected a deallocation plan")
	}
	checkStatusInvariant(t, result)
}

func TestDiscardedReturnsThisEscapesReceiver(t *testing.T) {
	b := &progBuilder{}
	// class C { m() { return this; } } let v = new C(); v.m(); log(v);
	prog := b.prog(
		b.class("C", b.method("m", nil, b.ret(b.this()))),
		b.let("v", b.newExpr("C")),
		b.exprStmt(b.call(b.member(b.id("v"), "m"))),
		b.exprStmt(b.callName("log", b.id("v"))),
	)

	_, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("discarded returns-this call escapes the receiver; expected 1 error, got %d", got)
	}
}

func TestPropertyStoredFunctionIsOpaque(t *testing.T) {
	b := &progBuilder{}
	// let o = {}; o.fn = function(p) { return p; }; let x = {}; o.fn(x); log(x);
	prog := b.prog(
		b.let("o", b.obj()),
		b.assign(b.member(b.id("o"), "fn"), b.closure([]string{"p"}, b.ret(b.id("p")))),
		b.let("x", b.obj()),
		b.exprStmt(b.call(b.member(b.id("o"), "fn"), b.id("x"))),
		b.exprStmt(b.callName("log", b.id("x"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.WarnUnknownSignatureEscape); got != 1 {
		t.Errorf("a property-stored function has no usable signature; expected 1 warning, got %d", got)
	}
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("the argument escaped through the opaque call; expected 1 error, got %d", got)
	}
	if result.Plan != nil {
		t.Error("plan must be withheld when errors are present")
	}
	for _, v := range result.Values {
		if v.Kind == ObjectValue && len(v.Own) > 0 {
			if !v.External || len(v.Edges) == 0 || v.Edges[0].Mechanism != MechMethodReceiver {
				t.Errorf("the receiver must escape at the call, got %s with edges %v", v, v.Edges)
			}
		}
	}
	checkStatusInvariant(t, result)
}

func TestThisCapturedByEscapingClosureBlocksChaining(t *testing.T) {
	b := &progBuilder{}
	// class C { m() { let f = function() { return this; }; escape(f); return this; } }
	// let v = new C(); v = v.m(); log(v);
	prog := b.prog(
		b.class("C", b.method("m", nil,
			b.let("f", b.closure(nil, b.ret(b.this()))),
			b.exprStmt(b.callName("escape", b.id("f"))),
			b.ret(b.this()),
		)),
		b.let("v", b.newExpr("C")),
		b.assign(b.id("v"), b.call(b.member(b.id("v"), "m"))),
		b.exprStmt(b.callName("log", b.id("v"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if result.Plan == nil {
		t.Fatal("expected a deallocation plan")
	}
	// The receiver leaks through the escaped closure; the returns-this
	// rebind must not recapture it, so nothing may be scheduled
	if got := result.Plan.TotalFrees(); got != 0 {
		t.Errorf("a receiver retained by an escaped closure must not be freed, got %d frees", got)
	}
	for _, v := range result.Values {
		if v.Kind == InstanceValue && v.Status != Escaped {
			t.Errorf("%s should have escaped through the method call", v)
		}
	}
	checkStatusInvariant(t, result)
}

func TestOuterAssignmentMovesOwnership(t *testing.T) {
	b := &progBuilder{}
	// let outer = null; { let inner = {}; outer = inner; } log(outer);
	prog := b.prog(
		b.let("outer", b.null()),
		b.block(
			b.let("inner", b.obj()),
			b.assign(b.id("outer"), b.id("inner")),
		),
		b.exprStmt(b.callName("log", b.id("outer"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("the destination binding is valid, got %d errors", bag.ErrorCount())
	}
	if result.Plan == nil {
		t.Fatal("expected a deallocation plan")
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Fatalf("expected 1 free, got %d", got)
	}
	// The value is freed at program-scope exit, not at the block's
	entries := result.Plan.For(result.Info.Root)
	if len(entries) != 1 {
		t.Errorf("expected the free at program scope, got %d entries there", len(entries))
	}
	checkStatusInvariant(t, result)
}

func TestStaleInnerAliasAfterOuterAssignment(t *testing.T) {
	b := &progBuilder{}
	// let outer = null;
	// { let inner = {}; outer = inner; log(inner); }
	prog := b.prog(
		b.let("outer", b.null()),
		b.block(
			b.let("inner", b.obj()),
			b.assign(b.id("outer"), b.id("inner")),
			b.exprStmt(b.callName("log", b.id("inner"))),
		),
	)

	_, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("inner alias is stale after the outward move; expected 1 error, got %d", got)
	}
}

func TestReturnEscapesFromDeclaredFunction(t *testing.T) {
	b := &progBuilder{}
	// function make() { let o = {}; return o; }
	prog := b.prog(
		b.fnDecl("make", nil,
			b.let("o", b.obj()),
			b.ret(b.id("o")),
		),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 0 {
		t.Errorf("returned value is caller-owned; expected 0 frees, got %d", got)
	}
	escaped := 0
	for _, status := range result.Annotations {
		if status == Escaped {
			escaped++
		}
	}
	if escaped != 1 {
		t.Errorf("expected exactly one Escaped annotation, got %d", escaped)
	}
	checkStatusInvariant(t, result)
}

func TestConstructorStoresArgument(t *testing.T) {
	b := &progBuilder{}
	// class Box { constructor(v) { this.val = v; } }
	// let data = {}; let box = new Box(data); log(data);
	prog := b.prog(
		b.class("Box", b.method("constructor", []string{"v"},
			b.assign(b.member(b.this(), "val"), b.id("v")),
		)),
		b.let("data", b.obj()),
		b.let("box", b.newExpr("Box", b.id("data"))),
		b.exprStmt(b.callName("log", b.id("data"))),
	)

	_, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.ErrUseAfterEscape); got != 1 {
		t.Errorf("argument stored by the constructor is stale; expected 1 error, got %d", got)
	}
}

func TestAnalysisIsDeterministic(t *testing.T) {
	b := &progBuilder{}
	prog := b.prog(
		b.let("a", b.obj()),
		b.let("f", b.closure(nil, b.ret(b.id("a")))),
		b.let("c", b.callName("f")),
		b.exprStmt(b.callName("log", b.id("c"))),
	)

	// Two runs over the same tree: the analysis must not mutate its input
	run := func() (int, int, int) {
		result, bag := analyze(t, prog)
		frees := 0
		if result.Plan != nil {
			frees = result.Plan.TotalFrees()
		}
		return bag.ErrorCount(), bag.WarningCount(), frees
	}

	e1, w1, f1 := run()
	e2, w2, f2 := run()
	if e1 != e2 || w1 != w2 || f1 != f2 {
		t.Errorf("repeated runs disagree: (%d,%d,%d) vs (%d,%d,%d)", e1, w1, f1, e2, w2, f2)
	}
}

func TestUnknownCallEscapesAllArguments(t *testing.T) {
	b := &progBuilder{}
	prog := b.prog(
		b.let("a", b.obj()),
		b.let("c", b.obj()),
		b.exprStmt(b.callName("escape", b.id("a"), b.id("c"))),
	)

	result, bag := analyze(t, prog)
	if got := bag.CountCode(diagnostics.WarnUnknownSignatureEscape); got != 1 {
		t.Errorf("expected one warning per call site, got %d", got)
	}
	for _, v := range result.Values {
		if v.Kind == ObjectValue && !v.External {
			t.Errorf("%s should have escaped the program", v)
		}
	}
}

func TestStringLiteralAllocates(t *testing.T) {
	b := &progBuilder{}
	prog := b.prog(
		b.let("s", b.str("hello")),
		b.let("n", b.num("42")),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Errorf("only the string allocates; expected 1 free, got %d", got)
	}
}

package escape

import (
	"testing"
)

func TestOwnershipFreesThroughParent(t *testing.T) {
	b := &progBuilder{}
	// let parent = {}; let child = {}; parent.x = child; log(child);
	prog := b.prog(
		b.let("parent", b.obj()),
		b.let("child", b.obj()),
		b.assign(b.member(b.id("parent"), "x"), b.id("child")),
		b.exprStmt(b.callName("log", b.id("child"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("a store on a local receiver is not an escape, got %d errors", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Fatalf("child is freed through parent; expected 1 free, got %d", got)
	}
	entry := result.Plan.Scopes[0].Entries[0]
	if entry.Kind != FullFree {
		t.Errorf("expected a full free, got %s", entry.Kind)
	}
	if len(entry.Value.Own) != 1 || entry.Value.Own[0].Name != "x" {
		t.Errorf("parent should own child through property x, got %v", entry.Value.Own)
	}
	checkStatusInvariant(t, result)
}

func TestPartialFreeAfterSubvalueEscapes(t *testing.T) {
	b := &progBuilder{}
	// let parent = {}; let child = {}; parent.x = child; escape(child);
	prog := b.prog(
		b.let("parent", b.obj()),
		b.let("child", b.obj()),
		b.assign(b.member(b.id("parent"), "x"), b.id("child")),
		b.exprStmt(b.callName("escape", b.id("child"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Fatalf("expected 1 free, got %d", got)
	}
	entry := result.Plan.Scopes[0].Entries[0]
	if entry.Kind != PartialFree {
		t.Fatalf("parent lost a sub-value; expected partial-free, got %s", entry.Kind)
	}
	if len(entry.Props) != 0 {
		t.Errorf("the only property transferred away; expected no freed props, got %v", entry.Props)
	}
	checkStatusInvariant(t, result)
}

func TestArrayElementsOwnedByArray(t *testing.T) {
	b := &progBuilder{}
	// let arr = [{}, {}];
	prog := b.prog(
		b.let("arr", b.arr(b.obj(), b.obj())),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.Plan.TotalFrees(); got != 1 {
		t.Errorf("elements free through the array; expected 1 free, got %d", got)
	}
}

func TestPlanFollowsAllocationOrder(t *testing.T) {
	b := &progBuilder{}
	prog := b.prog(
		b.let("a", b.obj()),
		b.let("c", b.obj()),
		b.let("d", b.obj()),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	entries := result.Plan.For(result.Info.Root)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries at program scope, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Value.ID >= entries[i].Value.ID {
			t.Errorf("entries out of allocation order: %s before %s",
				entries[i-1].Value, entries[i].Value)
		}
	}
}

func TestAnnotationTags(t *testing.T) {
	b := &progBuilder{}
	local := b.obj()
	leaked := b.obj()
	prog := b.prog(
		b.let("a", local),
		b.let("c", leaked),
		b.exprStmt(b.callName("escape", b.id("c"))),
	)

	result, bag := analyze(t, prog)
	if bag.ErrorCount() != 0 {
		t.Fatalf("expected no errors, got %d", bag.ErrorCount())
	}
	if got := result.AnnotationTag(local); got != "Local" {
		t.Errorf("expected Local tag, got %q", got)
	}
	if got := result.AnnotationTag(leaked); got != "Escaped" {
		t.Errorf("expected Escaped tag, got %q", got)
	}
	if got := result.AnnotationTag(prog); got != "" {
		t.Errorf("non-allocation nodes carry no tag, got %q", got)
	}
}

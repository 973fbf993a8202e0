package escape

import (
	"fmt"
	"strings"

	"github.com/indutny/escape.js/internal/semantics/scopes"
)

// FreeKind distinguishes how a value is released at its owning scope's exit
type FreeKind int

const (
	FullFree FreeKind = iota
	PartialFree
)

func (k FreeKind) String() string {
	switch k {
	case FullFree:
		return "free"
	case PartialFree:
		return "partial-free"
	default:
		return "unknown"
	}
}

// PlanEntry schedules one deallocation. For PartialFree, Props lists the
// sub-values still released with the parent; sub-values whose ownership
// transferred elsewhere are excluded.
type PlanEntry struct {
	Value *Value
	Kind  FreeKind
	Props []string
}

// ScopePlan lists the deallocations emitted when one scope exits, in the
// allocation order of the values it owns.
type ScopePlan struct {
	Scope   *scopes.Scope
	Entries []PlanEntry
}

// Plan is the per-scope deallocation schedule. It exists only for programs
// with no errors; an unsound plan is never produced.
type Plan struct {
	Scopes []ScopePlan
	index  map[*scopes.Scope]int
}

// For returns the entries for one scope, or nil if it frees nothing.
func (p *Plan) For(scope *scopes.Scope) []PlanEntry {
	if i, ok := p.index[scope]; ok {
		return p.Scopes[i].Entries
	}
	return nil
}

// TotalFrees counts scheduled deallocations across all scopes.
func (p *Plan) TotalFrees() int {
	total := 0
	for _, sp := range p.Scopes {
		total += len(sp.Entries)
	}
	return total
}

func (p *Plan) String() string {
	var sb strings.Builder
	for _, sp := range p.Scopes {
		fmt.Fprintf(&sb, "%s:\n", sp.Scope)
		for _, entry := range sp.Entries {
			fmt.Fprintf(&sb, "  %s %s", entry.Kind, entry.Value)
			if entry.Value.Alloc != nil {
				fmt.Fprintf(&sb, " allocated at %s", entry.Value.Alloc.Loc())
			}
			if entry.Kind == PartialFree {
				fmt.Fprintf(&sb, " props [%s]", strings.Join(entry.Props, ", "))
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// buildPlan assembles the schedule: each scope frees the values it owns at
// exit, in allocation order. Values owned by another value are freed through
// their parent; external values are freed by whoever received them.
func (a *Analyzer) buildPlan() *Plan {
	plan := &Plan{index: make(map[*scopes.Scope]int)}

	var visit func(scope *scopes.Scope)
	visit = func(scope *scopes.Scope) {
		var entries []PlanEntry
		for _, v := range a.allocOrder[scope] {
			if v.Owner != scope || v.External || v.OwnerValue != nil || v.Kind == ParamValue {
				continue
			}
			entries = append(entries, a.planEntry(v))
		}
		if len(entries) > 0 {
			plan.index[scope] = len(plan.Scopes)
			plan.Scopes = append(plan.Scopes, ScopePlan{Scope: scope, Entries: entries})
		}
		for _, child := range scope.Children {
			visit(child)
		}
	}
	visit(a.info.Root)

	return plan
}

func (a *Analyzer) planEntry(v *Value) PlanEntry {
	if !v.Partial {
		return PlanEntry{Value: v, Kind: FullFree}
	}
	var props []string
	for i := range v.Own {
		if v.Own[i].Transferred {
			continue
		}
		props = append(props, v.Own[i].Name)
	}
	return PlanEntry{Value: v, Kind: PartialFree, Props: props}
}

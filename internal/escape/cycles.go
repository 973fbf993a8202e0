package escape

import (
	"github.com/indutny/escape.js/internal/diagnostics"
)

// detectCycles verifies that the ownership graph is acyclic. A value inside
// an ownership cycle can never be freed deterministically, so any cycle,
// however indirect, is rejected. The edge created last is the one that
// closed the cycle; the diagnostic points at its statement.
func (a *Analyzer) detectCycles() {
	const (
		white = iota
		grey
		black
	)
	color := make(map[*Value]int)
	reported := make(map[*OwnEdge]bool)

	var path []*Value
	var trail []*OwnEdge

	var visit func(v *Value)
	visit = func(v *Value) {
		color[v] = grey
		path = append(path, v)

		for i := range v.Own {
			edge := &v.Own[i]
			if edge.Transferred {
				continue
			}
			child := edge.Child
			switch color[child] {
			case white:
				trail = append(trail, edge)
				visit(child)
				trail = trail[:len(trail)-1]
			case grey:
				a.reportCycle(path, trail, edge, child, reported)
			}
		}

		path = path[:len(path)-1]
		color[v] = black
	}

	for _, v := range a.values {
		if color[v] == white {
			visit(v)
		}
	}
}

func (a *Analyzer) reportCycle(path []*Value, trail []*OwnEdge, back *OwnEdge, entry *Value, reported map[*OwnEdge]bool) {
	start := -1
	for i, v := range path {
		if v == entry {
			start = i
			break
		}
	}
	if start < 0 {
		return
	}

	// Cycle edges: the trail from the entry value down, plus the back edge
	edges := append([]*OwnEdge{}, trail[start:]...)
	edges = append(edges, back)

	closing := edges[0]
	for _, edge := range edges[1:] {
		if edge.Seq > closing.Seq {
			closing = edge
		}
	}
	if reported[closing] {
		return
	}
	reported[closing] = true

	diag := diagnostics.NewError("circular ownership between values").
		WithCode(diagnostics.ErrCircularReference).
		WithPrimaryLabel(closing.Loc, "this assignment completes an ownership cycle")
	for _, edge := range edges {
		if edge == closing || edge.Loc == nil {
			continue
		}
		diag = diag.WithSecondaryLabel(edge.Loc, "part of the cycle")
	}
	diag = diag.WithNote("values in an ownership cycle cannot be freed deterministically").
		WithHelp("break the cycle by clearing one of the references before it is stored")
	a.bag.Add(diag)
}

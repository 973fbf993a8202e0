package escape

import (
	"fmt"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/semantics/scopes"
	"github.com/indutny/escape.js/internal/source"
)

// Status is the escape status of a heap value. The transition Local->Escaped
// is monotonic; a value never un-escapes.
type Status int

const (
	Local Status = iota
	Escaped
)

func (s Status) String() string {
	switch s {
	case Local:
		return "Local"
	case Escaped:
		return "Escaped"
	default:
		return "unknown"
	}
}

// Mechanism categorizes how a value escaped
type Mechanism int

const (
	MechReturn Mechanism = iota
	MechOuterAssign
	MechPropertyAssign
	MechArgument
	MechArgStored
	MechMethodReceiver
	MechClosureCapture
)

func (m Mechanism) String() string {
	switch m {
	case MechReturn:
		return "return"
	case MechOuterAssign:
		return "outer-assignment"
	case MechPropertyAssign:
		return "property-assignment-on-escaping-receiver"
	case MechArgument:
		return "argument-to-unknown-function"
	case MechArgStored:
		return "argument-stored-as-property"
	case MechMethodReceiver:
		return "method-receiver-escape"
	case MechClosureCapture:
		return "captured-by-escaping-closure"
	default:
		return "unknown"
	}
}

// ValueKind categorizes heap values by their allocation expression
type ValueKind int

const (
	ObjectValue ValueKind = iota
	ArrayValue
	ClosureValue
	StringValue
	InstanceValue
	ParamValue // caller-owned value standing in for a parameter
)

func (k ValueKind) String() string {
	switch k {
	case ObjectValue:
		return "object"
	case ArrayValue:
		return "array"
	case ClosureValue:
		return "closure"
	case StringValue:
		return "string"
	case InstanceValue:
		return "instance"
	case ParamValue:
		return "parameter"
	default:
		return "unknown"
	}
}

// EscapeEdge is a directed fact: the value escapes via Mechanism at the
// statement with the given sequence number, to DestScope (nil when the
// destination is outside the analyzed program).
type EscapeEdge struct {
	Mechanism Mechanism
	Seq       int
	Loc       *source.Location
	DestScope *scopes.Scope
	DestValue *Value
}

// OwnEdge is an ownership edge from a composite value to a sub-value
// (a property, an array element, or a closure capture).
type OwnEdge struct {
	Name        string
	Child       *Value
	Seq         int
	Loc         *source.Location
	Transferred bool // child escaped elsewhere; skipped when the parent is freed
}

// Value is an abstract heap entity created by an allocation-producing
// expression. Bindings alias values; re-binding never creates a new value.
type Value struct {
	ID    int
	Kind  ValueKind
	Alloc ast.Node // allocation site, for annotations and diagnostics

	// Owner is the scope responsible for freeing the value. Escape
	// transfers ownership to the destination scope or value.
	Owner      *scopes.Scope
	OwnerValue *Value
	External   bool // ownership left the analyzed program

	Status  Status
	Edges   []EscapeEdge
	Own     []OwnEdge
	Partial bool // some sub-values transferred away; freeing is property-wise

	// Closure-specific state
	Fn       *ast.FuncExpr
	Class    *ast.ClassDecl // for instances: statically known construction site
	Captures []*scopes.Binding
}

func (v *Value) String() string {
	return fmt.Sprintf("value#%d(%s %s)", v.ID, v.Kind, v.Status)
}

// earliestEdge returns the escape edge with the lowest sequence number,
// or nil for local values.
func (v *Value) earliestEdge() *EscapeEdge {
	var best *EscapeEdge
	for i := range v.Edges {
		if best == nil || v.Edges[i].Seq < best.Seq {
			best = &v.Edges[i]
		}
	}
	return best
}

// EscapeSeq returns the earliest statement sequence at which the value
// escaped, or -1 if it is still local.
func (v *Value) EscapeSeq() int {
	if edge := v.earliestEdge(); edge != nil {
		return edge.Seq
	}
	return -1
}

// EscapeSite returns the location of the earliest escape edge, if any.
func (v *Value) EscapeSite() *source.Location {
	if edge := v.earliestEdge(); edge != nil {
		return edge.Loc
	}
	return nil
}

// ownEdge finds the ownership edge to the given child, if present
func (v *Value) ownEdge(child *Value) *OwnEdge {
	for i := range v.Own {
		if v.Own[i].Child == child && !v.Own[i].Transferred {
			return &v.Own[i]
		}
	}
	return nil
}

// propChild resolves a property read against the ownership edges.
// The latest assignment to a property wins.
func (v *Value) propChild(name string) *Value {
	for i := len(v.Own) - 1; i >= 0; i-- {
		if v.Own[i].Name == name && !v.Own[i].Transferred {
			return v.Own[i].Child
		}
	}
	return nil
}

// rootOwnerScope follows ownership through parent values to the scope that
// ultimately frees this value, or nil for externally owned values.
func (v *Value) rootOwnerScope() *scopes.Scope {
	cur := v
	for seen := 0; cur != nil && seen < 1000; seen++ {
		if cur.External {
			return nil
		}
		if cur.OwnerValue != nil {
			cur = cur.OwnerValue
			continue
		}
		return cur.Owner
	}
	return nil
}

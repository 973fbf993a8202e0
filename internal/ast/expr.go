package ast

import (
	"github.com/indutny/escape.js/internal/source"
)

// Ident represents an identifier reference
type Ident struct {
	Name string
	source.Location
}

func (i *Ident) INode()                {} // Implements Node interface
func (i *Ident) Expr()                 {} // Expr is a marker interface for all expressions
func (i *Ident) Loc() *source.Location { return &i.Location }

// ThisExpr represents the implicit method receiver
type ThisExpr struct {
	source.Location
}

func (t *ThisExpr) INode()                {} // Implements Node interface
func (t *ThisExpr) Expr()                 {} // Expr is a marker interface for all expressions
func (t *ThisExpr) Loc() *source.Location { return &t.Location }

// MemberExpr represents a property access expression (x.prop)
type MemberExpr struct {
	Object   Expression // receiver expression
	Property string     // property name
	source.Location
}

func (m *MemberExpr) INode()                {} // Implements Node interface
func (m *MemberExpr) Expr()                 {} // Expr is a marker interface for all expressions
func (m *MemberExpr) Loc() *source.Location { return &m.Location }

// CallExpr represents a function or method call expression
type CallExpr struct {
	Callee Expression   // function expression (Ident or MemberExpr for method calls)
	Args   []Expression // call arguments
	source.Location
}

func (c *CallExpr) INode()                {} // Implements Node interface
func (c *CallExpr) Expr()                 {} // Expr is a marker interface for all expressions
func (c *CallExpr) Loc() *source.Location { return &c.Location }

// NewExpr represents a constructor call (new C(...))
type NewExpr struct {
	Callee Expression   // class name expression
	Args   []Expression // constructor arguments
	source.Location
}

func (n *NewExpr) INode()                {} // Implements Node interface
func (n *NewExpr) Expr()                 {} // Expr is a marker interface for all expressions
func (n *NewExpr) Loc() *source.Location { return &n.Location }

// FuncExpr represents a nested function expression (closure)
type FuncExpr struct {
	Name   string // optional; empty for anonymous closures
	Params []*Ident
	Body   *Block
	source.Location
}

func (f *FuncExpr) INode()                {} // Implements Node interface
func (f *FuncExpr) Expr()                 {} // Expr is a marker interface for all expressions
func (f *FuncExpr) Loc() *source.Location { return &f.Location }

// Property is a single key/value entry of an object literal
type Property struct {
	Key   string
	Value Expression
	source.Location
}

// ObjectLit represents an object literal expression
type ObjectLit struct {
	Props []Property
	source.Location
}

func (o *ObjectLit) INode()                {} // Implements Node interface
func (o *ObjectLit) Expr()                 {} // Expr is a marker interface for all expressions
func (o *ObjectLit) Loc() *source.Location { return &o.Location }

// ArrayLit represents an array literal expression
type ArrayLit struct {
	Elems []Expression
	source.Location
}

func (a *ArrayLit) INode()                {} // Implements Node interface
func (a *ArrayLit) Expr()                 {} // Expr is a marker interface for all expressions
func (a *ArrayLit) Loc() *source.Location { return &a.Location }

// LitKind categorizes basic literals
type LitKind int

const (
	StringLit LitKind = iota
	NumberLit
	BoolLit
	NullLit
)

func (k LitKind) String() string {
	switch k {
	case StringLit:
		return "string"
	case NumberLit:
		return "number"
	case BoolLit:
		return "bool"
	case NullLit:
		return "null"
	default:
		return "unknown"
	}
}

// BasicLit represents a string/number/bool/null literal.
// Only string literals allocate a heap value.
type BasicLit struct {
	Kind  LitKind
	Value string // raw literal text
	source.Location
}

func (b *BasicLit) INode()                {} // Implements Node interface
func (b *BasicLit) Expr()                 {} // Expr is a marker interface for all expressions
func (b *BasicLit) Loc() *source.Location { return &b.Location }

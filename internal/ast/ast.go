package ast

import (
	"github.com/indutny/escape.js/internal/source"
)

// Node is the base interface for all nodes of the parsed program tree.
// The tree is produced by an external parser; the analysis only consumes it.
type Node interface {
	INode()
	Loc() *source.Location
}

// Expression represents any node that produces a value
type Expression interface {
	Node
	Expr()
}

// Statement represents any node that performs an action
type Statement interface {
	Node
	Stmt()
}

// Decl represents a declaration (var, func, class)
type Decl interface {
	Node
	Decl()
}

package ast

import (
	"github.com/indutny/escape.js/internal/source"
)

// Program represents a whole parsed program (the module scope)
type Program struct {
	FileName string // physical path of the original source, for diagnostics
	Nodes    []Node // top-level declarations and statements
	source.Location
}

func (p *Program) INode()                {} // Implements Node interface
func (p *Program) Stmt()                 {} // Stmt is a marker interface for all statements
func (p *Program) Loc() *source.Location { return &p.Location }

// Block represents a braced statement list introducing a lexical scope
type Block struct {
	Nodes []Node
	source.Location
}

func (b *Block) INode()                {} // Implements Node interface
func (b *Block) Stmt()                 {} // Stmt is a marker interface for all statements
func (b *Block) Loc() *source.Location { return &b.Location }

// VarDecl represents a variable declaration (let/const)
type VarDecl struct {
	Name  *Ident
	Value Expression // initial value (can be nil)
	source.Location
}

func (v *VarDecl) INode()                {} // Implements Node interface
func (v *VarDecl) Stmt()                 {} // Stmt is a marker interface for all statements
func (v *VarDecl) Decl()                 {} // Decl is a marker interface for all declarations
func (v *VarDecl) Loc() *source.Location { return &v.Location }

// FuncDecl represents a top-level function declaration
type FuncDecl struct {
	Name   *Ident
	Params []*Ident
	Body   *Block
	source.Location
}

func (f *FuncDecl) INode()                {} // Implements Node interface
func (f *FuncDecl) Stmt()                 {} // Stmt is a marker interface for all statements
func (f *FuncDecl) Decl()                 {} // Decl is a marker interface for all declarations
func (f *FuncDecl) Loc() *source.Location { return &f.Location }

// MethodDecl represents a method inside a class declaration
type MethodDecl struct {
	Name   *Ident
	Params []*Ident
	Body   *Block
	source.Location
}

func (m *MethodDecl) INode()                {} // Implements Node interface
func (m *MethodDecl) Decl()                 {} // Decl is a marker interface for all declarations
func (m *MethodDecl) Loc() *source.Location { return &m.Location }

// ClassDecl represents a class declaration with its methods
type ClassDecl struct {
	Name    *Ident
	Methods []*MethodDecl
	source.Location
}

func (c *ClassDecl) INode()                {} // Implements Node interface
func (c *ClassDecl) Stmt()                 {} // Stmt is a marker interface for all statements
func (c *ClassDecl) Decl()                 {} // Decl is a marker interface for all declarations
func (c *ClassDecl) Loc() *source.Location { return &c.Location }

// AssignStmt represents an assignment statement
type AssignStmt struct {
	Lhs Expression // Ident or MemberExpr
	Rhs Expression
	source.Location
}

func (a *AssignStmt) INode()                {} // Implements Node interface
func (a *AssignStmt) Stmt()                 {} // Stmt is a marker interface for all statements
func (a *AssignStmt) Loc() *source.Location { return &a.Location }

// ReturnStmt represents a return statement
type ReturnStmt struct {
	Result Expression // return value (can be nil)
	source.Location
}

func (r *ReturnStmt) INode()                {} // Implements Node interface
func (r *ReturnStmt) Stmt()                 {} // Stmt is a marker method for statements
func (r *ReturnStmt) Loc() *source.Location { return &r.Location }

// ExprStmt represents an expression used as a statement
type ExprStmt struct {
	X Expression
	source.Location
}

func (e *ExprStmt) INode()                {} // Implements Node interface
func (e *ExprStmt) Stmt()                 {} // Stmt is a marker interface for all statements
func (e *ExprStmt) Loc() *source.Location { return &e.Location }

// IfStmt represents a conditional statement; both branches are analyzed
type IfStmt struct {
	Cond Expression
	Body *Block
	Else Node // *Block or *IfStmt (can be nil)
	source.Location
}

func (i *IfStmt) INode()                {} // Implements Node interface
func (i *IfStmt) Stmt()                 {} // Stmt is a marker interface for all statements
func (i *IfStmt) Loc() *source.Location { return &i.Location }

// WhileStmt represents a loop statement
type WhileStmt struct {
	Cond Expression
	Body *Block
	source.Location
}

func (w *WhileStmt) INode()                {} // Implements Node interface
func (w *WhileStmt) Stmt()                 {} // Stmt is a marker interface for all statements
func (w *WhileStmt) Loc() *source.Location { return &w.Location }

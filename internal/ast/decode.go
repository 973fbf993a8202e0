package ast

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/indutny/escape.js/internal/source"
)

// The analysis consumes trees produced by an external parser. The interchange
// format is a kind-tagged JSON document; every node carries a "kind" field,
// a "loc" span and kind-specific fields.

type jsonPos struct {
	Line  int `json:"line"`
	Col   int `json:"col"`
	Index int `json:"index,omitempty"`
}

type jsonLoc struct {
	Start *jsonPos `json:"start"`
	End   *jsonPos `json:"end"`
}

type rawNode struct {
	Kind     string            `json:"kind"`
	Loc      *jsonLoc          `json:"loc"`
	File     string            `json:"file,omitempty"`
	Name     json.RawMessage   `json:"name,omitempty"`
	Params   []json.RawMessage `json:"params,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Methods  []json.RawMessage `json:"methods,omitempty"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Lhs      json.RawMessage   `json:"lhs,omitempty"`
	Rhs      json.RawMessage   `json:"rhs,omitempty"`
	Cond     json.RawMessage   `json:"cond,omitempty"`
	Else     json.RawMessage   `json:"else,omitempty"`
	Expr     json.RawMessage   `json:"expr,omitempty"`
	Object   json.RawMessage   `json:"object,omitempty"`
	Property string            `json:"property,omitempty"`
	Callee   json.RawMessage   `json:"callee,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Props    []json.RawMessage `json:"props,omitempty"`
	Elems    []json.RawMessage `json:"elems,omitempty"`
	Key      string            `json:"key,omitempty"`
	LitKind  string            `json:"litKind,omitempty"`
	Raw      string            `json:"raw,omitempty"`
}

type decoder struct {
	filename string
}

// Decode reads a kind-tagged JSON tree into a Program.
func Decode(r io.Reader) (*Program, error) {
	var root rawNode
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode program tree: %w", err)
	}
	if root.Kind != "Program" {
		return nil, fmt.Errorf("expected root node of kind Program, got %q", root.Kind)
	}

	d := &decoder{filename: root.File}
	prog := &Program{FileName: root.File, Location: d.location(root.Loc)}

	nodes, err := d.nodeList(root.Body)
	if err != nil {
		return nil, err
	}
	prog.Nodes = nodes
	return prog, nil
}

// DecodeFile reads a serialized program tree from disk.
func DecodeFile(path string) (*Program, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program tree: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

func (d *decoder) location(loc *jsonLoc) source.Location {
	out := source.Location{}
	if d.filename != "" {
		name := d.filename
		out.Filename = &name
	}
	if loc == nil {
		return out
	}
	if loc.Start != nil {
		out.Start = &source.Position{Line: loc.Start.Line, Column: loc.Start.Col, Index: loc.Start.Index}
	}
	if loc.End != nil {
		out.End = &source.Position{Line: loc.End.Line, Column: loc.End.Col, Index: loc.End.Index}
	}
	return out
}

func (d *decoder) nodeList(raw json.RawMessage) ([]Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode node list: %w", err)
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		node, err := d.node(item)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (d *decoder) node(raw json.RawMessage) (Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rn rawNode
	if err := json.Unmarshal(raw, &rn); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return d.build(&rn)
}

func (d *decoder) expr(raw json.RawMessage) (Expression, error) {
	node, err := d.node(raw)
	if err != nil || node == nil {
		return nil, err
	}
	expr, ok := node.(Expression)
	if !ok {
		return nil, fmt.Errorf("expected expression node at %s", node.Loc())
	}
	return expr, nil
}

func (d *decoder) exprList(items []json.RawMessage) ([]Expression, error) {
	exprs := make([]Expression, 0, len(items))
	for _, item := range items {
		expr, err := d.expr(item)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func (d *decoder) ident(raw json.RawMessage) (*Ident, error) {
	node, err := d.node(raw)
	if err != nil || node == nil {
		return nil, err
	}
	ident, ok := node.(*Ident)
	if !ok {
		return nil, fmt.Errorf("expected identifier node at %s", node.Loc())
	}
	return ident, nil
}

func (d *decoder) params(items []json.RawMessage) ([]*Ident, error) {
	params := make([]*Ident, 0, len(items))
	for _, item := range items {
		ident, err := d.ident(item)
		if err != nil {
			return nil, err
		}
		params = append(params, ident)
	}
	return params, nil
}

func (d *decoder) block(raw json.RawMessage) (*Block, error) {
	node, err := d.node(raw)
	if err != nil || node == nil {
		return nil, err
	}
	block, ok := node.(*Block)
	if !ok {
		return nil, fmt.Errorf("expected block node at %s", node.Loc())
	}
	return block, nil
}

func (d *decoder) build(rn *rawNode) (Node, error) {
	loc := d.location(rn.Loc)

	switch rn.Kind {
	case "Block":
		nodes, err := d.nodeList(rn.Body)
		if err != nil {
			return nil, err
		}
		return &Block{Nodes: nodes, Location: loc}, nil

	case "VariableDecl":
		name, err := d.ident(rn.Name)
		if err != nil {
			return nil, err
		}
		value, err := d.expr(rn.Value)
		if err != nil {
			return nil, err
		}
		return &VarDecl{Name: name, Value: value, Location: loc}, nil

	case "FunctionDecl":
		name, err := d.ident(rn.Name)
		if err != nil {
			return nil, err
		}
		params, err := d.params(rn.Params)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rn.Body)
		if err != nil {
			return nil, err
		}
		return &FuncDecl{Name: name, Params: params, Body: body, Location: loc}, nil

	case "FunctionExpr":
		var name string
		if len(rn.Name) > 0 {
			if err := json.Unmarshal(rn.Name, &name); err != nil {
				return nil, fmt.Errorf("failed to decode function expression name: %w", err)
			}
		}
		params, err := d.params(rn.Params)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rn.Body)
		if err != nil {
			return nil, err
		}
		return &FuncExpr{Name: name, Params: params, Body: body, Location: loc}, nil

	case "ClassDecl":
		name, err := d.ident(rn.Name)
		if err != nil {
			return nil, err
		}
		methods := make([]*MethodDecl, 0, len(rn.Methods))
		for _, item := range rn.Methods {
			node, err := d.node(item)
			if err != nil {
				return nil, err
			}
			method, ok := node.(*MethodDecl)
			if !ok {
				return nil, fmt.Errorf("expected method node at %s", node.Loc())
			}
			methods = append(methods, method)
		}
		return &ClassDecl{Name: name, Methods: methods, Location: loc}, nil

	case "MethodDecl":
		name, err := d.ident(rn.Name)
		if err != nil {
			return nil, err
		}
		params, err := d.params(rn.Params)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rn.Body)
		if err != nil {
			return nil, err
		}
		return &MethodDecl{Name: name, Params: params, Body: body, Location: loc}, nil

	case "Assignment":
		lhs, err := d.expr(rn.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := d.expr(rn.Rhs)
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Lhs: lhs, Rhs: rhs, Location: loc}, nil

	case "ReturnStatement":
		result, err := d.expr(rn.Value)
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Result: result, Location: loc}, nil

	case "ExpressionStatement":
		x, err := d.expr(rn.Expr)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{X: x, Location: loc}, nil

	case "IfStatement":
		cond, err := d.expr(rn.Cond)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rn.Body)
		if err != nil {
			return nil, err
		}
		elseNode, err := d.node(rn.Else)
		if err != nil {
			return nil, err
		}
		return &IfStmt{Cond: cond, Body: body, Else: elseNode, Location: loc}, nil

	case "WhileStatement":
		cond, err := d.expr(rn.Cond)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rn.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body, Location: loc}, nil

	case "Identifier":
		var name string
		if err := json.Unmarshal(rn.Name, &name); err != nil {
			return nil, fmt.Errorf("failed to decode identifier name: %w", err)
		}
		return &Ident{Name: name, Location: loc}, nil

	case "ThisExpression":
		return &ThisExpr{Location: loc}, nil

	case "MemberExpression":
		object, err := d.expr(rn.Object)
		if err != nil {
			return nil, err
		}
		return &MemberExpr{Object: object, Property: rn.Property, Location: loc}, nil

	case "CallExpression":
		callee, err := d.expr(rn.Callee)
		if err != nil {
			return nil, err
		}
		args, err := d.exprList(rn.Args)
		if err != nil {
			return nil, err
		}
		return &CallExpr{Callee: callee, Args: args, Location: loc}, nil

	case "NewExpression":
		callee, err := d.expr(rn.Callee)
		if err != nil {
			return nil, err
		}
		args, err := d.exprList(rn.Args)
		if err != nil {
			return nil, err
		}
		return &NewExpr{Callee: callee, Args: args, Location: loc}, nil

	case "ObjectLiteral":
		props := make([]Property, 0, len(rn.Props))
		for _, item := range rn.Props {
			var prn rawNode
			if err := json.Unmarshal(item, &prn); err != nil {
				return nil, fmt.Errorf("failed to decode object property: %w", err)
			}
			value, err := d.expr(prn.Value)
			if err != nil {
				return nil, err
			}
			props = append(props, Property{Key: prn.Key, Value: value, Location: d.location(prn.Loc)})
		}
		return &ObjectLit{Props: props, Location: loc}, nil

	case "ArrayLiteral":
		elems, err := d.exprList(rn.Elems)
		if err != nil {
			return nil, err
		}
		return &ArrayLit{Elems: elems, Location: loc}, nil

	case "Literal":
		kind, err := litKindFromString(rn.LitKind)
		if err != nil {
			return nil, err
		}
		return &BasicLit{Kind: kind, Value: rn.Raw, Location: loc}, nil

	default:
		return nil, fmt.Errorf("unknown node kind %q", rn.Kind)
	}
}

func litKindFromString(s string) (LitKind, error) {
	switch s {
	case "string":
		return StringLit, nil
	case "number":
		return NumberLit, nil
	case "bool":
		return BoolLit, nil
	case "null":
		return NullLit, nil
	default:
		return 0, fmt.Errorf("unknown literal kind %q", s)
	}
}

package ast

import (
	"encoding/json"
	"fmt"
	"os"
)

// Encode serializes a program tree back to the interchange format. The tag
// callback supplies the escape annotation for allocation-site nodes; it
// returns an empty string for nodes that carry no annotation. Passing nil
// produces an unannotated tree.
func Encode(prog *Program, tag func(Node) string) ([]byte, error) {
	e := &encoder{tag: tag}
	out := e.node(prog)
	return json.MarshalIndent(out, "", "  ")
}

// SaveAnnotated writes the escape-annotated tree next to the original source,
// for consumption by a code generator.
func (p *Program) SaveAnnotated(tag func(Node) string) error {
	data, err := Encode(p, tag)
	if err != nil {
		return fmt.Errorf("failed to encode annotated tree: %w", err)
	}
	if err := os.WriteFile(p.FileName+".esc.json", data, 0644); err != nil {
		return fmt.Errorf("failed to write annotated tree: %w", err)
	}
	return nil
}

type encoder struct {
	tag func(Node) string
}

func (e *encoder) loc(n Node) any {
	loc := n.Loc()
	if loc == nil || loc.Start == nil {
		return nil
	}
	out := map[string]any{
		"start": map[string]any{"line": loc.Start.Line, "col": loc.Start.Column},
	}
	if loc.End != nil {
		out["end"] = map[string]any{"line": loc.End.Line, "col": loc.End.Column}
	}
	return out
}

func (e *encoder) fill(n Node, kind string, fields map[string]any) map[string]any {
	out := map[string]any{"kind": kind}
	if loc := e.loc(n); loc != nil {
		out["loc"] = loc
	}
	if e.tag != nil {
		if tag := e.tag(n); tag != "" {
			out["escape"] = tag
		}
	}
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func (e *encoder) nodes(nodes []Node) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, e.node(n))
	}
	return out
}

func (e *encoder) exprs(exprs []Expression) []any {
	out := make([]any, 0, len(exprs))
	for _, x := range exprs {
		out = append(out, e.node(x))
	}
	return out
}

func (e *encoder) idents(idents []*Ident) []any {
	out := make([]any, 0, len(idents))
	for _, id := range idents {
		out = append(out, e.node(id))
	}
	return out
}

func (e *encoder) maybe(n Node) any {
	if n == nil {
		return nil
	}
	return e.node(n)
}

func (e *encoder) maybeExpr(x Expression) any {
	if x == nil {
		return nil
	}
	return e.node(x)
}

func (e *encoder) node(n Node) any {
	switch node := n.(type) {
	case *Program:
		return e.fill(n, "Program", map[string]any{
			"file": node.FileName,
			"body": e.nodes(node.Nodes),
		})
	case *Block:
		return e.fill(n, "Block", map[string]any{"body": e.nodes(node.Nodes)})
	case *VarDecl:
		return e.fill(n, "VariableDecl", map[string]any{
			"name":  e.node(node.Name),
			"value": e.maybeExpr(node.Value),
		})
	case *FuncDecl:
		return e.fill(n, "FunctionDecl", map[string]any{
			"name":   e.node(node.Name),
			"params": e.idents(node.Params),
			"body":   e.node(node.Body),
		})
	case *FuncExpr:
		fields := map[string]any{
			"params": e.idents(node.Params),
			"body":   e.node(node.Body),
		}
		if node.Name != "" {
			fields["name"] = node.Name
		}
		return e.fill(n, "FunctionExpr", fields)
	case *ClassDecl:
		methods := make([]any, 0, len(node.Methods))
		for _, m := range node.Methods {
			methods = append(methods, e.node(m))
		}
		return e.fill(n, "ClassDecl", map[string]any{
			"name":    e.node(node.Name),
			"methods": methods,
		})
	case *MethodDecl:
		return e.fill(n, "MethodDecl", map[string]any{
			"name":   e.node(node.Name),
			"params": e.idents(node.Params),
			"body":   e.node(node.Body),
		})
	case *AssignStmt:
		return e.fill(n, "Assignment", map[string]any{
			"lhs": e.node(node.Lhs),
			"rhs": e.node(node.Rhs),
		})
	case *ReturnStmt:
		return e.fill(n, "ReturnStatement", map[string]any{"value": e.maybeExpr(node.Result)})
	case *ExprStmt:
		return e.fill(n, "ExpressionStatement", map[string]any{"expr": e.node(node.X)})
	case *IfStmt:
		return e.fill(n, "IfStatement", map[string]any{
			"cond": e.node(node.Cond),
			"body": e.node(node.Body),
			"else": e.maybe(node.Else),
		})
	case *WhileStmt:
		return e.fill(n, "WhileStatement", map[string]any{
			"cond": e.node(node.Cond),
			"body": e.node(node.Body),
		})
	case *Ident:
		return e.fill(n, "Identifier", map[string]any{"name": node.Name})
	case *ThisExpr:
		return e.fill(n, "ThisExpression", nil)
	case *MemberExpr:
		return e.fill(n, "MemberExpression", map[string]any{
			"object":   e.node(node.Object),
			"property": node.Property,
		})
	case *CallExpr:
		return e.fill(n, "CallExpression", map[string]any{
			"callee": e.node(node.Callee),
			"args":   e.exprs(node.Args),
		})
	case *NewExpr:
		return e.fill(n, "NewExpression", map[string]any{
			"callee": e.node(node.Callee),
			"args":   e.exprs(node.Args),
		})
	case *ObjectLit:
		props := make([]any, 0, len(node.Props))
		for i := range node.Props {
			prop := &node.Props[i]
			props = append(props, map[string]any{
				"key":   prop.Key,
				"value": e.node(prop.Value),
			})
		}
		return e.fill(n, "ObjectLiteral", map[string]any{"props": props})
	case *ArrayLit:
		return e.fill(n, "ArrayLiteral", map[string]any{"elems": e.exprs(node.Elems)})
	case *BasicLit:
		return e.fill(n, "Literal", map[string]any{
			"litKind": node.Kind.String(),
			"raw":     node.Value,
		})
	default:
		return map[string]any{"kind": "Unknown"}
	}
}

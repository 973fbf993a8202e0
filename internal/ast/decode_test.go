package ast

import (
	"strings"
	"testing"
)

const sampleTree = `{
  "kind": "Program",
  "file": "sample.js",
  "loc": {"start": {"line": 1, "col": 1}, "end": {"line": 6, "col": 1}},
  "body": [
    {
      "kind": "VariableDecl",
      "loc": {"start": {"line": 1, "col": 1}, "end": {"line": 1, "col": 14}},
      "name": {"kind": "Identifier", "name": "box", "loc": {"start": {"line": 1, "col": 5}, "end": {"line": 1, "col": 8}}},
      "value": {
        "kind": "ObjectLiteral",
        "loc": {"start": {"line": 1, "col": 11}, "end": {"line": 1, "col": 13}},
        "props": [
          {"key": "label", "value": {"kind": "Literal", "litKind": "string", "raw": "hi", "loc": {"start": {"line": 1, "col": 12}, "end": {"line": 1, "col": 13}}}}
        ]
      }
    },
    {
      "kind": "FunctionDecl",
      "loc": {"start": {"line": 2, "col": 1}, "end": {"line": 4, "col": 1}},
      "name": {"kind": "Identifier", "name": "get", "loc": {"start": {"line": 2, "col": 10}, "end": {"line": 2, "col": 13}}},
      "params": [{"kind": "Identifier", "name": "p", "loc": {"start": {"line": 2, "col": 14}, "end": {"line": 2, "col": 15}}}],
      "body": {
        "kind": "Block",
        "loc": {"start": {"line": 2, "col": 17}, "end": {"line": 4, "col": 1}},
        "body": [
          {"kind": "ReturnStatement", "loc": {"start": {"line": 3, "col": 3}, "end": {"line": 3, "col": 11}}, "value": {"kind": "Identifier", "name": "p", "loc": {"start": {"line": 3, "col": 10}, "end": {"line": 3, "col": 11}}}}
        ]
      }
    },
    {
      "kind": "ExpressionStatement",
      "loc": {"start": {"line": 5, "col": 1}, "end": {"line": 5, "col": 15}},
      "expr": {
        "kind": "CallExpression",
        "loc": {"start": {"line": 5, "col": 1}, "end": {"line": 5, "col": 14}},
        "callee": {"kind": "Identifier", "name": "get", "loc": {"start": {"line": 5, "col": 1}, "end": {"line": 5, "col": 4}}},
        "args": [{"kind": "MemberExpression", "property": "label", "loc": {"start": {"line": 5, "col": 5}, "end": {"line": 5, "col": 13}}, "object": {"kind": "Identifier", "name": "box", "loc": {"start": {"line": 5, "col": 5}, "end": {"line": 5, "col": 8}}}}]
      }
    }
  ]
}`

func TestDecodeSampleTree(t *testing.T) {
	prog, err := Decode(strings.NewReader(sampleTree))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if prog.FileName != "sample.js" {
		t.Errorf("expected file sample.js, got %q", prog.FileName)
	}
	if len(prog.Nodes) != 3 {
		t.Fatalf("expected 3 top-level nodes, got %d", len(prog.Nodes))
	}

	decl, ok := prog.Nodes[0].(*VarDecl)
	if !ok {
		t.Fatalf("node 0: expected *VarDecl, got %T", prog.Nodes[0])
	}
	if decl.Name.Name != "box" {
		t.Errorf("expected declaration of box, got %q", decl.Name.Name)
	}
	lit, ok := decl.Value.(*ObjectLit)
	if !ok {
		t.Fatalf("expected object literal initializer, got %T", decl.Value)
	}
	if len(lit.Props) != 1 || lit.Props[0].Key != "label" {
		t.Errorf("expected one property 'label', got %+v", lit.Props)
	}
	if basic, ok := lit.Props[0].Value.(*BasicLit); !ok || basic.Kind != StringLit {
		t.Errorf("expected string literal property value, got %+v", lit.Props[0].Value)
	}

	fn, ok := prog.Nodes[1].(*FuncDecl)
	if !ok {
		t.Fatalf("node 1: expected *FuncDecl, got %T", prog.Nodes[1])
	}
	if fn.Name.Name != "get" || len(fn.Params) != 1 || fn.Params[0].Name != "p" {
		t.Errorf("unexpected function declaration: %+v", fn)
	}
	if loc := fn.Loc(); loc.Start == nil || loc.Start.Line != 2 {
		t.Errorf("function location not decoded: %v", loc)
	}
	if loc := fn.Loc(); loc.File() != "sample.js" {
		t.Errorf("locations should carry the program filename, got %q", loc.File())
	}

	stmt, ok := prog.Nodes[2].(*ExprStmt)
	if !ok {
		t.Fatalf("node 2: expected *ExprStmt, got %T", prog.Nodes[2])
	}
	call, ok := stmt.X.(*CallExpr)
	if !ok || len(call.Args) != 1 {
		t.Fatalf("expected call with 1 argument, got %+v", stmt.X)
	}
	member, ok := call.Args[0].(*MemberExpr)
	if !ok || member.Property != "label" {
		t.Errorf("expected member access on 'label', got %+v", call.Args[0])
	}
}

func TestDecodeRejectsNonProgramRoot(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"kind": "Block", "body": []}`))
	if err == nil {
		t.Error("a non-Program root must be rejected")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode(strings.NewReader(`{
		"kind": "Program",
		"body": [{"kind": "WithStatement"}]
	}`))
	if err == nil {
		t.Error("an unknown node kind must be rejected")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	prog, err := Decode(strings.NewReader(sampleTree))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	data, err := Encode(prog, nil)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	again, err := Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("re-decoding the encoded tree failed: %v", err)
	}
	if len(again.Nodes) != len(prog.Nodes) {
		t.Errorf("round trip changed node count: %d vs %d", len(again.Nodes), len(prog.Nodes))
	}
	if again.FileName != prog.FileName {
		t.Errorf("round trip changed filename: %q vs %q", again.FileName, prog.FileName)
	}
}

func TestEncodeAttachesTags(t *testing.T) {
	prog, err := Decode(strings.NewReader(sampleTree))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	decl := prog.Nodes[0].(*VarDecl)
	tagged := decl.Value

	data, err := Encode(prog, func(n Node) string {
		if n == tagged {
			return "Local"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	out := string(data)
	if !strings.Contains(out, `"escape": "Local"`) {
		t.Error("expected the annotation on the tagged allocation site")
	}
	if strings.Count(out, `"escape"`) != 1 {
		t.Errorf("expected exactly one annotation, got %d", strings.Count(out, `"escape"`))
	}
}

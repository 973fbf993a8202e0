package escape

import (
	"testing"

	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
	"github.com/indutny/escape.js/internal/source"
)

// progBuilder constructs small program trees with synthetic spans. Every
// helper call advances the line counter so diagnostics stay distinguishable.
type progBuilder struct {
	line int
}

func (b *progBuilder) span() source.Location {
	b.line++
	return source.Location{
		Start: &source.Position{Line: b.line, Column: 1},
		End:   &source.Position{Line: b.line, Column: 10},
	}
}

func (b *progBuilder) id(name string) *ast.Ident {
	return &ast.Ident{Name: name, Location: b.span()}
}

func (b *progBuilder) this() *ast.ThisExpr {
	return &ast.ThisExpr{Location: b.span()}
}

func (b *progBuilder) obj() *ast.ObjectLit {
	return &ast.ObjectLit{Location: b.span()}
}

func (b *progBuilder) arr(elems ...ast.Expression) *ast.ArrayLit {
	return &ast.ArrayLit{Elems: elems, Location: b.span()}
}

func (b *progBuilder) num(raw string) *ast.BasicLit {
	return &ast.BasicLit{Kind: ast.NumberLit, Value: raw, Location: b.span()}
}

func (b *progBuilder) null() *ast.BasicLit {
	return &ast.BasicLit{Kind: ast.NullLit, Value: "null", Location: b.span()}
}

func (b *progBuilder) str(raw string) *ast.BasicLit {
	return &ast.BasicLit{Kind: ast.StringLit, Value: raw, Location: b.span()}
}

func (b *progBuilder) let(name string, value ast.Expression) *ast.VarDecl {
	return &ast.VarDecl{Name: b.id(name), Value: value, Location: b.span()}
}

func (b *progBuilder) assign(lhs, rhs ast.Expression) *ast.AssignStmt {
	return &ast.AssignStmt{Lhs: lhs, Rhs: rhs, Location: b.span()}
}

func (b *progBuilder) member(object ast.Expression, prop string) *ast.MemberExpr {
	return &ast.MemberExpr{Object: object, Property: prop, Location: b.span()}
}

func (b *progBuilder) call(callee ast.Expression, args ...ast.Expression) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Args: args, Location: b.span()}
}

func (b *progBuilder) callName(name string, args ...ast.Expression) *ast.CallExpr {
	return b.call(b.id(name), args...)
}

func (b *progBuilder) exprStmt(x ast.Expression) *ast.ExprStmt {
	return &ast.ExprStmt{X: x, Location: b.span()}
}

func (b *progBuilder) ret(result ast.Expression) *ast.ReturnStmt {
	return &ast.ReturnStmt{Result: result, Location: b.span()}
}

func (b *progBuilder) block(nodes ...ast.Node) *ast.Block {
	return &ast.Block{Nodes: nodes, Location: b.span()}
}

func (b *progBuilder) closure(params []string, body ...ast.Node) *ast.FuncExpr {
	return &ast.FuncExpr{Params: b.params(params), Body: b.block(body...), Location: b.span()}
}

func (b *progBuilder) fnDecl(name string, params []string, body ...ast.Node) *ast.FuncDecl {
	return &ast.FuncDecl{Name: b.id(name), Params: b.params(params), Body: b.block(body...), Location: b.span()}
}

func (b *progBuilder) method(name string, params []string, body ...ast.Node) *ast.MethodDecl {
	return &ast.MethodDecl{Name: b.id(name), Params: b.params(params), Body: b.block(body...), Location: b.span()}
}

func (b *progBuilder) class(name string, methods ...*ast.MethodDecl) *ast.ClassDecl {
	return &ast.ClassDecl{Name: b.id(name), Methods: methods, Location: b.span()}
}

func (b *progBuilder) newExpr(name string, args ...ast.Expression) *ast.NewExpr {
	return &ast.NewExpr{Callee: b.id(name), Args: args, Location: b.span()}
}

func (b *progBuilder) params(names []string) []*ast.Ident {
	out := make([]*ast.Ident, 0, len(names))
	for _, name := range names {
		out = append(out, b.id(name))
	}
	return out
}

func (b *progBuilder) prog(nodes ...ast.Node) *ast.Program {
	return &ast.Program{FileName: "test.js", Nodes: nodes, Location: b.span()}
}

// analyze runs the full pipeline with 'escape' registered as an external
// unknown-signature function, matching the usual test environment.
func analyze(t *testing.T, prog *ast.Program) (*Result, *diagnostics.DiagnosticBag) {
	t.Helper()
	bag := diagnostics.NewDiagnosticBag()
	table := DefaultTable()
	table.RegisterExternal("escape")
	result := Analyze(prog, table, bag, Options{})
	return result, bag
}

// checkStatusInvariant verifies that a value is Escaped exactly when it has
// at least one escape edge.
func checkStatusInvariant(t *testing.T, result *Result) {
	t.Helper()
	for _, v := range result.Values {
		escaped := v.Status == Escaped
		hasEdge := len(v.Edges) > 0
		if escaped != hasEdge {
			t.Errorf("%s: status %v with %d escape edges", v, v.Status, len(v.Edges))
		}
	}
}

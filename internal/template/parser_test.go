package template

import (
	"strings"
	"testing"
)

func parse(t *testing.T, src string) *Template {
	t.Helper()
	tpl, err := Parse(src, "<test>")
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return tpl
}

func parseErr(t *testing.T, src string) *ParseError {
	t.Helper()
	_, err := Parse(src, "<test>")
	if err == nil {
		t.Fatalf("Parse(%q): expected error", src)
	}
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("Parse(%q): expected *ParseError, got %T", src, err)
	}
	return perr
}

func TestParse_EmitExpression(t *testing.T) {
	tpl := parse(t, "{{ user.name }}")
	if len(tpl.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(tpl.Children))
	}
	emit, ok := tpl.Children[0].(*Emit)
	if !ok {
		t.Fatalf("expected *Emit, got %T", tpl.Children[0])
	}
	attr, ok := emit.Expr.(*GetAttr)
	if !ok {
		t.Fatalf("expected *GetAttr, got %T", emit.Expr)
	}
	if attr.Name != "name" {
		t.Errorf("attr name %q", attr.Name)
	}
	base, ok := attr.Base.(*Ident)
	if !ok || base.Name != "user" {
		t.Errorf("unexpected base: %#v", attr.Base)
	}
}

func TestParse_Subscript(t *testing.T) {
	tpl := parse(t, "{{ m['role'] }}{{ xs[0] }}{{ a[b] }}")

	item := tpl.Children[0].(*Emit).Expr.(*GetItem)
	if c, ok := item.Index.(*Const); !ok || c.Kind != ConstString || c.Str != "role" {
		t.Errorf("string subscript: %#v", item.Index)
	}
	item = tpl.Children[1].(*Emit).Expr.(*GetItem)
	if c, ok := item.Index.(*Const); !ok || c.Kind != ConstInt || c.Int != 0 {
		t.Errorf("int subscript: %#v", item.Index)
	}
	item = tpl.Children[2].(*Emit).Expr.(*GetItem)
	if _, ok := item.Index.(*Ident); !ok {
		t.Errorf("variable subscript: %#v", item.Index)
	}
}

func TestParse_IfElifElse(t *testing.T) {
	tpl := parse(t, "{% if a %}1{% elif b %}2{% else %}3{% endif %}")
	ifStmt := tpl.Children[0].(*If)
	if len(ifStmt.Then) != 1 || len(ifStmt.Else) != 1 {
		t.Fatalf("then=%d else=%d", len(ifStmt.Then), len(ifStmt.Else))
	}
	nested, ok := ifStmt.Else[0].(*If)
	if !ok {
		t.Fatalf("elif did not desugar to nested if: %T", ifStmt.Else[0])
	}
	if len(nested.Then) != 1 || len(nested.Else) != 1 {
		t.Errorf("nested then=%d else=%d", len(nested.Then), len(nested.Else))
	}
}

func TestParse_ForWithFilterAndElse(t *testing.T) {
	tpl := parse(t, "{% for m in messages if m.role %}x{% else %}none{% endfor %}")
	forStmt := tpl.Children[0].(*For)
	if len(forStmt.Targets) != 1 || forStmt.Targets[0] != "m" {
		t.Errorf("targets: %v", forStmt.Targets)
	}
	if forStmt.Filter == nil {
		t.Error("filter not parsed")
	}
	if len(forStmt.Else) != 1 {
		t.Errorf("else arm: %d stmts", len(forStmt.Else))
	}
}

func TestParse_ForTupleTarget(t *testing.T) {
	tpl := parse(t, "{% for k, v in mapping %}{{ k }}{{ v }}{% endfor %}")
	forStmt := tpl.Children[0].(*For)
	if len(forStmt.Targets) != 2 || forStmt.Targets[0] != "k" || forStmt.Targets[1] != "v" {
		t.Errorf("targets: %v", forStmt.Targets)
	}
}

func TestParse_SetForms(t *testing.T) {
	tpl := parse(t, "{% set a = b %}{% set ns.found = true %}{% set c %}body{% endset %}")

	set := tpl.Children[0].(*Set)
	if set.Target != "a" {
		t.Errorf("target %q", set.Target)
	}
	if _, ok := set.Value.(*Ident); !ok {
		t.Errorf("value: %T", set.Value)
	}

	dotted := tpl.Children[1].(*Set)
	if dotted.Target != "ns.found" {
		t.Errorf("dotted target %q", dotted.Target)
	}

	block, ok := tpl.Children[2].(*SetBlock)
	if !ok {
		t.Fatalf("expected *SetBlock, got %T", tpl.Children[2])
	}
	if block.Target != "c" || len(block.Body) != 1 {
		t.Errorf("set block: %+v", block)
	}
}

func TestParse_WithBlock(t *testing.T) {
	tpl := parse(t, "{% with a = x, b = y %}{{ a }}{% endwith %}")
	with := tpl.Children[0].(*With)
	if len(with.Assignments) != 2 {
		t.Fatalf("assignments: %d", len(with.Assignments))
	}
	if with.Assignments[0].Target != "a" || with.Assignments[1].Target != "b" {
		t.Errorf("targets: %+v", with.Assignments)
	}
}

func TestParse_FilterChain(t *testing.T) {
	tpl := parse(t, "{{ name|trim|upper }}")
	outer := tpl.Children[0].(*Emit).Expr.(*Filter)
	if outer.Name != "upper" {
		t.Errorf("outer filter %q", outer.Name)
	}
	inner := outer.Expr.(*Filter)
	if inner.Name != "trim" {
		t.Errorf("inner filter %q", inner.Name)
	}
	if _, ok := inner.Expr.(*Ident); !ok {
		t.Errorf("filter operand: %T", inner.Expr)
	}
}

func TestParse_FilterWithArgs(t *testing.T) {
	tpl := parse(t, "{{ items|join(', ')|default(fallback, boolean=true) }}")
	outer := tpl.Children[0].(*Emit).Expr.(*Filter)
	if outer.Name != "default" || len(outer.Args) != 1 || len(outer.Kwargs) != 1 {
		t.Errorf("outer: %+v", outer)
	}
	if outer.Kwargs[0].Name != "boolean" {
		t.Errorf("kwarg name %q", outer.Kwargs[0].Name)
	}
}

func TestParse_TestExpression(t *testing.T) {
	tpl := parse(t, "{% if x is defined and y is not none %}ok{% endif %}")
	cond := tpl.Children[0].(*If).Cond.(*BinOp)
	left := cond.Left.(*Test)
	if left.Name != "defined" || left.Negated {
		t.Errorf("left test: %+v", left)
	}
	right := cond.Right.(*Test)
	if right.Name != "none" || !right.Negated {
		t.Errorf("right test: %+v", right)
	}
}

func TestParse_InlineCond(t *testing.T) {
	tpl := parse(t, "{{ a if cond else b }}")
	cond, ok := tpl.Children[0].(*Emit).Expr.(*Cond)
	if !ok {
		t.Fatalf("expected *Cond, got %T", tpl.Children[0].(*Emit).Expr)
	}
	if cond.Else == nil {
		t.Error("else arm missing")
	}
}

func TestParse_RawBlock(t *testing.T) {
	tpl := parse(t, "{% raw %}{{ not parsed }}{% endraw %}after")
	text, ok := tpl.Children[0].(*Text)
	if !ok {
		t.Fatalf("expected *Text, got %T", tpl.Children[0])
	}
	if !strings.Contains(text.Value, "{{ not parsed }}") {
		t.Errorf("raw body %q", text.Value)
	}
}

func TestParse_MacroAndCall(t *testing.T) {
	tpl := parse(t, "{% macro row(item, sep=', ') %}{{ item }}{% endmacro %}{% call row(first) %}x{% endcall %}")
	macro := tpl.Children[0].(*Macro)
	if macro.Name != "row" || len(macro.Params) != 2 {
		t.Errorf("macro: %+v", macro)
	}
	if macro.Params[1].Default == nil {
		t.Error("param default missing")
	}
	if _, ok := tpl.Children[1].(*CallBlock); !ok {
		t.Errorf("expected *CallBlock, got %T", tpl.Children[1])
	}
}

func TestParse_OperatorPrecedence(t *testing.T) {
	tpl := parse(t, "{{ a + b * c }}")
	add := tpl.Children[0].(*Emit).Expr.(*BinOp)
	if add.Op != "+" {
		t.Fatalf("top op %q", add.Op)
	}
	mul, ok := add.Right.(*BinOp)
	if !ok || mul.Op != "*" {
		t.Errorf("right: %#v", add.Right)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"{% frobnicate %}", "unknown statement"},
		{"{% if x %}unclosed", "unexpected end of template"},
		{"{% for in xs %}{% endfor %}", "expected 'in'"},
		{"{{ a + }}", "unexpected token"},
		{"{% endfor %}", "unknown statement"},
	}
	for _, tc := range cases {
		perr := parseErr(t, tc.src)
		if !strings.Contains(perr.Msg, tc.want) {
			t.Errorf("Parse(%q): msg %q does not contain %q", tc.src, perr.Msg, tc.want)
		}
	}
}

func TestParse_ErrorLineNumber(t *testing.T) {
	perr := parseErr(t, "line one\nline two\n{% bogus %}")
	if perr.Line != 3 {
		t.Errorf("error line %d, want 3", perr.Line)
	}
}

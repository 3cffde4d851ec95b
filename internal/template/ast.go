// Package template implements the parser front-end for Jinja-style
// templates: a lexer and a recursive-descent parser producing the AST
// consumed by the analyzer. The node set mirrors what the analyzer
// needs to see (outputs, control flow, bindings, access chains); every
// other construct is represented generically so the walker can still
// reach the expressions inside it.
package template

// Stmt is a statement node: a top-level template child or a body item.
type Stmt interface {
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	exprNode()
}

// Template is the root node of a parsed template.
type Template struct {
	Name     string
	Children []Stmt
}

// Text is literal output between tags.
type Text struct {
	Value string
}

// Emit is an output expression: {{ expr }}.
type Emit struct {
	Expr Expr
	Line int
}

// If is a conditional. Elif arms are desugared into a nested If as the
// sole statement of Else.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// For is a loop statement: {% for targets in iter [if filter] %}.
// Jinja allows tuple unpacking targets; each name binds independently.
// Else holds the optional {% else %} arm run when the iterable is empty.
type For struct {
	Targets   []string
	Iter      Expr
	Filter    Expr
	Recursive bool
	Body      []Stmt
	Else      []Stmt
}

// Set is an inline assignment: {% set target = value %}.
type Set struct {
	Target string
	Value  Expr
	Line   int
}

// SetBlock is a block assignment: {% set target %}...{% endset %},
// optionally piped through a filter: {% set target | trim %}.
type SetBlock struct {
	Target string
	Filter Expr
	Body   []Stmt
}

// With introduces scoped assignments: {% with a = x, b = y %}.
// The analyzer flattens the scope; the parser just records bindings.
type With struct {
	Assignments []Assignment
	Body        []Stmt
}

// Assignment is a single name = expr pair inside a with block.
type Assignment struct {
	Target string
	Value  Expr
}

// FilterBlock pipes rendered body output through a filter chain:
// {% filter upper %}...{% endfilter %}.
type FilterBlock struct {
	Filter Expr
	Body   []Stmt
}

// Block is a named template block: {% block name %}.
type Block struct {
	Name string
	Body []Stmt
}

// Macro is a macro definition. Parameter defaults are expressions and
// are analyzed as reads.
type Macro struct {
	Name   string
	Params []MacroParam
	Body   []Stmt
}

// MacroParam is one macro parameter with an optional default.
type MacroParam struct {
	Name    string
	Default Expr
}

// CallBlock invokes a macro with a body: {% call m(...) %}...{% endcall %}.
type CallBlock struct {
	Call Expr
	Body []Stmt
}

// AutoEscape toggles escaping for its body: {% autoescape true %}.
type AutoEscape struct {
	Enabled Expr
	Body    []Stmt
}

func (*Text) stmtNode()        {}
func (*Emit) stmtNode()        {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*Set) stmtNode()         {}
func (*SetBlock) stmtNode()    {}
func (*With) stmtNode()        {}
func (*FilterBlock) stmtNode() {}
func (*Block) stmtNode()       {}
func (*Macro) stmtNode()       {}
func (*CallBlock) stmtNode()   {}
func (*AutoEscape) stmtNode()  {}

// Ident is an unqualified name.
type Ident struct {
	Name string
	Line int
}

// ConstKind distinguishes literal types. The canonicalizer needs to
// tell string subscripts from integer subscripts.
type ConstKind int

const (
	ConstString ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstNone
)

// Const is a literal value.
type Const struct {
	Kind  ConstKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// IsNumber reports whether the literal is an int or float.
func (c *Const) IsNumber() bool {
	return c.Kind == ConstInt || c.Kind == ConstFloat
}

// StringValue returns the literal string value and whether the
// constant is a string.
func (c *Const) StringValue() (string, bool) {
	if c.Kind == ConstString {
		return c.Str, true
	}
	return "", false
}

// GetAttr is attribute access: base.name.
type GetAttr struct {
	Base Expr
	Name string
}

// GetItem is subscript access: base[index].
type GetItem struct {
	Base  Expr
	Index Expr
}

// Call is a function or macro invocation.
type Call struct {
	Fn     Expr
	Args   []Expr
	Kwargs []Kwarg
}

// Kwarg is a keyword argument in a call or filter application.
type Kwarg struct {
	Name  string
	Value Expr
}

// Filter is a filter application: expr|name(args). Expr is nil inside
// a filter block header, where the filter applies to the block body.
type Filter struct {
	Expr   Expr
	Name   string
	Args   []Expr
	Kwargs []Kwarg
}

// Test is a test application: expr is name(args) / expr is not name.
type Test struct {
	Expr    Expr
	Name    string
	Args    []Expr
	Negated bool
}

// BinOp is a binary operation. Op holds the operator spelling
// ("+", "~", "and", "not in", ...).
type BinOp struct {
	Op    string
	Left  Expr
	Right Expr
}

// UnaryOp is a unary operation ("not", "-", "+").
type UnaryOp struct {
	Op   string
	Expr Expr
}

// Cond is the inline conditional: then if test else otherwise.
// Else may be nil.
type Cond struct {
	Test Expr
	Then Expr
	Else Expr
}

// List is a list literal.
type List struct {
	Items []Expr
}

// Map is a dict literal; Keys and Values are parallel.
type Map struct {
	Keys   []Expr
	Values []Expr
}

// Tuple is a tuple literal or a parenthesized expression list.
type Tuple struct {
	Items []Expr
}

func (*Ident) exprNode()   {}
func (*Const) exprNode()   {}
func (*GetAttr) exprNode() {}
func (*GetItem) exprNode() {}
func (*Call) exprNode()    {}
func (*Filter) exprNode()  {}
func (*Test) exprNode()    {}
func (*BinOp) exprNode()   {}
func (*UnaryOp) exprNode() {}
func (*Cond) exprNode()    {}
func (*List) exprNode()    {}
func (*Map) exprNode()     {}
func (*Tuple) exprNode()   {}

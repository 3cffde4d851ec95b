package analyzer

import (
	"strings"

	"github.com/drbh/cleanplate/internal/template"
)

// walker drives a depth-first, pre-order traversal of the template
// AST, feeding every expression and binding into the tracker in
// document order. Left-to-right visit order within a node is what
// makes first-touch classification well defined.
type walker struct {
	t *tracker
}

func (w *walker) walkTemplate(tpl *template.Template) {
	w.walkStmts(tpl.Children)
}

func (w *walker) walkStmts(stmts []template.Stmt) {
	for _, s := range stmts {
		w.walkStmt(s)
	}
}

func (w *walker) walkStmt(s template.Stmt) {
	switch n := s.(type) {
	case *template.Text:
		// literal output, nothing to track

	case *template.Emit:
		w.readExpr(n.Expr)

	case *template.If:
		w.readExpr(n.Cond)
		w.walkStmts(n.Then)
		w.walkStmts(n.Else)

	case *template.For:
		w.walkFor(n)

	case *template.Set:
		// The RHS is always analyzed as a read context first so that
		// identifiers and attribute chains inside complex values are
		// classified and recorded.
		w.readExpr(n.Value)
		root := setRoot(n.Target)
		if id, ok := n.Value.(*template.Ident); ok && id.Name != "loop" {
			w.t.observeSet(root, id.Name, true)
		} else {
			w.t.observeSet(root, "", false)
		}

	case *template.SetBlock:
		if n.Filter != nil {
			w.readExpr(n.Filter)
		}
		w.t.observeSet(setRoot(n.Target), "", false)
		w.walkStmts(n.Body)

	case *template.With:
		// Scope is flattened: first-touch applies whole-template.
		for _, a := range n.Assignments {
			w.readExpr(a.Value)
			if id, ok := a.Value.(*template.Ident); ok && id.Name != "loop" {
				w.t.observeSet(a.Target, id.Name, true)
			} else {
				w.t.observeSet(a.Target, "", false)
			}
		}
		w.walkStmts(n.Body)

	case *template.FilterBlock:
		w.readExpr(n.Filter)
		w.walkStmts(n.Body)

	case *template.Block:
		w.walkStmts(n.Body)

	case *template.Macro:
		for _, param := range n.Params {
			if param.Default != nil {
				w.readExpr(param.Default)
			}
		}
		w.walkStmts(n.Body)

	case *template.CallBlock:
		w.readExpr(n.Call)
		w.walkStmts(n.Body)

	case *template.AutoEscape:
		w.readExpr(n.Enabled)
		w.walkStmts(n.Body)
	}
}

func (w *walker) walkFor(n *template.For) {
	res, ok := canonicalize(n.Iter)
	if !ok {
		// complex iterable: capture the identifiers it contains
		w.readExpr(n.Iter)
		for _, target := range n.Targets {
			w.t.observeLoop(target, nil)
		}
	} else {
		for _, extra := range res.extraReads {
			w.readExpr(extra)
		}
		for _, target := range n.Targets {
			w.t.observeLoop(target, res.path)
		}
	}
	if n.Filter != nil {
		w.readExpr(n.Filter)
	}
	w.walkStmts(n.Body)
	w.walkStmts(n.Else)
}

// readExpr analyzes an expression in read context. Simple accessors
// become path reads; everything else recurses structurally with every
// sub-expression treated as a read. Literals contribute nothing.
func (w *walker) readExpr(e template.Expr) {
	if e == nil {
		return
	}
	if res, ok := canonicalize(e); ok {
		w.t.observeRead(res.path, res.viaIndex)
		for _, extra := range res.extraReads {
			w.readExpr(extra)
		}
		return
	}

	switch n := e.(type) {
	case *template.Ident:
		// only the `loop` intrinsic reaches here; canonicalize
		// handles every other identifier

	case *template.Const:
		// literals contribute nothing

	case *template.GetAttr:
		w.readExpr(n.Base)

	case *template.GetItem:
		w.readExpr(n.Base)
		w.readExpr(n.Index)

	case *template.Call:
		w.readExpr(n.Fn)
		for _, arg := range n.Args {
			w.readExpr(arg)
		}
		for _, kw := range n.Kwargs {
			w.readExpr(kw.Value)
		}

	case *template.Filter:
		w.readExpr(n.Expr)
		for _, arg := range n.Args {
			w.readExpr(arg)
		}
		for _, kw := range n.Kwargs {
			w.readExpr(kw.Value)
		}

	case *template.Test:
		w.readExpr(n.Expr)
		for _, arg := range n.Args {
			w.readExpr(arg)
		}

	case *template.BinOp:
		w.readExpr(n.Left)
		w.readExpr(n.Right)

	case *template.UnaryOp:
		w.readExpr(n.Expr)

	case *template.Cond:
		w.readExpr(n.Test)
		w.readExpr(n.Then)
		w.readExpr(n.Else)

	case *template.List:
		for _, item := range n.Items {
			w.readExpr(item)
		}

	case *template.Map:
		for _, key := range n.Keys {
			w.readExpr(key)
		}
		for _, value := range n.Values {
			w.readExpr(value)
		}

	case *template.Tuple:
		for _, item := range n.Items {
			w.readExpr(item)
		}
	}
}

// setRoot reduces a possibly dotted set target (namespace attribute
// assignment) to its root identifier.
func setRoot(target string) string {
	if i := strings.IndexByte(target, '.'); i >= 0 {
		return target[:i]
	}
	return target
}

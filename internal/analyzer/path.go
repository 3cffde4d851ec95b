package analyzer

import (
	"strings"

	"github.com/drbh/cleanplate/internal/template"
)

// Path is a canonical dotted address rooted at an identifier:
// [root, seg1, ..., segN]. Segments come from attribute access and
// string-literal subscripts; numeric subscripts and the loop.*
// namespace never contribute segments.
type Path []string

// Root returns the identifier at the base of the path.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Dotted renders the path as root.seg1.seg2.
func (p Path) Dotted() string {
	return strings.Join(p, ".")
}

// Suffix returns the segments after the root.
func (p Path) Suffix() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[1:]
}

// canonicalResult is what canonicalize produces for a simple accessor
// expression.
type canonicalResult struct {
	path Path
	// extraReads are subscript index expressions (a[b] reads b) that
	// the walker must analyze separately; they never extend the path.
	extraReads []template.Expr
	// viaIndex is set when a numeric subscript was traversed anywhere
	// in the chain. Attributes recorded past an index belong to the
	// element type, which only exists in the skeleton when the base is
	// iterated.
	viaIndex bool
}

// canonicalize flattens an attribute/subscript chain into a Path.
// Returns ok=false when the expression is not a simple accessor
// (literal, call, filter, arithmetic) or is rooted at the Jinja
// intrinsic `loop` namespace.
func canonicalize(e template.Expr) (canonicalResult, bool) {
	switch n := e.(type) {
	case *template.Ident:
		if n.Name == "loop" || n.Name == "" {
			return canonicalResult{}, false
		}
		return canonicalResult{path: Path{n.Name}}, true

	case *template.GetAttr:
		base, ok := canonicalize(n.Base)
		if !ok {
			return canonicalResult{}, false
		}
		base.path = extend(base.path, n.Name)
		return base, true

	case *template.GetItem:
		base, ok := canonicalize(n.Base)
		if !ok {
			return canonicalResult{}, false
		}
		switch idx := n.Index.(type) {
		case *template.Const:
			if s, isStr := idx.StringValue(); isStr {
				// obj['key'] normalizes to obj.key
				base.path = extend(base.path, s)
				return base, true
			}
			if idx.IsNumber() {
				// array indices do not differentiate shape
				base.viaIndex = true
				return base, true
			}
			return base, true
		default:
			// subscript by expression: the index is a read of its own,
			// the base path is unchanged
			base.extraReads = append(base.extraReads, n.Index)
			return base, true
		}

	default:
		return canonicalResult{}, false
	}
}

// extend copies before appending so sibling accessors never share a
// backing array.
func extend(p Path, seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

package analyzer

import (
	"sort"
	"strings"
)

// Skeleton synthesis reads the frozen tracker and produces a JSON
// value outlining the expected render context. Attribute observations
// made through aliases are re-homed onto their canonical roots here,
// at synthesis time, which keeps the tracker's write path O(1) per
// event.
//
// Iterable identity uses a canonical element-path key: a plain dotted
// path for top-level iterables ("messages"), with an "[]" marker at
// each loop boundary for nested ones ("messages[].tags"). Loop
// variables whose iterable is not a simple accessor have no stable
// element identity; their attributes stay out of the skeleton.

// iterKey returns the canonical element-path key for the iterable of
// loop variable name, or "" when the iterable has no stable identity.
func (t *tracker) iterKey(name string, visiting map[string]bool) string {
	p := t.loopVars[name]
	if len(p) == 0 {
		return ""
	}
	if visiting[name] {
		return ""
	}
	visiting[name] = true
	defer delete(visiting, name)

	root := t.resolveAliasChain(p.Root())
	rest := p.Suffix()
	if _, isLoop := t.loopVars[root]; isLoop {
		base := t.iterKey(root, visiting)
		if base == "" || len(rest) == 0 {
			return ""
		}
		return base + "[]." + strings.Join(rest, ".")
	}
	parts := append([]string{root}, rest...)
	return strings.Join(parts, ".")
}

// isIterated reports whether any loop variable iterates the given
// canonical element-path key.
func (t *tracker) isIterated(key string) bool {
	visiting := map[string]bool{}
	for lv := range t.loopVars {
		if t.iterKey(lv, visiting) == key {
			return true
		}
	}
	return false
}

// attrSuffixes collects attribute suffixes observed on the canonical
// name itself and on every alias resolving to it. Loop variables are
// their own canonical names (they are never alias keys), so the
// attributes of an induction variable are never absorbed by the
// iterable's root. indexed controls whether suffixes observed through
// a numeric subscript are included.
func (t *tracker) attrSuffixes(canonical string, indexed bool) []Path {
	var out []Path
	for root, attrs := range t.objectAttrs {
		if t.resolveAliasChain(root) != canonical {
			continue
		}
		for _, rec := range attrs {
			if rec.viaIndex && !indexed {
				continue
			}
			if suffix := rec.path.Suffix(); len(suffix) > 0 {
				out = append(out, suffix)
			}
		}
	}
	return out
}

// buildSkeleton synthesizes the root object. Only External
// identifiers appear at the root; internals and aliases are not
// context inputs and their contributions have been re-homed.
func (t *tracker) buildSkeleton() map[string]interface{} {
	skeleton := make(map[string]interface{})
	for name, class := range t.classes {
		if class != classExternal {
			continue
		}
		switch {
		case t.isIterated(name):
			skeleton[name] = []interface{}{t.buildElement(name)}
		default:
			suffixes := t.attrSuffixes(name, false)
			if len(suffixes) > 0 {
				skeleton[name] = t.buildObject(name, suffixes)
			} else {
				skeleton[name] = ""
			}
		}
	}
	return skeleton
}

// buildElement constructs the element schema for an iterable: the
// merged attributes of every induction variable that iterates it,
// plus, when the iterable is a top-level root, attributes observed
// directly on that root (including those reached through numeric
// subscripts). Direct observations on a nested iterable path
// ("user.orders") are not merged into its element schema.
func (t *tracker) buildElement(key string) map[string]interface{} {
	var suffixes []Path
	visiting := map[string]bool{}
	for lv := range t.loopVars {
		if t.iterKey(lv, visiting) == key {
			suffixes = append(suffixes, t.attrSuffixes(lv, true)...)
		}
	}
	// direct observations on a top-level iterable root merge into the
	// element object
	if !strings.Contains(key, "[]") && !strings.Contains(key, ".") {
		suffixes = append(suffixes, t.attrSuffixes(key, true)...)
	}
	return t.buildObject(key+"[]", suffixes)
}

// buildObject turns a set of suffix paths into a nested object. base
// carries the canonical element-path prefix so nested iterables can
// be recognized.
func (t *tracker) buildObject(base string, suffixes []Path) map[string]interface{} {
	heads := make(map[string][]Path)
	for _, s := range suffixes {
		if len(s) == 0 {
			continue
		}
		head := s[0]
		if tail := s.Suffix(); len(tail) > 0 {
			heads[head] = append(heads[head], tail)
		} else if _, ok := heads[head]; !ok {
			heads[head] = nil
		}
	}

	out := make(map[string]interface{}, len(heads))
	for head, tails := range heads {
		childKey := base + "." + head
		switch {
		case t.isIterated(childKey):
			out[head] = []interface{}{t.buildElement(childKey)}
		case len(tails) > 0:
			out[head] = t.buildObject(childKey, tails)
		default:
			out[head] = ""
		}
	}
	return out
}

// sortedKeys is shared by synthesis and the analysis accessors.
func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package analyzer

import (
	"go.uber.org/zap"
)

// varClass is the first-touch classification of an identifier.
// Classification is monotonic: once placed in a bucket an identifier
// never moves. Jinja bindings shadow rather than mutate, and the
// analyzer is a whole-template summary, not a scope-aware checker.
type varClass int

const (
	classExternal varClass = iota + 1
	classInternal
	classAlias
	classLoopVar
)

func (c varClass) String() string {
	switch c {
	case classExternal:
		return "external"
	case classInternal:
		return "internal"
	case classAlias:
		return "alias"
	case classLoopVar:
		return "loop"
	}
	return "unclassified"
}

// attrRecord is one observed access path rooted at an identifier.
type attrRecord struct {
	path Path
	// viaIndex marks paths observed through a numeric subscript; they
	// only reach the skeleton when the root is iterated.
	viaIndex bool
}

// tracker is the authoritative state of one analysis. Created empty,
// mutated only by the walker during a single traversal, frozen before
// synthesis reads it.
type tracker struct {
	classes  map[string]varClass
	aliases  map[string]string // alias target -> immediate source
	loopVars map[string]Path   // induction variable -> iterated path (nil if not canonical)
	// objectAttrs holds every observed multi-segment access, keyed by
	// root then by dotted path for set semantics.
	objectAttrs map[string]map[string]attrRecord
	logger      *zap.Logger
}

func newTracker(logger *zap.Logger) *tracker {
	return &tracker{
		classes:     make(map[string]varClass),
		aliases:     make(map[string]string),
		loopVars:    make(map[string]Path),
		objectAttrs: make(map[string]map[string]attrRecord),
		logger:      logger,
	}
}

func (t *tracker) trace(name, access string) {
	if t.logger != nil {
		t.logger.Debug("variable tracked",
			zap.String("name", name),
			zap.String("access", access))
	}
}

// observeRead records a read of a canonical path. The root is
// classified External on first touch; attribute observations are
// recorded for every root, including locals and aliases, so they can
// be re-homed onto canonical roots during synthesis.
func (t *tracker) observeRead(p Path, viaIndex bool) {
	root := p.Root()
	if root == "" || root == "loop" {
		return
	}
	t.trace(p.Dotted(), "read")

	if _, classified := t.classes[root]; !classified {
		t.classes[root] = classExternal
	}
	if len(p) >= 2 {
		t.recordAttr(root, p, viaIndex)
	}
}

func (t *tracker) recordAttr(root string, p Path, viaIndex bool) {
	attrs := t.objectAttrs[root]
	if attrs == nil {
		attrs = make(map[string]attrRecord)
		t.objectAttrs[root] = attrs
	}
	key := p.Dotted()
	if existing, ok := attrs[key]; ok {
		// a direct (non-indexed) observation outranks an indexed one
		if existing.viaIndex && !viaIndex {
			attrs[key] = attrRecord{path: p, viaIndex: false}
		}
		return
	}
	attrs[key] = attrRecord{path: p, viaIndex: viaIndex}
}

// observeSet records a binding. bare is true when the right-hand side
// is a single identifier, which makes target an alias of source.
// First touch wins: re-binding an already classified name is ignored
// for classification.
func (t *tracker) observeSet(target, source string, bare bool) {
	if target == "" {
		return
	}
	if bare {
		t.trace(target, "set alias to "+source)
	} else {
		t.trace(target, "set")
	}

	if _, classified := t.classes[target]; classified {
		return
	}
	if !bare {
		t.classes[target] = classInternal
		return
	}

	// Aliasing source must itself be classified.
	t.observeRead(Path{source}, false)

	// Cycle guard: if following aliases from source reaches target,
	// suppress the edge and classify target as a plain local.
	if t.wouldCycle(target, source) {
		t.classes[target] = classInternal
		return
	}
	t.aliases[target] = source
	t.classes[target] = classAlias
}

func (t *tracker) wouldCycle(target, source string) bool {
	seen := map[string]bool{}
	cur := source
	for {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		next, ok := t.aliases[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

// observeLoop records a for-loop induction variable. iter is nil when
// the iterable is not a simple accessor; the loop variable is still
// registered so attribute reads on it have a home.
func (t *tracker) observeLoop(target string, iter Path) {
	if target == "" {
		return
	}
	if iter != nil {
		t.trace(target, "loop var from "+iter.Dotted())
		t.observeRead(iter, false)
	} else {
		t.trace(target, "loop var from anonymous iterable")
	}

	if _, classified := t.classes[target]; classified {
		return
	}
	t.classes[target] = classLoopVar
	t.loopVars[target] = iter
}

// resolveAliasChain follows alias edges to the canonical root. The
// visited set is defense in depth; cycles cannot be constructed
// through observeSet.
func (t *tracker) resolveAliasChain(name string) string {
	cur := name
	seen := map[string]bool{}
	for {
		next, ok := t.aliases[cur]
		if !ok {
			return cur
		}
		if seen[next] {
			return cur
		}
		seen[cur] = true
		cur = next
	}
}

// validate checks the tracker invariants after the walk. A failure
// here means a walker bug, not a bad template.
func (t *tracker) validate() error {
	for target := range t.aliases {
		if t.classes[target] != classAlias {
			return analysisErrorf("alias key %q classified as %s", target, t.classes[target])
		}
		seen := map[string]bool{}
		cur := target
		for {
			if seen[cur] {
				return analysisErrorf("alias cycle through %q", target)
			}
			seen[cur] = true
			next, ok := t.aliases[cur]
			if !ok {
				break
			}
			cur = next
		}
	}
	for lv := range t.loopVars {
		if t.classes[lv] != classLoopVar {
			return analysisErrorf("loop var %q classified as %s", lv, t.classes[lv])
		}
	}
	for root, attrs := range t.objectAttrs {
		for _, rec := range attrs {
			if rec.path.Root() != root {
				return analysisErrorf("attribute path %q stored under root %q", rec.path.Dotted(), root)
			}
		}
	}
	return nil
}

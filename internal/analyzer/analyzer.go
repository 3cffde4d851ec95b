package analyzer

import (
	"sort"

	"go.uber.org/zap"

	"github.com/drbh/cleanplate/internal/template"
)

// TemplateAnalysis is the structured report for one template. All
// slices are sorted and all maps have deterministic JSON encodings,
// so byte-identical input always yields byte-identical output.
type TemplateAnalysis struct {
	// ExternalVars are identifiers the render context must supply.
	ExternalVars []string `json:"external_vars"`
	// InternalVars are identifiers bound by a non-aliasing set.
	InternalVars []string `json:"internal_vars"`
	// Aliases maps a set target to its immediate bare-identifier source.
	Aliases map[string]string `json:"aliases,omitempty"`
	// LoopVars maps each induction variable to the dotted path of its
	// iterable, with the root resolved through the alias graph. The
	// value is empty when the iterable is not a simple accessor.
	LoopVars map[string]string `json:"loop_vars"`
	// ObjectAttrs lists, per canonical root, every observed dotted
	// access path (attribute observations on aliases are re-homed).
	ObjectAttrs map[string][]string `json:"object_attrs"`
	// Skeleton is the synthesized shape of the expected context.
	Skeleton map[string]interface{} `json:"skeleton"`
}

// Analyze parses and analyzes a template source string.
//
// A syntactically invalid template yields the parser's *template.ParseError
// unchanged. An *AnalysisError indicates an internal invariant
// violation and should not occur on valid ASTs.
func Analyze(source string) (*TemplateAnalysis, error) {
	return AnalyzeWithLogger(source, nil)
}

// AnalyzeWithLogger is Analyze with verbose tracing: every tracker
// event is logged at debug level. A nil logger disables tracing.
func AnalyzeWithLogger(source string, logger *zap.Logger) (analysis *TemplateAnalysis, err error) {
	tpl, err := template.Parse(source, "<string>")
	if err != nil {
		return nil, err
	}
	return AnalyzeTemplate(tpl, logger)
}

// AnalyzeTemplate analyzes an already-parsed template.
func AnalyzeTemplate(tpl *template.Template, logger *zap.Logger) (analysis *TemplateAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			analysis = nil
			err = analysisErrorf("panic during walk: %v", r)
		}
	}()

	t := newTracker(logger)
	w := &walker{t: t}
	w.walkTemplate(tpl)

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t.toAnalysis(), nil
}

// toAnalysis freezes the tracker into the public report.
func (t *tracker) toAnalysis() *TemplateAnalysis {
	a := &TemplateAnalysis{
		ExternalVars: []string{},
		InternalVars: []string{},
		LoopVars:     make(map[string]string, len(t.loopVars)),
		ObjectAttrs:  make(map[string][]string),
	}

	for name, class := range t.classes {
		switch class {
		case classExternal:
			a.ExternalVars = append(a.ExternalVars, name)
		case classInternal:
			a.InternalVars = append(a.InternalVars, name)
		}
	}
	sort.Strings(a.ExternalVars)
	sort.Strings(a.InternalVars)

	if len(t.aliases) > 0 {
		a.Aliases = make(map[string]string, len(t.aliases))
		for target, source := range t.aliases {
			a.Aliases[target] = source
		}
	}

	for lv, p := range t.loopVars {
		if len(p) == 0 {
			a.LoopVars[lv] = ""
			continue
		}
		parts := append([]string{t.resolveAliasChain(p.Root())}, p.Suffix()...)
		a.LoopVars[lv] = Path(parts).Dotted()
	}

	// Re-home attribute observations onto canonical roots. Rewriting
	// the head preserves the invariant that every stored path starts
	// with its key.
	rehomed := make(map[string]map[string]bool)
	for root, attrs := range t.objectAttrs {
		canonical := t.resolveAliasChain(root)
		set := rehomed[canonical]
		if set == nil {
			set = make(map[string]bool)
			rehomed[canonical] = set
		}
		for _, rec := range attrs {
			parts := append([]string{canonical}, rec.path.Suffix()...)
			set[Path(parts).Dotted()] = true
		}
	}
	for canonical, set := range rehomed {
		a.ObjectAttrs[canonical] = sortedKeys(set)
	}

	a.Skeleton = t.buildSkeleton()
	return a
}

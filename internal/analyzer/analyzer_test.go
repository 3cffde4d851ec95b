package analyzer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drbh/cleanplate/internal/template"
)

func skeletonJSON(t *testing.T, a *TemplateAnalysis) string {
	t.Helper()
	data, err := json.Marshal(a.Skeleton)
	require.NoError(t, err)
	return string(data)
}

func TestAnalyze_SimpleRead(t *testing.T) {
	analysis, err := Analyze("{{ name }}")
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, analysis.ExternalVars)
	assert.Empty(t, analysis.InternalVars)
	assert.Empty(t, analysis.LoopVars)
	assert.Equal(t, `{"name":""}`, skeletonJSON(t, analysis))
}

func TestAnalyze_AttributeChain(t *testing.T) {
	analysis, err := Analyze("{{ user.address.city }}")
	require.NoError(t, err)

	assert.Equal(t, []string{"user"}, analysis.ExternalVars)
	assert.Equal(t, []string{"user.address.city"}, analysis.ObjectAttrs["user"])
	assert.Equal(t, `{"user":{"address":{"city":""}}}`, skeletonJSON(t, analysis))
}

func TestAnalyze_AliasAndLoop(t *testing.T) {
	src := `{% set loop_messages = messages %}` +
		`{% for message in loop_messages %}` +
		`{{ message['role'] }}{{ message['content']|trim }}` +
		`{% endfor %}` +
		`{% if add_generation_prompt %}{{ bos_token }}{% endif %}`

	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"add_generation_prompt", "bos_token", "messages"}, analysis.ExternalVars)
	assert.Empty(t, analysis.InternalVars)
	assert.Equal(t, map[string]string{"loop_messages": "messages"}, analysis.Aliases)
	assert.Equal(t, map[string]string{"message": "messages"}, analysis.LoopVars)
	assert.Equal(t,
		`{"add_generation_prompt":"","bos_token":"","messages":[{"content":"","role":""}]}`,
		skeletonJSON(t, analysis))
}

func TestAnalyze_StringVsIntegerSubscript(t *testing.T) {
	analysis, err := Analyze("{{ a['k'] }}{{ a[0] }}")
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, analysis.ExternalVars)
	assert.Equal(t, []string{"a.k"}, analysis.ObjectAttrs["a"])
	assert.Equal(t, `{"a":{"k":""}}`, skeletonJSON(t, analysis))
}

func TestAnalyze_ComplexSet(t *testing.T) {
	analysis, err := Analyze("{% set s = x + y %}{{ s }}")
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, analysis.ExternalVars)
	assert.Equal(t, []string{"s"}, analysis.InternalVars)
	assert.Equal(t, `{"x":"","y":""}`, skeletonJSON(t, analysis))
}

func TestAnalyze_NestedLoop(t *testing.T) {
	src := `{% for m in messages %}{% for tag in m.tags %}{{ tag.name }}{% endfor %}{% endfor %}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"messages"}, analysis.ExternalVars)
	assert.Equal(t, map[string]string{"m": "messages", "tag": "m.tags"}, analysis.LoopVars)
	assert.Equal(t, `{"messages":[{"tags":[{"name":""}]}]}`, skeletonJSON(t, analysis))
}

func TestAnalyze_LoopNamespaceDropped(t *testing.T) {
	src := `{% for i in items %}{{ loop.index }}{{ loop.first }}{{ i.x }}{% endfor %}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"items"}, analysis.ExternalVars)
	assert.NotContains(t, analysis.ObjectAttrs, "loop")
	assert.Equal(t, `{"items":[{"x":""}]}`, skeletonJSON(t, analysis))
}

func TestAnalyze_SelfAliasIsSafe(t *testing.T) {
	analysis, err := Analyze("{% set x = x %}{{ x }}")
	require.NoError(t, err)

	// First touch on the RHS read wins; the set is a classification
	// no-op and no alias edge is recorded.
	assert.Equal(t, []string{"x"}, analysis.ExternalVars)
	assert.Empty(t, analysis.InternalVars)
	assert.Empty(t, analysis.Aliases)
}

func TestAnalyze_EmptyTemplate(t *testing.T) {
	analysis, err := Analyze("just plain text, no expressions")
	require.NoError(t, err)

	assert.Empty(t, analysis.ExternalVars)
	assert.Empty(t, analysis.InternalVars)
	assert.Empty(t, analysis.LoopVars)
	assert.Equal(t, `{}`, skeletonJSON(t, analysis))
}

func TestAnalyze_IndexedAttributeIgnoredUnlessIterated(t *testing.T) {
	// Attribute reached through a numeric subscript stays out of the
	// skeleton when the base is never iterated...
	analysis, err := Analyze("{{ a[1].x }}")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.x"}, analysis.ObjectAttrs["a"])
	assert.Equal(t, `{"a":""}`, skeletonJSON(t, analysis))

	// ...but merges into the element schema when it is.
	analysis, err = Analyze("{% for v in a %}{{ v.y }}{% endfor %}{{ a[1].x }}")
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"x":"","y":""}]}`, skeletonJSON(t, analysis))
}

func TestAnalyze_MultiLevelAlias(t *testing.T) {
	src := `{% set b = a %}{% set c = b %}{% for x in c %}{{ x.v }}{% endfor %}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, analysis.ExternalVars)
	assert.Equal(t, map[string]string{"b": "a", "c": "b"}, analysis.Aliases)
	assert.Equal(t, map[string]string{"x": "a"}, analysis.LoopVars)
	assert.Equal(t, `{"a":[{"v":""}]}`, skeletonJSON(t, analysis))
}

func TestAnalyze_SharedIterableMergesAttrs(t *testing.T) {
	src := `{% for m in messages %}{{ m.role }}{% endfor %}` +
		`{% for msg in messages %}{{ msg.content }}{% endfor %}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, `{"messages":[{"content":"","role":""}]}`, skeletonJSON(t, analysis))
}

func TestAnalyze_ComplexIterableAttrsStayOffSkeleton(t *testing.T) {
	src := `{% for m in messages|selectattr('role') %}{{ m.content }}{% endfor %}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	// The iterable has no stable identity; the induction variable
	// keeps its attributes but the skeleton only sees the filter input.
	assert.Equal(t, []string{"messages"}, analysis.ExternalVars)
	assert.Equal(t, "", analysis.LoopVars["m"])
	assert.Equal(t, []string{"m.content"}, analysis.ObjectAttrs["m"])
	assert.Equal(t, `{"messages":""}`, skeletonJSON(t, analysis))
}

func TestAnalyze_SubscriptByVariable(t *testing.T) {
	analysis, err := Analyze("{{ a[b] }}")
	require.NoError(t, err)

	// a[b] reads b but does not extend a's path.
	assert.Equal(t, []string{"a", "b"}, analysis.ExternalVars)
	assert.NotContains(t, analysis.ObjectAttrs, "a")
	assert.Equal(t, `{"a":"","b":""}`, skeletonJSON(t, analysis))
}

func TestAnalyze_FirstTouchIsMonotonic(t *testing.T) {
	// name is read before being set; the later set must not demote it.
	analysis, err := Analyze("{{ name }}{% set name = 'x' %}{{ name }}")
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, analysis.ExternalVars)
	assert.Empty(t, analysis.InternalVars)
}

func TestAnalyze_NamespaceAssignment(t *testing.T) {
	src := `{% set ns = namespace(found=false) %}` +
		`{% for m in messages %}{% set ns.found = true %}{% endfor %}` +
		`{{ ns.found }}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"messages", "namespace"}, analysis.ExternalVars)
	assert.Equal(t, []string{"ns"}, analysis.InternalVars)
}

func TestAnalyze_Deterministic(t *testing.T) {
	src := `{% for m in msgs %}{{ m.b }}{{ m.a }}{% endfor %}{{ z }}{{ y }}`
	first, err := Analyze(src)
	require.NoError(t, err)
	second, err := Analyze(src)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestAnalyze_ParseErrorSurfacedVerbatim(t *testing.T) {
	_, err := Analyze("{{ unclosed")
	require.Error(t, err)

	var parseErr *template.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestAnalyze_SkeletonRootsAreExternal(t *testing.T) {
	src := `{% set local = a.b %}{% for m in items %}{{ m.x }}{% endfor %}{{ c|upper }}`
	analysis, err := Analyze(src)
	require.NoError(t, err)

	external := map[string]bool{}
	for _, v := range analysis.ExternalVars {
		external[v] = true
	}
	for root := range analysis.Skeleton {
		assert.True(t, external[root], "skeleton root %q must be external", root)
	}
}

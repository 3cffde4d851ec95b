// Package analyzer performs static variable-usage analysis of parsed
// Jinja-style templates. It classifies every identifier a template
// touches (external context input, internal local, alias, loop
// variable), tracks nested attribute access through alias chains, and
// synthesizes a JSON skeleton describing the shape of the render
// context the template expects.
package analyzer

import "fmt"

// AnalysisError reports an internal invariant violation during the
// walk. It should not occur on any AST the parser produces; the
// analyzer returns it instead of a partial result.
type AnalysisError struct {
	Msg string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis: %s", e.Msg)
}

func analysisErrorf(format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Msg: fmt.Sprintf(format, args...)}
}

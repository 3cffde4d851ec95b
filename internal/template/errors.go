package template

import "fmt"

// ParseError reports a syntax error in a template. It carries the
// template name and the 1-based line the lexer or parser was on when
// the error was detected.
type ParseError struct {
	Name string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Name, e.Line, e.Msg)
}

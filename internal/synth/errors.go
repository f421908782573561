package synth

import "fmt"

// ExprErrorKind classifies an ExpressionError.
type ExprErrorKind int

const (
	// ExprParse means the expression did not compile.
	ExprParse ExprErrorKind = iota
	// ExprInvalid means the expression evaluated to NaN or Inf at the test point.
	ExprInvalid
	// ExprEval means evaluation failed at run time.
	ExprEval
)

// ExpressionError reports a rejected oscilloscope expression. Axis is "X"
// or "Y"; Position is the 1-based column of a parse error.
type ExpressionError struct {
	Axis     string
	Kind     ExprErrorKind
	Position int
	Msg      string
}

func (e *ExpressionError) Error() string {
	switch e.Kind {
	case ExprParse:
		if e.Msg != "" {
			return fmt.Sprintf("%s expression error at position %d: %s", e.Axis, e.Position, e.Msg)
		}
		return fmt.Sprintf("%s expression error at position %d", e.Axis, e.Position)
	case ExprInvalid:
		return fmt.Sprintf("%s expression produces invalid values (NaN/Inf)", e.Axis)
	default:
		return fmt.Sprintf("%s expression evaluation failed: %s", e.Axis, e.Msg)
	}
}

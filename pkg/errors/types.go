// Package errors defines the structured error taxonomy shared by every breve
// package: loader, compiler, cache, flatten and render failures all surface
// as *BreveError values carrying a type, a stable code and the template
// location when one is known.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeTemplateNotFound ErrorType = "template_not_found"
	ErrorTypeCompile          ErrorType = "compile"
	ErrorTypeUnresolvedName   ErrorType = "unresolved_name"
	ErrorTypeFlatten          ErrorType = "flatten"
	ErrorTypeLoader           ErrorType = "loader"
	ErrorTypeEvaluation       ErrorType = "evaluation"
	ErrorTypeConfig           ErrorType = "config"
	ErrorTypeInternal         ErrorType = "internal"
)

// BreveError is a structured error type with context.
type BreveError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Template    string
	Line        int
	Column      int
	Suggestions []string
}

// Error implements the error interface.
func (e *BreveError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		location := e.Template
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		result += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BreveError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BreveError) Is(target error) bool {
	var t *BreveError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithContext adds context information to the error.
func (e *BreveError) WithContext(key string, value interface{}) *BreveError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Clone returns a copy of e that can be annotated without affecting e.
func (e *BreveError) Clone() *BreveError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	c.Suggestions = append([]string(nil), e.Suggestions...)
	if len(c.Suggestions) == 0 {
		c.Suggestions = nil
	}

	return &c
}

// WithLocation adds template location information. Existing location data
// is kept so the innermost failure site wins.
func (e *BreveError) WithLocation(template string, line, column int) *BreveError {
	if e.Template == "" {
		e.Template = template
	}
	if e.Line == 0 {
		e.Line = line
		e.Column = column
	}

	return e
}

// WithSuggestions attaches close matches for the failing name.
func (e *BreveError) WithSuggestions(suggestions ...string) *BreveError {
	e.Suggestions = append(e.Suggestions, suggestions...)

	return e
}

// Sentinel values usable with errors.Is.
var (
	ErrTemplateNotFound = &BreveError{Type: ErrorTypeTemplateNotFound}
	ErrCompile          = &BreveError{Type: ErrorTypeCompile}
	ErrUnresolvedName   = &BreveError{Type: ErrorTypeUnresolvedName}
	ErrFlatten          = &BreveError{Type: ErrorTypeFlatten}
	ErrLoader           = &BreveError{Type: ErrorTypeLoader}
	ErrEvaluation       = &BreveError{Type: ErrorTypeEvaluation}
	ErrConfig           = &BreveError{Type: ErrorTypeConfig}
)

// Error creation functions

// NewTemplateNotFound creates an error for a template id no loader resolves.
func NewTemplateNotFound(template string, cause error) *BreveError {
	return &BreveError{
		Type:     ErrorTypeTemplateNotFound,
		Code:     ErrCodeTemplateNotFound,
		Message:  "template not found",
		Cause:    cause,
		Template: template,
	}
}

// NewCompileError creates a compile error.
func NewCompileError(template, message string, cause error) *BreveError {
	return &BreveError{
		Type:     ErrorTypeCompile,
		Code:     ErrCodeCompileFailed,
		Message:  message,
		Cause:    cause,
		Template: template,
	}
}

// NewUnresolvedNameError creates an error for a failed scope lookup.
func NewUnresolvedNameError(name string) *BreveError {
	return &BreveError{
		Type:    ErrorTypeUnresolvedName,
		Code:    ErrCodeUnresolvedName,
		Message: fmt.Sprintf("unresolved name %q", name),
	}
}

// NewFlattenError creates an error for a value that cannot be serialized.
func NewFlattenError(message string, cause error) *BreveError {
	return &BreveError{
		Type:    ErrorTypeFlatten,
		Code:    ErrCodeFlattenFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewEvaluationError creates an error for a failing call or operator while a
// compiled unit is evaluated.
func NewEvaluationError(code, message string) *BreveError {
	return &BreveError{
		Type:    ErrorTypeEvaluation,
		Code:    code,
		Message: message,
	}
}

// NewLoaderError creates an I/O error raised while reading template source.
func NewLoaderError(template, message string, cause error) *BreveError {
	return &BreveError{
		Type:     ErrorTypeLoader,
		Code:     ErrCodeLoaderFailed,
		Message:  message,
		Cause:    cause,
		Template: template,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *BreveError {
	return &BreveError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *BreveError {
	return &BreveError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsTemplateNotFound checks if an error reports a missing template.
func IsTemplateNotFound(err error) bool {
	return isType(err, ErrorTypeTemplateNotFound)
}

// IsCompileError checks if an error is a compile error.
func IsCompileError(err error) bool {
	return isType(err, ErrorTypeCompile)
}

// IsUnresolvedName checks if an error is a failed scope lookup.
func IsUnresolvedName(err error) bool {
	return isType(err, ErrorTypeUnresolvedName)
}

// IsFlattenError checks if an error is a serialization failure.
func IsFlattenError(err error) bool {
	return isType(err, ErrorTypeFlatten)
}

// IsEvaluationError checks if an error was raised by a call or operator.
func IsEvaluationError(err error) bool {
	return isType(err, ErrorTypeEvaluation)
}

// IsLoaderError checks if an error is a loader I/O failure.
func IsLoaderError(err error) bool {
	return isType(err, ErrorTypeLoader)
}

func isType(err error, t ErrorType) bool {
	var be *BreveError
	if errors.As(err, &be) {
		return be.Type == t
	}

	return false
}

// AsBreveError extracts the first *BreveError in err's chain.
func AsBreveError(err error) (*BreveError, bool) {
	var be *BreveError
	if errors.As(err, &be) {
		return be, true
	}

	return nil, false
}

// Common error codes.
const (
	ErrCodeTemplateNotFound = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeCompileFailed    = "ERR_COMPILE_FAILED"
	ErrCodeUnsupportedExpr  = "ERR_UNSUPPORTED_EXPRESSION"
	ErrCodeUnresolvedName   = "ERR_UNRESOLVED_NAME"
	ErrCodeNotCallable      = "ERR_NOT_CALLABLE"
	ErrCodeBadArguments     = "ERR_BAD_ARGUMENTS"
	ErrCodeBadOperand       = "ERR_BAD_OPERAND"
	ErrCodeCallFailed       = "ERR_CALL_FAILED"
	ErrCodeFlattenFailed    = "ERR_FLATTEN_FAILED"
	ErrCodeLoaderFailed     = "ERR_LOADER_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeStackEmpty       = "ERR_STACK_EMPTY"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

package errors

import (
	"fmt"
	"strings"
	"sync"
)

// RenderFailure records one failed template render.
type RenderFailure struct {
	Template string
	Err      error
}

// Error implements the error interface
func (rf *RenderFailure) Error() string {
	return fmt.Sprintf("%s: %v", rf.Template, rf.Err)
}

// Unwrap returns the wrapped render error
func (rf *RenderFailure) Unwrap() error {
	return rf.Err
}

// ErrorCollector collects failures across several renders
type ErrorCollector struct {
	failures []RenderFailure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]RenderFailure, 0),
	}
}

// Add records a failure for a template; nil errors are ignored
func (ec *ErrorCollector) Add(template string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, RenderFailure{Template: template, Err: err})
}

// Failures returns a copy of the collected failures
func (ec *ErrorCollector) Failures() []RenderFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]RenderFailure, len(ec.failures))
	copy(result, ec.failures)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// ByType returns failures whose chain holds a BreveError of the given type
func (ec *ErrorCollector) ByType(t ErrorType) []RenderFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []RenderFailure
	for _, f := range ec.failures {
		if isType(f.Err, t) {
			out = append(out, f)
		}
	}
	return out
}

// Err folds the collected failures into a single error, or nil
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	switch len(ec.failures) {
	case 0:
		return nil
	case 1:
		f := ec.failures[0]
		return &f
	}
	lines := make([]string, 0, len(ec.failures))
	for _, f := range ec.failures {
		lines = append(lines, f.Error())
	}
	return fmt.Errorf("%d templates failed:\n  %s", len(ec.failures), strings.Join(lines, "\n  "))
}

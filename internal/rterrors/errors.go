// Package rterrors provides the driver's error taxonomy (spec §7) wrapped
// in a categorized, contextual error type in the style of the teacher's
// centralized errors package, minus its telemetry reporting hook (this
// driver has no external telemetry backend in scope).
package rterrors

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Code is the host-facing return code taxonomy from spec §7.
type Code string

const (
	OK                Code = "ok"
	NotPresent        Code = "not-present"
	InvalidParameter  Code = "invalid-parameter"
	InvalidMode       Code = "invalid-mode"
	NoClock           Code = "no-clock"
	HWMalfunction     Code = "hw-malfunction"
	FormatUnsupported Code = "format-unsupported"
)

// DriverError wraps an underlying error with a host-facing Code, the
// component that raised it, and free-form diagnostic context.
type DriverError struct {
	err       error
	component string
	code      Code
	context   map[string]any
	timestamp time.Time
	mu        sync.RWMutex
}

func (e *DriverError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.component, e.code)
	}
	return fmt.Sprintf("%s [%s]: %v", e.component, e.code, e.err)
}

func (e *DriverError) Unwrap() error {
	return e.err
}

// Is supports errors.Is comparisons against another *DriverError by Code.
func (e *DriverError) Is(target error) bool {
	var de *DriverError
	if errors.As(target, &de) {
		return e.code == de.code
	}
	return false
}

// Code returns the host-facing return code for this error.
func (e *DriverError) Code() Code {
	return e.code
}

// Component returns the subsystem that raised the error.
func (e *DriverError) Component() string {
	return e.component
}

// Context returns a copy of the diagnostic context attached to this error.
func (e *DriverError) Context() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.context == nil {
		return nil
	}
	out := make(map[string]any, len(e.context))
	maps.Copy(out, e.context)
	return out
}

// Timestamp returns when the error was constructed.
func (e *DriverError) Timestamp() time.Time {
	return e.timestamp
}

// Builder provides the fluent construction style used throughout the
// driver: rterrors.New(err).Component("sink").WithCode(rterrors.HWMalfunction).
// Context("endpoint_id", id).Build().
type Builder struct {
	err       error
	component string
	code      Code
	context   map[string]any
}

// New starts a builder wrapping err (which may be nil for a freshly
// synthesized error).
func New(err error) *Builder {
	return &Builder{err: err}
}

// Newf starts a builder wrapping a formatted error.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the subsystem name.
func (b *Builder) Component(component string) *Builder {
	b.component = component
	return b
}

// WithCode sets the host-facing return code.
func (b *Builder) WithCode(code Code) *Builder {
	b.code = code
	return b
}

// Context attaches a diagnostic key/value pair.
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error.
func (b *Builder) Build() *DriverError {
	code := b.code
	if code == "" {
		code = HWMalfunction
	}
	return &DriverError{
		err:       b.err,
		component: b.component,
		code:      code,
		context:   b.context,
		timestamp: time.Now(),
	}
}

// CodeOf extracts the Code from err if it is (or wraps) a *DriverError,
// defaulting to HWMalfunction for any other non-nil error and OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var de *DriverError
	if errors.As(err, &de) {
		return de.code
	}
	return HWMalfunction
}

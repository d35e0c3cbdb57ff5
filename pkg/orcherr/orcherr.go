// Package orcherr defines the closed error taxonomy shared by every
// component of the orchestration core. Each variant carries a message and
// an optional cause; callers classify failures with errors.As rather than
// string matching.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy variant an Error belongs to.
type Kind string

const (
	// KindConfiguration marks a missing prompt template, an empty candidate
	// list for a usage tag, or another invalid startup configuration. Fatal.
	KindConfiguration Kind = "configuration"

	// KindProviderTransport marks a network or HTTP error talking to a model
	// or store provider. Recoverable by candidate fallback.
	KindProviderTransport Kind = "provider_transport"

	// KindProviderAuth marks a 401/403 (or equivalent) from a provider. The
	// owning connection is marked INVALID; not retried.
	KindProviderAuth Kind = "provider_auth"

	// KindSchemaViolation marks an LLM response that failed JSON parsing or
	// schema validation. Recoverable within a retry budget.
	KindSchemaViolation Kind = "schema_violation"

	// KindUnknownTool marks a planner reference to a tool absent from the
	// registry.
	KindUnknownTool Kind = "unknown_tool"

	// KindToolError marks a tool Error result. The step fails; the plan does
	// not.
	KindToolError Kind = "tool_error"

	// KindToolStop marks a tool Stop result. The plan fails.
	KindToolStop Kind = "tool_stop"

	// KindCancellation marks caller cancellation. Always propagated
	// untransformed.
	KindCancellation Kind = "cancellation"
)

// Error is the concrete type for every orcherr variant.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, orcherr.New(orcherr.KindToolStop, "")) style checks,
// or more commonly compare via Is-helpers below.
func (e *Error) Is(target error) bool {
	var o *Error
	if !errors.As(target, &o) {
		return false
	}
	return o.Kind == e.Kind
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var o *Error
	if !errors.As(err, &o) {
		return false
	}
	return o.Kind == kind
}

// Configuration constructs a KindConfiguration error.
func Configuration(message string) *Error { return New(KindConfiguration, message) }

// ProviderTransport constructs a KindProviderTransport error wrapping cause.
func ProviderTransport(message string, cause error) *Error {
	return Wrap(KindProviderTransport, message, cause)
}

// ProviderAuth constructs a KindProviderAuth error wrapping cause.
func ProviderAuth(message string, cause error) *Error {
	return Wrap(KindProviderAuth, message, cause)
}

// SchemaViolation constructs a KindSchemaViolation error wrapping cause.
func SchemaViolation(message string, cause error) *Error {
	return Wrap(KindSchemaViolation, message, cause)
}

// UnknownTool constructs a KindUnknownTool error for the named tool.
func UnknownTool(name string) *Error {
	return Newf(KindUnknownTool, "unknown tool %q", name)
}

// Cancellation wraps ctx.Err() (or an equivalent) as a KindCancellation
// error, preserving Unwrap so errors.Is(err, context.Canceled) still works.
func Cancellation(cause error) *Error {
	return Wrap(KindCancellation, "cancelled", cause)
}

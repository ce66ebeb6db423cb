// Package gwerrors defines the closed error_class taxonomy (spec §7) shared
// by every component so that HTTP/WS responses, emitted mcp.error.* events,
// and log lines all agree on the same vocabulary.
package gwerrors

// Class is one of the closed error_class kinds from spec §7.
type Class string

const (
	ClassConfig     Class = "config"
	ClassAuth       Class = "auth"
	ClassAuthz      Class = "authz"
	ClassQuota      Class = "quota"
	ClassValidation Class = "validation"
	ClassExecution  Class = "execution"
	ClassDeploy     Class = "deploy"
	ClassTransport  Class = "transport"
)

// Error is a classified, structured gateway error.
type Error struct {
	Class   Class
	Code    string // short machine code, e.g. "replay_detected"
	Message string // short, actionable, user-visible sentence
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// New builds a classified error.
func New(class Class, code, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

// WithDetails attaches structured detail fields (e.g. current/expected
// version on a version_conflict) and returns the same error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Structured is the wire shape every failure surfaces as: spec §7.
type Structured struct {
	OK      bool           `json:"ok"`
	Class   Class          `json:"error_class,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ToStructured converts a classified error (or any error) into the wire shape.
func ToStructured(err error) Structured {
	if err == nil {
		return Structured{OK: true}
	}
	if ge, ok := err.(*Error); ok {
		return Structured{OK: false, Class: ge.Class, Error: ge.Code, Details: ge.Details}
	}
	return Structured{OK: false, Class: ClassExecution, Error: "other", Details: map[string]any{"message": err.Error()}}
}

// Retryable reports true for the transport class and for execution errors
// with code "timeout". No case covers an upstream 5xx: an execution error
// with any other code returns false.
func Retryable(class Class, code string) bool {
	if class == ClassTransport {
		return true
	}
	if class == ClassExecution && code == "timeout" {
		return true
	}
	return false
}

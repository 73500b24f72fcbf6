package faults

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a fault so handlers can map it to a transport status
// without inspecting message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindStateConflict
	KindDependency
)

// Fault is the domain error type shared by all services.
type Fault struct {
	Kind    Kind
	Code    string
	Message string

	// CurrentStatus is set on state conflicts so the caller can explain
	// the failure to a human.
	CurrentStatus string
	// RetryAt is set on cooldown-style conflicts (earliest allowed retry).
	RetryAt *time.Time

	cause error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.cause)
	}
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.cause
}

func Validation(code, format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Authorization(code, format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindAuthorization, Code: code, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(code, format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindStateConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Dependency wraps a storage or downstream collaborator failure.
func Dependency(code string, cause error) *Fault {
	return &Fault{Kind: KindDependency, Code: code, Message: "dependency failure", cause: cause}
}

// WithStatus attaches the current record status to a conflict fault.
func (f *Fault) WithStatus(status string) *Fault {
	f.CurrentStatus = status
	return f
}

// WithRetryAt attaches the earliest allowed retry time to a conflict fault.
func (f *Fault) WithRetryAt(t time.Time) *Fault {
	f.RetryAt = &t
	return f
}

// KindOf reports the kind of err, or KindUnknown for non-fault errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// CodeOf reports the machine code of err, or "" for non-fault errors.
func CodeOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// As extracts the fault from err if present.
func As(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)
	return f, ok
}

// HTTPStatus maps a fault kind to an HTTP status code. Unknown errors map
// to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindStateConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

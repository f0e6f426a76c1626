// Package errorutil defines the structured failures surfaced by an analysis run.
package errorutil

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindSchema marks an empty or malformed feature source. Fatal to the run.
	KindSchema Kind = iota + 1
	// KindInsufficientData marks detector parameters that are infeasible for the row count.
	// Only the affected detector fails.
	KindInsufficientData
	// KindConfiguration marks an out-of-range parameter, detected before any model is fitted.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "SchemaError"
	case KindInsufficientData:
		return "InsufficientDataError"
	case KindConfiguration:
		return "ConfigurationError"
	default:
		return "UnknownError"
	}
}

// Error is a structured failure: kind, message and the offending parameter.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Param)
}

// Schema creates a SchemaError.
func Schema(param, format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Message: fmt.Sprintf(format, args...), Param: param}
}

// InsufficientData creates an InsufficientDataError.
func InsufficientData(param, format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientData, Message: fmt.Sprintf(format, args...), Param: param}
}

// Configuration creates a ConfigurationError.
func Configuration(param, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...), Param: param}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsSchema reports whether err is a SchemaError.
func IsSchema(err error) bool { return KindOf(err) == KindSchema }

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool { return KindOf(err) == KindInsufficientData }

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

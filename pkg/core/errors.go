package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrImageDecode          = errors.New("image decode error")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrInsufficientGeometry = errors.New("insufficient geometry")
	ErrInvalidGeometry      = errors.New("invalid geometry")
	ErrExportIO             = errors.New("export I/O error")
)

// Pipeline stage names used in error context
const (
	StageOptions    = "options"
	StageDecode     = "decode"
	StagePreprocess = "preprocess"
	StageDepth      = "depth"
	StageProject    = "project"
	StageMesh       = "mesh"
	StageExport     = "export"
	StageInspect    = "inspect"
)

// StageError records which stage failed, the error kind and the offending value
type StageError struct {
	Stage  string
	Kind   error
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	msg := e.Stage + ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a StageError with a formatted detail message
func NewError(stage string, kind error, format string, args ...any) error {
	return &StageError{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError builds a StageError around an underlying cause
func WrapError(stage string, kind error, err error, format string, args ...any) error {
	return &StageError{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the error kind carried by err, or nil if it has none
func KindOf(err error) error {
	for _, kind := range []error{ErrImageDecode, ErrInvalidParameter, ErrInsufficientGeometry, ErrInvalidGeometry, ErrExportIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

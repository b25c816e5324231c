package model

import (
	"errors"
	"fmt"
)

// ErrStaleIdentity is returned when an action references a query identity
// that is no longer registered. Callers treat it as a no-op.
var ErrStaleIdentity = errors.New("stale query identity")

// ErrMissingCredential marks a ConfigurationError caused by an absent credential.
var ErrMissingCredential = errors.New("missing credential")

// ExtractionError reports malformed source; no candidates are produced.
type ExtractionError struct {
	FilePath string
	Line     int
	Msg      string
}

func (e *ExtractionError) Error() string {
	if e.FilePath == "" {
		return fmt.Sprintf("extract: line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("extract %s:%d: %s", e.FilePath, e.Line, e.Msg)
}

// ConfigurationError blocks analysis until the user fixes configuration.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AnalysisUnavailableError means the verdict engine could not be reached or
// failed as a whole. Registry state for the file is left untouched.
type AnalysisUnavailableError struct {
	Source string
	Detail string
	Err    error
}

func (e *AnalysisUnavailableError) Error() string {
	msg := fmt.Sprintf("analysis unavailable (%s)", e.Source)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisUnavailableError) Unwrap() error { return e.Err }

// ResponseFormatError means the verdict payload could not be decoded at all.
type ResponseFormatError struct {
	Source string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("malformed verdict payload from %s: %v", e.Source, e.Err)
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// StaleIdentityError carries the identity an action referenced.
type StaleIdentityError struct {
	Identity QueryIdentity
}

func (e *StaleIdentityError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Identity, ErrStaleIdentity)
}

func (e *StaleIdentityError) Unwrap() error { return ErrStaleIdentity }

// FileError attaches file path context to a component error.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// WithPath wraps err with file path context unless it already carries it.
func WithPath(path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FileError
	if errors.As(err, &fe) && fe.Path == path {
		return err
	}
	return &FileError{Path: path, Err: err}
}

// Package apperr defines the error taxonomy shared by the pipeline stages
// and the API layer.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes by the API handlers.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Stage identifies the pipeline stage an error originated from.
type Stage string

const (
	StageFetch         Stage = "fetch"
	StageTranscription Stage = "transcription"
	StageSummarization Stage = "summarization"
	StageWrite         Stage = "write"
	StageStore         Stage = "store"
)

// StageError carries the failing stage, the underlying cause, and whether
// the failure is transient (retry-worthy) or terminal for the run.
type StageError struct {
	Stage     Stage
	Transient bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Fetch wraps err as a terminal fetch failure.
func Fetch(err error) *StageError {
	return &StageError{Stage: StageFetch, Err: err}
}

// FetchTransient wraps err as a retry-worthy fetch failure.
func FetchTransient(err error) *StageError {
	return &StageError{Stage: StageFetch, Transient: true, Err: err}
}

// Transcription wraps err as a transcription failure. Never transient:
// audio/model failures are surfaced, not retried.
func Transcription(err error) *StageError {
	return &StageError{Stage: StageTranscription, Err: err}
}

// Summarization wraps err as a summarization failure.
func Summarization(err error, transient bool) *StageError {
	return &StageError{Stage: StageSummarization, Transient: transient, Err: err}
}

// Write wraps err as a terminal filesystem failure.
func Write(err error) *StageError {
	return &StageError{Stage: StageWrite, Err: err}
}

// Store wraps err as a terminal persistence failure.
func Store(err error) *StageError {
	return &StageError{Stage: StageStore, Err: err}
}

// StageOf returns the stage of err if it is (or wraps) a StageError.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// IsTransient reports whether err is a transient stage failure.
func IsTransient(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Transient
}

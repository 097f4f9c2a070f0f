package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	EXIT_OK         = 0
	EXIT_CONFIG     = 1
	EXIT_CONNECTION = 2
	EXIT_READ       = 3
	EXIT_SUBMISSION = 4
)

// ConnectionError means the stream handle could not be acquired.
type ConnectionError struct {
	IRI string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to stream %s: %v", e.IRI, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadError carries every variable whose read failed during one run.
type ReadError struct {
	Failed map[string]error
}

func (e *ReadError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("read %d variable(s) failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *ReadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// SubmissionError means the record was not accepted by a sink.
type SubmissionError struct {
	Sink string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit record to %s: %v", e.Sink, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func exit_code(err error) int {
	var connErr *ConnectionError
	var readErr *ReadError
	var subErr *SubmissionError

	switch {
	case err == nil:
		return EXIT_OK
	case errors.As(err, &connErr):
		return EXIT_CONNECTION
	case errors.As(err, &readErr):
		return EXIT_READ
	case errors.As(err, &subErr):
		return EXIT_SUBMISSION
	default:
		return EXIT_CONFIG
	}
}

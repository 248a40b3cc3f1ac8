package main

import (
	"errors"

	"goalline/internal/engine"
	"goalline/internal/repo"
	"goalline/internal/staging"
	"goalline/internal/wizard"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitUsage      = 3
	exitCommit     = 4
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// exitCode prefers an explicit code, then classifies known domain errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	var commitErr *engine.CommitError
	var unresolved *engine.UnresolvedError
	switch {
	case errors.Is(err, engine.ErrNotCommittable), errors.As(err, &unresolved):
		return exitValidation
	case errors.As(err, &commitErr), errors.Is(err, engine.ErrAlreadyCommitted):
		return exitCommit
	case errors.Is(err, wizard.ErrNoSession), errors.Is(err, staging.ErrUnknownEntity), errors.Is(err, repo.ErrNotFound):
		return exitUsage
	}
	return exitFailure
}

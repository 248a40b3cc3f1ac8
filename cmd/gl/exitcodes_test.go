package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"goalline/internal/engine"
	"goalline/internal/repo"
	"goalline/internal/wizard"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"explicit", withCode(exitUsage, errors.New("bad flag")), exitUsage},
		{"validation", &engine.CommitError{Phase: "validate", Err: engine.ErrNotCommittable}, exitValidation},
		{"unresolved", fmt.Errorf("log: %w", &engine.UnresolvedError{}), exitValidation},
		{"store failure", &engine.CommitError{Phase: "goals", Err: errors.New("disk full")}, exitCommit},
		{"already committed", &engine.CommitError{Phase: "precondition", Err: engine.ErrAlreadyCommitted}, exitCommit},
		{"no session", wizard.ErrNoSession, exitUsage},
		{"not found", fmt.Errorf("goal x: %w", repo.ErrNotFound), exitUsage},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
	assert.NoError(t, withCode(exitUsage, nil))
}

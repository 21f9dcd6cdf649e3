package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, ""},
		{Validationf("name is required"), CodeValidation},
		{NotFoundf("process %d not found", 7), CodeNotFound},
		{Conflictf("busy"), CodeConflict},
		{fmt.Errorf("add web: %w", ErrDuplicateName), CodeConflict},
		{Timeoutf("timed out"), CodeTimeout},
		{Execution(errors.New("exec: not found"), "start failed"), CodeExecution},
		{errors.New("plain"), CodeExecution},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CodeOf(c.err), "err=%v", c.err)
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := Execution(cause, "start process %d", 3)
	assert.Equal(t, "start process 3: permission denied", err.Error())
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDuplicateNameIsConflict(t *testing.T) {
	err := fmt.Errorf("name %q: %w", "api", ErrDuplicateName)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.ErrorIs(t, err, ErrConflict)
}

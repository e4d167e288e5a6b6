package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Invalid("bad"), http.StatusBadRequest},
		{Unauthorized("no"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("twice"), http.StatusConflict},
		{Unavailable("later"), http.StatusServiceUnavailable},
		{Internal(errors.New("boom"), "Failed"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	err := fmt.Errorf("loading race: %w", NotFound("Race not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Race not found", Message(err, "fallback"))
	assert.Equal(t, "fallback", Message(errors.New("raw"), "fallback"))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "Failed to fetch games")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, 404, NotFound("x").HTTPStatus())
	require.Equal(t, 400, InvalidInput("x").HTTPStatus())
	require.Equal(t, 409, Conflict("x").HTTPStatus())
	require.Equal(t, 200, New(KindHashChainViolation, CodeHashChainViolation, "mismatch").HTTPStatus())
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("db timeout")
	err := Internal(cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "db timeout")
}

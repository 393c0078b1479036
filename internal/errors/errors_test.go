package errors_test

import (
	stderrors "errors"
	"io"
	"testing"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	t.Run("auth error defaults to invalid credentials", func(t *testing.T) {
		err := &apperrors.AuthError{Username: "alice"}
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Contains(t, err.Error(), `"alice"`)
	})

	t.Run("auth error keeps transport cause", func(t *testing.T) {
		cause := apperrors.NewTransient("login", io.ErrUnexpectedEOF)
		err := &apperrors.AuthError{Username: "alice", Err: cause}
		require.ErrorIs(t, err, apperrors.ErrTransientNetwork)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("session expired carries both sentinel and cause", func(t *testing.T) {
		err := apperrors.NewSessionExpired(apperrors.ErrInvalidRefreshToken)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

		var expired *apperrors.SessionExpiredError
		require.True(t, apperrors.As(err, &expired))
	})

	t.Run("permission denied", func(t *testing.T) {
		err := error(&apperrors.PermissionDenied{Resource: "/api/fees/base", Detail: "fee:read"})
		require.ErrorIs(t, err, apperrors.ErrPermissionDenied)
		require.False(t, stderrors.Is(err, apperrors.ErrSessionExpired))
	})
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "nothing"))

	err := apperrors.Wrapf(apperrors.ErrNotFound, "[Store Get] key %s", "access_token")
	require.EqualError(t, err, "[Store Get] key access_token: not found")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	manager := NewCSRFManager("test-secret")

	token := manager.Token("session-token")
	require.NotEmpty(t, token)
	require.NoError(t, manager.Verify("session-token", token))

	// Same session always derives the same token.
	require.Equal(t, token, manager.Token("session-token"))
}

func TestCSRFVerifyRejectsForeignToken(t *testing.T) {
	manager := NewCSRFManager("test-secret")

	otherSession := manager.Token("other-session")
	err := manager.Verify("session-token", otherSession)
	require.True(t, errors.Is(err, ErrCSRFTokenMismatch))
}

func TestCSRFVerifyRejectsMissingToken(t *testing.T) {
	manager := NewCSRFManager("test-secret")

	err := manager.Verify("session-token", "")
	require.True(t, errors.Is(err, ErrCSRFTokenMissing))
}

func TestCSRFSecretsAreIndependent(t *testing.T) {
	a := NewCSRFManager("secret-a")
	b := NewCSRFManager("secret-b")

	require.NotEqual(t, a.Token("session-token"), b.Token("session-token"))
	err := b.Verify("session-token", a.Token("session-token"))
	require.True(t, errors.Is(err, ErrCSRFTokenMismatch))
}

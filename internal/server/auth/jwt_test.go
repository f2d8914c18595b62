package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestResumeToken_RoundTrip(t *testing.T) {
	token, err := GenerateResumeToken("acc-1", testSecret, time.Minute)
	require.NoError(t, err)

	accountID, err := AccountIDFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", accountID)
}

func TestResumeToken_Expired(t *testing.T) {
	token, err := GenerateResumeToken("acc-1", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = AccountIDFromToken(token, testSecret)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestResumeToken_WrongSecret(t *testing.T) {
	token, err := GenerateResumeToken("acc-1", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = AccountIDFromToken(token, []byte("other-secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestResumeToken_Garbage(t *testing.T) {
	_, err := AccountIDFromToken("not.a.jwt", testSecret)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

package auth

import (
	"strings"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
)

// NewApiKeyToken generates a fresh opaque API key token: the fixed 3-char
// prefix followed by 32 random hex characters, 35 characters total.
func NewApiKeyToken() (string, error) {
	suffix, err := common.MakeRandHexString((protocol.ApiKeyLength - len(protocol.ApiKeyPrefix)) / 2)
	if err != nil {
		return "", err
	}
	return protocol.ApiKeyPrefix + suffix, nil
}

// ValidTokenShape reports whether the token has the fixed prefix and total
// length. Shape is checked before any storage lookup so malformed tokens
// never hit the database.
func ValidTokenShape(token string) bool {
	return len(token) == protocol.ApiKeyLength && strings.HasPrefix(token, protocol.ApiKeyPrefix)
}

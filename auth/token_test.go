package auth

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenService_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenService("a_secret_long_enough_for_hs256_signing")

	// Given a token issued for alice
	token, err := tokens.GenerateToken("alice", []string{"user"}, time.Minute)
	req.NoError(err)

	// When it is validated, with or without the Bearer prefix
	userID, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), userID)

	userID, err = tokens.ValidateToken("Bearer " + token)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), userID)
}

func TestTokenService_Rejects_Invalid_Tokens(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenService("a_secret_long_enough_for_hs256_signing")
	other := NewTokenService("another_secret_long_enough_for_hs256")

	expired, err := tokens.GenerateToken("alice", nil, -time.Minute)
	req.NoError(err)
	foreign, err := other.GenerateToken("alice", nil, time.Minute)
	req.NoError(err)
	badIdentity, err := tokens.GenerateToken("ali:ce", nil, time.Minute)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Garbage", "not-a-jwt"},
		{"Expired", expired},
		{"Signed by another secret", foreign},
		{"Identity breaking key prefixes", badIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrUnauthenticated)
		})
	}
}

package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	secret := "client-secret-0001"
	hash, err := svc.Hash(secret)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	match, err := svc.Verify(secret, hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = svc.Verify("client-secret-0002", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("same-secret")
	require.NoError(t, err)
	hash2, err := svc.Hash("same-secret")
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash2)
}

func TestArgon2HashService_VerifyMalformed(t *testing.T) {
	svc := NewArgon2HashService()

	tests := []struct {
		name string
		hash string
	}{
		{"garbage", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5"},
		{"wrong version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$a2V5"},
		{"bad params", "$argon2id$v=19$m=x$c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$***$a2V5"},
		{"empty key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify("secret", tt.hash)
			assert.Error(t, err)
		})
	}
}

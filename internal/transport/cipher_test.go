package transport

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box := NewSecretBox("shared secret")

	sealed, err := box.Encrypt("NUC:Station1:Experience:Launch:620")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "Experience")

	plain, err := NewSecretBox("shared secret").Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "NUC:Station1:Experience:Launch:620", plain)

	// Nonces are random
	again, err := box.Encrypt("NUC:Station1:Experience:Launch:620")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestSecretBoxRejects(t *testing.T) {
	box := NewSecretBox("shared secret")
	sealed, err := box.Encrypt("hello")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name  string
		box   *SecretBox
		input string
	}{
		{name: "wrong key", box: NewSecretBox("other"), input: sealed},
		{name: "tampered", box: box, input: tampered},
		{name: "not base64", box: box, input: "NUC:Station1:Connection"},
		{name: "too short", box: box, input: base64.StdEncoding.EncodeToString([]byte("tiny"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.box.Decrypt(tt.input)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestNewCipher(t *testing.T) {
	assert.IsType(t, Plain{}, NewCipher(""))
	assert.IsType(t, &SecretBox{}, NewCipher("key"))

	text, err := Plain{}.Decrypt("as is")
	require.NoError(t, err)
	assert.Equal(t, "as is", text)
}

package wallet_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
)

func TestEncryptWithPassword(t *testing.T) {
	plaintext := []byte("super confidential wallet history")

	data, err := wallet.EncryptWithPassword("Pa55w0rd", plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(data), string(plaintext))

	decrypted, err := wallet.DecryptWithPassword("Pa55w0rd", data)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)

	_, err = wallet.DecryptWithPassword("wrong", data)
	require.Error(t, err)
}

func TestEncryptWithPasswordErrors(t *testing.T) {
	_, err := wallet.EncryptWithPassword("", []byte("data"))
	require.EqualError(t, err, wallet.ErrNullPassphrase.Error())

	_, err = wallet.DecryptWithPassword("", []byte("data"))
	require.EqualError(t, err, wallet.ErrNullPassphrase.Error())

	_, err = wallet.DecryptWithPassword("Pa55w0rd", make([]byte, 16))
	require.EqualError(t, err, wallet.ErrInvalidCypherText.Error())
}

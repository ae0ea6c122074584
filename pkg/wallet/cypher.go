package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/scrypt"
)

// encryptWithKey seals the plaintext with AES-256-GCM and prepends the random
// nonce to the ciphertext.
func encryptWithKey(key, plaintext []byte) ([]byte, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptWithKey opens a nonce-prefixed AES-256-GCM ciphertext.
func decryptWithKey(key, data []byte) ([]byte, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, text, nil)
}

// EncryptWithPassword seals the plaintext with a key stretched from the
// passphrase. The 32-byte scrypt salt is appended to the ciphertext.
func EncryptWithPassword(passphrase string, plaintext []byte) ([]byte, error) {
	if len(passphrase) <= 0 {
		return nil, ErrNullPassphrase
	}
	key, salt, err := deriveKey([]byte(passphrase), nil)
	if err != nil {
		return nil, err
	}
	ciphertext, err := encryptWithKey(key, plaintext)
	if err != nil {
		return nil, err
	}
	return append(ciphertext, salt...), nil
}

// DecryptWithPassword opens a ciphertext produced by EncryptWithPassword.
func DecryptWithPassword(passphrase string, data []byte) ([]byte, error) {
	if len(passphrase) <= 0 {
		return nil, ErrNullPassphrase
	}
	if len(data) <= 32 {
		return nil, ErrInvalidCypherText
	}
	salt, text := data[len(data)-32:], data[:len(data)-32]
	key, _, err := deriveKey([]byte(passphrase), salt)
	if err != nil {
		return nil, err
	}
	return decryptWithKey(key, text)
}

// deriveKey derives a 32 byte array key from a custom passhprase
func deriveKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	// 2^20 = 1048576 recommended length for key-stretching
	// check the doc for other recommended values:
	// https://godoc.org/golang.org/x/crypto/scrypt
	key, err := scrypt.Key(passphrase, salt, 1048576, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// SerializeEncrypted returns the update encrypted with the wallet cipher key.
func (u *Update) SerializeEncrypted(cipherKey []byte) ([]byte, error) {
	plaintext, err := u.Serialize()
	if err != nil {
		return nil, err
	}
	return encryptWithKey(cipherKey, plaintext)
}

// DeserializeDecrypted decrypts and decodes an update sealed with
// SerializeEncrypted.
func DeserializeDecrypted(cipherKey, data []byte) (*Update, error) {
	plaintext, err := decryptWithKey(cipherKey, data)
	if err != nil {
		return nil, err
	}
	return Deserialize(plaintext)
}

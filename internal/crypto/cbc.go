package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dtroode/secret-relay/internal/model"
)

// IVSize is the length of the IV prefix of every blob.
const IVSize = aes.BlockSize

var _ model.Cipher = (*CBC)(nil)

// CBC encrypts with AES in CBC mode and PKCS#7 padding.
//
// Blob layout: IV (16 bytes) followed by the ciphertext, whose length is a
// positive multiple of the block size.
type CBC struct {
	random io.Reader
}

// CBCOption configures a CBC cipher.
type CBCOption func(*CBC)

// WithRandom sets the IV source. Defaults to crypto/rand.
func WithRandom(r io.Reader) CBCOption {
	return func(c *CBC) {
		c.random = r
	}
}

// NewCBC creates a CBC cipher.
func NewCBC(opts ...CBCOption) *CBC {
	c := &CBC{random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt pads plaintext and encrypts it under key with a fresh random IV.
func (c *CBC) Encrypt(plaintext []byte, key model.Key) (model.Blob, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)

	blob := make([]byte, IVSize+len(padded))
	iv := blob[:IVSize]
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(blob[IVSize:], padded)

	return blob, nil
}

// Decrypt splits off the IV, decrypts the remaining ciphertext and strips
// padding. Any failure, whatever its cause, is reported as model.ErrDecrypt.
func (c *CBC) Decrypt(blob model.Blob, key model.Key) ([]byte, error) {
	if len(blob) < IVSize+aes.BlockSize || (len(blob)-IVSize)%aes.BlockSize != 0 {
		return nil, model.ErrDecrypt
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, model.ErrDecrypt
	}

	iv, ciphertext := blob[:IVSize], blob[IVSize:]

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, ok := unpad(padded, aes.BlockSize)
	if !ok {
		return nil, model.ErrDecrypt
	}

	return plaintext, nil
}

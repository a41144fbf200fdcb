package service

import (
	"encoding/base64"

	"github.com/dtroode/secret-relay/internal/model"
)

// Diagnostics decrypts raw blobs with caller-supplied keys. It never touches
// the key deriver or the store and is meant for operators only.
type Diagnostics struct {
	cipher model.Cipher
}

func NewDiagnostics(cipher model.Cipher) *Diagnostics {
	return &Diagnostics{cipher: cipher}
}

// DecryptRaw decodes a base64 blob and a base64 key and decrypts the blob.
// Malformed base64 is a validation error; everything else that goes wrong
// is model.ErrDecrypt.
func (s *Diagnostics) DecryptRaw(blobB64, keyB64 string) (string, error) {
	blob, err := model.ParseBlob(blobB64)
	if err != nil {
		return "", model.NewValidationError("payload", "not valid base64")
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", model.NewValidationError("key", "not valid base64")
	}

	plaintext, err := s.cipher.Decrypt(blob, model.Key(key))
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

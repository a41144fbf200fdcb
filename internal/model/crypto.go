package model

// Key is a symmetric per-user key.
type Key []byte

// KeyDeriver turns a user identifier into a stable symmetric key.
type KeyDeriver interface {
	DeriveKey(userID string) Key
}

// Cipher encrypts payloads into self-describing blobs and back.
// Decrypt reports every failure as ErrDecrypt.
type Cipher interface {
	Encrypt(plaintext []byte, key Key) (Blob, error)
	Decrypt(blob Blob, key Key) ([]byte, error)
}

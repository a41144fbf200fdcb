package handler

import (
	"net/http"

	"github.com/dtroode/secret-relay/internal/logger"
)

// Decryptor decrypts raw blobs with explicit keys.
type Decryptor interface {
	DecryptRaw(blobB64, keyB64 string) (string, error)
}

type decryptRequest struct {
	Payload string `json:"payload" validate:"required,base64"`
	Key     string `json:"key" validate:"required,base64"`
}

type decryptResponse struct {
	Plaintext string `json:"plaintext"`
}

// Debug serves operator diagnostics. It must only be mounted when debug
// mode is on.
type Debug struct {
	decryptor Decryptor
	logger    *logger.Logger
}

func NewDebug(decryptor Decryptor, logger *logger.Logger) *Debug {
	return &Debug{decryptor: decryptor, logger: logger}
}

// Decrypt handles POST /debug/decrypt.
func (h *Debug) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "payload and key must be base64")
		return
	}

	plaintext, err := h.decryptor.DecryptRaw(req.Payload, req.Key)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, decryptResponse{Plaintext: plaintext})
}

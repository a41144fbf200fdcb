package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/secret-relay/internal/model"
	"github.com/dtroode/secret-relay/internal/testutil"
)

type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Submit(ctx context.Context, userID, plaintext string, ttl time.Duration) (model.SubmitResult, error) {
	args := m.Called(ctx, userID, plaintext, ttl)
	return args.Get(0).(model.SubmitResult), args.Error(1)
}

func (m *MockRelay) Fetch(ctx context.Context, userID string) ([]model.FetchedMessage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FetchedMessage), args.Error(1)
}

type MockDecryptor struct {
	mock.Mock
}

func (m *MockDecryptor) DecryptRaw(blobB64, keyB64 string) (string, error) {
	args := m.Called(blobB64, keyB64)
	return args.String(0), args.Error(1)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestRouter(relay Relay, decryptor Decryptor) http.Handler {
	lg := testutil.MakeNoopLogger()
	msg := NewMessage(relay, lg)
	dbg := NewDebug(decryptor, lg)

	r := chi.NewRouter()
	r.Post("/messages", msg.Submit)
	r.Get("/messages/{userID}", msg.Fetch)
	r.Post("/debug/decrypt", dbg.Decrypt)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMessage_Submit(t *testing.T) {
	id := uuid.MustParse("6f1c1f2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f")
	expires := time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC)
	ok := model.SubmitResult{ID: id, Index: 2, ExpiresAt: expires}

	tests := []struct {
		name       string
		body       string
		setup      func(*MockRelay)
		wantStatus int
		wantBody   string
	}{
		{
			name: "default expiry",
			body: `{"userId":"u1","message":"hi"}`,
			setup: func(m *MockRelay) {
				m.On("Submit", mock.Anything, "u1", "hi", time.Duration(0)).Return(ok, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true,"message_id":2,"id":"6f1c1f2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f","expires_at":"2025-01-01T12:10:00Z"}`,
		},
		{
			name: "explicit expiry",
			body: `{"userId":"u1","message":"hi","expiryMinutes":1.5}`,
			setup: func(m *MockRelay) {
				m.On("Submit", mock.Anything, "u1", "hi", 90*time.Second).Return(ok, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing user",
			body:       `{"message":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"Missing userId or message"}`,
		},
		{
			name:       "empty message",
			body:       `{"userId":"u1","message":""}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"Missing userId or message"}`,
		},
		{
			name:       "negative expiry",
			body:       `{"userId":"u1","message":"hi","expiryMinutes":-1}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"invalid expiryMinutes: must be positive"}`,
		},
		{
			name:       "expiry rounds down to zero",
			body:       `{"userId":"u1","message":"hi","expiryMinutes":1e-12}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"invalid expiryMinutes: must be positive"}`,
		},
		{
			name:       "expiry overflows duration",
			body:       `{"userId":"u1","message":"hi","expiryMinutes":1e300}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"invalid expiryMinutes: too large"}`,
		},
		{
			name:       "malformed json",
			body:       `{"userId":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "service validation error",
			body: `{"userId":"u1","message":"hi","expiryMinutes":100000}`,
			setup: func(m *MockRelay) {
				m.On("Submit", mock.Anything, "u1", "hi", mock.Anything).
					Return(model.SubmitResult{}, model.NewValidationError("ttl", "must not exceed 24h0m0s"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store full",
			body: `{"userId":"u1","message":"hi"}`,
			setup: func(m *MockRelay) {
				m.On("Submit", mock.Anything, "u1", "hi", time.Duration(0)).
					Return(model.SubmitResult{}, model.ErrStoreCapacity)
			},
			wantStatus: http.StatusInsufficientStorage,
		},
		{
			name: "internal error is not echoed",
			body: `{"userId":"u1","message":"hi"}`,
			setup: func(m *MockRelay) {
				m.On("Submit", mock.Anything, "u1", "hi", time.Duration(0)).
					Return(model.SubmitResult{}, errors.New("db password wrong"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"success":false,"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &MockRelay{}
			if tt.setup != nil {
				tt.setup(relay)
			}

			rec := do(newTestRouter(relay, &MockDecryptor{}), http.MethodPost, "/messages", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			relay.AssertExpectations(t)
		})
	}
}

func TestMessage_Fetch(t *testing.T) {
	content := "secret"
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("mixed content", func(t *testing.T) {
		relay := &MockRelay{}
		relay.On("Fetch", mock.Anything, "u1").Return([]model.FetchedMessage{
			{ID: uuid.New(), Content: &content, Timestamp: ts},
			{ID: uuid.New(), Content: nil, Timestamp: ts.Add(time.Second)},
		}, nil)

		rec := do(newTestRouter(relay, &MockDecryptor{}), http.MethodGet, "/messages/u1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[
			{"content":"secret","timestamp":"2025-01-01T12:00:00Z"},
			{"content":null,"timestamp":"2025-01-01T12:00:01Z"}
		]`, rec.Body.String())
	})

	t.Run("no messages is an empty array", func(t *testing.T) {
		relay := &MockRelay{}
		relay.On("Fetch", mock.Anything, "u2").Return([]model.FetchedMessage{}, nil)

		rec := do(newTestRouter(relay, &MockDecryptor{}), http.MethodGet, "/messages/u2", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		relay := &MockRelay{}
		relay.On("Fetch", mock.Anything, "u1").Return(nil, errors.New("boom"))

		rec := do(newTestRouter(relay, &MockDecryptor{}), http.MethodGet, "/messages/u1", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestDebug_Decrypt(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*MockDecryptor)
		wantStatus int
		wantBody   string
	}{
		{
			name: "ok",
			body: `{"payload":"AAAA","key":"BBBB"}`,
			setup: func(m *MockDecryptor) {
				m.On("DecryptRaw", "AAAA", "BBBB").Return("Hello, world!", nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"plaintext":"Hello, world!"}`,
		},
		{
			name: "decrypt failure",
			body: `{"payload":"AAAA","key":"BBBB"}`,
			setup: func(m *MockDecryptor) {
				m.On("DecryptRaw", "AAAA", "BBBB").Return("", model.ErrDecrypt)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"success":false,"error":"decryption failed"}`,
		},
		{
			name:       "not base64",
			body:       `{"payload":"not base64!","key":"BBBB"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing key",
			body:       `{"payload":"AAAA"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &MockDecryptor{}
			if tt.setup != nil {
				tt.setup(dec)
			}

			rec := do(newTestRouter(&MockRelay{}, dec), http.MethodPost, "/debug/decrypt", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			dec.AssertExpectations(t)
		})
	}
}

func TestHealth_Check(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "store down", pingErr: errors.New("refused"), wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"unavailable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &MockPinger{}
			p.On("Ping", mock.Anything).Return(tt.pingErr)

			h := NewHealth(testutil.MakeNoopLogger(), p)
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}

	t.Run("no dependencies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealth(testutil.MakeNoopLogger()).Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHandleError_BodyTooLarge(t *testing.T) {
	relay := &MockRelay{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 8)
		NewMessage(relay, testutil.MakeNoopLogger()).Submit(w, r)
	})

	rec := do(h, http.MethodPost, "/messages", `{"userId":"u1","message":"much too long"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	relay.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronmgdr/paper-hearts/internal/crypto"
	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/handlers"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

// mockUserStorage is a mock implementation of storage.UserStorage for testing
type mockUserStorage struct {
	users map[string]*models.User
}

func (m *mockUserStorage) GetUser(ctx context.Context, publicKey string) (*models.User, error) {
	user, ok := m.users[publicKey]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetPartner(ctx context.Context, pairID, selfKey string) (*models.User, error) {
	return nil, storage.ErrPartnerNotFound
}

func (m *mockUserStorage) UpdatePushSubscription(ctx context.Context, publicKey, endpoint, p256dh, auth string) error {
	return nil
}

func (m *mockUserStorage) ClearPushSubscription(ctx context.Context, publicKey string) error {
	return nil
}

func (m *mockUserStorage) DeleteUserCascade(ctx context.Context, publicKey string) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signRequest подписывает запрос так, как это делает клиент
func signRequest(t *testing.T, r *http.Request, priv ed25519.PrivateKey, pubB64, timestamp string, body []byte) {
	t.Helper()

	payload := crypto.CanonicalPayload(r.Method, r.URL.RequestURI(), timestamp, body)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload))

	r.Header.Set("Authorization", "Signature "+sig)
	r.Header.Set("X-Public-Key", pubB64)
	r.Header.Set("X-Timestamp", timestamp)
}

func newTestIdentity(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pub), priv
}

func authedMux(users storage.UserStorage, seen *struct{ publicKey, pairID string }) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.publicKey, _ = handlers.GetPublicKey(r.Context())
		seen.pairID, _ = handlers.GetPairID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return SignatureAuth(testLogger(), users)(next)
}

func TestSignatureAuth_Success(t *testing.T) {
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{
		pubB64: {PublicKey: pubB64, PairID: "pair-1"},
	}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	body := []byte(`{"dayId":"2026-02-15","payload":"WA=="}`)
	r := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewReader(body))
	signRequest(t, r, priv, pubB64, time.Now().UTC().Format(time.RFC3339), body)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pubB64, seen.publicKey)
	assert.Equal(t, "pair-1", seen.pairID)
}

func TestSignatureAuth_QueryStringIsSigned(t *testing.T) {
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{
		pubB64: {PublicKey: pubB64, PairID: "pair-1"},
	}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	// Подпись покрывает путь с query string
	r := httptest.NewRequest(http.MethodGet, "/api/entries?since=2026-01-01", nil)
	signRequest(t, r, priv, pubB64, time.Now().UTC().Format(time.RFC3339), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	// Та же подпись с другим query не проходит
	r2 := httptest.NewRequest(http.MethodGet, "/api/entries?since=2026-02-01", nil)
	r2.Header = r.Header.Clone()

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestSignatureAuth_MissingHeaders(t *testing.T) {
	pubB64, _ := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	tests := []struct {
		name string
		mod  func(r *http.Request)
	}{
		{
			name: "no headers at all",
			mod:  func(r *http.Request) {},
		},
		{
			name: "missing signature",
			mod: func(r *http.Request) {
				r.Header.Set("X-Public-Key", pubB64)
				r.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
			},
		},
		{
			name: "missing public key",
			mod: func(r *http.Request) {
				r.Header.Set("Authorization", "Signature abc")
				r.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
			},
		},
		{
			name: "wrong auth scheme",
			mod: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer abc")
				r.Header.Set("X-Public-Key", pubB64)
				r.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/pairs/status", nil)
			tt.mod(r)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
		})
	}
}

func TestSignatureAuth_StaleTimestamp(t *testing.T) {
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{
		pubB64: {PublicKey: pubB64, PairID: "pair-1"},
	}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	// Подпись валидна, но timestamp за пределами окна 5 минут
	stale := time.Now().UTC().Add(-6 * time.Minute).Format(time.RFC3339)
	r := httptest.NewRequest(http.MethodGet, "/api/pairs/status", nil)
	signRequest(t, r, priv, pubB64, stale, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignatureAuth_TamperedBody(t *testing.T) {
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{
		pubB64: {PublicKey: pubB64, PairID: "pair-1"},
	}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	body := []byte(`{"dayId":"2026-02-15"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewReader([]byte(`{"dayId":"2026-02-16"}`)))
	signRequest(t, r, priv, pubB64, time.Now().UTC().Format(time.RFC3339), body)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignatureAuth_UnknownUser(t *testing.T) {
	// Криптографически валидная подпись незарегистрированным ключом
	// не дает доступа: ключ обязан быть в users
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{}}

	var seen struct{ publicKey, pairID string }
	handler := authedMux(users, &seen)

	r := httptest.NewRequest(http.MethodGet, "/api/pairs/status", nil)
	signRequest(t, r, priv, pubB64, time.Now().UTC().Format(time.RFC3339), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignatureAuth_BodyRemainsReadable(t *testing.T) {
	pubB64, priv := newTestIdentity(t)
	users := &mockUserStorage{users: map[string]*models.User{
		pubB64: {PublicKey: pubB64, PairID: "pair-1"},
	}}

	var got []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		got, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})
	handler := SignatureAuth(testLogger(), users)(next)

	body := []byte(`{"payload":"WA=="}`)
	r := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewReader(body))
	signRequest(t, r, priv, pubB64, time.Now().UTC().Format(time.RFC3339), body)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, got)
}

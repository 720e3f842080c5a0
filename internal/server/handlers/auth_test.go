package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/pkg/api"
)

func registerUser(t *testing.T, h *AuthHandler, username string) api.RegisterResponse {
	t.Helper()

	body, err := json.Marshal(api.RegisterRequest{Username: username})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Register(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestAuthHandler_Register(t *testing.T) {
	s := newTestStorage(t)
	h := NewAuthHandler(testLogger(), s, testJWTConfig())

	resp := registerUser(t, h, "alice")
	assert.NotEmpty(t, resp.UserID)
	assert.NotEmpty(t, resp.AccessKey, "the access key is returned exactly once")

	// Повторная регистрация того же имени.
	body, _ := json.Marshal(api.RegisterRequest{Username: "alice"})
	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Невалидное имя.
	body, _ = json.Marshal(api.RegisterRequest{Username: "a!"})
	w = httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Login(t *testing.T) {
	s := newTestStorage(t)
	h := NewAuthHandler(testLogger(), s, testJWTConfig())

	registered := registerUser(t, h, "alice")

	login := func(username, key string) *httptest.ResponseRecorder {
		body, err := json.Marshal(api.LoginRequest{Username: username, AccessKey: key})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
		return w
	}

	w := login("alice", registered.AccessKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var token api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&token))
	assert.Equal(t, "Bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)
	assert.Positive(t, token.ExpiresIn)

	// Токен валиден и несет user_id из регистрации.
	claims, err := ValidateAccessToken(testJWTConfig(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	assert.Equal(t, http.StatusUnauthorized, login("alice", "wrong-key").Code)
	assert.Equal(t, http.StatusUnauthorized, login("nobody", registered.AccessKey).Code)
	assert.Equal(t, http.StatusBadRequest, login("alice", "").Code)
}

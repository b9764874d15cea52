package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/database"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/security"
	"github.com/username/cryptocgt/backend/src/services"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		JWTSecret:                "test-jwt-secret-at-least-32-bytes-long!",
		AccessTokenExpiry:        15 * time.Minute,
		RefreshTokenExpiry:       7 * 24 * time.Hour,
		VerificationTokenExpiry:  24 * time.Hour,
		PasswordResetTokenExpiry: time.Hour,
		MaxUploadSizeBytes:       10 * 1024 * 1024,
		TaxRate:                  decimal.RequireFromString("0.33"),
		AnnualExemption:          decimal.RequireFromString("1270"),
		FiscalYearStartMonth:     time.April,
		FiscalYearStartDay:       6,
	}

	dbPath := filepath.Join(os.TempDir(), fmt.Sprintf("cryptocgt_handlers_test_%d.db", time.Now().UnixNano()))
	database.InitDB(dbPath)

	code := m.Run()
	database.DB.Close()
	os.Remove(dbPath)
	os.Exit(code)
}

func newTestUserHandler() *UserHandler {
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	return NewUserHandler(authService, &services.MockEmailService{})
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func registerUser(t *testing.T, h *UserHandler, username, email, password string) {
	t.Helper()
	rr := postJSON(t, h.RegisterUserHandler, "/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rr.Code, "register response: %s", rr.Body.String())
}

func verificationTokenFor(t *testing.T, email string) string {
	t.Helper()
	var token string
	err := database.DB.QueryRow(
		`SELECT email_verification_token FROM users WHERE email = ?`, email).Scan(&token)
	require.NoError(t, err)
	return token
}

func verifyEmail(t *testing.T, h *UserHandler, email string) {
	t.Helper()
	token := verificationTokenFor(t, email)
	req := httptest.NewRequest(http.MethodGet, "/verify-email?token="+token, nil)
	rr := httptest.NewRecorder()
	h.VerifyEmailHandler(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, "verify response: %s", rr.Body.String())
}

func loginUser(t *testing.T, h *UserHandler, username, password string) (accessToken, refreshToken string) {
	t.Helper()
	rr := postJSON(t, h.LoginUserHandler, "/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rr.Code, "login response: %s", rr.Body.String())

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.AccessToken, resp.RefreshToken
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "alice", "alice@example.com", "supersecret1")

	// Login before verification is rejected.
	rr := postJSON(t, h.LoginUserHandler, "/login", map[string]string{
		"username": "alice",
		"password": "supersecret1",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	verifyEmail(t, h, "alice@example.com")

	accessToken, _ := loginUser(t, h, "alice", "supersecret1")

	// The access token opens protected routes through AuthMiddleware.
	protected := h.AuthMiddleware(http.HandlerFunc(h.HandleCheckUserData))
	req := httptest.NewRequest(http.MethodGet, "/user/has-data", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var dataResp struct {
		HasData bool `json:"hasData"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dataResp))
	assert.False(t, dataResp.HasData)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "bob", "bob@example.com", "supersecret1")

	rr := postJSON(t, h.RegisterUserHandler, "/register", map[string]string{
		"username": "bob",
		"email":    "other@example.com",
		"password": "supersecret1",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = postJSON(t, h.RegisterUserHandler, "/register", map[string]string{
		"username": "bob2",
		"email":    "bob@example.com",
		"password": "supersecret1",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegisterValidation(t *testing.T) {
	h := newTestUserHandler()

	rr := postJSON(t, h.RegisterUserHandler, "/register", map[string]string{
		"username": "carol",
		"email":    "not-an-email",
		"password": "supersecret1",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(t, h.RegisterUserHandler, "/register", map[string]string{
		"username": "carol",
		"email":    "carol@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "dave", "dave@example.com", "supersecret1")
	verifyEmail(t, h, "dave@example.com")

	rr := postJSON(t, h.LoginUserHandler, "/login", map[string]string{
		"username": "dave",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "erin", "erin@example.com", "supersecret1")
	verifyEmail(t, h, "erin@example.com")
	accessToken, refreshToken := loginUser(t, h, "erin", "supersecret1")

	rr := postJSON(t, h.RefreshTokenHandler, "/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
	require.Equal(t, http.StatusOK, rr.Code, "refresh response: %s", rr.Body.String())

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, refreshToken, resp.RefreshToken)

	// The old session was rotated out, so its access token no longer works.
	protected := h.AuthMiddleware(http.HandlerFunc(h.HandleCheckUserData))
	req := httptest.NewRequest(http.MethodGet, "/user/has-data", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A second refresh with the consumed token is rejected.
	rr = postJSON(t, h.RefreshTokenHandler, "/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "frank", "frank@example.com", "supersecret1")
	verifyEmail(t, h, "frank@example.com")
	accessToken, _ := loginUser(t, h, "frank", "supersecret1")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rr := httptest.NewRecorder()
	h.LogoutUserHandler(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	protected := h.AuthMiddleware(http.HandlerFunc(h.HandleCheckUserData))
	req = httptest.NewRequest(http.MethodGet, "/user/has-data", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newTestUserHandler()

	registerUser(t, h, "grace", "grace@example.com", "supersecret1")
	verifyEmail(t, h, "grace@example.com")

	rr := postJSON(t, h.RequestPasswordResetHandler, "/request-password-reset", map[string]string{
		"email": "grace@example.com",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// Unknown emails get the same generic answer.
	rr = postJSON(t, h.RequestPasswordResetHandler, "/request-password-reset", map[string]string{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resetToken string
	err := database.DB.QueryRow(
		`SELECT password_reset_token FROM users WHERE email = ?`, "grace@example.com").Scan(&resetToken)
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	rr = postJSON(t, h.ResetPasswordHandler, "/reset-password", map[string]string{
		"token":        resetToken,
		"new_password": "brandnewsecret2",
	})
	require.Equal(t, http.StatusOK, rr.Code, "reset response: %s", rr.Body.String())

	// Old password no longer works, the new one does.
	rr = postJSON(t, h.LoginUserHandler, "/login", map[string]string{
		"username": "grace",
		"password": "supersecret1",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	loginUser(t, h, "grace", "brandnewsecret2")

	// The reset token is single use.
	rr = postJSON(t, h.ResetPasswordHandler, "/reset-password", map[string]string{
		"token":        resetToken,
		"new_password": "anothersecret3",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthMiddlewareRejectsGarbageToken(t *testing.T) {
	h := newTestUserHandler()

	protected := h.AuthMiddleware(http.HandlerFunc(h.HandleCheckUserData))

	req := httptest.NewRequest(http.MethodGet, "/user/has-data", nil)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/user/has-data", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

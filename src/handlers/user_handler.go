package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/cryptocgt/backend/src/config"
	"github.com/username/cryptocgt/backend/src/database"
	"github.com/username/cryptocgt/backend/src/logger"
	"github.com/username/cryptocgt/backend/src/model"
	"github.com/username/cryptocgt/backend/src/security"
	"github.com/username/cryptocgt/backend/src/services"
	"github.com/username/cryptocgt/backend/src/utils"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userIDContextKey contextKey = "userID"

type UserHandler struct {
	authService  *security.AuthService
	emailService services.EmailService
}

func NewUserHandler(authService *security.AuthService, emailService services.EmailService) *UserHandler {
	return &UserHandler{
		authService:  authService,
		emailService: emailService,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = strings.TrimSpace(credentials.Username)
	credentials.Email = strings.TrimSpace(strings.ToLower(credentials.Email))
	if credentials.Username == "" || credentials.Email == "" || credentials.Password == "" {
		utils.SendJSONError(w, "Username, email and password are required", http.StatusBadRequest)
		return
	}
	if !strings.Contains(credentials.Email, "@") {
		utils.SendJSONError(w, "Invalid email address", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		utils.SendJSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	verificationToken, err := h.authService.GenerateRandomToken()
	if err != nil {
		utils.SendJSONError(w, "Failed to generate verification token", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username: credentials.Username,
		Email:    credentials.Email,
		Password: hashedPassword,
	}

	tokenExpiresAt := time.Now().Add(config.Cfg.VerificationTokenExpiry)
	if err := user.CreateUser(database.DB, verificationToken, tokenExpiresAt); err != nil {
		if strings.Contains(err.Error(), "users.username") {
			utils.SendJSONError(w, "Username already exists", http.StatusConflict)
			return
		}
		if strings.Contains(err.Error(), "users.email") {
			utils.SendJSONError(w, "Email already registered", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, verificationToken); err != nil {
		// Registration stands; the user can request a new verification email.
		logger.L.Error("Failed to send verification email", "userID", user.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User registered successfully. Please check your email to verify your account.",
	})
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		logger.L.Warn("Login failed: user lookup", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Login failed: password mismatch", "username", credentials.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if !user.IsEmailVerified {
		utils.SendJSONError(w, "Email address not verified. Please check your inbox.", http.StatusForbidden)
		return
	}

	userIDStr := fmt.Sprintf("%d", user.ID)
	accessToken, err := h.authService.GenerateToken(userIDStr)
	if err != nil {
		utils.SendJSONError(w, "Failed to generate access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		utils.SendJSONError(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User logged in", "userID", user.ID, "username", user.Username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.RefreshToken == "" {
		utils.SendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	session, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token validation failed", "error", err)
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	userIDStr := fmt.Sprintf("%d", session.UserID)
	newAccessToken, err := h.authService.GenerateToken(userIDStr)
	if err != nil {
		utils.SendJSONError(w, "Failed to generate new access token", http.StatusInternalServerError)
		return
	}

	newRefreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		utils.SendJSONError(w, "Failed to generate new refresh token", http.StatusInternalServerError)
		return
	}

	newSession := &model.Session{
		UserID:       session.UserID,
		Token:        newAccessToken,
		RefreshToken: newRefreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, newSession); err != nil {
		utils.SendJSONError(w, "Failed to create new session on refresh", http.StatusInternalServerError)
		return
	}

	// Rotate out the old session.
	if err := model.DeleteSessionByToken(database.DB, session.Token); err != nil {
		logger.L.Warn("Failed to delete rotated session", "userID", session.UserID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  newAccessToken,
		"refresh_token": newRefreshToken,
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Logout: failed to delete session", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmailHandler confirms an email verification token sent by link. The
// token arrives as a query parameter.
func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.SendJSONError(w, "Verification token is required", http.StatusBadRequest)
		return
	}

	user, err := model.VerifyEmailByToken(database.DB, token)
	if err != nil {
		logger.L.Warn("Email verification failed", "error", err)
		utils.SendJSONError(w, "Invalid or expired verification token", http.StatusBadRequest)
		return
	}

	logger.L.Info("Email verified", "userID", user.ID, "username", user.Username)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully. You can now log in.",
	})
}

func (h *UserHandler) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(strings.ToLower(requestBody.Email))
	if email == "" {
		utils.SendJSONError(w, "Email is required", http.StatusBadRequest)
		return
	}

	// The response is identical whether or not the email exists, so the
	// endpoint cannot be used to enumerate accounts.
	sendGenericResponse := func() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "If an account exists for that email, a password reset link has been sent.",
		})
	}

	user, err := model.GetUserByEmail(database.DB, email)
	if err != nil {
		logger.L.Debug("Password reset requested for unknown email", "email", email)
		sendGenericResponse()
		return
	}

	resetToken, err := h.authService.GenerateRandomToken()
	if err != nil {
		logger.L.Error("Failed to generate password reset token", "userID", user.ID, "error", err)
		sendGenericResponse()
		return
	}

	expiresAt := time.Now().Add(config.Cfg.PasswordResetTokenExpiry)
	if err := model.SetPasswordResetToken(database.DB, user.ID, resetToken, expiresAt); err != nil {
		logger.L.Error("Failed to store password reset token", "userID", user.ID, "error", err)
		sendGenericResponse()
		return
	}

	if err := h.emailService.SendPasswordResetEmail(user.Email, user.Username, resetToken); err != nil {
		logger.L.Error("Failed to send password reset email", "userID", user.ID, "error", err)
	}
	sendGenericResponse()
}

func (h *UserHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.Token == "" {
		utils.SendJSONError(w, "Reset token is required", http.StatusBadRequest)
		return
	}
	if len(requestBody.NewPassword) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(requestBody.NewPassword)
	if err != nil {
		utils.SendJSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user, err := model.ResetPasswordByToken(database.DB, requestBody.Token, hashedPassword)
	if err != nil {
		logger.L.Warn("Password reset failed", "error", err)
		utils.SendJSONError(w, "Invalid or expired reset token", http.StatusBadRequest)
		return
	}

	logger.L.Info("Password reset completed", "userID", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password has been reset successfully. You can now log in.",
	})
}

// HandleCheckUserData reports whether the user has any imported transactions.
func (h *UserHandler) HandleCheckUserData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var count int
	err := database.DB.QueryRow(`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error checking user data for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"hasData":          count > 0,
		"transactionCount": count,
	})
}

// GetUserIDFromContext retrieves the userID placed in the request context by
// AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

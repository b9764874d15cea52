package model

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID              int       `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Password        string    `json:"-"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Session struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashPassword hashes the user's password using bcrypt.
func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user with a pending email verification token.
func (u *User) CreateUser(db *sql.DB, verificationToken string, tokenExpiresAt time.Time) error {
	query := `
	INSERT INTO users (username, password, email, is_email_verified, email_verification_token, email_verification_token_expires_at)
	VALUES (?, ?, ?, FALSE, ?, ?)`

	res, err := db.Exec(query, u.Username, u.Password, u.Email, verificationToken, tokenExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = int(id)
	return nil
}

func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	query := `
	SELECT id, username, password, email, is_email_verified
	FROM users
	WHERE username = ?`
	return scanUser(db.QueryRow(query, username))
}

func GetUserByID(db *sql.DB, id int64) (*User, error) {
	query := `
	SELECT id, username, password, email, is_email_verified
	FROM users
	WHERE id = ?`
	return scanUser(db.QueryRow(query, id))
}

func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	query := `
	SELECT id, username, password, email, is_email_verified
	FROM users
	WHERE email = ?`
	return scanUser(db.QueryRow(query, email))
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.IsEmailVerified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// VerifyEmailByToken marks the matching user's email verified and clears the
// token. Returns ErrUserNotFound when the token is unknown or expired.
func VerifyEmailByToken(db *sql.DB, token string) (*User, error) {
	query := `
	SELECT id, username, password, email, is_email_verified
	FROM users
	WHERE email_verification_token = ? AND email_verification_token_expires_at > ?`
	user, err := scanUser(db.QueryRow(query, token, time.Now()))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		UPDATE users
		SET is_email_verified = TRUE,
		    email_verification_token = NULL,
		    email_verification_token_expires_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, user.ID)
	if err != nil {
		return nil, err
	}
	user.IsEmailVerified = true
	return user, nil
}

// SetPasswordResetToken stores a reset token for the user.
func SetPasswordResetToken(db *sql.DB, userID int, token string, expiresAt time.Time) error {
	_, err := db.Exec(`
		UPDATE users
		SET password_reset_token = ?,
		    password_reset_token_expires_at = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, token, expiresAt, userID)
	return err
}

// ResetPasswordByToken sets a new password for the user holding a valid reset
// token and clears the token. Returns ErrUserNotFound when the token is
// unknown or expired.
func ResetPasswordByToken(db *sql.DB, token, hashedPassword string) (*User, error) {
	query := `
	SELECT id, username, password, email, is_email_verified
	FROM users
	WHERE password_reset_token = ? AND password_reset_token_expires_at > ?`
	user, err := scanUser(db.QueryRow(query, token, time.Now()))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		UPDATE users
		SET password = ?,
		    password_reset_token = NULL,
		    password_reset_token_expires_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, hashedPassword, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	session.CreatedAt = time.Now()
	_, err := db.Exec(
		query,
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, token, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// GetSessionByRefreshToken retrieves an active, non-blocked session by its
// refresh token. Used when rotating tokens.
func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, refreshToken, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSessionByToken removes a session based on the access token. A missing
// session is not an error; the token may simply have expired already.
func DeleteSessionByToken(db *sql.DB, token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

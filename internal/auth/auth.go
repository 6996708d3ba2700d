// Package auth provides password hashing and session management for the
// dashboard login.
package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SessionTTL is how long a login session stays valid.
const SessionTTL = 24 * time.Hour

// ErrNoSession is returned when a token has no live session behind it.
var ErrNoSession = errors.New("invalid or expired session")

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken returns a 64-char random hex session token.
func GenerateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateSession inserts a session row for the user and returns its token.
// Expired sessions are swept opportunistically on each login.
func CreateSession(db *sql.DB, userID int) (token string, expires time.Time, err error) {
	db.Exec("DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP")

	expires = time.Now().Add(SessionTTL)
	for i := 0; i < 3; i++ {
		token = GenerateToken()
		_, err = db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
			token, userID, expires.UTC().Format("2006-01-02 15:04:05"))
		if err == nil {
			return token, expires, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return "", time.Time{}, err
}

// SessionUser resolves a session token to the owning active user's id and
// role.
func SessionUser(db *sql.DB, token string) (userID int, role string, err error) {
	var active int
	err = db.QueryRow(`SELECT s.user_id, u.role, u.active FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP`, token).Scan(&userID, &role, &active)
	if err != nil || active == 0 {
		return 0, "", ErrNoSession
	}
	return userID, role, nil
}

// DeleteSession removes a session row, logging the user out.
func DeleteSession(db *sql.DB, token string) {
	db.Exec("DELETE FROM sessions WHERE token = ?", token)
}

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong username or password
var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword returns a bcrypt hash suitable for the auth.password_hash setting
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Operator is the configured API account
type Operator struct {
	Username     string
	PasswordHash string
}

// Authenticate checks a login attempt against the operator account
func (o Operator) Authenticate(username, password string) error {
	if o.PasswordHash == "" || username != o.Username {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

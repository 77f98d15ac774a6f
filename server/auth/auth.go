package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("auth: username and password must be at least 3 characters")
	ErrNotAuthenticated   = errors.New("auth: not authenticated")
	ErrEmptySecret        = errors.New("auth: signing secret is empty")
)

const minCredentialLength = 3

// Authenticator はローカルプレイヤーのログイン状態を保持します。
// ログインに成功すると HS256 で署名したトークンを発行し、以降はその検証結果で判定します。
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	token    string
	username string
}

func New(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Login は資格情報を検証しトークンを発行します。
func (a *Authenticator) Login(username, password string) (string, error) {
	if len(username) < minCredentialLength || len(password) < minCredentialLength {
		slog.Warn("login rejected", "username", username)
		return "", ErrInvalidCredentials
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	a.mu.Lock()
	a.token = token
	a.username = username
	a.mu.Unlock()

	slog.Info("login succeeded", "username", username)
	return token, nil
}

func (a *Authenticator) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.username = ""
}

func (a *Authenticator) IsAuthenticated() bool {
	_, err := a.Verify()
	return err == nil
}

// Verify は保持しているトークンを検証し、ユーザー名を返します。
func (a *Authenticator) Verify() (string, error) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token == "" {
		return "", ErrNotAuthenticated
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return claims.Subject, nil
}

func (a *Authenticator) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username
}

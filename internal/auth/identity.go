// Package auth проверяет JWT, выпущенные сервисом пользователей, и извлекает из них личность.
// Выпуск токенов и сессии здесь не реализуются.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin открывает административные операции.
const RoleAdmin = "admin"

const leeway = 30 * time.Second

var (
	// ErrMissingToken — токен не передан.
	ErrMissingToken = errors.New("no token, authorization denied")
	// ErrInvalidToken — подпись, срок или claims токена некорректны.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden — у пользователя нет прав на операцию.
	ErrForbidden = errors.New("admin role required")
)

// Identity описывает аутентифицированного пользователя.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin сообщает, что пользователь администратор.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier проверяет HS256-токены общим секретом.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier создаёт Verifier. Пустой секрет не допускается.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Parse проверяет токен и возвращает личность из claims id и role.
func (v *Verifier) Parse(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithLeeway(leeway), jwt.WithTimeFunc(v.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}
	userID, _ := claims["id"].(string)
	if strings.TrimSpace(userID) == "" {
		return Identity{}, fmt.Errorf("%w: id claim is required", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)

	return Identity{UserID: userID, Role: role}, nil
}

// Sign выпускает токен для тестов и локальной отладки.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"id":  identity.UserID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if identity.Role != "" {
		claims["role"] = identity.Role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type identityKey struct{}

// WithIdentity кладёт личность в context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext достаёт личность из context.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

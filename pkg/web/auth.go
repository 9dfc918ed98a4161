package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/moogar0880/problems"
)

const principalKey = "principal"

// Claims are the bearer token claims. Every request is scoped to AccountID.
type Claims struct {
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	AccountID string
	UserID    string
}

// IssueToken signs an HS256 token for accountID and userID.
func IssueToken(secret []byte, accountID, userID string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		AccountID: accountID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Authenticate rejects requests without a valid bearer token and stores the Principal.
func Authenticate(secret []byte) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return unauthorized(c, "missing bearer token")
		}

		claims := &Claims{}

		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			return unauthorized(c, tokenErrorDetail(err))
		}

		if claims.AccountID == "" || claims.UserID == "" {
			return unauthorized(c, "token must carry accountId and userId")
		}

		c.Locals(principalKey, Principal{AccountID: claims.AccountID, UserID: claims.UserID})

		return c.Next()
	}
}

func tokenErrorDetail(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid token signature"
	default:
		return fmt.Sprintf("invalid token: %v", err)
	}
}

func principal(c fiber.Ctx) Principal {
	p, _ := c.Locals(principalKey).(Principal)

	return p
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusUnauthorized).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

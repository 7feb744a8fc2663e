package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/qaim-khanx/essaygradingbot/internal/utils"
)

// JWTProtected returns a middleware that validates HMAC-signed bearer tokens and
// stores the numeric subject as the "user_id" local.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if userID, err := subjectID(claims); err == nil {
			c.Locals("user_id", userID)
		}

		return c.Next()
	}
}

func subjectID(claims jwt.MapClaims) (uint, error) {
	for _, key := range []string{"sub", "user_id"} {
		switch v := claims[key].(type) {
		case float64:
			if v > 0 {
				return uint(v), nil
			}
		case string:
			if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
				return uint(parsed), nil
			}
		}
	}
	return 0, fmt.Errorf("token carries no numeric subject")
}

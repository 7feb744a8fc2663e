package middleware_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/qaim-khanx/essaygradingbot/internal/middleware"
)

func perform(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTProtectedStoresSubject(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.JWTProtected("secret"))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(fmt.Sprint(c.Locals("user_id")))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))

	resp := perform(t, app, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "42", readBody(t, resp))
}

func TestJWTProtectedRejectsInvalidTokens(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.JWTProtected("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	cases := map[string]string{
		"missing":       "",
		"scheme":        "Basic abc",
		"wrong secret":  "Bearer " + signedToken(t, "other", jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":       "Bearer " + signedToken(t, "secret", jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiration": "Bearer " + signedToken(t, "secret", jwt.MapClaims{"sub": "1"}),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := perform(t, app, req)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestRateLimitRejectsAfterMax(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.RateLimit("grade", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp := perform(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp := perform(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.GetCorrelationID(c) + "|" + middleware.CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp := perform(t, app, req)
	require.Equal(t, "abc-123", resp.Header.Get("X-Correlation-ID"))
	require.Equal(t, "abc-123|abc-123", readBody(t, resp))

	resp = perform(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := resp.Header.Get("X-Correlation-ID")
	require.NotEmpty(t, generated)
	require.Equal(t, generated+"|"+generated, readBody(t, resp))
}

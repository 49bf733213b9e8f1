package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const bearerPrefix = "Bearer "

// AuthMiddleware requires "Authorization: Bearer <apiKey>" on the routes it
// wraps. An empty apiKey disables the check.
func AuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if apiKey == "" {
			return next
		}
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return writeError(c, err)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				return writeError(c, newError(http.StatusUnauthorized, errTypeAuthentication, "invalid api key"))
			}
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", newError(http.StatusUnauthorized, errTypeAuthentication, "missing authorization header")
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", newError(http.StatusUnauthorized, errTypeAuthentication,
			"invalid authorization header format, expected 'Bearer <token>'")
	}
	return token, nil
}

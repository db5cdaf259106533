package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pdfdrop/internal/config"
)

// BasicAuth gates the administrative surface behind an HTTP basic-auth
// credential pair. Empty credentials disable the gate — the route stays open.
// That is the historical default; deployments exposing the admin surface
// should always set ADMIN_USER and ADMIN_PASSWORD.
func BasicAuth(cfg config.AdminConfig) fiber.Handler {
	if cfg.User == "" || cfg.Password == "" {
		log.Printf("auth: admin credentials not configured, admin surface is open")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		user, pass, ok := parseBasicAuth(c.Get(fiber.HeaderAuthorization))
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.Password)) != 1 {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="admin"`)
			return fiber.ErrUnauthorized
		}
		return c.Next()
	}
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(decoded), ":")
	return user, pass, ok
}

package middleware

import (
	"crypto/subtle"
	"net/http"

	"mall/internal/config"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const HeaderAdminToken = "X-Admin-Token"

// X-Admin-Tokenで管理APIを守る。ハッシュがあればbcryptで照合
func AdminToken(cfg config.Config) echo.MiddlewareFunc {
	plain := []byte(cfg.AdminToken)
	hash := []byte(cfg.AdminTokenHash)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//どちらも未設定なら管理APIは閉じる
			if len(plain) == 0 && len(hash) == 0 {
				return c.JSON(http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "admin api disabled"})
			}

			got := c.Request().Header.Get(HeaderAdminToken)
			if got == "" {
				return c.JSON(http.StatusUnauthorized, unauthorizedJSON())
			}

			ok := false
			if len(hash) > 0 {
				ok = bcrypt.CompareHashAndPassword(hash, []byte(got)) == nil
			} else {
				ok = subtle.ConstantTimeCompare(plain, []byte(got)) == 1
			}
			if !ok {
				return c.JSON(http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "admin only"})
			}
			return next(c)
		}
	}
}

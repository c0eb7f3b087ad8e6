package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zhouzirui/magic-mirror/backend/pkg/utils"
)

// BearerAuth 校验 "Authorization: Bearer <password>"，失败返回 401
func BearerAuth(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || password == "" || subtle.ConstantTimeCompare([]byte(token), []byte(password)) != 1 {
				utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS 允许任意来源调用（前端与魔镜设备不同源），并暴露会话与通道响应头
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			"ElevenLabs-Signature", "X-ElevenLabs-Signature", "X-Webhook-Signature",
		},
		ExposedHeaders: []string{"X-Session-Id", "X-Audio-Channel"},
		MaxAge:         300,
	})
}

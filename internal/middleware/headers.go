package middleware

import "net/http"

// NewNoStoreMiddleware は運用エンドポイントのレスポンスをキャッシュさせないヘッダーを付与する。
func NewNoStoreMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ClientIP はリクエスト元のIPアドレスを返す。
// 接続元（RemoteAddr）のみを参照する。プロキシ配下ではNewTrustedProxyMiddlewareが事前に書き換える。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewTrustedProxyMiddleware は信頼できるプロキシが付与した転送ヘッダーからRemoteAddrを書き換えるミドルウェアを返す。
// CF-Connecting-IP を優先し、無ければ chi の RealIP（True-Client-IP、X-Real-IP、X-Forwarded-For）に委ねる。
// 直接公開された環境ではヘッダーを偽装できるため、TRUST_PROXY_HEADERS が有効な場合のみ組み込むこと。
func NewTrustedProxyMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		realIP := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("CF-Connecting-IP"))); ip != nil {
				r.RemoteAddr = ip.String()
				next.ServeHTTP(w, r)
				return
			}
			realIP.ServeHTTP(w, r)
		})
	}
}

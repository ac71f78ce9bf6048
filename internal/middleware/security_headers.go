package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SecurityHeadersConfig はセキュリティヘッダーの可変部分。
type SecurityHeadersConfig struct {
	// HSTSMaxAge が正の場合、HTTPS経由のリクエストにStrict-Transport-Securityを付ける。
	// TLS終端がプロキシの場合はX-Forwarded-Protoで判定する。
	HSTSMaxAge time.Duration

	// CacheablePaths はCache-Control: no-storeを付けないパス。
	// 連絡先を返すエンドポイントは含めないこと。
	CacheablePaths []string
}

// DefaultSecurityHeadersConfig はHSTSなしで/healthのみキャッシュ可能とする設定を返す。
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{CacheablePaths: []string{"/health"}}
}

// NewSecurityHeadersMiddleware はJSON API向けのセキュリティヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware(cfg SecurityHeadersConfig) func(next http.Handler) http.Handler {
	cacheable := make(map[string]struct{}, len(cfg.CacheablePaths))
	for _, p := range cfg.CacheablePaths {
		cacheable[p] = struct{}{}
	}
	hsts := ""
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			// HTMLを返さないので全てのリソース読み込みを禁止する
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if _, ok := cacheable[r.URL.Path]; !ok {
				h.Set("Cache-Control", "no-store")
			}
			if hsts != "" && isHTTPS(r) {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

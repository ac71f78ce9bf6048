package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestIDHeader はリクエストIDを返すレスポンスヘッダー名。
// 受信側はchiと同じX-Request-Idを受け付ける。
const RequestIDHeader = "X-Request-Id"

// NewRequestIDMiddleware はリクエストごとに相関IDを採番し、
// コンテキストとレスポンスヘッダーの両方に載せるミドルウェアを返す。
// クライアントがX-Request-Idを送ってきた場合はその値を引き継ぐ。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		expose := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := chimw.GetReqID(r.Context()); id != "" {
				w.Header().Set(RequestIDHeader, id)
			}
			next.ServeHTTP(w, r)
		})
		return chimw.RequestID(expose)
	}
}

// reqIDAttr はログ用のreq_id属性を返す。未採番なら空のAttrを返す。
// request_idはブラッドリクエストのIDと紛らわしいためreq_idとする。
func reqIDAttr(ctx context.Context) (slog.Attr, bool) {
	id := chimw.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("req_id", id), true
}

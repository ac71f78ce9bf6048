package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、最初に書かれたステータスコードを覚える。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はWriteHeader未呼び出しなら200として記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestLog は内側のミドルウェアで判明した値をアクセスログまで運ぶ。
// 認証ミドルウェアはコンテキストを差し替えるため、外側からは直接読めない。
type requestLog struct {
	userID string
	role   string
}

var requestLogContextKey = contextKey("request_log")

// annotatePrincipal はアクセスログに認証済みユーザーを記録する。
// ロギングミドルウェアの外側では何もしない。
func annotatePrincipal(ctx context.Context, userID, role string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.userID = userID
		rl.role = role
	}
}

// levelForStatus は5xxをERROR、4xxをWARN、それ以外をINFOとする。
func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware は1リクエスト1行のアクセスログを出力するミドルウェアを返す。
// method, path, status, duration_msに加え、採番済みならreq_id、認証済みならuser_idとroleを含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			rl := &requestLog{}
			if p, err := PrincipalFromContext(r.Context()); err == nil {
				rl.userID, rl.role = p.UserID, string(p.Role)
			}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogContextKey, rl)))

			elapsed := float64(time.Since(start).Microseconds()) / 1000
			attrs := make([]slog.Attr, 0, 7)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", elapsed),
			)
			if a, ok := reqIDAttr(r.Context()); ok {
				attrs = append(attrs, a)
			}
			if rl.userID != "" {
				attrs = append(attrs, slog.String("user_id", rl.userID), slog.String("role", rl.role))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.statusCode), "http_request", attrs...)
		})
	}
}

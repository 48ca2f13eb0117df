package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/eventrsvp/internal/model"
)

// OriginPolicy はリクエスト元Originの許可リスト。
// 許可リストが空の場合はすべてのOriginを許可する。
type OriginPolicy struct {
	origins []string
	allowed map[string]struct{}
}

// NewOriginPolicy は許可するOriginの一覧からOriginPolicyを生成する。
// 末尾のスラッシュは無視する。
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, dup := p.allowed[o]; dup {
			continue
		}
		p.allowed[o] = struct{}{}
		p.origins = append(p.origins, o)
	}
	return p
}

// Enforced は許可リストによる制限が有効かどうかを返す。
func (p *OriginPolicy) Enforced() bool {
	return len(p.origins) > 0
}

// Allowed はOriginが許可されているかどうかを返す。
// Originヘッダーのないリクエスト（同一オリジンやサーバー間通信）は許可する。
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" || !p.Enforced() {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// Check はリクエストのOriginを検証し、許可されていない場合はAPIErrorを返す。
func (p *OriginPolicy) Check(r *http.Request) *model.APIError {
	origin := r.Header.Get("Origin")
	if !p.Allowed(origin) {
		return model.NewOriginNotAllowedError(origin)
	}
	return nil
}

// NewCORSMiddleware は許可リストに基づくCORSミドルウェアを返す。
// 許可リストが空の場合は Access-Control-Allow-Origin: * を返し、
// それ以外は許可されたOriginをそのまま返す。
// OPTIONSプリフライトには204で応答し、許可されていないOriginには403を返す。
func NewCORSMiddleware(policy *OriginPolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			h := w.Header()
			if !policy.Enforced() {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Add("Vary", "Origin")
				if origin != "" && policy.Allowed(origin) {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				if apiErr := policy.Check(r); apiErr != nil {
					WriteErrorResponse(w, apiErr)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

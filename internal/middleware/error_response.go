package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/eventrsvp/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// WriteJSON はJSONレスポンスを書き込む。
// すべてのAPIレスポンスはキャッシュさせない。
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 原因エラー（apiErr.Err）はクライアントに返さない。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	WriteJSON(w, apiErr.Status, ErrorResponseBody{
		OK:    false,
		Error: apiErr.Message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponseBody{
		OK:    false,
		Error: "Internal error",
	})
}

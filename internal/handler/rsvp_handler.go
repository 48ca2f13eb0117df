// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventrsvp/internal/middleware"
	"github.com/hitoshi/eventrsvp/internal/model"
	"github.com/hitoshi/eventrsvp/internal/rsvp"
)

// maxRSVPBodyBytes はRSVPリクエストボディの上限サイズ。
const maxRSVPBodyBytes = 64 << 10

// RSVPSubmitter はRSVPハンドラーが必要とするサービスインターフェース。
type RSVPSubmitter interface {
	// Submit はフォームを検証・保存し、カレンダー情報を返す。
	Submit(ctx context.Context, form rsvp.Form, meta rsvp.RequestMeta) (*rsvp.Result, error)
}

// RSVPHandler は出欠回答受付のHTTPハンドラー。
type RSVPHandler struct {
	service RSVPSubmitter
	origins *middleware.OriginPolicy
	logger  *slog.Logger
}

// NewRSVPHandler はRSVPHandlerを生成する。
func NewRSVPHandler(service RSVPSubmitter, origins *middleware.OriginPolicy, logger *slog.Logger) *RSVPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if origins == nil {
		origins = middleware.NewOriginPolicy(nil)
	}
	return &RSVPHandler{
		service: service,
		origins: origins,
		logger:  logger,
	}
}

// submitResponse は受付成功時のレスポンス。
type submitResponse struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id"`
	GCalURL string `json:"gcalUrl"`
	ICSURL  string `json:"icsUrl"`
}

// Submit は出欠回答を受け付ける。
// POST /api/rsvp
func (h *RSVPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if apiErr := h.origins.Check(r); apiErr != nil {
		h.logger.Warn("origin rejected", slog.String("origin", r.Header.Get("Origin")))
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	if r.Method != http.MethodPost {
		middleware.WriteErrorResponse(w, model.NewMethodNotAllowedError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRSVPBodyBytes)
	form, err := decodeForm(r.Body)
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewMalformedRequestError(err))
		return
	}

	result, err := h.service.Submit(r.Context(), form, rsvp.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, submitResponse{
		OK:      true,
		ID:      result.ID,
		GCalURL: result.GoogleCalendarURL,
		ICSURL:  result.ICSURL,
	})
}

// MethodNotAllowed はPOST以外のメソッドに405を返す。
func (h *RSVPHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, model.NewMethodNotAllowedError())
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外は500として扱い、詳細はログにのみ残す。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	logger.Error("unexpected service error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeForm はボディを単一のJSONオブジェクトとして解析する。
// オブジェクト以外（null、配列など）や後続データを含むボディはエラーとする。
func decodeForm(body io.Reader) (rsvp.Form, error) {
	var form rsvp.Form

	raw, err := io.ReadAll(body)
	if err != nil {
		return form, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return form, errors.New("request body must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&form); err != nil {
		return form, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return form, errors.New("unexpected data after JSON object")
	}
	return form, nil
}

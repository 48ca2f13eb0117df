package handler

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/eventrsvp/internal/metrics"
	"github.com/hitoshi/eventrsvp/internal/middleware"
	"github.com/hitoshi/eventrsvp/internal/model"
)

// exportHeader はCSVの列順。
var exportHeader = []string{
	"id", "created_at", "event_slug", "first_name", "last_name", "email", "phone",
	"will_attend", "notes", "utm_source", "utm_medium", "utm_campaign",
}

// RSVPLister はエクスポートに必要なリポジトリのインターフェース。
type RSVPLister interface {
	ListForExport(ctx context.Context) ([]model.RSVPRecord, error)
}

// ExportHandler は回答一覧をCSVで返す管理者向けハンドラー。
type ExportHandler struct {
	lister  RSVPLister
	token   string
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewExportHandler はExportHandlerを生成する。
// tokenが空の場合、エクスポートは常に拒否される。
func NewExportHandler(lister RSVPLister, token string, mc metrics.MetricsCollector, logger *slog.Logger) *ExportHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{
		lister:  lister,
		token:   token,
		metrics: mc,
		logger:  logger,
	}
}

// Export は全回答を作成日時の降順でCSV出力する。
// GET /admin/export?token=... または Authorization: Bearer ...
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("export rejected", slog.String("client_ip", middleware.ClientIP(r)))
		middleware.WriteErrorResponse(w, model.NewExportUnauthorizedError())
		return
	}

	records, err := h.lister.ListForExport(r.Context())
	if err != nil {
		h.logger.Error("failed to list rsvps for export", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rsvps.csv"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for i := range records {
		cw.Write(exportRow(&records[i]))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("failed to write export csv", slog.String("error", err.Error()))
		return
	}

	h.metrics.RecordExport(len(records))
}

// authorized はトークンを定数時間で比較する。
func (h *ExportHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func exportRow(rec *model.RSVPRecord) []string {
	return []string{
		rec.ID,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.EventSlug,
		flatten(rec.FirstName),
		flatten(rec.LastName),
		flatten(rec.Email),
		flatten(rec.Phone),
		flatten(rec.WillAttend),
		flatten(rec.Notes),
		flatten(rec.UTMSource),
		flatten(rec.UTMMedium),
		flatten(rec.UTMCampaign),
	}
}

// flatten は改行を半角スペースに置き換え、1レコード1行に収める。
var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return newlineReplacer.Replace(s)
}

package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventrsvp/internal/calendar"
	"github.com/hitoshi/eventrsvp/internal/middleware"
	"github.com/hitoshi/eventrsvp/internal/model"
)

// ICSHandler はbase64化されたICS本文をデコードしてファイルとして返す。
type ICSHandler struct {
	filename string
	logger   *slog.Logger
}

// NewICSHandler はICSHandlerを生成する。filenameはContent-Dispositionに使う。
func NewICSHandler(filename string, logger *slog.Logger) *ICSHandler {
	if filename == "" {
		filename = "event.ics"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ICSHandler{filename: filename, logger: logger}
}

// Download はクエリ d のペイロードをカレンダーファイルとして返す。
// GET /api/ics/{file}
func (h *ICSHandler) Download(w http.ResponseWriter, r *http.Request) {
	body, err := calendar.Decode(r.URL.Query().Get("d"))
	if err != nil {
		h.logger.Info("invalid calendar payload",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, model.NewInvalidCalendarPayloadError(err))
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

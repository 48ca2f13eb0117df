package rsvp

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/eventrsvp/internal/calendar"
	"github.com/hitoshi/eventrsvp/internal/captcha"
	"github.com/hitoshi/eventrsvp/internal/clock"
	"github.com/hitoshi/eventrsvp/internal/metrics"
	"github.com/hitoshi/eventrsvp/internal/model"
	"github.com/hitoshi/eventrsvp/internal/notify"
)

// Repository は出欠回答の永続化を行う。
type Repository interface {
	Create(ctx context.Context, rec *model.RSVPRecord) error
}

// RequestMeta はリクエストから取得した送信元情報。
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Result は受付成功時にクライアントへ返す内容。
type Result struct {
	ID                string
	GoogleCalendarURL string
	ICSURL            string
	Record            *model.RSVPRecord
}

// Deps はServiceの依存関係。
type Deps struct {
	Repository    Repository
	Verifier      captcha.Verifier
	Notifier      notify.Notifier
	Calendar      *calendar.Builder
	Clock         clock.Clock
	IDs           IDGenerator
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
	EventSlug     string
	PublicBaseURL string
}

// Service は出欠回答の受付処理を行う。
// 検証 → 人間確認 → 保存 → 通知 → カレンダー生成 の順に実行し、
// 保存に成功した回答だけが通知とカレンダー生成に進む。
type Service struct {
	deps Deps
}

// NewService はServiceの新しいインスタンスを生成する。
// Clock, IDs, Metrics, Logger が未指定の場合は既定の実装を使う。
func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.IDs == nil {
		deps.IDs = UUIDGenerator{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Submit はフォームの内容を受け付ける。
// 返すエラーは常に *model.APIError で、ハンドラーはそのままクライアントに返せる。
// 通知の失敗は結果に影響しない。
func (s *Service) Submit(ctx context.Context, form Form, meta RequestMeta) (*Result, error) {
	sub, err := Validate(form)
	if err != nil {
		s.deps.Metrics.RecordSubmission(metrics.OutcomeInvalid)
		return nil, err
	}

	if err := s.verify(ctx, form.TurnstileToken, meta.IP); err != nil {
		s.deps.Metrics.RecordSubmission(metrics.OutcomeCaptchaFailed)
		return nil, err
	}

	rec := &model.RSVPRecord{
		ID:          s.deps.IDs.NewID(),
		CreatedAt:   s.deps.Clock.Now(),
		EventSlug:   s.deps.EventSlug,
		FirstName:   sub.FirstName,
		LastName:    sub.LastName,
		Phone:       sub.Phone,
		Email:       sub.Email,
		WillAttend:  sub.WillAttend,
		Notes:       sub.Notes,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		UTMSource:   sub.UTMSource,
		UTMMedium:   sub.UTMMedium,
		UTMCampaign: sub.UTMCampaign,
	}

	if err := s.deps.Repository.Create(ctx, rec); err != nil {
		s.deps.Logger.Error("出欠回答の保存に失敗しました",
			slog.String("rsvp_id", rec.ID),
			slog.String("error", err.Error()),
		)
		s.deps.Metrics.RecordSubmission(metrics.OutcomeStorageFailed)
		return nil, model.NewStorageFailedError(err)
	}

	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, rec)
	}

	artifacts := s.deps.Calendar.Build(s.deps.PublicBaseURL, rec.ID, rec.CreatedAt)

	s.deps.Logger.Info("出欠回答を受け付けました",
		slog.String("rsvp_id", rec.ID),
		slog.String("event_slug", rec.EventSlug),
		slog.Bool("attending", rec.Attending()),
	)
	s.deps.Metrics.RecordSubmission(metrics.OutcomeAccepted)

	return &Result{
		ID:                rec.ID,
		GoogleCalendarURL: artifacts.GoogleCalendarURL,
		ICSURL:            artifacts.ICSURL,
		Record:            rec,
	}, nil
}

// verify は人間確認を行う。無効な場合は常に成功する。
func (s *Service) verify(ctx context.Context, token, ip string) error {
	if s.deps.Verifier == nil || !s.deps.Verifier.Enabled() {
		return nil
	}

	start := time.Now()
	ok, err := s.deps.Verifier.Verify(ctx, token, ip)
	s.deps.Metrics.RecordVerification(ok && err == nil, time.Since(start))

	if err != nil || !ok {
		s.deps.Logger.Info("CAPTCHA検証に失敗しました",
			slog.String("remote_ip", ip),
		)
		return model.NewVerificationFailedError(err)
	}
	return nil
}

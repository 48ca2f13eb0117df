// Package notify は出欠回答の通知メール送信を提供する。
// 回答者向けの確認メールと主催者向けの通知メールの2通を送る。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hitoshi/eventrsvp/internal/config"
	"github.com/hitoshi/eventrsvp/internal/metrics"
	"github.com/hitoshi/eventrsvp/internal/model"
	"github.com/hitoshi/eventrsvp/internal/security"
)

// 通知種別（メトリクスとログのラベル）
const (
	KindGuest    = "guest"
	KindInternal = "internal"
)

// Notifier は受け付けた回答の通知を行う。
// 失敗は内部でログとメトリクスに記録し、呼び出し元には返さない。
type Notifier interface {
	Notify(ctx context.Context, rec *model.RSVPRecord)
}

// Options はDispatcherの送信設定。
type Options struct {
	FromEmail  string
	FromName   string
	InternalTo string
	Timeout    time.Duration
	Event      config.EventConfig
}

// URLValidator は外部URLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Dispatcher はメール通知の実装。
// mailer が nil の場合は送信を行わない。
type Dispatcher struct {
	mailer    Mailer
	sanitizer security.EmailSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	opts      Options
	logoURL   string
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// イベントのロゴURLは validator で検証し、不正な場合はメールに含めない。
func NewDispatcher(
	mailer Mailer,
	sanitizer security.EmailSanitizer,
	validator URLValidator,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	logoURL := opts.Event.LogoURL
	if logoURL != "" && validator != nil {
		if err := validator.ValidateURL(logoURL); err != nil {
			logger.Warn("ロゴURLが不正なためメールに含めません",
				slog.String("logo_url", logoURL),
				slog.String("error", err.Error()),
			)
			logoURL = ""
		}
	}
	if mc == nil {
		mc = metrics.Nop{}
	}

	return &Dispatcher{
		mailer:    mailer,
		sanitizer: sanitizer,
		metrics:   mc,
		logger:    logger,
		opts:      opts,
		logoURL:   logoURL,
	}
}

// Enabled はメール送信が有効かどうかを返す。
func (d *Dispatcher) Enabled() bool {
	return d.mailer != nil
}

// Notify は回答者と主催者へのメールを並行して送信し、両方の完了を待つ。
// 各送信は呼び出し元のキャンセルから切り離し、Timeout で個別に打ち切る。
func (d *Dispatcher) Notify(ctx context.Context, rec *model.RSVPRecord) {
	if !d.Enabled() {
		d.logger.Debug("メール送信が無効のため通知をスキップします",
			slog.String("rsvp_id", rec.ID),
		)
		return
	}

	data := newTemplateData(rec, d.opts.Event, d.logoURL)

	guest, err := renderGuest(data)
	if err != nil {
		d.logger.Error("回答者向けメールの生成に失敗しました",
			slog.String("rsvp_id", rec.ID),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordNotification(KindGuest, false)
	}
	internal, ierr := renderInternal(data)
	if ierr != nil {
		d.logger.Error("主催者向けメールの生成に失敗しました",
			slog.String("rsvp_id", rec.ID),
			slog.String("error", ierr.Error()),
		)
		d.metrics.RecordNotification(KindInternal, false)
	}

	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	if err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.send(base, KindGuest, rec, rec.Email, rec.FullName(), guest)
		}()
	}
	if ierr == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.send(base, KindInternal, rec, d.opts.InternalTo, "", internal)
		}()
	}
	wg.Wait()
}

// send は1通のメールを送信し、結果をログとメトリクスに記録する。
func (d *Dispatcher) send(ctx context.Context, kind string, rec *model.RSVPRecord, to, toName string, msg message) {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	m := d.buildMail(to, toName, msg)

	start := time.Now()
	if err := d.mailer.Send(ctx, m); err != nil {
		d.logger.Warn("通知メールの送信に失敗しました",
			slog.String("kind", kind),
			slog.String("rsvp_id", rec.ID),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordNotification(kind, false)
		return
	}

	d.logger.Info("通知メールを送信しました",
		slog.String("kind", kind),
		slog.String("rsvp_id", rec.ID),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	d.metrics.RecordNotification(kind, true)
}

// buildMail はSendGrid v3形式のメールを組み立てる。
// HTML本文は送信直前にサニタイズする。
func (d *Dispatcher) buildMail(to, toName string, msg message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(d.opts.FromName, d.opts.FromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(toName, to))
	m.AddPersonalizations(p)

	m.AddContent(
		mail.NewContent("text/plain", msg.Text),
		mail.NewContent("text/html", d.sanitizer.Sanitize(msg.HTML)),
	)
	return m
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	// defaultSendGridEndpoint はSendGrid v3のメール送信APIのエンドポイント。
	defaultSendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
	// maxErrorBodyBytes はエラー時にログへ残すレスポンスボディの上限。
	maxErrorBodyBytes = 4 << 10
)

// Mailer は組み立て済みのメールを送信する。
type Mailer interface {
	Send(ctx context.Context, m *mail.SGMailV3) error
}

// SendGridClient はSendGrid v3 APIのクライアント。
// ペイロードはsendgrid-goのmailヘルパーで組み立て、送信は注入されたHTTPクライアントで行う。
type SendGridClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewSendGridClient はSendGridClientの新しいインスタンスを生成する。
func NewSendGridClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *SendGridClient {
	return &SendGridClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		endpoint:   defaultSendGridEndpoint,
	}
}

// Send はメールを送信する。2xx以外のステータスはエラーとする。
func (c *SendGridClient) Send(ctx context.Context, m *mail.SGMailV3) error {
	body := mail.GetRequestBody(m)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SendGrid APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("SendGrid APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(detail)),
		)
		return fmt.Errorf("SendGrid APIがステータス %d を返しました", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

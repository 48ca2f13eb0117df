// Package captcha はCloudflare Turnstileによる人間確認を提供する。
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// defaultEndpoint はTurnstileのトークン検証APIのエンドポイント。
	defaultEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	// maxResponseBytes は検証APIレスポンスの読み取り上限。
	maxResponseBytes = 64 << 10
)

// ErrVerificationFailed はトークンが検証APIで拒否されたことを表す。
var ErrVerificationFailed = errors.New("captcha verification failed")

// Verifier は人間確認トークンを検証する。
// Enabled が false の場合、Verify は外部に問い合わせず常に成功を返す。
type Verifier interface {
	Enabled() bool
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// siteverifyResponse は検証APIのレスポンス。
type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
}

// Client はTurnstile検証APIのクライアント。
// secret が空の場合は検証を行わず常に成功を返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	secret     string
	timeout    time.Duration
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, secret string, timeout time.Duration) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		secret:     secret,
		timeout:    timeout,
		endpoint:   defaultEndpoint,
	}
}

// Enabled は検証が有効かどうかを返す。
func (c *Client) Enabled() bool {
	return c.secret != ""
}

// Verify はトークンを検証する。
// 通信エラー、2xx以外のステータス、JSONでないレスポンス、success が true でない場合は
// false とエラーを返す。タイムアウトも失敗として扱う。
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	form.Set("remoteip", remoteIP)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("CAPTCHA検証APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("CAPTCHA検証APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("CAPTCHA検証APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return false, fmt.Errorf("CAPTCHA検証APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result siteverifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Warn("CAPTCHA検証APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if !result.Success {
		c.logger.Info("CAPTCHAトークンが拒否されました",
			slog.Any("error_codes", result.ErrorCodes),
			slog.String("remote_ip", remoteIP),
		)
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(result.ErrorCodes, ","))
	}

	return true, nil
}

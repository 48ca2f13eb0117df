package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // EVENT_TIMEZONE をコンテナ内でも解決できるようにする
)

// EventConfig は案内対象イベントの静的な設定を保持する。
// カレンダー生成とメール本文の両方から参照される。
type EventConfig struct {
	Slug        string
	Name        string
	Brand       string
	Title       string
	Details     string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    *time.Location
	UIDDomain   string
	ProductID   string
	ICSFilename string
	LogoURL     string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort    string
	PublicBaseURL string

	// リバースプロキシ（Cloudflare等）の転送ヘッダーを信頼するか
	TrustProxyHeaders bool

	// Origin
	SiteOrigin     string
	AllowedOrigins []string

	// CAPTCHA (Turnstile)
	TurnstileSecret string
	CaptchaTimeout  time.Duration

	// Email (SendGrid)
	SendGridAPIKey   string
	FromEmail        string
	FromName         string
	InternalNotifyTo string
	EmailTimeout     time.Duration

	// Export
	ExportToken string

	// Rate Limit
	RateLimitRSVP int

	// Logging
	LogLevel string

	// Event
	Event EventConfig
}

// 既定のイベント開始・終了時刻（2025-11-19 19:00 America/Detroit から2時間）
const (
	defaultEventStart = "2025-11-20T00:00:00Z"
	defaultEventEnd   = "2025-11-20T02:00:00Z"
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはイベント日時が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.SiteOrigin = trimOrigin(os.Getenv("SITE_ORIGIN"))
	cfg.AllowedOrigins = parseOrigins(os.Getenv("ALLOWED_ORIGINS"), cfg.SiteOrigin)
	cfg.PublicBaseURL = trimOrigin(getEnvString("PUBLIC_BASE_URL", cfg.SiteOrigin))

	cfg.TurnstileSecret = os.Getenv("TURNSTILE_SECRET")
	cfg.CaptchaTimeout = getEnvDuration("CAPTCHA_TIMEOUT", 5*time.Second)

	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.FromEmail = getEnvString("FROM_EMAIL", "events@example.com")
	cfg.FromName = getEnvString("FROM_NAME", "160 Main Events")
	cfg.InternalNotifyTo = getEnvString("INTERNAL_NOTIFY_TO", "events@example.com")
	cfg.EmailTimeout = getEnvDuration("EMAIL_TIMEOUT", 5*time.Second)

	cfg.ExportToken = os.Getenv("EXPORT_TOKEN")
	cfg.RateLimitRSVP = getEnvInt("RATE_LIMIT_RSVP", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	event, err := loadEvent()
	if err != nil {
		return nil, err
	}
	cfg.Event = event

	return cfg, nil
}

// CaptchaEnabled はCAPTCHA検証が有効かどうかを返す。
func (c *Config) CaptchaEnabled() bool {
	return c.TurnstileSecret != ""
}

// EmailEnabled はメール通知が有効かどうかを返す。
func (c *Config) EmailEnabled() bool {
	return c.SendGridAPIKey != ""
}

// loadEvent はEVENT_*環境変数からイベント設定を読み込む。
func loadEvent() (EventConfig, error) {
	ev := EventConfig{
		Slug:        getEnvString("EVENT_SLUG", "piedmont-2025-11-19"),
		Name:        getEnvString("EVENT_NAME", "Piedmont Wine Dinner"),
		Brand:       getEnvString("EVENT_BRAND", "160 Main"),
		Details:     getEnvString("EVENT_DETAILS", "Multi-course tasting menu paired with Piedmont wines."),
		Location:    getEnvString("EVENT_LOCATION", "160 Main, Northville, MI"),
		UIDDomain:   getEnvString("EVENT_UID_DOMAIN", "160main.events"),
		ProductID:   getEnvString("EVENT_PRODID", "-//160 Main//Events//EN"),
		ICSFilename: getEnvString("EVENT_ICS_FILENAME", "Piedmont-Wine-Dinner.ics"),
		LogoURL:     getEnvString("EVENT_LOGO_URL", "https://onesixtymain.com/wp-content/uploads/2023/06/160Main-New.png"),
	}
	ev.Title = getEnvString("EVENT_TITLE", ev.Name+" — "+ev.Brand)

	start, err := time.Parse(time.RFC3339, getEnvString("EVENT_START", defaultEventStart))
	if err != nil {
		return EventConfig{}, fmt.Errorf("invalid EVENT_START: %w", err)
	}
	end, err := time.Parse(time.RFC3339, getEnvString("EVENT_END", defaultEventEnd))
	if err != nil {
		return EventConfig{}, fmt.Errorf("invalid EVENT_END: %w", err)
	}
	if !end.After(start) {
		return EventConfig{}, fmt.Errorf("EVENT_END (%s) must be after EVENT_START (%s)", end, start)
	}
	ev.Start = start.UTC()
	ev.End = end.UTC()

	loc, err := time.LoadLocation(getEnvString("EVENT_TIMEZONE", "America/Detroit"))
	if err != nil {
		return EventConfig{}, fmt.Errorf("invalid EVENT_TIMEZONE: %w", err)
	}
	ev.TimeZone = loc

	return ev, nil
}

// trimOrigin は末尾のスラッシュを除去する。
func trimOrigin(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// parseOrigins はカンマ区切りのOrigin一覧を解析する。
// SITE_ORIGIN が設定されている場合は常に許可リストに含める。
func parseOrigins(raw, siteOrigin string) []string {
	var origins []string
	seen := make(map[string]struct{})
	add := func(o string) {
		o = trimOrigin(o)
		if o == "" {
			return
		}
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}

	add(siteOrigin)
	for _, o := range strings.Split(raw, ",") {
		add(o)
	}
	return origins
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

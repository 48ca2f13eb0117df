package rsvp

import (
	"regexp"
	"strings"

	"github.com/hitoshi/eventrsvp/internal/model"
)

// emailPattern は "local@domain.tld" 形式の簡易チェック。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Form はRSVPフォームから送信されたフィールド。
// JSONのキーはフロントエンドのフォーム名と一致させる。
type Form struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	WillAttend     string `json:"will_attend"`
	Notes          string `json:"notes"`
	UTMSource      string `json:"utm_source"`
	UTMMedium      string `json:"utm_medium"`
	UTMCampaign    string `json:"utm_campaign"`
	TurnstileToken string `json:"cf-turnstile-response"`
}

// Submission は検証済みの回答内容。
// 必須5項目はトリム済みで空でないことが保証される。
type Submission struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	WillAttend  string
	Notes       string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// Attending は出席回答かどうかを返す。
func (s Submission) Attending() bool {
	return model.IsAttending(s.WillAttend)
}

// Validate はフォームの必須項目とメールアドレス形式を検証する。
// 最初に違反した制約のエラーを返す（必須項目 → メール形式の順）。
// 任意項目（notes, utm_*）は検証せずそのまま通す。
func Validate(f Form) (Submission, error) {
	s := Submission{
		FirstName:   strings.TrimSpace(f.FirstName),
		LastName:    strings.TrimSpace(f.LastName),
		Phone:       strings.TrimSpace(f.Phone),
		Email:       strings.TrimSpace(f.Email),
		WillAttend:  strings.TrimSpace(f.WillAttend),
		Notes:       f.Notes,
		UTMSource:   f.UTMSource,
		UTMMedium:   f.UTMMedium,
		UTMCampaign: f.UTMCampaign,
	}

	for _, v := range []string{s.FirstName, s.LastName, s.Phone, s.Email, s.WillAttend} {
		if v == "" {
			return Submission{}, model.NewMissingFieldsError()
		}
	}

	if !ValidEmail(s.Email) {
		return Submission{}, model.NewInvalidEmailError()
	}

	return s, nil
}

// ValidEmail はメールアドレスが簡易形式に一致するかどうかを返す。
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

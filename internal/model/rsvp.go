// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// AttendanceYes は出席の意思表示を表す正規値。
const AttendanceYes = "yes"

// RSVPRecord は1件の出欠回答を表す。
// 受付時に1回だけ作成され、このシステムでは更新も削除もしない。
type RSVPRecord struct {
	ID          string
	CreatedAt   time.Time
	EventSlug   string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	WillAttend  string
	Notes       string
	IP          string
	UserAgent   string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

// Attending は出席回答（大文字小文字を区別しない "yes"）かどうかを返す。
func (r *RSVPRecord) Attending() bool {
	return IsAttending(r.WillAttend)
}

// FullName は姓名を半角スペースで連結して返す。
func (r *RSVPRecord) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// IsAttending は回答値が出席を表すかどうかを判定する。
func IsAttending(willAttend string) bool {
	return strings.EqualFold(strings.TrimSpace(willAttend), AttendanceYes)
}

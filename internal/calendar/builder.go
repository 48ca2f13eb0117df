// Package calendar はイベントのカレンダー登録用アーティファクトを生成する。
//
// 生成物は2種類:
//   - Googleカレンダーの登録画面へのディープリンク
//   - 単一VEVENTを含むiCalendar (RFC 5545) ファイル本文と、そのbase64表現
//
// いずれも静的なイベント設定とRSVPの識別子から決定的に導出され、永続化しない。
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	// googleCalendarEndpoint はGoogleカレンダーの予定作成画面のURL。
	googleCalendarEndpoint = "https://calendar.google.com/calendar/render"
	// utcStampFormat はiCalendar/GoogleカレンダーのUTC日時表記。
	utcStampFormat = "20060102T150405Z"
	// icsPathPrefix はICS再配信エンドポイントのパス。
	icsPathPrefix = "/api/ics/"
)

// Event はカレンダーに登録するイベントの静的情報。
type Event struct {
	Title     string
	Details   string
	Location  string
	Start     time.Time
	End       time.Time
	UIDDomain string
	ProductID string
}

// Artifacts は1件のRSVPに対して返すカレンダー関連の生成物。
type Artifacts struct {
	GoogleCalendarURL string
	ICS               string
	Payload           string // ICS本文のbase64
	ICSURL            string
}

// Builder はイベント設定からカレンダー生成物を組み立てる。
// 状態を持たないため並行に利用してよい。
type Builder struct {
	event Event
}

// NewBuilder はBuilderを生成する。開始・終了時刻はUTCに正規化する。
func NewBuilder(event Event) *Builder {
	event.Start = event.Start.UTC()
	event.End = event.End.UTC()
	return &Builder{event: event}
}

// Event はBuilderが保持するイベント設定を返す。
func (b *Builder) Event() Event {
	return b.event
}

// Build はGoogleカレンダーリンク、ICS本文、ICS再配信URLをまとめて生成する。
// baseURLが空の場合、ICS再配信URLは相対パスになる。
func (b *Builder) Build(baseURL, id string, stamp time.Time) Artifacts {
	body := b.ICS(id, stamp)
	payload := Encode(body)
	return Artifacts{
		GoogleCalendarURL: b.GoogleCalendarURL(),
		ICS:               body,
		Payload:           payload,
		ICSURL:            ICSURL(baseURL, id, payload),
	}
}

// GoogleCalendarURL はイベント情報をクエリに埋め込んだGoogleカレンダーのURLを返す。
func (b *Builder) GoogleCalendarURL() string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", b.event.Title)
	q.Set("details", b.event.Details)
	q.Set("location", b.event.Location)
	q.Set("dates", b.event.Start.Format(utcStampFormat)+"/"+b.event.End.Format(utcStampFormat))
	return googleCalendarEndpoint + "?" + q.Encode()
}

// UID はRSVPの識別子からVEVENTのUIDを組み立てる。
func (b *Builder) UID(id string) string {
	return id + "@" + b.event.UIDDomain
}

// ICS は単一VEVENTのiCalendar本文を返す。
// 改行はCRLF、75オクテットで折り返す。TEXT型の値はバックスラッシュ、
// カンマ、セミコロン、改行をエスケープする。
func (b *Builder) ICS(id string, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetProductId(b.event.ProductID)
	cal.SetMethod(ics.MethodPublish)

	ev := cal.AddEvent(EscapeText(b.UID(id)))
	ev.SetDtStampTime(stamp)
	ev.SetStartAt(b.event.Start)
	ev.SetEndAt(b.event.End)
	ev.SetSummary(EscapeText(b.event.Title))
	ev.SetDescription(EscapeText(b.event.Details))
	ev.SetLocation(EscapeText(b.event.Location))

	return cal.Serialize(ics.WithNewLineWindows)
}

// EscapeText はiCalendarのTEXT値の予約文字をエスケープする。
// CRLFはLFとして扱い、\n の2文字に置き換える。
func EscapeText(s string) string {
	return ics.ToText(strings.ReplaceAll(s, "\r\n", "\n"))
}

// UnescapeText はEscapeTextの逆変換を行う。
func UnescapeText(s string) string {
	return ics.FromText(s)
}

// ICSURL はICS再配信エンドポイントのURLを返す。
// base64の '+', '/', '=' がクエリで壊れないようにエスケープする。
func ICSURL(baseURL, id, payload string) string {
	q := url.Values{}
	q.Set("d", payload)
	return fmt.Sprintf("%s%s%s.ics?%s",
		strings.TrimRight(baseURL, "/"), icsPathPrefix, url.PathEscape(id), q.Encode())
}

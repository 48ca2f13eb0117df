package calendar

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNotCalendar はデコード結果がiCalendar文書でない場合のエラー。
var ErrNotCalendar = errors.New("payload is not an iCalendar document")

// maxPayloadLen はデコードを受け付けるbase64文字列の最大長。
const maxPayloadLen = 16 * 1024

// Encode はICS本文をUTF-8のバイト列として標準base64に変換する。
func Encode(body string) string {
	return base64.StdEncoding.EncodeToString([]byte(body))
}

// Decode はEncodeの逆変換を行う。
// クエリ文字列として素朴に扱われた結果 '+' が空白に化けたものも受け付ける。
// デコード結果がUTF-8でない場合やVCALENDARで始まらない場合はエラーを返す。
func Decode(payload string) (string, error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return "", fmt.Errorf("empty payload")
	}
	if len(p) > maxPayloadLen {
		return "", fmt.Errorf("payload too large: %d bytes", len(p))
	}
	p = strings.ReplaceAll(p, " ", "+")

	raw, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("payload is not valid UTF-8")
	}

	body := string(raw)
	if !strings.HasPrefix(body, "BEGIN:VCALENDAR") {
		return "", ErrNotCalendar
	}
	return body, nil
}

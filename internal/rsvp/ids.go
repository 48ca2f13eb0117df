package rsvp

import "github.com/google/uuid"

// IDGenerator はRSVPレコードの識別子を生成する。
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator はランダムなUUID (v4) を生成する。
type UUIDGenerator struct{}

// NewID は新しいUUID文字列を返す。
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

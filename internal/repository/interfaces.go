// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/eventrsvp/internal/model"
)

// RSVPRepository は出欠回答の永続化インターフェース。
// レコードは作成のみで、更新・削除は行わない。
type RSVPRepository interface {
	// Create は回答を1件保存する。失敗時は原因をラップしたエラーを返す。
	Create(ctx context.Context, rec *model.RSVPRecord) error

	// ListForExport は全回答を created_at の降順で返す。
	ListForExport(ctx context.Context) ([]model.RSVPRecord, error)
}

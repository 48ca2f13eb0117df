package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/eventrsvp/internal/database"
	"github.com/hitoshi/eventrsvp/internal/model"
)

// sqliteTimeLayout はSQLiteのTEXT列に保存する時刻の書式。
// 固定長にして文字列比較でも時刻順に並ぶようにする。
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const rsvpColumns = `id, created_at, event_slug, first_name, last_name, phone, email,
	will_attend, notes, ip, user_agent, utm_source, utm_medium, utm_campaign`

// SQLRSVPRepo はdatabase/sqlを使用した出欠回答リポジトリ。
// PostgreSQLとSQLiteの両方に対応する。
type SQLRSVPRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLRSVPRepo はSQLRSVPRepoを生成する。
func NewSQLRSVPRepo(db *sql.DB, dialect database.Dialect) *SQLRSVPRepo {
	return &SQLRSVPRepo{db: db, dialect: dialect}
}

// Create は回答を1行挿入する。更新や重複排除は行わない。
func (r *SQLRSVPRepo) Create(ctx context.Context, rec *model.RSVPRecord) error {
	query := r.rebind(`INSERT INTO rsvps (` + rsvpColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, r.timeArg(rec.CreatedAt), rec.EventSlug,
		rec.FirstName, rec.LastName, rec.Phone, rec.Email,
		rec.WillAttend, rec.Notes, rec.IP, rec.UserAgent,
		rec.UTMSource, rec.UTMMedium, rec.UTMCampaign,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rsvp: %w", err)
	}

	return nil
}

// ListForExport は全回答を受付日時の新しい順に返す。
func (r *SQLRSVPRepo) ListForExport(ctx context.Context) ([]model.RSVPRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+rsvpColumns+` FROM rsvps ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rsvps: %w", err)
	}
	defer rows.Close()

	var records []model.RSVPRecord
	for rows.Next() {
		var rec model.RSVPRecord
		if err := rows.Scan(
			&rec.ID, &timeScanner{dst: &rec.CreatedAt}, &rec.EventSlug,
			&rec.FirstName, &rec.LastName, &rec.Phone, &rec.Email,
			&rec.WillAttend, &rec.Notes, &rec.IP, &rec.UserAgent,
			&rec.UTMSource, &rec.UTMMedium, &rec.UTMCampaign,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rsvp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rsvps: %w", err)
	}

	return records, nil
}

// rebind は ? プレースホルダをPostgreSQLの $n 形式に置き換える。
func (r *SQLRSVPRepo) rebind(query string) string {
	if r.dialect != database.DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// timeArg は方言に応じた時刻パラメータを返す。
func (r *SQLRSVPRepo) timeArg(t time.Time) driver.Value {
	if r.dialect == database.DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// timeScanner はtime.Timeと文字列のどちらで返る列もtime.Timeに読み込む。
type timeScanner struct {
	dst *time.Time
}

func (s *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.dst = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("unsupported created_at type %T", src)
	}
}

func (s *timeScanner) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("invalid created_at %q: %w", v, err)
	}
	*s.dst = t.UTC()
	return nil
}

// compile-time interface check
var _ RSVPRepository = (*SQLRSVPRepo)(nil)

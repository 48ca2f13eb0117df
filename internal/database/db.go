package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect はDATABASE_URLのスキームから判定したSQL方言。
type Dialect string

// 対応するSQL方言
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// DialectFor はデータベースURLのスキームから方言を判定する。
// postgres:// と postgresql:// はPostgreSQL、sqlite3:// はSQLiteとして扱う。
func DialectFor(databaseURL string) (Dialect, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %q", u.Scheme)
	}
}

// DriverName はdatabase/sqlに登録されたドライバ名を返す。
func (d Dialect) DriverName() string {
	return string(d)
}

// Open はデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
// SQLiteは書き込みロックの競合を避けるため接続数を1に制限する。
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(databaseURL)
	if err != nil {
		return nil, "", err
	}

	dsn := databaseURL
	if dialect == DialectSQLite {
		dsn = sqliteDSN(databaseURL)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	return db, dialect, nil
}

// sqliteDSN は sqlite3://path?query 形式のURLをgo-sqlite3のDSNに変換する。
func sqliteDSN(databaseURL string) string {
	return strings.TrimPrefix(databaseURL, "sqlite3://")
}

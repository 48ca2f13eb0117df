package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// defaultLevel はSetupDefaultで設定したグローバルロガーのレベル。
// 設定読み込み後にSetLevelで変更する。
var defaultLevel = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// levelがnilの場合はINFOレベルで出力する。
func Setup(w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerが指定された場合はそのwriterに出力する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	defaultLevel.Set(slog.LevelInfo)
	slog.SetDefault(Setup(w, defaultLevel))
}

// SetLevel はグローバルロガーのレベルを変更する。
// 受け付ける値は debug, info, warn, error（大文字小文字を区別しない）。
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	defaultLevel.Set(lvl)
	return nil
}

// ParseLevel はレベル名をslog.Levelに変換する。
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}

package app

import "fmt"

// Command はeventrsvpのサブコマンドを表す。
type Command string

const (
	// CommandServe はRSVP受付APIを起動する。引数省略時の既定。
	CommandServe Command = "serve"
	// CommandMigrate はスキーマを最新まで適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のAPIの /health を確認する。
	// distrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// Usage はeventrsvpのコマンドライン書式。
const Usage = `usage: eventrsvp [serve|migrate|healthcheck|help]

commands:
  serve        start the RSVP API on SERVER_PORT (default)
  migrate      apply database migrations for DATABASE_URL and exit
  healthcheck  GET /health on the local SERVER_PORT; exit 1 unless 200
  help         show this message
`

// ParseCommand は先頭引数からサブコマンドを決定する。
// 引数が無ければserve、未知のサブコマンドはエラーとする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch args[0] {
	case "serve":
		return CommandServe, nil
	case "migrate":
		return CommandMigrate, nil
	case "healthcheck":
		return CommandHealthcheck, nil
	case "help", "-h", "--help":
		return CommandHelp, nil
	default:
		return "", fmt.Errorf("unknown command %q (want serve, migrate or healthcheck)", args[0])
	}
}

package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// ParseRollbackSteps は migrate サブコマンドの引数からロールバック段数を解析する。
// "migrate down" は1段、"migrate down N" はN段を返す。down 指定がなければ0を返す。
func ParseRollbackSteps(args []string) (int, error) {
	if len(args) < 2 || args[0] != string(CommandMigrate) || args[1] != "down" {
		return 0, nil
	}
	if len(args) == 2 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid rollback steps: %q", args[2])
	}
	return n, nil
}

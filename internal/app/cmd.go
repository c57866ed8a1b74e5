package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker はスキャンランナーを常駐実行するモード。
	CommandWorker Command = "worker"
	// CommandScan はスキャンランを1回だけ実行するモード。cron等からの利用を想定する。
	CommandScan Command = "scan"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandWorkerを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWorker
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "scan":
		return CommandScan
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandWorker
	}
}

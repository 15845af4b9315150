package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandWorker は整合ワーカーと運用エンドポイントを起動する。
	CommandWorker Command = "worker"
	// CommandReconcile は整合処理を1回だけ実行する。
	CommandReconcile Command = "reconcile"
	// CommandSetDefault は保守用にデフォルトアカウントを設定する。
	CommandSetDefault Command = "set-default"
	// CommandAccounts はユーザーの連携アカウントを一覧表示する。
	CommandAccounts Command = "accounts"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はpostdeckのcobraコマンドツリーを構築する。
// logwはJSON構造化ログの出力先、コマンドの出力はcmd.OutOrStdout()に書き込む。
func NewRootCommand(logw io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "postdeck",
		Short:         "postdeck は連携SNSアカウントのデフォルト整合性を管理する。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCommand(logw),
		newWorkerCommand(logw),
		newReconcileCommand(logw),
		newSetDefaultCommand(logw),
		newAccountsCommand(logw),
		newHealthcheckCommand(),
	)
	return root
}

func newMigrateCommand(logw io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "未適用のマイグレーションをすべて適用する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logw)
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}
}

func newWorkerCommand(logw io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandWorker),
		Short: "定期整合ワーカーと /health, /metrics を起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logw)
			if err != nil {
				return err
			}
			return runWorker(cfg)
		},
	}
}

func newReconcileCommand(logw io.Writer) *cobra.Command {
	var userID, platform string
	cmd := &cobra.Command{
		Use:   string(CommandReconcile),
		Short: "重複デフォルトを1回だけ整合する（全グループまたは指定グループ）",
		Long: `--user と --platform を両方指定した場合はそのグループだけを整合する。
どちらも指定しない場合は全グループを整合し、グループごとの結果をJSON Linesで出力する。
一部のグループが失敗した場合は非ゼロで終了する。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") != (platform == "") {
				return errFlagPair
			}
			cfg, err := Init(logw)
			if err != nil {
				return err
			}
			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			return runReconcile(cmd.Context(), c, cmd.OutOrStdout(), userID, platform)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "対象ユーザーID")
	cmd.Flags().StringVar(&platform, "platform", "", "対象プラットフォーム")
	return cmd
}

func newSetDefaultCommand(logw io.Writer) *cobra.Command {
	var userID, platform, accountID string
	cmd := &cobra.Command{
		Use:   string(CommandSetDefault),
		Short: "指定アカウントをグループのデフォルトにする",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logw)
			if err != nil {
				return err
			}
			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			return runSetDefault(cmd.Context(), c, cmd.OutOrStdout(), userID, platform, accountID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ユーザーID")
	cmd.Flags().StringVar(&platform, "platform", "", "プラットフォーム")
	cmd.Flags().StringVar(&accountID, "account", "", "デフォルトにするアカウントID")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newAccountsCommand(logw io.Writer) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   string(CommandAccounts),
		Short: "ユーザーの連携アカウントとデフォルトフラグを一覧表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logw)
			if err != nil {
				return err
			}
			c, err := openComponents(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			return runAccounts(cmd.Context(), c, cmd.OutOrStdout(), userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ユーザーID")
	cmd.MarkFlagRequired("user")
	return cmd
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "ワーカーの /health を確認する（Dockerヘルスチェック用）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(healthcheckURL())
		},
	}
}

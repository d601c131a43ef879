package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd はgatewayコマンドのルートを生成する。
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "教育プラットフォームのAPI Gateway",
		Long: `全てのリクエストを流量制御・XSS対策・認証のフィルターチェーンに通し、
パスの接頭辞で選んだ内部サービスへ転送するAPI Gateway。

例:
  gateway serve --config gateway.yaml
  gateway token --secret dev-secret --user-id 1 --username admin --redis-addr localhost:6379`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

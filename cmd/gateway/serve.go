package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/internal/config"
	"github.com/nao1215/edugate/internal/gateway"
	"github.com/nao1215/edugate/pkg/logging"
	"github.com/nao1215/edugate/pkg/redisclient"
	"github.com/nao1215/edugate/pkg/telemetry"
)

// newServeCmd はゲートウェイを起動するserveコマンドを生成する。
func newServeCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "ゲートウェイを起動する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, envFile)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "設定ファイル（YAML）のパス")
	cmd.Flags().StringVar(&envFile, "env-file", "", ".envファイルのパス（省略時はカレントディレクトリの.env）")
	return cmd
}

// runServe は設定を読み込んでゲートウェイを起動し、シグナルを受けるまで待つ。
func runServe(ctx context.Context, configPath, envFile string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("トレースの終了に失敗", zap.Error(err))
		}
	}()

	client := redisclient.New(redisclient.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	defer client.Close()

	server, err := gateway.NewServer(cfg, logger, gateway.Deps{Redis: client})
	if err != nil {
		return fmt.Errorf("Gatewayサーバーの初期化に失敗: %w", err)
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				if err := server.ApplySecurity(next.Security); err != nil {
					logger.Error("セキュリティ規則の更新に失敗", zap.Error(err))
				}
			})
			if err != nil {
				logger.Error("設定ファイルの監視に失敗", zap.Error(err))
			}
		}()
	}

	return server.Run(ctx)
}

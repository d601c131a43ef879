package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce は連続した変更通知をまとめる間隔。
const debounce = 100 * time.Millisecond

// Watch は設定ファイルの変更を監視し、再読込と検証に成功するたびにonChangeを呼び出す。
// 不正な設定はログに記録して無視する。ctxが終了するまでブロックする。
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("設定ファイルのパス解決に失敗: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の開始に失敗: %w", err)
	}
	defer watcher.Close()

	// エディタによる置き換えにも追従するため、ディレクトリを監視する
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("ディレクトリの監視に失敗: %w", err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := func() {
		cfg, err := Load(absPath)
		if err != nil {
			logger.Error("設定の再読込に失敗", zap.String("path", absPath), zap.Error(err))
			return
		}
		logger.Info("設定を再読込", zap.String("path", absPath))
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("ファイル監視でエラーが発生", zap.Error(err))
		}
	}
}

package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("指定したログレベルが有効になること", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{Level: "warn"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("warnレベルでinfoが有効になっている")
		}
		if !logger.Core().Enabled(zapcore.WarnLevel) {
			t.Error("warnレベルでwarnが無効になっている")
		}
	})

	t.Run("不明なログレベルはinfoになること", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{Level: "verbose", Development: true})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugが有効になっている")
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("infoが無効になっている")
		}
	})
}

package filter

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/pkg/admission"
	"github.com/nao1215/edugate/pkg/response"
)

// Fallback は流量制御による拒否を統一されたJSONレスポンスに変換する。
type Fallback struct {
	// msg は利用者向けのメッセージ。
	msg string
	// logger はロガー。
	logger *zap.Logger
	// observer は遮断の観測先。nilの場合は観測しない。
	observer Observer
}

// NewFallback は新しいFallbackを生成する。msgが空の場合は既定のメッセージを使う。
func NewFallback(msg string, logger *zap.Logger, observer Observer) *Fallback {
	if msg == "" {
		msg = response.MsgTooManyRequests
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{msg: msg, logger: logger, observer: observer}
}

// Handle はerrを処理する。
// レスポンスの書き込みが始まっている場合、またはerrが流量制御による拒否でない場合はerrをそのまま返す。
// 拒否の場合は429のレスポンスを書き込みnilを返す。
func (f *Fallback) Handle(c *gin.Context, err error) error {
	if c.Writer.Written() {
		return err
	}
	if !admission.IsBlocked(err) {
		return err
	}

	f.logger.Warn("流量制御によりリクエストを拒否",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	if f.observer != nil {
		f.observer.ObserveShortCircuit("admission", http.StatusTooManyRequests)
	}
	response.Abort(c, http.StatusTooManyRequests, response.Fail(http.StatusTooManyRequests, f.msg))
	return nil
}

package filter

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/pkg/bodycache"
	"github.com/nao1215/edugate/pkg/response"
)

// contextKeyRouteID はルートIDを保存するコンテキストキー。
const contextKeyRouteID = "route_id"

// StatusClientClosedRequest はクライアントが応答前に切断したことを表す非標準のステータス。
// アクセスログとメトリクスの記録にのみ使う。
const StatusClientClosedRequest = 499

// SetRouteID はリクエストの転送先ルートIDをコンテキストに保存する。
func SetRouteID(c *gin.Context, id string) {
	c.Set(contextKeyRouteID, id)
}

// RouteID はコンテキストからルートIDを取得する。
func RouteID(c *gin.Context) string {
	return c.GetString(contextKeyRouteID)
}

// HandlerConfig はHandlerの設定。
type HandlerConfig struct {
	// Rules は現在有効なセキュリティ規則。
	Rules *RuleSet
	// Fallback は段が返したerrorの変換処理。
	Fallback *Fallback
	// MaxBodyBytes はバッファするボディの上限。0以下は無制限。
	MaxBodyBytes int64
}

// Handler はチェーンを実行するGinハンドラを返す。
// 全ての段が続行した場合は変更後のリクエストで後続のハンドラを呼び出し、
// 遮断された場合はそのレスポンスを書き込んで中断する。
// クライアントが切断した場合は何も書き込まない。
func (ch *Chain) Handler(cfg HandlerConfig) gin.HandlerFunc {
	if cfg.Fallback == nil {
		cfg.Fallback = NewFallback("", ch.logger, ch.observer)
	}
	if cfg.Rules == nil {
		cfg.Rules = NewRuleSet(nil)
	}

	return func(c *gin.Context) {
		ex := NewExchange(c.Request, RouteID(c), cfg.Rules.Load(), cfg.MaxBodyBytes)
		defer ex.Release()

		ctx := c.Request.Context()
		out, err := ch.Run(ctx, ex)
		if ctx.Err() != nil {
			ch.logger.Debug("クライアントが切断", zap.String("path", ex.Path()))
			c.Status(StatusClientClosedRequest)
			c.Abort()
			return
		}
		if err != nil {
			if err = cfg.Fallback.Handle(c, err); err != nil {
				ch.fail(c, ex, err)
			}
			c.Abort()
			return
		}
		if out.Stopped() {
			response.Abort(c, out.Status, out.Result)
			return
		}

		c.Request = out.Request
		c.Next()
	}
}

// fail はFallbackで処理できなかったerrorをレスポンスに変換する。
func (ch *Chain) fail(c *gin.Context, ex *Exchange, err error) {
	_ = c.Error(err)
	if c.Writer.Written() {
		return
	}
	if errors.Is(err, bodycache.ErrTooLarge) {
		response.Abort(c, http.StatusRequestEntityTooLarge,
			response.Fail(http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge))
		return
	}
	ch.logger.Error("フィルターチェーンでエラーが発生",
		zap.String("path", ex.Path()),
		zap.Error(err),
	)
	response.Abort(c, http.StatusInternalServerError, response.InternalError())
}

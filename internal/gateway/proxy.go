package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/internal/filter"
	"github.com/nao1215/edugate/pkg/httpclient"
	"github.com/nao1215/edugate/pkg/response"
)

// handleProxy はフィルターチェーンを通過したリクエストを下流サービスへ転送するハンドラを返す。
// レスポンスのステータス、ヘッダー、ボディはそのままクライアントへ返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt := c.MustGet(contextKeyRoute).(*route)
		req := c.Request

		if s.maxBodyBytes > 0 && req.Body != nil && req.Body != http.NoBody {
			if req.ContentLength > s.maxBodyBytes {
				response.Abort(c, http.StatusRequestEntityTooLarge,
					response.Fail(http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge))
				return
			}
			req.Body = http.MaxBytesReader(c.Writer, req.Body, s.maxBodyBytes)
		}

		path := stripPath(req.URL.Path, rt.stripPrefix)
		resp, err := rt.client.Forward(req.Context(), req, path)
		if err != nil {
			if req.Context().Err() != nil {
				// クライアントが切断したため何も返さない
				c.Status(filter.StatusClientClosedRequest)
				c.Abort()
				return
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Abort(c, http.StatusRequestEntityTooLarge,
					response.Fail(http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge))
				return
			}
			s.logger.Error("下流サービスとの通信に失敗",
				zap.String("route", rt.id),
				zap.String("url", rt.client.BaseURL()+path),
				zap.Error(err),
			)
			_ = c.Error(err)
			response.Abort(c, http.StatusBadGateway, response.Fail(http.StatusBadGateway, response.MsgBadGateway))
			return
		}
		defer resp.Body.Close()

		httpclient.CopyResponseHeader(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)
		c.Writer.WriteHeaderNow()
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			// ヘッダー送信後のため記録のみ行う
			s.logger.Warn("レスポンスの転送が中断",
				zap.String("route", rt.id),
				zap.Error(err),
			)
			_ = c.Error(err)
		}
	}
}

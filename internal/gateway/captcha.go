package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/internal/filter"
	"github.com/nao1215/edugate/pkg/response"
)

// captchaResult は検証コード発行のレスポンス。
type captchaResult struct {
	response.Result
	// CaptchaEnabled は検証コードの照合が有効かどうか。
	CaptchaEnabled bool `json:"captchaEnabled"`
	// UUID は照合時にボディのuuidとして送り返す識別子。
	UUID string `json:"uuid,omitempty"`
	// Img は問題の画像（data URI形式）。
	Img string `json:"img,omitempty"`
}

// handleCaptcha は検証コードを発行するハンドラを返す。
// 照合が無効な場合は発行せず、captchaEnabled=falseだけを返す。
func (s *Server) handleCaptcha() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rules.Load().CaptchaEnabled {
			c.JSON(http.StatusOK, captchaResult{Result: response.OK()})
			return
		}

		ch, err := s.issuer.Issue(c.Request.Context())
		if err != nil {
			if c.Request.Context().Err() != nil {
				c.Status(filter.StatusClientClosedRequest)
				return
			}
			s.logger.Error("検証コードの発行に失敗", zap.Error(err))
			response.Abort(c, http.StatusServiceUnavailable,
				response.Fail(http.StatusServiceUnavailable, response.MsgCaptchaUnavailable))
			return
		}
		c.JSON(http.StatusOK, captchaResult{
			Result:         response.OK(),
			CaptchaEnabled: true,
			UUID:           ch.UUID,
			Img:            ch.Image,
		})
	}
}

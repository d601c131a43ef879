package filter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nao1215/edugate/pkg/bodycache"
	"github.com/nao1215/edugate/pkg/captcha"
	"github.com/nao1215/edugate/pkg/response"
)

// captchaForm はボディから読み取る検証コードの項目。
type captchaForm struct {
	Code string `json:"code"`
	UUID string `json:"uuid"`
}

// Captcha はログイン・登録時の検証コードを照合する段。
// Rules.CaptchaEnabledが無効の場合は何もしない。
type Captcha struct {
	verifier captcha.Verifier
}

// NewCaptcha は新しいCaptchaを生成する。
func NewCaptcha(verifier captcha.Verifier) *Captcha {
	return &Captcha{verifier: verifier}
}

// Name は段の名前を返す。
func (c *Captcha) Name() string { return "captcha" }

// Order は段の優先度を返す。
func (c *Captcha) Order() int { return 0 }

// Process は対象パスであればボディのcodeとuuidを照合する。
func (c *Captcha) Process(ctx context.Context, ex *Exchange) (Outcome, error) {
	if !ex.Rules.CaptchaEnabled || !ex.Rules.captchaTarget(ex.Path()) {
		return Continue(ex.Request), nil
	}

	data, err := ex.Body()
	if errors.Is(err, bodycache.ErrTooLarge) {
		return ShortCircuit(http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	var form captchaForm
	// 不正なJSONは検証コード無しとして扱う
	_ = json.Unmarshal(data, &form)

	err = c.verifier.Check(ctx, form.Code, form.UUID)
	switch {
	case err == nil:
		return Continue(ex.Request), nil
	case errors.Is(err, captcha.ErrStoreUnavailable):
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return ShortCircuit(http.StatusServiceUnavailable, response.MsgStoreUnavailable), nil
	default:
		return ShortCircuit(http.StatusBadRequest, err.Error()), nil
	}
}

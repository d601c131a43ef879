package filter

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nao1215/edugate/pkg/bodycache"
	"github.com/nao1215/edugate/pkg/response"
	"github.com/nao1215/edugate/pkg/xss"
)

// XSS はJSONボディの文字列値を無害化する段。
type XSS struct {
	sanitizer *xss.Sanitizer
}

// NewXSS は新しいXSSを生成する。
func NewXSS(sanitizer *xss.Sanitizer) *XSS {
	if sanitizer == nil {
		sanitizer = xss.New()
	}
	return &XSS{sanitizer: sanitizer}
}

// Name は段の名前を返す。
func (x *XSS) Name() string { return "xss" }

// Order は段の優先度を返す。
func (x *XSS) Order() int { return -200 }

// Process は対象のリクエストであればボディを書き換える。
// 無効時、更新系でないメソッド、JSON以外、除外パスの場合はボディを読まずに続行する。
func (x *XSS) Process(_ context.Context, ex *Exchange) (Outcome, error) {
	rules := ex.Rules
	if !rules.XSSEnabled {
		return Continue(ex.Request), nil
	}
	if !bodycache.Mutating(ex.Request.Method) || !isJSON(ex.Request) {
		return Continue(ex.Request), nil
	}
	if rules.XSSExcludes.Match(ex.Path()) {
		return Continue(ex.Request), nil
	}

	data, err := ex.Body()
	if errors.Is(err, bodycache.ErrTooLarge) {
		return ShortCircuit(http.StatusRequestEntityTooLarge, response.MsgBodyTooLarge), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	cleaned := x.sanitizer.SanitizeJSON(data)
	if !bytes.Equal(cleaned, data) {
		ex.ReplaceBody(cleaned)
	}
	return Continue(ex.Request), nil
}

// isJSON はContent-TypeがJSONかを返す。
func isJSON(r *http.Request) bool {
	ct := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	return strings.HasPrefix(ct, "application/json")
}

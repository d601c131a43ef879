package filter

import (
	"net/http"

	"github.com/nao1215/edugate/pkg/bodycache"
)

// Exchange は1リクエスト分のパイプラインの状態。
// そのリクエストの処理中だけ存在し、他のリクエストと共有しない。
type Exchange struct {
	// Request は下流へ転送する（変更後の）リクエスト。
	Request *http.Request
	// RouteID は転送先ルートのID。
	RouteID string
	// Rules はこのリクエストの処理中に使うセキュリティ規則のスナップショット。
	Rules *Rules

	// original は受信したままのリクエスト。
	original *http.Request
	// body はボディのバッファ。
	body *bodycache.Cache
}

// NewExchange は新しいExchangeを生成する。
// maxBodyBytesが0より大きい場合、それを超えるボディのバッファはErrTooLargeになる。
func NewExchange(r *http.Request, routeID string, rules *Rules, maxBodyBytes int64) *Exchange {
	if rules == nil {
		rules = &Rules{}
	}
	return &Exchange{
		Request:  r,
		RouteID:  routeID,
		Rules:    rules,
		original: r,
		body:     bodycache.New(maxBodyBytes),
	}
}

// Path は受信したリクエストのパスを返す。
func (e *Exchange) Path() string {
	return e.original.URL.Path
}

// Original は受信したままのリクエストを返す。
func (e *Exchange) Original() *http.Request {
	return e.original
}

// Body はリクエストボディをバッファして返す。
// 何度呼び出しても元のストリームは一度しか読まない。更新系でないメソッドではnilを返す。
func (e *Exchange) Body() ([]byte, error) {
	return e.body.Bytes(e.Request)
}

// ReplaceBody は転送するボディをdataに差し替え、Content-Lengthを合わせる。
// 後続の段がBodyで読む内容もdataになる。
func (e *Exchange) ReplaceBody(data []byte) {
	e.body.Set(e.Request, data)
}

// Release はバッファを解放する。レスポンスを返し終えた後に呼ぶ。
func (e *Exchange) Release() {
	e.body.Release()
}

package filter

import (
	"net/http"

	"github.com/nao1215/edugate/pkg/response"
)

// Outcome は1つの段の処理結果。
type Outcome struct {
	// Request は続行時に次の段へ渡すリクエスト。nilの場合は変更しない。
	Request *http.Request
	// Status は遮断時のHTTPステータス。
	Status int
	// Result は遮断時のレスポンスボディ。
	Result response.Result

	stopped bool
}

// Continue は処理を続行する結果を返す。
func Continue(r *http.Request) Outcome {
	return Outcome{Request: r}
}

// ShortCircuit はHTTPステータスと同じコードのResultで遮断する結果を返す。
func ShortCircuit(status int, msg string) Outcome {
	return Outcome{
		Status:  status,
		Result:  response.Fail(status, msg),
		stopped: true,
	}
}

// Stopped は遮断する結果かを返す。
func (o Outcome) Stopped() bool {
	return o.stopped
}

package filter

import (
	"context"

	"github.com/nao1215/edugate/pkg/admission"
)

// Admission はルートごとの流量制御を行う段。
// 上限を超えた場合はadmission.BlockErrorを返し、レスポンスへの変換はFallbackに任せる。
type Admission struct {
	limiter *admission.Limiter
}

// NewAdmission は新しいAdmissionを生成する。
func NewAdmission(limiter *admission.Limiter) *Admission {
	return &Admission{limiter: limiter}
}

// Name は段の名前を返す。
func (a *Admission) Name() string { return "admission" }

// Order は段の優先度を返す。
func (a *Admission) Order() int { return -300 }

// Process はルートIDをリソース名として流量を確認する。
func (a *Admission) Process(_ context.Context, ex *Exchange) (Outcome, error) {
	if err := a.limiter.Check(ex.RouteID); err != nil {
		return Outcome{}, err
	}
	return Continue(ex.Request), nil
}

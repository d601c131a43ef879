package filter

import (
	"strings"
	"sync/atomic"

	"github.com/nao1215/edugate/pkg/pathmatch"
)

// Rules はパイプラインが参照するセキュリティ規則。
// 生成後は変更せず、設定の再読込時は新しいRulesに丸ごと差し替える。
type Rules struct {
	// Whites は認証を行わないパスの集合。
	Whites *pathmatch.Set
	// XSSEnabled はXSS対策の有効・無効。
	XSSEnabled bool
	// XSSExcludes はXSS対策を行わないパスの集合。
	XSSExcludes *pathmatch.Set
	// CaptchaEnabled は検証コード照合の有効・無効。
	CaptchaEnabled bool
	// CaptchaPaths は検証コードを照合するパス。大文字小文字を区別せず完全一致で比較する。
	CaptchaPaths []string
}

// captchaTarget はパスが検証コードの照合対象かを返す。
func (r *Rules) captchaTarget(path string) bool {
	for _, p := range r.CaptchaPaths {
		if strings.EqualFold(p, path) {
			return true
		}
	}
	return false
}

// RuleSet は現在有効なRulesを保持する。
// 読み取りはロック無しで行え、差し替えはアトミックに行われる。
type RuleSet struct {
	current atomic.Pointer[Rules]
}

// NewRuleSet は初期値を持つRuleSetを生成する。
func NewRuleSet(r *Rules) *RuleSet {
	s := &RuleSet{}
	s.Store(r)
	return s
}

// Load は現在のRulesを返す。
func (s *RuleSet) Load() *Rules {
	return s.current.Load()
}

// Store はRulesを差し替える。
func (s *RuleSet) Store(r *Rules) {
	if r == nil {
		r = &Rules{}
	}
	s.current.Store(r)
}

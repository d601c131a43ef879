// Package admission はリソース（ルート）ごとの流量制御を提供する。
//
// 上限を超えたリクエストはBlockErrorとして拒否する。
// BlockErrorをレスポンスに変換するのは呼び出し側のフォールバック処理の責務である。
package admission

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// BlockError は流量制御によってリクエストが拒否されたことを表す。
type BlockError struct {
	// Resource は拒否されたリソース名。
	Resource string
}

// Error はエラーメッセージを返す。
func (e *BlockError) Error() string {
	return fmt.Sprintf("流量制御によりリクエストが拒否されました: resource=%s", e.Resource)
}

// IsBlocked はエラーが流量制御による拒否かを返す。
func IsBlocked(err error) bool {
	var be *BlockError
	return errors.As(err, &be)
}

// Rule は1リソース分の流量制御の設定。
type Rule struct {
	// RequestsPerSecond は1秒あたりの許容リクエスト数。
	RequestsPerSecond float64
	// Burst は瞬間的に許容するリクエスト数。
	Burst int
}

// Limiter はリソースごとにトークンバケットを持つ流量制御器。
type Limiter struct {
	// defaultRule はリソース個別の設定が無い場合に使う設定。
	defaultRule Rule
	// rules はリソース個別の設定。
	rules map[string]Rule
	// limiters はリソース名から*rate.Limiterへのマップ。
	limiters sync.Map
}

// NewLimiter は新しいLimiterを生成する。
// defaultRule.RequestsPerSecondが0以下の場合、個別設定の無いリソースは制限しない。
func NewLimiter(defaultRule Rule, rules map[string]Rule) *Limiter {
	copied := make(map[string]Rule, len(rules))
	for k, v := range rules {
		copied[k] = v
	}
	return &Limiter{
		defaultRule: defaultRule,
		rules:       copied,
	}
}

// Check はリソースへのリクエストを受け付けるかを判定する。
// 上限を超えた場合は*BlockErrorを返す。nilのLimiterは常に受け付ける。
func (l *Limiter) Check(resource string) error {
	if l == nil {
		return nil
	}
	limiter := l.limiterFor(resource)
	if limiter == nil {
		return nil
	}
	if !limiter.Allow() {
		return &BlockError{Resource: resource}
	}
	return nil
}

// limiterFor はリソースのトークンバケットを取得し、無ければ生成する。
// 制限しないリソースではnilを返す。
func (l *Limiter) limiterFor(resource string) *rate.Limiter {
	if v, ok := l.limiters.Load(resource); ok {
		return v.(*rate.Limiter)
	}

	rule, ok := l.rules[resource]
	if !ok {
		rule = l.defaultRule
	}
	if rule.RequestsPerSecond <= 0 {
		return nil
	}
	burst := rule.Burst
	if burst <= 0 {
		burst = max(1, int(rule.RequestsPerSecond))
	}

	v, _ := l.limiters.LoadOrStore(resource, rate.NewLimiter(rate.Limit(rule.RequestsPerSecond), burst))
	return v.(*rate.Limiter)
}

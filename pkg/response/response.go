// Package response はゲートウェイが返すエラーレスポンスの形式を定義する。
//
// フロントエンドとの契約として、遮断理由にかかわらず
// {"code": <int>, "msg": <string>} のフラットなJSONを返す。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Result はエラーレスポンスのボディ。
type Result struct {
	// Code は業務上のステータスコード。通常はHTTPステータスと同じ値。
	Code int `json:"code"`
	// Msg は利用者向けのメッセージ。
	Msg string `json:"msg"`
}

// Fail はHTTPステータスと同じコードを持つResultを生成する。
func Fail(status int, msg string) Result {
	return Result{Code: status, Msg: msg}
}

// Abort はResultをJSONで書き込み、以降のハンドラを中断する。
func Abort(c *gin.Context, status int, result Result) {
	c.AbortWithStatusJSON(status, result)
}

// 利用者向けメッセージ。
const (
	MsgOK                 = "操作成功"
	MsgInternalError      = "内部服务器错误"
	MsgNotFound           = "请求的资源不存在"
	MsgBadGateway         = "服务暂时不可用，请稍后再试"
	MsgTooManyRequests    = "请求超过最大数，请稍候再试"
	MsgBodyTooLarge       = "请求体过大"
	MsgStoreUnavailable   = "会话服务不可用，请稍后再试"
	MsgCaptchaUnavailable = "验证码服务不可用，请稍后再试"
	MsgTokenEmpty         = "令牌不能为空"
	MsgTokenInvalid       = "令牌已过期或验证不正确！"
	MsgSessionExpired     = "登录状态已过期"
	MsgTokenClaimsInvalid = "令牌验证失败"
)

// OK は成功を表すResultを返す。
func OK() Result {
	return Result{Code: http.StatusOK, Msg: MsgOK}
}

// InternalError は500のResultを返す。
func InternalError() Result {
	return Fail(http.StatusInternalServerError, MsgInternalError)
}

// Package session はログインセッションの生存確認を行うクライアントを提供する。
//
// セッションはRedis上の "login_tokens:" + セッションキー のキーとして保持される。
// 値の内容は参照せず、キーの存在のみを生存の判定に使う。有効期限はRedis側のTTLが正とする。
package session

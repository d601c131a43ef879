// Package token はゲートウェイが受け取るベアラートークンの署名検証と復号を提供する。
//
// トークンは認証サービスが発行するHMAC署名付きJWTであり、
// ユーザーID、ユーザー名、セッションキー、有効期限をクレームとして持つ。
// ゲートウェイは読み取り専用で利用し、発行（Encode）は開発用とテスト用に限る。
package token

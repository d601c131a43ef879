// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// 全てのリクエストは流量制御、XSS対策、認証、検証コード照合の順にフィルターチェーンを通過し、
// パスの接頭辞で選んだ下流サービスへ転送される。
// 認証済みのリクエストにはユーザー情報ヘッダーが付与され、内部呼び出しを示す信頼ヘッダーは削除される。
package gateway

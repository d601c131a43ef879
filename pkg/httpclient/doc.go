// Package httpclient はゲートウェイから下流サービスへリクエストを転送するクライアントを提供する。
//
// ルートごとに1つのClientを生成し、フィルターチェーンを通過したリクエストを
// ヘッダーとボディを保ったまま転送する。呼び出しはOpenTelemetryで計装される。
package httpclient

// Package middleware はゲートウェイで使用する共通のGinミドルウェアを提供する。
//
// パニックリカバリ、リクエストIDの付与、アクセスログ、CORS設定など、
// フィルターチェーンの外側で全リクエストに適用するミドルウェアを含む。
package middleware

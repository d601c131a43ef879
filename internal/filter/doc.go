// Package filter はゲートウェイのリクエスト整形・認証パイプラインを提供する。
//
// 全ての受信リクエストは、優先度（Order）の昇順に並べた段（Stage）を順に通過する。
// 各段は処理を続行（Continue）するか、レスポンスを返して遮断（ShortCircuit）するかを決める。
// 遮断された後の段は実行されず、ボディの追加読み取りも発生しない。
//
// 段の並び順は次の通り:
//   - Admission（-300）: ルートごとの流量制御。超過時はBlockErrorを送出する
//   - XSS（-200）: JSONボディの文字列値を無害化する
//   - Auth（-100）: トークンとセッションを検証し、ユーザー情報ヘッダーを付与する
//   - Captcha（0）: ログイン・登録時の検証コードを照合する
//
// ボディのバッファは段ではなく、最初に必要とした段がExchange.Bodyで一度だけ行う。
package filter

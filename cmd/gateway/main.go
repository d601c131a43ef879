// API Gatewayサービスのエントリポイント。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
// 全てのリクエストを認証・整形してから内部サービスへ転送する。
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}

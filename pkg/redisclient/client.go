// Package redisclient はセッションと検証コードの保存先に使うRedisクライアントを提供する。
//
// go-redisは既定ではcontextの期限をソケット操作に反映しないため、
// ここで生成したクライアントとDoを通して呼び出すことで、
// 1回の問い合わせがタイムアウトとリクエストの取り消しの両方で打ち切られるようにする。
package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout は接続と読み書きの既定タイムアウト。
const DefaultTimeout = 3 * time.Second

// Config はRedisクライアントの設定。
type Config struct {
	// Addr は接続先のアドレス。
	Addr string
	// Password は認証パスワード。
	Password string
	// DB は使用するデータベース番号。
	DB int
	// Timeout は接続と1回の読み書きのタイムアウト。0以下ならDefaultTimeout。
	Timeout time.Duration
}

// New はcontextの期限をソケット操作に反映するRedisクライアントを生成する。
func New(cfg Config) *redis.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		DialTimeout:           timeout,
		ReadTimeout:           timeout,
		WriteTimeout:          timeout,
		ContextTimeoutEnabled: true,
	})
}

// result はDoで実行した呼び出しの結果。
type result[T any] struct {
	v   T
	err error
}

// Do はctxに期限timeoutを付けてfnを実行する。
// ctxが取り消された場合はfnの完了を待たずにctxのエラーを返す。
// fnは期限付きのcontextを受け取るため、取り残された呼び出しも期限までに終わる。
func Do[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/edugate/pkg/redisclient"
)

// KeyPrefix はログインセッションのRedisキー接頭辞。
const KeyPrefix = "login_tokens:"

// ErrStoreUnavailable はセッションストアに問い合わせできなかったことを表す。
// 「セッションが存在しない」とは区別して扱うこと。
var ErrStoreUnavailable = errors.New("セッションストアが利用できません")

// Store はセッションの生存確認を行うインターフェース。
type Store interface {
	// IsLive はセッションキーに対応するログインセッションが存在するかを返す。
	IsLive(ctx context.Context, sessionKey string) (bool, error)
}

// Observer はセッション確認の結果と所要時間を受け取る。
type Observer interface {
	ObserveSessionLookup(result string, d time.Duration)
}

// RedisStore はRedisを使ったStoreの実装。
type RedisStore struct {
	// client はRedisクライアント。
	client redis.UniversalClient
	// timeout は1回の問い合わせのタイムアウト。
	timeout time.Duration
	// observer は問い合わせ結果の記録先。nilの場合は記録しない。
	observer Observer
}

// RedisOption はRedisStoreの設定を変更する関数。
type RedisOption func(*RedisStore)

// WithTimeout は問い合わせのタイムアウトを設定する。
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver は問い合わせ結果の記録先を設定する。
func WithObserver(o Observer) RedisOption {
	return func(s *RedisStore) {
		s.observer = o
	}
}

// NewRedisStore は新しいRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		timeout: redisclient.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsLive はRedisにセッションキーが存在するかを問い合わせる。
// 問い合わせはタイムアウトか呼び出し元の取り消しで打ち切られる。
// タイムアウトを含むあらゆる失敗はErrStoreUnavailableでラップして返す。
func (s *RedisStore) IsLive(ctx context.Context, sessionKey string) (bool, error) {
	start := time.Now()
	n, err := redisclient.Do(ctx, s.timeout, func(ctx context.Context) (int64, error) {
		return s.client.Exists(ctx, Key(sessionKey)).Result()
	})
	if err != nil {
		s.observe("error", start)
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if n == 0 {
		s.observe("miss", start)
		return false, nil
	}
	s.observe("hit", start)
	return true, nil
}

// observe は問い合わせ結果を記録する。
func (s *RedisStore) observe(result string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveSessionLookup(result, time.Since(start))
	}
}

// Key はセッションキーからRedisキーを組み立てる。
func Key(sessionKey string) string {
	return KeyPrefix + sessionKey
}

// Package captcha はログイン・登録時の検証コードを発行し、照合する。
//
// 発行時は問題の画像を返し、答えをRedisの "captcha_codes:" + uuid に有効期間付きで保存する。
// 照合は一度きりで、照合の成否にかかわらずキーを削除する。
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/edugate/pkg/redisclient"
)

// KeyPrefix は検証コードのRedisキー接頭辞。
const KeyPrefix = "captcha_codes:"

var (
	// ErrEmpty は検証コードが入力されていないことを表す。
	ErrEmpty = errors.New("验证码不能为空")
	// ErrExpired は検証コードが存在しない（失効した）ことを表す。
	ErrExpired = errors.New("验证码已失效")
	// ErrMismatch は検証コードが一致しないことを表す。
	ErrMismatch = errors.New("验证码错误")
	// ErrStoreUnavailable は検証コードの保存先に問い合わせできなかったことを表す。
	ErrStoreUnavailable = errors.New("検証コードストアが利用できません")
)

// Verifier は検証コードを照合するインターフェース。
type Verifier interface {
	Check(ctx context.Context, code, uuid string) error
}

// RedisVerifier はRedisに保存された検証コードを照合する。
type RedisVerifier struct {
	// client はRedisクライアント。
	client redis.UniversalClient
	// timeout は1回の問い合わせのタイムアウト。
	timeout time.Duration
}

// NewRedisVerifier は新しいRedisVerifierを生成する。
func NewRedisVerifier(client redis.UniversalClient, timeout time.Duration) *RedisVerifier {
	if timeout <= 0 {
		timeout = redisclient.DefaultTimeout
	}
	return &RedisVerifier{client: client, timeout: timeout}
}

// Check は検証コードを照合する。大文字小文字は区別しない。
func (v *RedisVerifier) Check(ctx context.Context, code, uuid string) error {
	if code == "" {
		return ErrEmpty
	}

	stored, err := redisclient.Do(ctx, v.timeout, func(ctx context.Context) (string, error) {
		return v.client.GetDel(ctx, KeyPrefix+uuid).Result()
	})
	if errors.Is(err, redis.Nil) {
		return ErrExpired
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !strings.EqualFold(code, stored) {
		return ErrMismatch
	}
	return nil
}

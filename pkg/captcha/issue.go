package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"

	"github.com/nao1215/edugate/pkg/redisclient"
)

// 検証コードの種類。
const (
	// TypeMath は四則演算の答えを入力させる。
	TypeMath = "math"
	// TypeChar は画像の英数字を入力させる。
	TypeChar = "char"
)

// DefaultTTL は発行した検証コードの既定の有効期間。
const DefaultTTL = 2 * time.Minute

// 画像の寸法と文字の設定。
const (
	imageHeight = 60
	imageWidth  = 160
	noiseCount  = 0
	charLength  = 4
	charSource  = "23456789abcdefghjkmnpqrstuvwxyz"
)

// ErrUnknownType は未対応の検証コードの種類を表す。
var ErrUnknownType = errors.New("未対応の検証コードの種類です")

// CheckType は検証コードの種類が対応しているかを返す。空は既定のTypeMathとして扱う。
func CheckType(kind string) error {
	switch kind {
	case "", TypeMath, TypeChar:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownType, kind)
}

// NewDriver は種類に応じた問題と画像の生成器を返す。
func NewDriver(kind string) (base64Captcha.Driver, error) {
	if err := CheckType(kind); err != nil {
		return nil, err
	}
	if kind == TypeChar {
		return base64Captcha.NewDriverString(imageHeight, imageWidth, noiseCount, 0,
			charLength, charSource, nil, nil, nil).ConvertFonts(), nil
	}
	return base64Captcha.NewDriverMath(imageHeight, imageWidth, noiseCount, 0,
		nil, nil, nil).ConvertFonts(), nil
}

// Challenge は発行した検証コードの問題。
type Challenge struct {
	// UUID は照合時に送り返させる識別子。
	UUID string
	// Image は問題の画像。data URI形式のbase64。
	Image string
}

// Issuer は検証コードを発行するインターフェース。
type Issuer interface {
	Issue(ctx context.Context) (Challenge, error)
}

// RedisIssuer は検証コードの答えをRedisに保存して問題を発行する。
// 保存先のキーはRedisVerifierが照合に使うものと同じ。
type RedisIssuer struct {
	// client はRedisクライアント。
	client redis.UniversalClient
	// driver は問題と画像の生成器。
	driver base64Captcha.Driver
	// ttl は答えの有効期間。
	ttl time.Duration
	// timeout は1回の保存のタイムアウト。
	timeout time.Duration
}

// NewRedisIssuer は新しいRedisIssuerを生成する。
func NewRedisIssuer(client redis.UniversalClient, driver base64Captcha.Driver, ttl, timeout time.Duration) *RedisIssuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = redisclient.DefaultTimeout
	}
	return &RedisIssuer{client: client, driver: driver, ttl: ttl, timeout: timeout}
}

// Issue は問題を生成し、答えを有効期間付きで保存する。
func (i *RedisIssuer) Issue(ctx context.Context) (Challenge, error) {
	_, question, answer := i.driver.GenerateIdQuestionAnswer()
	item, err := i.driver.DrawCaptcha(question)
	if err != nil {
		return Challenge{}, fmt.Errorf("検証コード画像の生成に失敗: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = redisclient.Do(ctx, i.timeout, func(ctx context.Context) (string, error) {
		return i.client.Set(ctx, KeyPrefix+id, answer, i.ttl).Result()
	})
	if err != nil {
		return Challenge{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return Challenge{UUID: id, Image: item.EncodeB64string()}, nil
}

package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed は署名検証または構造の解析に失敗したことを表す。
	ErrMalformed = errors.New("トークンの形式または署名が不正です")
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
	// ErrEmptySecret は署名鍵が空であることを表す。
	ErrEmptySecret = errors.New("署名鍵が設定されていません")
)

// Claims はトークンに埋め込まれたユーザー識別情報を表す。
// クレーム名は認証サービスが発行するトークンと一致させている。
type Claims struct {
	jwt.RegisteredClaims
	// UserKey はセッションストアの検索に使うセッションキー。
	UserKey string `json:"user_key"`
	// UserID はログインユーザーのID。認証サービスは数値で発行することがある。
	UserID ID `json:"user_id"`
	// Username はログインユーザー名。
	Username string `json:"username"`
}

// ID はJSONの文字列と数値のどちらからも読み込めるID。
// 数値は表記そのままの文字列として保持する。書き出しは常に文字列。
type ID string

// UnmarshalJSON は文字列、数値、nullを受け付ける。
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("IDは文字列か数値である必要があります: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// validMethods は受け付ける署名アルゴリズム。
var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Codec はトークンの署名と検証を行う。
// 起動時に一度だけ生成し、全リクエストで共有する。生成後は変更しない。
type Codec struct {
	// secret はHMAC署名鍵。
	secret []byte
	// requireExpiry がtrueの場合、expクレームの無いトークンを拒否する。
	requireExpiry bool
	// now は有効期限判定に使う現在時刻の取得関数。
	now func() time.Time
}

// Option はCodecの設定を変更する関数。
type Option func(*Codec)

// WithRequireExpiry はexpクレームを必須にする。
func WithRequireExpiry(required bool) Option {
	return func(c *Codec) {
		c.requireExpiry = required
	}
}

// WithClock は有効期限判定に使う時刻関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は署名鍵からCodecを生成する。
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode はクレームに署名してトークン文字列を生成する。
// ttlが0より大きい場合は有効期限を設定する。
func (c *Codec) Encode(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Decode はトークン文字列を検証し、クレームを返す。
// 有効期限切れはErrExpired、それ以外の検証失敗はErrMalformedでラップして返す。
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(validMethods),
		jwt.WithTimeFunc(c.now),
	}
	if c.requireExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !t.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

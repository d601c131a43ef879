// Package config はゲートウェイの設定を読み込む。
//
// 設定は既定値、YAMLファイル、環境変数の順に上書きされる。
// 環境変数は.envファイルからも読み込める。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/edugate/pkg/captcha"
	"github.com/nao1215/edugate/pkg/logging"
	"github.com/nao1215/edugate/pkg/pathmatch"
	"github.com/nao1215/edugate/pkg/telemetry"
)

// Config はゲートウェイ全体の設定。
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       logging.Config   `yaml:"log"`
	Token     TokenConfig      `yaml:"token"`
	Headers   HeadersConfig    `yaml:"headers"`
	Redis     RedisConfig      `yaml:"redis"`
	Security  SecurityConfig   `yaml:"security"`
	Body      BodyConfig       `yaml:"body"`
	CORS      CORSConfig       `yaml:"cors"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Routes    []RouteConfig    `yaml:"routes"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port は待ち受けるポート番号。
	Port string `yaml:"port"`
	// ShutdownTimeout はグレースフルシャットダウンの猶予。
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TokenConfig はトークンの設定。
type TokenConfig struct {
	// Header はトークンを運ぶヘッダー名。
	Header string `yaml:"header"`
	// Prefix はトークンの接頭辞。
	Prefix string `yaml:"prefix"`
	// Secret は署名鍵。起動時に一度だけ読み込み、再読込では変更しない。
	Secret string `yaml:"secret"`
	// RequireExpiry は有効期限の無いトークンを拒否するか。
	RequireExpiry bool `yaml:"requireExpiry"`
}

// HeadersConfig は下流へ転送するヘッダー名の設定。
type HeadersConfig struct {
	UserKey    string `yaml:"userKey"`
	UserID     string `yaml:"userId"`
	Username   string `yaml:"username"`
	FromSource string `yaml:"fromSource"`
}

// RedisConfig はセッションストアの設定。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Timeout は1回の問い合わせのタイムアウト。
	Timeout time.Duration `yaml:"timeout"`
}

// SecurityConfig はセキュリティ規則の設定。設定ファイルの再読込で差し替わる。
type SecurityConfig struct {
	Ignore    IgnoreConfig    `yaml:"ignore"`
	XSS       XSSConfig       `yaml:"xss"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// IgnoreConfig は認証を行わないパスの設定。
type IgnoreConfig struct {
	Whites []string `yaml:"whites"`
}

// XSSConfig はXSS対策の設定。
type XSSConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ExcludeURLs []string `yaml:"excludeUrls"`
}

// CaptchaConfig は検証コードの発行と照合の設定。
// 再読込で反映されるのはEnabledとPathsだけで、TypeとTTLは起動時に固定される。
type CaptchaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
	// Type は発行する問題の種類。mathまたはchar。
	Type string `yaml:"type"`
	// TTL は発行した検証コードの有効期間。
	TTL time.Duration `yaml:"ttl"`
}

// RateLimitConfig は流量制御の設定。
type RateLimitConfig struct {
	Enabled           bool                `yaml:"enabled"`
	RequestsPerSecond float64             `yaml:"requestsPerSecond"`
	Burst             int                 `yaml:"burst"`
	Routes            map[string]RateRule `yaml:"routes"`
	// Message は拒否時のメッセージ。空の場合は既定のメッセージを使う。
	Message string `yaml:"message"`
}

// RateRule はルート単位の流量制御の設定。
type RateRule struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// BodyConfig はリクエストボディの設定。
type BodyConfig struct {
	// MaxBytes はバッファするボディの上限。0以下は無制限。
	MaxBytes int64 `yaml:"maxBytes"`
}

// CORSConfig はCORSの設定。
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// RouteConfig は1つの転送先ルートの設定。
type RouteConfig struct {
	// ID はルートの識別子。流量制御のリソース名にも使う。
	ID string `yaml:"id"`
	// URI は転送先のベースURL。
	URI string `yaml:"uri"`
	// Prefix は一致させるパスの接頭辞。
	Prefix string `yaml:"prefix"`
	// StripPrefix は転送前に取り除く先頭のパスセグメント数。
	StripPrefix int `yaml:"stripPrefix"`
}

// Default は既定値を持つConfigを返す。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.Config{Level: "info"},
		Token: TokenConfig{
			Header: "Authorization",
			Prefix: "Bearer ",
		},
		Headers: HeadersConfig{
			UserKey:    "user_key",
			UserID:     "user_id",
			Username:   "username",
			FromSource: "from-source",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Timeout: 3 * time.Second,
		},
		Security: SecurityConfig{
			XSS: XSSConfig{Enabled: true},
			Captcha: CaptchaConfig{
				Paths: []string{"/auth/login", "/auth/register"},
				Type:  captcha.TypeMath,
				TTL:   captcha.DefaultTTL,
			},
		},
		Body: BodyConfig{MaxBytes: 10 << 20},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Telemetry: telemetry.Config{ServiceName: "gateway"},
	}
}

// LoadEnvFile は.envファイルを環境変数に読み込む。
// pathが空の場合はカレントディレクトリの.envを、存在する場合だけ読み込む。
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return nil
}

// Load は設定を読み込み、検証して返す。
// pathが空の場合は既定値と環境変数だけを使う。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // 起動時に指定されたパス
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides は環境変数で設定を上書きする。
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnvOr("PORT", cfg.Server.Port)
	cfg.Token.Secret = getEnvOr("JWT_SECRET", cfg.Token.Secret)
	cfg.Redis.Addr = getEnvOr("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOr("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Log.Level = getEnvOr("LOG_LEVEL", cfg.Log.Level)
	cfg.Telemetry.OTLPEndpoint = getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
}

// getEnvOr は環境変数の値を返す。未設定の場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Validate は設定を検証する。問題が複数ある場合は全てをまとめて返す。
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.portが設定されていません"))
	}
	if c.Token.Secret == "" {
		errs = append(errs, errors.New("token.secret（JWT_SECRET）が設定されていません"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addrが設定されていません"))
	}
	if _, err := pathmatch.Compile(c.Security.Ignore.Whites); err != nil {
		errs = append(errs, fmt.Errorf("security.ignore.whites: %w", err))
	}
	if _, err := pathmatch.Compile(c.Security.XSS.ExcludeURLs); err != nil {
		errs = append(errs, fmt.Errorf("security.xss.excludeUrls: %w", err))
	}
	if err := captcha.CheckType(c.Security.Captcha.Type); err != nil {
		errs = append(errs, fmt.Errorf("security.captcha.type: %w", err))
	}
	if c.Security.Captcha.TTL < 0 {
		errs = append(errs, errors.New("security.captcha.ttlに負の値は設定できません"))
	}
	if c.Security.RateLimit.RequestsPerSecond < 0 || c.Security.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("security.rateLimitに負の値は設定できません"))
	}

	ids := make(map[string]struct{}, len(c.Routes))
	for i, r := range c.Routes {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: idが設定されていません", i))
		} else if _, dup := ids[r.ID]; dup {
			errs = append(errs, fmt.Errorf("routes[%d]: idが重複しています: %s", i, r.ID))
		}
		ids[r.ID] = struct{}{}

		if !strings.HasPrefix(r.Prefix, "/") {
			errs = append(errs, fmt.Errorf("routes[%d]: prefixは/で始まる必要があります: %q", i, r.Prefix))
		}
		if r.StripPrefix < 0 {
			errs = append(errs, fmt.Errorf("routes[%d]: stripPrefixに負の値は設定できません", i))
		}
		u, err := url.Parse(r.URI)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: uriが不正です: %q", i, r.URI))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}

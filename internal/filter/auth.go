package filter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/nao1215/edugate/pkg/response"
	"github.com/nao1215/edugate/pkg/session"
	"github.com/nao1215/edugate/pkg/token"
)

// Decoder はトークンを検証してクレームを取り出すインターフェース。
type Decoder interface {
	Decode(tokenString string) (*token.Claims, error)
}

// AuthConfig は認証段が扱うヘッダー名の設定。
type AuthConfig struct {
	// Header はトークンを運ぶヘッダー名。
	Header string
	// Prefix はトークンの前に付く接頭辞。
	Prefix string
	// UserKeyHeader はセッションキーを転送するヘッダー名。
	UserKeyHeader string
	// UserIDHeader はユーザーIDを転送するヘッダー名。
	UserIDHeader string
	// UsernameHeader はユーザー名を転送するヘッダー名。
	UsernameHeader string
	// FromSourceHeader は内部呼び出しを示す信頼ヘッダー名。外部からの値は必ず削除する。
	FromSourceHeader string
}

// DefaultAuthConfig は既定のヘッダー名を返す。
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Header:           "Authorization",
		Prefix:           "Bearer ",
		UserKeyHeader:    "user_key",
		UserIDHeader:     "user_id",
		UsernameHeader:   "username",
		FromSourceHeader: "from-source",
	}
}

// Auth はトークンとセッションを検証し、ユーザー情報ヘッダーを付与する段。
type Auth struct {
	decoder Decoder
	store   session.Store
	cfg     AuthConfig
	logger  *zap.Logger
}

// NewAuth は新しいAuthを生成する。cfgの空の項目には既定値を使う。
func NewAuth(decoder Decoder, store session.Store, cfg AuthConfig, logger *zap.Logger) *Auth {
	def := DefaultAuthConfig()
	if cfg.Header == "" {
		cfg.Header = def.Header
	}
	if cfg.UserKeyHeader == "" {
		cfg.UserKeyHeader = def.UserKeyHeader
	}
	if cfg.UserIDHeader == "" {
		cfg.UserIDHeader = def.UserIDHeader
	}
	if cfg.UsernameHeader == "" {
		cfg.UsernameHeader = def.UsernameHeader
	}
	if cfg.FromSourceHeader == "" {
		cfg.FromSourceHeader = def.FromSourceHeader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{decoder: decoder, store: store, cfg: cfg, logger: logger}
}

// Name は段の名前を返す。
func (a *Auth) Name() string { return "auth" }

// Order は段の優先度を返す。
func (a *Auth) Order() int { return -100 }

// Process はリクエストを認証する。
// ホワイトリストのパスはトークンの解析もセッションの確認も行わず、そのまま続行する。
// 認証に成功した場合は、ユーザー情報ヘッダーを付与し信頼ヘッダーを削除したリクエストを返す。
func (a *Auth) Process(ctx context.Context, ex *Exchange) (Outcome, error) {
	if ex.Rules.Whites.Match(ex.Path()) {
		return Continue(ex.Request), nil
	}

	raw := a.extract(ex.Request)
	if raw == "" {
		return ShortCircuit(http.StatusUnauthorized, response.MsgTokenEmpty), nil
	}

	claims, err := a.decoder.Decode(raw)
	if err != nil {
		a.logger.Debug("トークンの検証に失敗", zap.String("path", ex.Path()), zap.Error(err))
		return ShortCircuit(http.StatusUnauthorized, response.MsgTokenInvalid), nil
	}

	if claims.UserKey == "" {
		return ShortCircuit(http.StatusUnauthorized, response.MsgSessionExpired), nil
	}
	live, err := a.store.IsLive(ctx, claims.UserKey)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		a.logger.Error("セッションの確認に失敗", zap.String("path", ex.Path()), zap.Error(err))
		return ShortCircuit(http.StatusServiceUnavailable, response.MsgStoreUnavailable), nil
	}
	if !live {
		return ShortCircuit(http.StatusUnauthorized, response.MsgSessionExpired), nil
	}

	if claims.UserID == "" || claims.Username == "" {
		return ShortCircuit(http.StatusUnauthorized, response.MsgTokenClaimsInvalid), nil
	}

	r := ex.Request.Clone(ctx)
	r.Header.Set(a.cfg.UserKeyHeader, url.QueryEscape(claims.UserKey))
	r.Header.Set(a.cfg.UserIDHeader, url.QueryEscape(string(claims.UserID)))
	r.Header.Set(a.cfg.UsernameHeader, url.QueryEscape(claims.Username))
	r.Header.Del(a.cfg.FromSourceHeader)
	return Continue(r), nil
}

// extract はヘッダーからトークンを取り出す。接頭辞があれば取り除く。
func (a *Auth) extract(r *http.Request) string {
	v := r.Header.Get(a.cfg.Header)
	if a.cfg.Prefix != "" && strings.HasPrefix(v, a.cfg.Prefix) {
		v = strings.TrimPrefix(v, a.cfg.Prefix)
	}
	return strings.TrimSpace(v)
}

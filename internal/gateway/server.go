package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nao1215/edugate/internal/config"
	"github.com/nao1215/edugate/internal/filter"
	"github.com/nao1215/edugate/pkg/admission"
	"github.com/nao1215/edugate/pkg/captcha"
	"github.com/nao1215/edugate/pkg/metrics"
	"github.com/nao1215/edugate/pkg/middleware"
	"github.com/nao1215/edugate/pkg/pathmatch"
	"github.com/nao1215/edugate/pkg/response"
	"github.com/nao1215/edugate/pkg/session"
	"github.com/nao1215/edugate/pkg/token"
	"github.com/nao1215/edugate/pkg/xss"
)

// contextKeyRoute は解決したルートを格納するGinコンテキストのキー。
const contextKeyRoute = "gateway_route"

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// shutdownTimeout はグレースフルシャットダウンの猶予。
	shutdownTimeout time.Duration
	// logger はロガー。
	logger *zap.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// routes は転送先ルートの一覧。
	routes *routeTable
	// rules は現在有効なセキュリティ規則。設定の再読込で差し替わる。
	rules *filter.RuleSet
	// chain はフィルターチェーン。
	chain *filter.Chain
	// issuer は検証コードの発行元。
	issuer captcha.Issuer
	// maxBodyBytes はリクエストボディの上限。
	maxBodyBytes int64
}

// Deps はServerが外部から受け取る依存。
type Deps struct {
	// Redis はセッションと検証コードを保存するRedisクライアント。必須。
	Redis redis.UniversalClient
	// Metrics はメトリクス。nilの場合は新しく生成する。
	Metrics *metrics.Metrics
	// Transport は下流サービスへの転送に使うRoundTripper。nilの場合は既定値を使う。
	Transport http.RoundTripper
}

// NewServer は新しいGatewayサーバーを生成する。
// 署名鍵とルートはここで一度だけ読み込み、以後変更しない。
func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if deps.Redis == nil {
		return nil, errors.New("セッションストアのクライアントが指定されていません")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	codec, err := token.NewCodec(cfg.Token.Secret, token.WithRequireExpiry(cfg.Token.RequireExpiry))
	if err != nil {
		return nil, fmt.Errorf("トークンコーデックの生成に失敗: %w", err)
	}
	rules, err := buildRules(cfg.Security)
	if err != nil {
		return nil, err
	}

	driver, err := captcha.NewDriver(cfg.Security.Captcha.Type)
	if err != nil {
		return nil, fmt.Errorf("検証コード生成器の初期化に失敗: %w", err)
	}

	store := session.NewRedisStore(deps.Redis,
		session.WithTimeout(cfg.Redis.Timeout),
		session.WithObserver(m),
	)
	authCfg := filter.AuthConfig{
		Header:           cfg.Token.Header,
		Prefix:           cfg.Token.Prefix,
		UserKeyHeader:    cfg.Headers.UserKey,
		UserIDHeader:     cfg.Headers.UserID,
		UsernameHeader:   cfg.Headers.Username,
		FromSourceHeader: cfg.Headers.FromSource,
	}

	chain := filter.NewChain([]filter.Stage{
		filter.NewAdmission(buildLimiter(cfg.Security.RateLimit)),
		filter.NewXSS(xss.New()),
		filter.NewAuth(codec, store, authCfg, logger),
		filter.NewCaptcha(captcha.NewRedisVerifier(deps.Redis, cfg.Redis.Timeout)),
	}, filter.WithLogger(logger), filter.WithObserver(m))

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins, allowHeaders(cfg)))

	s := &Server{
		router:          router,
		port:            cfg.Server.Port,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
		metrics:         m,
		routes:          newRouteTable(cfg.Routes, deps.Transport),
		rules:           filter.NewRuleSet(rules),
		chain:           chain,
		issuer:          captcha.NewRedisIssuer(deps.Redis, driver, cfg.Security.Captcha.TTL, cfg.Redis.Timeout),
		maxBodyBytes:    cfg.Body.MaxBytes,
	}
	s.setupRoutes(cfg.Security.RateLimit.Message)

	logger.Info("フィルターチェーンを構成", zap.Strings("stages", chain.Names()))
	return s, nil
}

// setupRoutes はルーティングを設定する。
// ヘルスチェック、メトリクス、検証コードの発行以外の全てのリクエストはフィルターチェーンを経て転送される。
func (s *Server) setupRoutes(blockMessage string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/code", s.handleCaptcha())

	s.router.NoRoute(
		s.observe(),
		s.resolveRoute(),
		s.chain.Handler(filter.HandlerConfig{
			Rules:        s.rules,
			Fallback:     filter.NewFallback(blockMessage, s.logger, s.metrics),
			MaxBodyBytes: s.maxBodyBytes,
		}),
		s.handleProxy(),
	)
}

// Handler はサーバーのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayサービスを起動", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ゲートウェイの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("Gatewayサービスを停止")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ゲートウェイの停止に失敗: %w", err)
	}
	return nil
}

// ApplySecurity はセキュリティ規則を差し替える。処理中のリクエストは古い規則のまま完了する。
func (s *Server) ApplySecurity(sec config.SecurityConfig) error {
	rules, err := buildRules(sec)
	if err != nil {
		return err
	}
	s.rules.Store(rules)
	s.logger.Info("セキュリティ規則を更新",
		zap.Int("whites", rules.Whites.Len()),
		zap.Bool("xss", rules.XSSEnabled),
		zap.Bool("captcha", rules.CaptchaEnabled),
	)
	return nil
}

// resolveRoute はパスに一致するルートを解決するハンドラを返す。一致しない場合は404を返す。
func (s *Server) resolveRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt, ok := s.routes.match(c.Request.URL.Path)
		if !ok {
			response.Abort(c, http.StatusNotFound, response.Fail(http.StatusNotFound, response.MsgNotFound))
			return
		}
		c.Set(contextKeyRoute, rt)
		filter.SetRouteID(c, rt.id)
		c.Next()
	}
}

// observe はリクエスト数と処理時間を記録するハンドラを返す。
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		routeID := filter.RouteID(c)
		if routeID == "" {
			routeID = "unmatched"
		}
		s.metrics.ObserveRequest(routeID, c.Writer.Status(), time.Since(start))
	}
}

// buildRules はセキュリティ設定からフィルターの規則を生成する。
func buildRules(sec config.SecurityConfig) (*filter.Rules, error) {
	whites, err := pathmatch.Compile(sec.Ignore.Whites)
	if err != nil {
		return nil, fmt.Errorf("ホワイトリストの解析に失敗: %w", err)
	}
	excludes, err := pathmatch.Compile(sec.XSS.ExcludeURLs)
	if err != nil {
		return nil, fmt.Errorf("XSS除外パスの解析に失敗: %w", err)
	}
	return &filter.Rules{
		Whites:         whites,
		XSSEnabled:     sec.XSS.Enabled,
		XSSExcludes:    excludes,
		CaptchaEnabled: sec.Captcha.Enabled,
		CaptchaPaths:   append([]string(nil), sec.Captcha.Paths...),
	}, nil
}

// buildLimiter は流量制御の設定から制御器を生成する。無効の場合はnilを返す。
func buildLimiter(rl config.RateLimitConfig) *admission.Limiter {
	if !rl.Enabled {
		return nil
	}
	rules := make(map[string]admission.Rule, len(rl.Routes))
	for id, r := range rl.Routes {
		rules[id] = admission.Rule{RequestsPerSecond: r.RequestsPerSecond, Burst: r.Burst}
	}
	return admission.NewLimiter(admission.Rule{RequestsPerSecond: rl.RequestsPerSecond, Burst: rl.Burst}, rules)
}

// allowHeaders はCORSで許可するリクエストヘッダーを返す。
func allowHeaders(cfg *config.Config) string {
	headers := []string{"Content-Type", middleware.HeaderRequestID}
	if cfg.Token.Header != "" && !strings.EqualFold(cfg.Token.Header, "Content-Type") {
		headers = append([]string{cfg.Token.Header}, headers...)
	}
	return strings.Join(headers, ", ")
}

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultTimeout は下流サービス呼び出しの既定タイムアウト。
const defaultTimeout = 30 * time.Second

// hopByHopHeaders は転送してはならない接続単位のヘッダー。
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client は1つの下流サービスへリクエストを転送するHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は転送先サービスのベースURL。
	baseURL string
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTransport は内部で使うRoundTripperを差し替える。トレースの計装は維持される。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = otelhttp.NewTransport(rt)
	}
}

// New は新しい転送用HTTPクライアントを生成する。
// baseURLには転送先サービスのベースURL（例: "http://asc-system:9201"）を指定する。
// リダイレクトは追跡せず、そのまま呼び出し元に返す。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は転送先サービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Forward は受信したリクエストを下流サービスのpathへ転送する。
// ヘッダーは接続単位のものを除いてそのまま引き継ぎ、ボディはin.Bodyを送信する。
// 呼び出し元はレスポンスボディを必ずCloseすること。
func (c *Client) Forward(ctx context.Context, in *http.Request, path string) (*http.Response, error) {
	url := c.baseURL + path
	if in.URL.RawQuery != "" {
		url += "?" + in.URL.RawQuery
	}

	var body io.Reader
	if in.Body != nil && in.Body != http.NoBody {
		body = in.Body
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}
	req.Header = in.Header.Clone()
	removeHopByHop(req.Header)
	if body != nil {
		req.ContentLength = in.ContentLength
		req.GetBody = in.GetBody
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下流サービスへの転送に失敗: %w", err)
	}
	return resp, nil
}

// removeHopByHop は接続単位のヘッダーと、Connectionヘッダーで指定されたヘッダーを削除する。
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// CopyResponseHeader はレスポンスヘッダーから接続単位のものを除いてdstに追加する。
func CopyResponseHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	removeHopByHop(dst)
}

package gateway

import (
	"net/http"
	"sort"
	"strings"

	"github.com/nao1215/edugate/internal/config"
	"github.com/nao1215/edugate/pkg/httpclient"
)

// route は1つの転送先ルート。
type route struct {
	// id はルートの識別子。
	id string
	// prefix は一致させるパスの接頭辞。
	prefix string
	// stripPrefix は転送前に取り除く先頭のパスセグメント数。
	stripPrefix int
	// client は転送先サービスのクライアント。
	client *httpclient.Client
}

// matches はpathがルートの接頭辞にセグメント単位で一致するかを返す。
func (r *route) matches(path string) bool {
	if r.prefix == "/" {
		return true
	}
	prefix := strings.TrimSuffix(r.prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// routeTable は接頭辞の長い順に並べたルートの一覧。
type routeTable struct {
	routes []*route
}

// newRouteTable は設定からルート表を生成する。
func newRouteTable(cfgs []config.RouteConfig, transport http.RoundTripper) *routeTable {
	routes := make([]*route, 0, len(cfgs))
	for _, rc := range cfgs {
		var opts []httpclient.Option
		if transport != nil {
			opts = append(opts, httpclient.WithTransport(transport))
		}
		routes = append(routes, &route{
			id:          rc.ID,
			prefix:      rc.Prefix,
			stripPrefix: rc.StripPrefix,
			client:      httpclient.New(rc.URI, opts...),
		})
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].prefix) > len(routes[j].prefix)
	})
	return &routeTable{routes: routes}
}

// match はpathに一致するルートのうち、接頭辞が最も長いものを返す。
func (t *routeTable) match(path string) (*route, bool) {
	for _, r := range t.routes {
		if r.matches(path) {
			return r, true
		}
	}
	return nil, false
}

// stripPath はpathの先頭からn個のセグメントを取り除く。
// 末尾のスラッシュは保持し、全てのセグメントを取り除いた場合は"/"を返す。
func stripPath(path string, n int) string {
	if n <= 0 {
		return path
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if n >= len(segments) {
		return "/"
	}
	return "/" + strings.Join(segments[n:], "/")
}

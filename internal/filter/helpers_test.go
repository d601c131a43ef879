package filter

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/edugate/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用の署名鍵。
const testSecret = "test-secret-key"

// countingDecoder は呼び出し回数を数えるDecoder。
type countingDecoder struct {
	codec *token.Codec
	calls atomic.Int32
}

// Decode はトークンを検証する。
func (d *countingDecoder) Decode(s string) (*token.Claims, error) {
	d.calls.Add(1)
	return d.codec.Decode(s)
}

// fakeStore はメモリ上のセッションストア。
type fakeStore struct {
	live  map[string]bool
	err   error
	calls atomic.Int32
}

// IsLive はセッションが有効かを返す。
func (s *fakeStore) IsLive(_ context.Context, key string) (bool, error) {
	s.calls.Add(1)
	if s.err != nil {
		return false, s.err
	}
	return s.live[key], nil
}

// newTestCodec はテスト用のCodecを生成する。
func newTestCodec(t testing.TB) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec()でエラーが発生: %v", err)
	}
	return codec
}

// issueToken はテスト用のトークンを発行する。
func issueToken(t testing.TB, codec *token.Codec, claims token.Claims, ttl time.Duration) string {
	t.Helper()
	s, err := codec.Encode(claims, ttl)
	if err != nil {
		t.Fatalf("Encode()でエラーが発生: %v", err)
	}
	return s
}

// stubStage は固定の結果を返す段。
type stubStage struct {
	name    string
	order   int
	outcome func(ex *Exchange) (Outcome, error)
	calls   atomic.Int32
}

func (s *stubStage) Name() string { return s.name }
func (s *stubStage) Order() int   { return s.order }

func (s *stubStage) Process(_ context.Context, ex *Exchange) (Outcome, error) {
	s.calls.Add(1)
	if s.outcome == nil {
		return Continue(ex.Request), nil
	}
	return s.outcome(ex)
}

// headerSetter は指定したヘッダーを付与して続行する結果を返す。
func headerSetter(name, value string) func(ex *Exchange) (Outcome, error) {
	return func(ex *Exchange) (Outcome, error) {
		r := ex.Request.Clone(ex.Request.Context())
		r.Header.Set(name, value)
		return Continue(r), nil
	}
}

// stopWith は指定したステータスで遮断する結果を返す。
func stopWith(status int) func(ex *Exchange) (Outcome, error) {
	return func(*Exchange) (Outcome, error) {
		return ShortCircuit(status, http.StatusText(status)), nil
	}
}

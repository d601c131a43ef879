package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("X-Request-IDが無い場合UUIDが生成されリクエストとレスポンスに設定されること", func(t *testing.T) {
		t.Parallel()

		var forwarded string
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			forwarded = c.Request.Header.Get(HeaderRequestID)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		got := w.Header().Get(HeaderRequestID)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q はUUIDではない", got)
		}
		if forwarded != got {
			t.Errorf("リクエストヘッダー = %q, want %q", forwarded, got)
		}
	})

	t.Run("受信したX-Request-IDがそのまま使われること", func(t *testing.T) {
		t.Parallel()

		var fromContext string
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			fromContext = GetRequestID(c)
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get(HeaderRequestID); got != "req-123" {
			t.Errorf("X-Request-ID = %q, want %q", got, "req-123")
		}
		if fromContext != "req-123" {
			t.Errorf("GetRequestID() = %q, want %q", fromContext, "req-123")
		}
	})
}

// TestAccessLog はAccessLogミドルウェアを検証する。
func TestAccessLog(t *testing.T) {
	t.Parallel()

	t.Run("メソッド・パス・ステータスがログに出力されること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.InfoLevel)
		router := gin.New()
		router.Use(RequestID(), AccessLog(zap.New(core)))
		router.POST("/biz/orders", func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/biz/orders", nil))

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("ログ件数 = %d, want 1", len(entries))
		}
		fields := entries[0].ContextMap()
		if fields["method"] != http.MethodPost {
			t.Errorf("method = %v, want %q", fields["method"], http.MethodPost)
		}
		if fields["path"] != "/biz/orders" {
			t.Errorf("path = %v, want %q", fields["path"], "/biz/orders")
		}
		if fields["status"] != int64(http.StatusCreated) {
			t.Errorf("status = %v, want %d", fields["status"], http.StatusCreated)
		}
		if fields["request_id"] == "" {
			t.Error("request_idが空")
		}
	})

	t.Run("エラーが記録されたリクエストはwarnで出力されること", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zap.InfoLevel)
		router := gin.New()
		router.Use(AccessLog(zap.New(core)))
		router.GET("/err", func(c *gin.Context) {
			_ = c.Error(http.ErrHandlerTimeout)
			c.Status(http.StatusInternalServerError)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/err", nil))

		if got := logs.FilterLevelExact(zap.WarnLevel).Len(); got != 1 {
			t.Errorf("warnログ件数 = %d, want 1", got)
		}
	})
}

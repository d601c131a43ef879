package filter

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/nao1215/edugate/pkg/pathmatch"
)

// xssRules はXSS対策を有効にしたテスト用の規則を返す。
func xssRules() *Rules {
	return &Rules{
		XSSEnabled:  true,
		XSSExcludes: pathmatch.MustCompile("/system/notice"),
	}
}

// runXSS はXSS段を1回実行し、転送されるボディを返す。
func runXSS(t *testing.T, rules *Rules, r *http.Request) (*Exchange, []byte) {
	t.Helper()
	ex := NewExchange(r, "biz", rules, 0)
	out, err := NewXSS(nil).Process(r.Context(), ex)
	if err != nil {
		t.Fatalf("Process()でエラーが発生: %v", err)
	}
	if out.Stopped() {
		t.Fatalf("遮断された: %+v", out.Result)
	}
	if out.Request.Body == nil {
		return ex, nil
	}
	body, err := io.ReadAll(out.Request.Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	return ex, body
}

// TestXSSProcess はXSS段を検証する。
func TestXSSProcess(t *testing.T) {
	t.Parallel()

	t.Run("JSONボディの文字列値が無害化されContent-Lengthが一致すること", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/biz/orders", strings.NewReader(`{"note":"<script>x</script>"}`))
		r.Header.Set("Content-Type", "application/json;charset=UTF-8")

		ex, body := runXSS(t, xssRules(), r)
		if bytes.Contains(body, []byte("<script>")) {
			t.Errorf("scriptタグが残っている: %s", body)
		}
		if got := ex.Request.Header.Get("Content-Length"); got != strconv.Itoa(len(body)) {
			t.Errorf("Content-Length = %q, want %d", got, len(body))
		}
		if ex.Request.ContentLength != int64(len(body)) {
			t.Errorf("ContentLength = %d, want %d", ex.Request.ContentLength, len(body))
		}
	})

	t.Run("除外パスは書き換えないこと", func(t *testing.T) {
		t.Parallel()

		in := `{"content":"<p>hi</p>"}`
		r := httptest.NewRequest(http.MethodPut, "/system/notice", strings.NewReader(in))
		r.Header.Set("Content-Type", "application/json")

		ex, body := runXSS(t, xssRules(), r)
		if string(body) != in {
			t.Errorf("body = %s, want %s", body, in)
		}
		if ex.body.Cached() {
			t.Error("除外パスでボディがバッファされた")
		}
	})

	t.Run("無効の場合は書き換えないこと", func(t *testing.T) {
		t.Parallel()

		in := `{"note":"<b>x</b>"}`
		r := httptest.NewRequest(http.MethodPost, "/biz/orders", strings.NewReader(in))
		r.Header.Set("Content-Type", "application/json")

		_, body := runXSS(t, &Rules{}, r)
		if string(body) != in {
			t.Errorf("body = %s, want %s", body, in)
		}
	})

	t.Run("変更が無い場合はボディがそのまま転送されること", func(t *testing.T) {
		t.Parallel()

		in := `{"n": 1, "s": "plain"}`
		r := httptest.NewRequest(http.MethodPost, "/biz/orders", strings.NewReader(in))
		r.Header.Set("Content-Type", "application/json")

		_, body := runXSS(t, xssRules(), r)
		if string(body) != in {
			t.Errorf("body = %s, want %s", body, in)
		}
	})

	t.Run("上限を超えるボディは413で遮断されること", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodPost, "/biz/orders", strings.NewReader(`{"note":"0123456789"}`))
		r.Header.Set("Content-Type", "application/json")

		out, err := NewXSS(nil).Process(r.Context(), NewExchange(r, "biz", xssRules(), 8))
		if err != nil {
			t.Fatalf("Process()でエラーが発生: %v", err)
		}
		if !out.Stopped() || out.Status != http.StatusRequestEntityTooLarge {
			t.Errorf("Status = %d, want %d", out.Status, http.StatusRequestEntityTooLarge)
		}
	})
}

// TestXSSPassthroughProperty は読み取り専用のメソッドとJSON以外のボディが変更されないことを検証する。
func TestXSSPassthroughProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		body := rapid.StringMatching(`\{"[a-z]{1,5}":"(<script>)?[a-z <>/]{0,16}"\}`).Draw(t, "body")
		readOnly := rapid.Bool().Draw(t, "readOnly")

		method := rapid.SampledFrom([]string{http.MethodPost, http.MethodPut, http.MethodPatch}).Draw(t, "mutating")
		contentType := rapid.SampledFrom([]string{"text/plain", "application/x-www-form-urlencoded", "multipart/form-data"}).Draw(t, "ct")
		if readOnly {
			method = rapid.SampledFrom([]string{http.MethodGet, http.MethodDelete}).Draw(t, "readOnlyMethod")
			contentType = "application/json"
		}

		r := httptest.NewRequest(method, "/biz/orders", strings.NewReader(body))
		r.Header.Set("Content-Type", contentType)

		ex := NewExchange(r, "biz", xssRules(), 0)
		out, err := NewXSS(nil).Process(r.Context(), ex)
		if err != nil {
			t.Fatalf("Process()でエラーが発生: %v", err)
		}
		if ex.body.Cached() {
			t.Fatal("対象外のリクエストでボディがバッファされた")
		}
		got, err := io.ReadAll(out.Request.Body)
		if err != nil {
			t.Fatalf("ボディの読み取りに失敗: %v", err)
		}
		if string(got) != body {
			t.Fatalf("body = %q, want %q", got, body)
		}
	})
}

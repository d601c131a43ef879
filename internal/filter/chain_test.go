package filter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingObserver は遮断を記録するObserver。
type recordingObserver struct {
	stages   []string
	statuses []int
}

func (o *recordingObserver) ObserveShortCircuit(stage string, status int) {
	o.stages = append(o.stages, stage)
	o.statuses = append(o.statuses, status)
}

// TestNewChain はNewChainによる並び順を検証する。
func TestNewChain(t *testing.T) {
	t.Parallel()

	t.Run("Orderの昇順に並ぶこと", func(t *testing.T) {
		t.Parallel()

		c := NewChain([]Stage{
			&stubStage{name: "captcha", order: 0},
			&stubStage{name: "auth", order: -100},
			&stubStage{name: "admission", order: -300},
			&stubStage{name: "xss", order: -200},
		})

		want := []string{"admission", "xss", "auth", "captcha"}
		got := c.Names()
		if len(got) != len(want) {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("同じOrderの段は渡した順を保つこと", func(t *testing.T) {
		t.Parallel()

		c := NewChain([]Stage{
			&stubStage{name: "a", order: 10},
			&stubStage{name: "b", order: 10},
			&stubStage{name: "c", order: 10},
		})

		got := c.Names()
		if got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("Names() = %v, want [a b c]", got)
		}
	})

	t.Run("実際のステージの順序がXSS、Auth、Captchaであること", func(t *testing.T) {
		t.Parallel()

		c := NewChain([]Stage{
			NewCaptcha(nil),
			NewAuth(nil, nil, AuthConfig{}, nil),
			NewXSS(nil),
			NewAdmission(nil),
		})

		want := []string{"admission", "xss", "auth", "captcha"}
		got := c.Names()
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})
}

// TestChainRun はChain.Runを検証する。
func TestChainRun(t *testing.T) {
	t.Parallel()

	t.Run("全ての段が続行した場合は変更後のリクエストが返ること", func(t *testing.T) {
		t.Parallel()

		first := &stubStage{name: "first", order: 1, outcome: headerSetter("X-First", "1")}
		second := &stubStage{name: "second", order: 2, outcome: headerSetter("X-Second", "2")}
		c := NewChain([]Stage{second, first})

		ex := NewExchange(httptest.NewRequest(http.MethodGet, "/biz/orders", nil), "biz", nil, 0)
		out, err := c.Run(context.Background(), ex)
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if out.Stopped() {
			t.Fatal("Run()が遮断を返した")
		}
		if out.Request.Header.Get("X-First") != "1" || out.Request.Header.Get("X-Second") != "2" {
			t.Errorf("ヘッダーが引き継がれていない: %v", out.Request.Header)
		}
		if ex.Original().Header.Get("X-First") != "" {
			t.Error("受信したリクエストが変更された")
		}
	})

	t.Run("遮断された後の段は実行されないこと", func(t *testing.T) {
		t.Parallel()

		obs := &recordingObserver{}
		core, logs := observer.New(zapcore.WarnLevel)
		stop := &stubStage{name: "auth", order: 1, outcome: stopWith(http.StatusUnauthorized)}
		after := &stubStage{name: "after", order: 2}
		c := NewChain([]Stage{stop, after}, WithLogger(zap.New(core)), WithObserver(obs))

		ex := NewExchange(httptest.NewRequest(http.MethodGet, "/biz/orders/1", nil), "biz", nil, 0)
		out, err := c.Run(context.Background(), ex)
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if !out.Stopped() {
			t.Fatal("Run()が遮断を返さなかった")
		}
		if out.Status != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", out.Status, http.StatusUnauthorized)
		}
		if after.calls.Load() != 0 {
			t.Errorf("後続の段が%d回実行された", after.calls.Load())
		}
		if len(obs.stages) != 1 || obs.stages[0] != "auth" || obs.statuses[0] != http.StatusUnauthorized {
			t.Errorf("observer = %v %v", obs.stages, obs.statuses)
		}

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("ログ件数 = %d, want 1", len(entries))
		}
		if got := entries[0].ContextMap()["path"]; got != "/biz/orders/1" {
			t.Errorf("path = %v, want %q", got, "/biz/orders/1")
		}
	})

	t.Run("段がerrorを返した場合は後続を実行せずerrorが返ること", func(t *testing.T) {
		t.Parallel()

		sentinel := errors.New("boom")
		failing := &stubStage{name: "failing", order: 1, outcome: func(*Exchange) (Outcome, error) {
			return Outcome{}, sentinel
		}}
		after := &stubStage{name: "after", order: 2}
		c := NewChain([]Stage{failing, after})

		ex := NewExchange(httptest.NewRequest(http.MethodGet, "/", nil), "", nil, 0)
		_, err := c.Run(context.Background(), ex)
		if !errors.Is(err, sentinel) {
			t.Errorf("err = %v, want %v", err, sentinel)
		}
		if after.calls.Load() != 0 {
			t.Error("後続の段が実行された")
		}
	})

	t.Run("キャンセル済みのコンテキストでは段を実行しないこと", func(t *testing.T) {
		t.Parallel()

		stage := &stubStage{name: "s", order: 1}
		c := NewChain([]Stage{stage})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ex := NewExchange(httptest.NewRequest(http.MethodGet, "/", nil), "", nil, 0)
		if _, err := c.Run(ctx, ex); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want %v", err, context.Canceled)
		}
		if stage.calls.Load() != 0 {
			t.Error("段が実行された")
		}
	})
}

// TestRuleSet はRuleSetの差し替えを検証する。
func TestRuleSet(t *testing.T) {
	t.Parallel()

	s := NewRuleSet(nil)
	if s.Load() == nil {
		t.Fatal("Load()がnilを返した")
	}

	next := &Rules{XSSEnabled: true}
	s.Store(next)
	if s.Load() != next {
		t.Error("Store()した値がLoad()で返らない")
	}
}

// TestChainRunSanitizedBodyVisibleToLaterStages はXSS段が書き換えたボディを後続の段も読むことを検証する。
func TestChainRunSanitizedBodyVisibleToLaterStages(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"code":"<b>ab</b>","uuid":"u-1"}`))
	r.Header.Set("Content-Type", "application/json")
	rules := &Rules{XSSEnabled: true, CaptchaEnabled: true, CaptchaPaths: []string{"/auth/login"}}
	ex := NewExchange(r, "auth", rules, 0)
	defer ex.Release()

	v := &fakeVerifier{}
	c := NewChain([]Stage{NewCaptcha(v), NewXSS(nil)})

	out, err := c.Run(context.Background(), ex)
	if err != nil {
		t.Fatalf("Run()でエラーが発生: %v", err)
	}
	if out.Stopped() {
		t.Fatalf("遮断された: %+v", out.Result)
	}

	forwarded, err := io.ReadAll(out.Request.Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	if string(forwarded) != `{"code":"ab","uuid":"u-1"}` {
		t.Errorf("転送されるボディ = %s", forwarded)
	}
	if v.code != "ab" || v.uuid != "u-1" {
		t.Errorf("検証コード段が見た値 code=%q uuid=%q, want code=%q uuid=%q", v.code, v.uuid, "ab", "u-1")
	}
}

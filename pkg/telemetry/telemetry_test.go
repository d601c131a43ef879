package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TestSetup はSetup関数を検証する。
func TestSetup(t *testing.T) {
	t.Run("送信先が未設定でもTrace Contextが伝播されること", func(t *testing.T) {
		shutdown, err := Setup(context.Background(), Config{})
		if err != nil {
			t.Fatalf("Setup()でエラーが発生: %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown()でエラーが発生: %v", err)
		}

		header := http.Header{}
		header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(header))

		out := http.Header{}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out))
		if out.Get("traceparent") == "" {
			t.Error("traceparentが伝播されていない")
		}
	})
}

// Package telemetry は下流サービス呼び出しのOpenTelemetryトレースを設定する。
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config はトレースの設定。
type Config struct {
	// OTLPEndpoint はOTLP/gRPCの送信先（host:port）。空の場合はトレースを送信しない。
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	// ServiceName はトレースに付与するサービス名。
	ServiceName string `yaml:"serviceName"`
}

// ShutdownFunc はトレースの送信を終了する関数。
type ShutdownFunc func(ctx context.Context) error

// Setup はグローバルなTracerProviderとプロパゲータを設定する。
// 送信先が未設定の場合もW3C Trace Contextの伝播は有効にする。
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("OTLPエクスポーターの生成に失敗: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "edugate"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

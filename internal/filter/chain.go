package filter

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Stage はパイプラインの1段。
type Stage interface {
	// Name は段の名前。ログとメトリクスのラベルに使う。
	Name() string
	// Order は段の優先度。小さいほど先に実行される。
	Order() int
	// Process はリクエストを処理し、続行か遮断かを返す。
	// レスポンスに変換されていない失敗（流量制御による拒否など）はerrorで返す。
	Process(ctx context.Context, ex *Exchange) (Outcome, error)
}

// Observer は遮断を観測するインターフェース。
type Observer interface {
	ObserveShortCircuit(stage string, status int)
}

// Chain は優先度順に並べた段の列。生成後は変更しない。
type Chain struct {
	// stages はOrderの昇順に並べた段。
	stages []Stage
	// logger はロガー。
	logger *zap.Logger
	// observer は遮断の観測先。nilの場合は観測しない。
	observer Observer
}

// ChainOption はChainの設定を変更する関数。
type ChainOption func(*Chain)

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver は遮断の観測先を設定する。
func WithObserver(o Observer) ChainOption {
	return func(c *Chain) {
		c.observer = o
	}
}

// NewChain は段をOrderの昇順に並べたChainを生成する。同じOrderの段は渡した順を保つ。
func NewChain(stages []Stage, opts ...ChainOption) *Chain {
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})

	c := &Chain{
		stages: sorted,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names は実行順に並べた段の名前を返す。
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Run は段を順に実行する。
// いずれかの段が遮断またはerrorを返した時点で止まり、以降の段は実行しない。
// 全ての段が続行した場合は、最後の段が返したリクエストでContinueを返す。
func (c *Chain) Run(ctx context.Context, ex *Exchange) (Outcome, error) {
	for _, s := range c.stages {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		out, err := s.Process(ctx, ex)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", s.Name(), err)
		}
		if out.Stopped() {
			c.logger.Warn("リクエストを遮断",
				zap.String("path", ex.Path()),
				zap.String("stage", s.Name()),
				zap.Int("status", out.Status),
				zap.String("msg", out.Result.Msg),
			)
			if c.observer != nil {
				c.observer.ObserveShortCircuit(s.Name(), out.Status)
			}
			return out, nil
		}
		if out.Request != nil {
			ex.Request = out.Request
		}
	}
	return Continue(ex.Request), nil
}

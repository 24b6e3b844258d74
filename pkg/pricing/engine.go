// Package pricing 对外的定价入口：解析定价、模拟定价、Greeks 与交叉校验
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/bs"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/greeks"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/runid"
)

// Mode Greeks 的计算方式
type Mode string

const (
	ModeAnalytic  Mode = "analytic"
	ModeSimulated Mode = "simulated"
)

// ParseMode 空字符串视为 analytic
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAnalytic:
		return ModeAnalytic, nil
	case ModeSimulated:
		return ModeSimulated, nil
	}
	return "", option.NewConfigError("mode", fmt.Sprintf("unknown greeks mode %q", s), nil)
}

// Engine 是定价引擎对象。
// 可以把它理解成“一个计算器”：
// 输入 Contract (+ 模拟配置) → 输出 Report。
// 自身不持有可变状态，可并发调用。
type Engine struct {
	mc     *mc.Engine
	greeks *greeks.Estimator
	logger logrus.FieldLogger
	newID  func() string
}

type Option func(*engineOptions)

type engineOptions struct {
	logger logrus.FieldLogger
	newID  func() string
	step   float64
}

// WithLogger 设置日志，同时传给模拟引擎和 Greeks 估计器
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithIDGenerator 替换运行 ID 生成器，测试里用来固定 ID
func WithIDGenerator(f func() string) Option {
	return func(o *engineOptions) { o.newID = f }
}

// WithStep 设置差分 Greeks 的相对步长
func WithStep(h float64) Option {
	return func(o *engineOptions) { o.step = h }
}

func NewEngine(opts ...Option) *Engine {
	o := engineOptions{newID: runid.New, step: greeks.DefaultStep}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logx.Discard()
	}
	return &Engine{
		mc:     mc.NewEngine(mc.WithLogger(o.logger)),
		greeks: greeks.NewEstimator(greeks.WithStep(o.step), greeks.WithLogger(o.logger)),
		logger: o.logger,
		newID:  o.newID,
	}
}

// ============================================================================
// 对外接口
// ============================================================================

// PriceAnalytic 解析价格 + 闭式 Greeks，标准误为 0，无置信区间
func (e *Engine) PriceAnalytic(c option.Contract) (option.Report, error) {
	start := time.Now()
	price, err := bs.Price(c)
	if err != nil {
		return option.Report{}, err
	}
	g, err := bs.Greeks(c)
	if err != nil {
		return option.Report{}, err
	}
	return option.Report{
		RunID:    e.newID(),
		Model:    option.ModelAnalytic,
		Contract: c,
		Price:    price,
		Greeks:   &g,
		Elapsed:  time.Since(start),
	}, nil
}

// PriceSimulated 蒙特卡洛定价；报告不带 Greeks，需要时单独调用 Greeks
func (e *Engine) PriceSimulated(ctx context.Context, c option.Contract, cfg mc.Config) (option.Report, error) {
	rep, err := e.mc.Simulate(ctx, c, cfg)
	if err != nil {
		return option.Report{}, err
	}
	rep.RunID = e.newID()
	return rep, nil
}

// Greeks 按模式计算 Greeks。simulated 模式下 cfg 为 nil 时用默认配置，
// 未指定种子时固定一个种子让各次扰动共用随机数。
func (e *Engine) Greeks(ctx context.Context, c option.Contract, mode Mode, cfg *mc.Config) (option.Greeks, error) {
	switch mode {
	case ModeAnalytic, "":
		return e.greeks.Estimate(ctx, c, bs.Pricer{})
	case ModeSimulated:
		sim := mc.DefaultConfig()
		if cfg != nil {
			sim = *cfg
		}
		if err := sim.Validate(); err != nil {
			return option.Greeks{}, err
		}
		return e.greeks.EstimateFD(ctx, c, e.mc.Bind(sim))
	}
	return option.Greeks{}, option.NewConfigError("mode", fmt.Sprintf("unknown greeks mode %q", mode), nil)
}

// Convergence 路径数收敛性研究
func (e *Engine) Convergence(ctx context.Context, c option.Contract, cfg mc.Config, sizes []int) ([]mc.ConvergencePoint, error) {
	return e.mc.Convergence(ctx, c, cfg, sizes)
}

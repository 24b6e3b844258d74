// Package greeks 对任意定价器估计 Greeks：能给闭式解的直接委托，否则用有限差分
package greeks

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
)

// DefaultStep 默认相对差分步长
const DefaultStep = 1e-4

// Pricer 任意定价器：解析公式或绑定了配置的蒙特卡洛
type Pricer interface {
	Price(ctx context.Context, c option.Contract) (float64, error)
}

// PricerFunc 函数适配器
type PricerFunc func(ctx context.Context, c option.Contract) (float64, error)

func (f PricerFunc) Price(ctx context.Context, c option.Contract) (float64, error) {
	return f(ctx, c)
}

// ClosedForm 能直接给出闭式 Greeks 的定价器
type ClosedForm interface {
	Greeks(c option.Contract) (option.Greeks, error)
}

// Estimator Greeks 估计器（GreeksEstimator）
type Estimator struct {
	step   float64
	logger logrus.FieldLogger
}

type Option func(*Estimator)

// WithStep 设置相对步长 h，实际步长为 h·max(|x|, 1)
func WithStep(h float64) Option {
	return func(e *Estimator) { e.step = h }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{step: DefaultStep, logger: logx.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step 当前相对步长
func (e *Estimator) Step() float64 { return e.step }

// Estimate 定价器实现了 ClosedForm 时直接委托，否则走有限差分
func (e *Estimator) Estimate(ctx context.Context, c option.Contract, p Pricer) (option.Greeks, error) {
	if cf, ok := p.(ClosedForm); ok {
		return cf.Greeks(c)
	}
	return e.EstimateFD(ctx, c, p)
}

// EstimateFD 强制使用有限差分，用于核对闭式解或给模拟定价器求 Greeks
//
//	delta/gamma: 对 S 中心差分 / 二阶中心差分
//	vega:        对 sigma
//	theta:       -∂V/∂T
//	rho:         对 r
//
// sigma 或 T 向下扰动会小于 0 时改用二阶前向差分，不报错。
func (e *Estimator) EstimateFD(ctx context.Context, c option.Contract, p Pricer) (option.Greeks, error) {
	if err := c.Validate(); err != nil {
		return option.Greeks{}, err
	}
	if !(e.step > 0) || math.IsInf(e.step, 0) {
		return option.Greeks{}, option.NewConfigError("step", fmt.Sprintf("must be finite and > 0, got %v", e.step), nil)
	}

	fd := &differ{ctx: ctx, pricer: p, base: c}
	v0, err := fd.price(c)
	if err != nil {
		return option.Greeks{}, err
	}
	fd.v0 = v0

	var g option.Greeks

	// Spot 必须严格为正
	hS := e.stepFor(c.Spot)
	if g.Delta, g.Gamma, err = fd.firstAndSecond(option.Contract.WithSpot, c.Spot, hS, c.Spot-hS > 0); err != nil {
		return option.Greeks{}, err
	}

	hV := e.stepFor(c.Volatility)
	if g.Vega, err = fd.first(option.Contract.WithVolatility, c.Volatility, hV, c.Volatility-hV >= 0); err != nil {
		return option.Greeks{}, err
	}

	hT := e.stepFor(c.Expiry)
	dVdT, err := fd.first(option.Contract.WithExpiry, c.Expiry, hT, c.Expiry-hT >= 0)
	if err != nil {
		return option.Greeks{}, err
	}
	g.Theta = -dVdT

	hR := e.stepFor(c.Rate)
	if g.Rho, err = fd.first(option.Contract.WithRate, c.Rate, hR, true); err != nil {
		return option.Greeks{}, err
	}

	for name, v := range g.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return option.Greeks{}, &option.NumericError{Contract: c, Quantity: name, Value: v}
		}
	}

	e.logger.WithFields(logrus.Fields{
		"contract": c.String(),
		"step":     e.step,
		"pricings": fd.calls,
		"delta":    g.Delta,
		"vega":     g.Vega,
	}).Debug("[Greeks] finite-difference estimate")
	return g, nil
}

func (e *Estimator) stepFor(x float64) float64 {
	return e.step * math.Max(math.Abs(x), 1)
}

// ============================================================================
// 差分模板
// ============================================================================

type bumpFunc func(option.Contract, float64) option.Contract

type differ struct {
	ctx    context.Context
	pricer Pricer
	base   option.Contract
	v0     float64
	calls  int
}

func (d *differ) price(c option.Contract) (float64, error) {
	d.calls++
	return d.pricer.Price(d.ctx, c)
}

func (d *differ) at(bump bumpFunc, x float64) (float64, error) {
	return d.price(bump(d.base, x))
}

// first 一阶导数；central=false 时用 (-3V0 + 4V(x+h) - V(x+2h)) / 2h
func (d *differ) first(bump bumpFunc, x, h float64, central bool) (float64, error) {
	up, err := d.at(bump, x+h)
	if err != nil {
		return 0, err
	}
	if central {
		down, err := d.at(bump, x-h)
		if err != nil {
			return 0, err
		}
		return (up - down) / (2 * h), nil
	}
	up2, err := d.at(bump, x+2*h)
	if err != nil {
		return 0, err
	}
	return (-3*d.v0 + 4*up - up2) / (2 * h), nil
}

// firstAndSecond 同时给出一阶和二阶导数，复用扰动后的价格
func (d *differ) firstAndSecond(bump bumpFunc, x, h float64, central bool) (float64, float64, error) {
	up, err := d.at(bump, x+h)
	if err != nil {
		return 0, 0, err
	}
	if central {
		down, err := d.at(bump, x-h)
		if err != nil {
			return 0, 0, err
		}
		return (up - down) / (2 * h), (up - 2*d.v0 + down) / (h * h), nil
	}
	up2, err := d.at(bump, x+2*h)
	if err != nil {
		return 0, 0, err
	}
	return (-3*d.v0 + 4*up - up2) / (2 * h), (up2 - 2*up + d.v0) / (h * h), nil
}

// Package mc 蒙特卡洛定价：在风险中性测度下模拟到期标的价格，贴现收益取均值
package mc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/bs"
)

// 分块内每隔多少条路径检查一次取消
const cancelCheckEvery = 4096

// Engine 蒙特卡洛定价引擎，本身无状态，可被多个 goroutine 同时使用
type Engine struct {
	logger logrus.FieldLogger
}

// EngineOption 引擎可选项
type EngineOption func(*Engine)

// WithLogger 设置日志；默认丢弃
func WithLogger(l logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine 创建引擎
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: logx.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ============================================================================
// 核心模拟
// ============================================================================

// pathModel 一份合约在整个模拟中不变的量
type pathModel struct {
	contract option.Contract
	drift    float64 // (r - q - sigma²/2)T
	diffuse  float64 // sigma·√T
	discount float64 // e^{-rT}
}

func newPathModel(c option.Contract) pathModel {
	return pathModel{
		contract: c,
		drift:    (c.Rate - c.DividendYield - 0.5*c.Volatility*c.Volatility) * c.Expiry,
		diffuse:  c.Volatility * math.Sqrt(c.Expiry),
		discount: c.Discount(),
	}
}

// payoff 单条路径的贴现收益
func (m pathModel) payoff(z float64) float64 {
	st := m.contract.Spot * math.Exp(m.drift+m.diffuse*z)
	return m.discount * m.contract.Intrinsic(st)
}

// Simulate 对一份合约运行蒙特卡洛模拟
//
// 路径被切成固定大小的分块，第 i 块使用以 (seed, i) 播种的独立 Sampler；
// worker 只写自己分块的累加器，全部完成后按分块顺序一次合并。
// 因此同一 seed 和 Paths 下，结果与 Workers 无关（逐位一致）。
// ctx 取消时放弃本次运行，不返回部分结果。
func (e *Engine) Simulate(ctx context.Context, c option.Contract, cfg Config) (option.Report, error) {
	if err := c.Validate(); err != nil {
		return option.Report{}, err
	}
	if err := cfg.Validate(); err != nil {
		return option.Report{}, err
	}
	cfg = cfg.normalize()

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	antithetic := cfg.VarianceReduction == option.VarianceAntithetic

	start := time.Now()
	model := newPathModel(c)

	numBlocks := (cfg.Paths + cfg.BlockSize - 1) / cfg.BlockSize
	partials := make([]accumulator, numBlocks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < numBlocks; i++ {
		lo := i * cfg.BlockSize
		hi := min(lo+cfg.BlockSize, cfg.Paths)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sampler := NewSampler(seed, uint64(i), hi-lo, antithetic)
			acc, err := runBlock(gctx, model, sampler, antithetic)
			if err != nil {
				return err
			}
			partials[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.WithFields(logrus.Fields{
			"contract": c.String(),
			"paths":    cfg.Paths,
		}).WithError(err).Warn("[MonteCarlo] simulation abandoned")
		return option.Report{}, err
	}

	var total accumulator
	for _, p := range partials {
		total.merge(p)
	}

	price := total.mean()
	se := total.standardError()
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return option.Report{}, &option.NumericError{Contract: c, Quantity: "price", Value: price}
	}
	if math.IsNaN(se) || math.IsInf(se, 0) {
		return option.Report{}, &option.NumericError{Contract: c, Quantity: "standard_error", Value: se}
	}

	half := option.CriticalValue(cfg.ConfidenceLevel) * se
	elapsed := time.Since(start)

	e.logger.WithFields(logrus.Fields{
		"contract":  c.String(),
		"paths":     cfg.Paths,
		"blocks":    numBlocks,
		"workers":   cfg.Workers,
		"seed":      seed,
		"price":     price,
		"std_error": se,
		"elapsed":   elapsed,
	}).Debug("[MonteCarlo] simulation finished")

	return option.Report{
		Model:              option.ModelMonteCarlo,
		Contract:           c,
		Price:              price,
		StandardError:      se,
		ConfidenceInterval: &option.Interval{Lower: price - half, Upper: price + half},
		ConfidenceLevel:    cfg.ConfidenceLevel,
		Paths:              cfg.Paths,
		Seed:               &seed,
		VarianceReduction:  cfg.VarianceReduction,
		Elapsed:            elapsed,
	}, nil
}

// runBlock 消费一个分块的抽样序列；对偶模式下每对的均值算一个样本
func runBlock(ctx context.Context, m pathModel, s *Sampler, antithetic bool) (accumulator, error) {
	var acc accumulator
	for i := 0; ; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return accumulator{}, err
			}
		}
		if antithetic {
			z1, z2, ok := s.NextPair()
			if !ok {
				break
			}
			acc.add(0.5 * (m.payoff(z1) + m.payoff(z2)))
			continue
		}
		z, ok := s.Next()
		if !ok {
			break
		}
		acc.add(m.payoff(z))
	}
	return acc, nil
}

// ============================================================================
// 作为通用定价器使用
// ============================================================================

// Bound 绑定了固定配置的模拟定价器，实现 greeks.Pricer
type Bound struct {
	engine *Engine
	cfg    Config
}

// Bind 绑定配置。未指定种子时在此处固定一个，
// 使得差分 Greeks 的各次扰动共用同一组随机数。
func (e *Engine) Bind(cfg Config) Bound {
	if cfg.Seed == nil {
		cfg = cfg.WithSeed(rand.Uint64())
	}
	return Bound{engine: e, cfg: cfg}
}

// Config 绑定的配置（种子已固定）
func (b Bound) Config() Config { return b.cfg }

// Price 实现 greeks.Pricer
func (b Bound) Price(ctx context.Context, c option.Contract) (float64, error) {
	rep, err := b.engine.Simulate(ctx, c, b.cfg)
	if err != nil {
		return 0, err
	}
	return rep.Price, nil
}

// ============================================================================
// 收敛性研究
// ============================================================================

// ConvergencePoint 某个路径数下的模拟结果及其与解析价的偏差
type ConvergencePoint struct {
	Paths              int             `json:"paths"`
	Price              float64         `json:"price"`
	StandardError      float64         `json:"standard_error"`
	ConfidenceInterval option.Interval `json:"confidence_interval"`
	Analytic           float64         `json:"analytic"`
	AbsError           float64         `json:"abs_error"`
	Covered            bool            `json:"covered"`
	Elapsed            time.Duration   `json:"elapsed"`
}

// Convergence 按给定路径数依次模拟，观察标准误按 1/√N 收敛；
// sizes 为空时使用 DefaultConvergenceSizes。各路径数共用 cfg 的种子。
func (e *Engine) Convergence(ctx context.Context, c option.Contract, cfg Config, sizes []int) ([]ConvergencePoint, error) {
	if len(sizes) == 0 {
		sizes = DefaultConvergenceSizes
	}
	analytic, err := bs.Price(c)
	if err != nil {
		return nil, err
	}
	if cfg.Seed == nil {
		cfg = cfg.WithSeed(rand.Uint64())
	}

	points := make([]ConvergencePoint, 0, len(sizes))
	for _, n := range sizes {
		rep, err := e.Simulate(ctx, c, cfg.WithPaths(n))
		if err != nil {
			return nil, fmt.Errorf("convergence at %d paths: %w", n, err)
		}
		points = append(points, ConvergencePoint{
			Paths:              n,
			Price:              rep.Price,
			StandardError:      rep.StandardError,
			ConfidenceInterval: *rep.ConfidenceInterval,
			Analytic:           analytic,
			AbsError:           math.Abs(rep.Price - analytic),
			Covered:            rep.ConfidenceInterval.Contains(analytic),
			Elapsed:            rep.Elapsed,
		})
		e.logger.WithFields(logrus.Fields{
			"paths":     n,
			"price":     rep.Price,
			"abs_error": math.Abs(rep.Price - analytic),
			"elapsed":   rep.Elapsed,
		}).Info("[MonteCarlo] convergence step")
	}
	return points, nil
}

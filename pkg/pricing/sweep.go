package pricing

import (
	"fmt"
	"math"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/bs"
)

// Grid 半开区间 [Start, Stop) 上步长为 Step 的等距网格
type Grid struct {
	Start float64 `json:"start" mapstructure:"start"`
	Stop  float64 `json:"stop" mapstructure:"stop"`
	Step  float64 `json:"step" mapstructure:"step"`
}

var (
	// DefaultVolatilityGrid 价格对波动率的敏感性
	DefaultVolatilityGrid = Grid{Start: 0.05, Stop: 0.81, Step: 0.01}
	// DefaultProbabilityGrid 行权概率对波动率的敏感性
	DefaultProbabilityGrid = Grid{Start: 0.01, Stop: 1.0, Step: 0.01}
	// DefaultStrikeGrid 价格对行权价的敏感性
	DefaultStrikeGrid = Grid{Start: 20, Stop: 100.5, Step: 0.5}
)

// maxGridPoints 防止误配的步长生成海量点
const maxGridPoints = 1_000_000

// Values 展开网格。用 Start + i·Step 生成，避免累加误差
func (g Grid) Values() ([]float64, error) {
	for _, v := range []float64{g.Start, g.Stop, g.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, option.NewConfigError("grid", "bounds must be finite", nil)
		}
	}
	if g.Step <= 0 {
		return nil, option.NewConfigError("grid", fmt.Sprintf("step must be > 0, got %v", g.Step), nil)
	}
	if g.Stop <= g.Start {
		return nil, option.NewConfigError("grid", fmt.Sprintf("stop %v must exceed start %v", g.Stop, g.Start), nil)
	}
	n := int(math.Ceil((g.Stop - g.Start) / g.Step))
	if n > maxGridPoints {
		return nil, option.NewConfigError("grid", fmt.Sprintf("%d points exceeds limit %d", n, maxGridPoints), nil)
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		x := g.Start + float64(i)*g.Step
		if x >= g.Stop {
			break
		}
		out = append(out, x)
	}
	return out, nil
}

// SweepPoint 网格上一个点的解析价格和行权概率
type SweepPoint struct {
	X           float64 `json:"x"`
	Price       float64 `json:"price"`
	Probability float64 `json:"probability"`
}

// SweepVolatility 固定其它参数，扫描波动率
func (e *Engine) SweepVolatility(c option.Contract, g Grid) ([]SweepPoint, error) {
	return sweep(c, g, option.Contract.WithVolatility)
}

// SweepStrike 固定其它参数，扫描行权价
func (e *Engine) SweepStrike(c option.Contract, g Grid) ([]SweepPoint, error) {
	return sweep(c, g, option.Contract.WithStrike)
}

func sweep(c option.Contract, g Grid, set func(option.Contract, float64) option.Contract) ([]SweepPoint, error) {
	xs, err := g.Values()
	if err != nil {
		return nil, err
	}
	out := make([]SweepPoint, 0, len(xs))
	for _, x := range xs {
		cc := set(c, x)
		price, err := bs.Price(cc)
		if err != nil {
			return nil, fmt.Errorf("sweep at %v: %w", x, err)
		}
		prob, err := bs.ExerciseProbability(cc)
		if err != nil {
			return nil, fmt.Errorf("sweep at %v: %w", x, err)
		}
		out = append(out, SweepPoint{X: x, Price: price, Probability: prob})
	}
	return out, nil
}

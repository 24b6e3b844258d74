package pricing

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
)

// CrossCheck 解析价与模拟价的对照
type CrossCheck struct {
	Analytic   option.Report `json:"analytic"`
	Simulated  option.Report `json:"simulated"`
	Difference float64       `json:"difference"` // 模拟价 - 解析价
	ZScore     float64       `json:"z_score"`    // Difference / 标准误
	Covered    bool          `json:"covered"`    // 解析价是否落在模拟置信区间内
}

// CrossCheck 同一合约分别做解析定价和模拟定价，给出偏差的 z 分数
func (e *Engine) CrossCheck(ctx context.Context, c option.Contract, cfg mc.Config) (CrossCheck, error) {
	analytic, err := e.PriceAnalytic(c)
	if err != nil {
		return CrossCheck{}, err
	}
	simulated, err := e.PriceSimulated(ctx, c, cfg)
	if err != nil {
		return CrossCheck{}, err
	}

	diff := simulated.Price - analytic.Price
	var z float64
	if simulated.StandardError > 0 {
		z = diff / simulated.StandardError
	}
	out := CrossCheck{
		Analytic:   analytic,
		Simulated:  simulated,
		Difference: diff,
		ZScore:     z,
		Covered:    simulated.ConfidenceInterval.Contains(analytic.Price),
	}

	entry := e.logger.WithFields(logrus.Fields{
		"contract": c.String(),
		"analytic": analytic.Price,
		"mc":       simulated.Price,
		"z":        z,
	})
	if math.Abs(z) > 4 {
		entry.Warn("[CrossCheck] simulated price far from analytic")
	} else {
		entry.Info("[CrossCheck] done")
	}
	return out, nil
}

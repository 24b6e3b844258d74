// Package bs 实现带连续股息率的 Black-Scholes-Merton 解析定价与闭式 Greeks
package bs

import (
	"context"
	"math"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
)

/*
对于欧式期权，BSM 模型在风险中性测度下有闭式解：

	d1 = [ln(S/K) + (r - q + sigma²/2)T] / (sigma·√T)
	d2 = d1 - sigma·√T
	Call = S·e^{-qT}·Φ(d1) - K·e^{-rT}·Φ(d2)
	Put  = K·e^{-rT}·Φ(-d2) - S·e^{-qT}·Φ(-d1)

T=0 或 sigma=0 时 d1 分母为 0，走确定性分支，不做除零。
*/

// Price 计算欧式期权的 BSM 价格
// S: 当前标的资产的价格
// K: 期权执行价
// r: 无风险利率（连续复利）
// q: 连续股息率
// sigma: 年化波动率
// T: 剩余到期时间（年）
func Price(c option.Contract) (float64, error) {
	// 检查输入是否合法
	if err := c.Validate(); err != nil {
		return 0, err
	}

	// 如果 T=0（到期时），价格就是内在价值，精确返回
	if c.Expiry == 0 {
		return c.Intrinsic(c.Spot), nil
	}

	// 如果波动率为0，标的到期价格确定为远期价格
	if c.Volatility == 0 {
		return finite(c, "price", c.Discount()*c.Intrinsic(c.Forward()))
	}

	d1, d2, err := calcD(c)
	if err != nil {
		return 0, err
	}

	S, K := c.Spot, c.Strike
	var price float64
	if c.Kind == option.Call {
		price = S*c.Carry()*option.NormCDF(d1) - K*c.Discount()*option.NormCDF(d2)
	} else {
		price = K*c.Discount()*option.NormCDF(-d2) - S*c.Carry()*option.NormCDF(-d1)
	}
	return finite(c, "price", price)
}

// ExerciseProbability 风险中性测度下到期行权的概率
// Call: P[S_T > K] = Φ(d2)；Put: P[S_T < K] = Φ(-d2)
func ExerciseProbability(c option.Contract) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if c.Degenerate() {
		// 到期价格确定，概率只能是 0 或 1
		if inTheMoney(c) {
			return 1, nil
		}
		return 0, nil
	}
	_, d2, err := calcD(c)
	if err != nil {
		return 0, err
	}
	if c.Kind == option.Call {
		return option.NormCDF(d2), nil
	}
	return option.NormCDF(-d2), nil
}

// Pricer 把解析公式包装成通用定价接口，同时提供闭式 Greeks
type Pricer struct{}

// Price 实现 greeks.Pricer；解析定价不阻塞，ctx 仅用于提前退出
func (Pricer) Price(ctx context.Context, c option.Contract) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return Price(c)
}

// Greeks 实现 greeks.ClosedForm
func (Pricer) Greeks(c option.Contract) (option.Greeks, error) {
	return Greeks(c)
}

// calcD 计算 d1、d2，任一非有限值都视为数值不稳定
func calcD(c option.Contract) (float64, float64, error) {
	volSqrtT := c.Volatility * math.Sqrt(c.Expiry)
	d1 := (math.Log(c.Spot/c.Strike) + (c.Rate-c.DividendYield+0.5*c.Volatility*c.Volatility)*c.Expiry) / volSqrtT
	if !isFinite(d1) {
		return 0, 0, &option.NumericError{Contract: c, Quantity: "d1", Value: d1}
	}
	d2 := d1 - volSqrtT
	if !isFinite(d2) {
		return 0, 0, &option.NumericError{Contract: c, Quantity: "d2", Value: d2}
	}
	return d1, d2, nil
}

// inTheMoney 确定性分支下按远期价格判断是否行权（严格不等式）
func inTheMoney(c option.Contract) bool {
	F := c.Forward()
	if c.Kind == option.Call {
		return F > c.Strike
	}
	return F < c.Strike
}

func finite(c option.Contract, quantity string, v float64) (float64, error) {
	if !isFinite(v) {
		return 0, &option.NumericError{Contract: c, Quantity: quantity, Value: v}
	}
	return v, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

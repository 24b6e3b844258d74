package bs

import (
	"math"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
)

// Greeks 计算闭式 Greeks（含股息率 q）
//
//	Delta(call) = e^{-qT}·Φ(d1)          Delta(put) = -e^{-qT}·Φ(-d1)
//	Gamma       = e^{-qT}·φ(d1) / (S·sigma·√T)
//	Vega        = S·e^{-qT}·φ(d1)·√T
//	Theta(call) = -S·e^{-qT}·φ(d1)·sigma/(2√T) - rK·e^{-rT}·Φ(d2) + qS·e^{-qT}·Φ(d1)
//	Theta(put)  = -S·e^{-qT}·φ(d1)·sigma/(2√T) + rK·e^{-rT}·Φ(-d2) - qS·e^{-qT}·Φ(-d1)
//	Rho(call)   = K·T·e^{-rT}·Φ(d2)       Rho(put) = -K·T·e^{-rT}·Φ(-d2)
//
// Theta 按年计，Vega/Rho 按单位变动计。
func Greeks(c option.Contract) (option.Greeks, error) {
	if err := c.Validate(); err != nil {
		return option.Greeks{}, err
	}
	if c.Degenerate() {
		return degenerateGreeks(c), nil
	}

	d1, d2, err := calcD(c)
	if err != nil {
		return option.Greeks{}, err
	}

	S, K, r, q, sigma, T := c.Spot, c.Strike, c.Rate, c.DividendYield, c.Volatility, c.Expiry
	sqrtT := math.Sqrt(T)
	carry, disc := c.Carry(), c.Discount()
	pdf := option.NormPDF(d1)

	g := option.Greeks{
		Gamma: carry * pdf / (S * sigma * sqrtT),
		Vega:  S * carry * pdf * sqrtT,
	}
	decay := -S * carry * pdf * sigma / (2 * sqrtT)

	if c.Kind == option.Call {
		g.Delta = carry * option.NormCDF(d1)
		g.Theta = decay - r*K*disc*option.NormCDF(d2) + q*S*carry*option.NormCDF(d1)
		g.Rho = K * T * disc * option.NormCDF(d2)
	} else {
		g.Delta = -carry * option.NormCDF(-d1)
		g.Theta = decay + r*K*disc*option.NormCDF(-d2) - q*S*carry*option.NormCDF(-d1)
		g.Rho = -K * T * disc * option.NormCDF(-d2)
	}

	for name, v := range g.Map() {
		if !isFinite(v) {
			return option.Greeks{}, &option.NumericError{Contract: c, Quantity: name, Value: v}
		}
	}
	return g, nil
}

// degenerateGreeks T=0 或 sigma=0 时的 Greeks
// 价格是 e^{-rT}·max(F-K,0) 这样的分段线性函数，Gamma/Vega 为 0，
// Delta 取指示函数（F 恰好等于 K 时取 0），Theta/Rho 按确定性价格求导，T=0 时为 0。
func degenerateGreeks(c option.Contract) option.Greeks {
	if !inTheMoney(c) {
		return option.Greeks{}
	}

	S, K, r, q, T := c.Spot, c.Strike, c.Rate, c.DividendYield, c.Expiry
	carry, disc := c.Carry(), c.Discount()

	// 价内 call: V = S·e^{-qT} - K·e^{-rT}
	// 价内 put:  V = K·e^{-rT} - S·e^{-qT}，各项反号
	sign := 1.0
	if c.Kind == option.Put {
		sign = -1
	}
	g := option.Greeks{Delta: sign * carry}
	if T > 0 {
		g.Theta = sign * (q*S*carry - r*K*disc)
		g.Rho = sign * K * T * disc
	}
	return g
}

package option

// Greeks 期权价格对各市场因子的一阶/二阶敏感度
//
// Delta: 标的价格变动 1 单位时期权价格的变动量
// Gamma: Delta 对标的价格的敏感度
// Vega:  波动率变动 1（不是 1%）时期权价格的变动量
// Theta: 每年时间流逝带来的价格变化，即 -∂V/∂T
// Rho:   利率变动 1（不是 1%）时期权价格的变动量
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// Map 按固定键名导出，供表格渲染和日志字段使用
func (g Greeks) Map() map[string]float64 {
	return map[string]float64{
		"delta": g.Delta,
		"gamma": g.Gamma,
		"vega":  g.Vega,
		"theta": g.Theta,
		"rho":   g.Rho,
	}
}

// GreekNames 固定输出顺序
var GreekNames = []string{"delta", "gamma", "vega", "theta", "rho"}

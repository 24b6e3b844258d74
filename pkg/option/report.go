package option

import "time"

// Model 产生报告的定价模型
type Model string

const (
	ModelAnalytic   Model = "analytic"
	ModelMonteCarlo Model = "monte_carlo"
)

// VarianceReduction 方差缩减方式
type VarianceReduction string

const (
	VarianceNone       VarianceReduction = "none"
	VarianceAntithetic VarianceReduction = "antithetic"
)

// Interval 置信区间
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains 闭区间包含判断
func (iv Interval) Contains(x float64) bool {
	return x >= iv.Lower && x <= iv.Upper
}

// Width 区间宽度
func (iv Interval) Width() float64 {
	return iv.Upper - iv.Lower
}

// Report 一次定价的结果（ResultReport）
//
// 解析定价：StandardError 为 0，ConfidenceInterval 为 nil，Greeks 非空。
// 模拟定价：StandardError/ConfidenceInterval 有值，Paths/Seed 记录复现所需信息。
// 返回后不再修改。
type Report struct {
	RunID              string            `json:"run_id,omitempty"`
	Model              Model             `json:"model"`
	Contract           Contract          `json:"contract"`
	Price              float64           `json:"price"`
	StandardError      float64           `json:"standard_error"`
	ConfidenceInterval *Interval         `json:"confidence_interval,omitempty"`
	ConfidenceLevel    float64           `json:"confidence_level,omitempty"`
	Greeks             *Greeks           `json:"greeks,omitempty"`
	Paths              int               `json:"paths,omitempty"`
	Seed               *uint64           `json:"seed,omitempty"`
	VarianceReduction  VarianceReduction `json:"variance_reduction,omitempty"`
	Elapsed            time.Duration     `json:"elapsed,omitempty"`
}

// Simulated 是否为蒙特卡洛报告
func (r Report) Simulated() bool {
	return r.Model == ModelMonteCarlo
}

package option

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// 标准正态分布。gonum 的 CDF 走 erfc，深度虚值尾部不会被 1-x 的抵消吃掉精度
var unitNormal = distuv.UnitNormal

// NormCDF 标准正态分布累积函数 Φ(x)
func NormCDF(x float64) float64 {
	return unitNormal.CDF(x)
}

// NormPDF 标准正态分布密度 φ(x)
func NormPDF(x float64) float64 {
	return unitNormal.Prob(x)
}

// NormQuantile Φ^{-1}(p)，p 必须落在 (0,1)
func NormQuantile(p float64) float64 {
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		return math.NaN()
	}
	return unitNormal.Quantile(p)
}

// CriticalValue 双侧置信水平对应的 z*，例如 0.95 -> 1.959964
func CriticalValue(level float64) float64 {
	return NormQuantile(1 - (1-level)/2)
}

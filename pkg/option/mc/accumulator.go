package mc

import "math"

// accumulator 单个分块的局部统计量，只由拥有该分块的 worker 写入
type accumulator struct {
	n     int
	sum   float64
	sumSq float64
}

func (a *accumulator) add(x float64) {
	a.n++
	a.sum += x
	a.sumSq += x * x
}

// merge 合并另一个分块；调用方保证按分块顺序合并
func (a *accumulator) merge(b accumulator) {
	a.n += b.n
	a.sum += b.sum
	a.sumSq += b.sumSq
}

func (a accumulator) mean() float64 {
	return a.sum / float64(a.n)
}

// variance 无偏样本方差，舍入误差可能让它略小于 0，截断为 0
func (a accumulator) variance() float64 {
	n := float64(a.n)
	v := (a.sumSq - a.sum*a.sum/n) / (n - 1)
	return math.Max(v, 0)
}

func (a accumulator) standardError() float64 {
	return math.Sqrt(a.variance() / float64(a.n))
}

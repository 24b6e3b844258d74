package service

import (
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
)

// Op 请求类型
type Op string

const (
	OpPrice      Op = "price"      // 解析定价 + 闭式 Greeks
	OpSimulate   Op = "simulate"   // 蒙特卡洛定价
	OpGreeks     Op = "greeks"     // 按 Mode 计算 Greeks
	OpCrossCheck Op = "crosscheck" // 解析 vs 模拟
	OpConverge   Op = "converge"   // 路径数收敛性研究
	OpSweep      Op = "sweep"      // 波动率/行权价扫描
)

// SweepRequest 扫描参数；Grid 为空时按变量取默认网格
type SweepRequest struct {
	Variable string        `json:"variable"` // volatility / strike
	Grid     *pricing.Grid `json:"grid,omitempty"`
}

// Request 与传输无关的定价请求
type Request struct {
	ID         string          `json:"id,omitempty"`
	Op         Op              `json:"op"`
	Contract   option.Contract `json:"contract"`
	Simulation *mc.Config      `json:"simulation,omitempty"`
	Mode       pricing.Mode    `json:"mode,omitempty"`
	Sizes      []int           `json:"sizes,omitempty"`
	Sweep      *SweepRequest   `json:"sweep,omitempty"`
}

// Error 错误码与描述，调用方按 Code 判断
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeBadRequest         = "bad_request"
	CodeInvalidInput       = "invalid_input"
	CodeConfiguration      = "configuration"
	CodeNumericInstability = "numeric_instability"
	CodeCanceled           = "canceled"
	CodeInternal           = "internal"
)

// Response 定价应答，按 Op 填充其中一项
type Response struct {
	ID          string                `json:"id,omitempty"`
	Op          Op                    `json:"op"`
	Report      *option.Report        `json:"report,omitempty"`
	Greeks      *option.Greeks        `json:"greeks,omitempty"`
	CrossCheck  *pricing.CrossCheck   `json:"crosscheck,omitempty"`
	Convergence []mc.ConvergencePoint `json:"convergence,omitempty"`
	Sweep       []pricing.SweepPoint  `json:"sweep,omitempty"`
	Cached      bool                  `json:"cached,omitempty"`
	Error       *Error                `json:"error,omitempty"`
}

// OK 是否成功
func (r Response) OK() bool { return r.Error == nil }

// FreshReport 需要对外发布的报告：成功且不是缓存命中。
// 缓存命中的报告沿用首次计算的运行 ID，已经发布过
func (r Response) FreshReport() *option.Report {
	if !r.OK() || r.Cached {
		return nil
	}
	return r.Report
}

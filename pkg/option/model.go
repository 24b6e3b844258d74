package option

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Kind 期权方向
type Kind string

const (
	Call Kind = "call" // 看涨
	Put  Kind = "put"  // 看跌
)

// ParseKind 解析期权方向，大小写不敏感，支持 c/p 简写
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", &InputError{Field: "kind", Reason: fmt.Sprintf("unknown option kind %q", s)}
}

// UnmarshalJSON 允许请求里写 "C" / "Put" 之类的变体。
// 空串和 null 解码为零值，留给 Contract.Validate 拒绝
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*k = ""
		return nil
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// =============================================================================
// Contract 定价请求
// =============================================================================

// Contract 描述一次欧式期权定价请求（ContractSpec）。
//
// 按值传递：定价器拿到的是副本，调用方持有的实例不会被任何定价器修改。
// Greeks 的差分扰动通过 WithXxx 生成新副本完成。
//
// 字段约束：
//   - Spot、Strike 必须 > 0
//   - Volatility、Expiry 必须 >= 0；等于 0 时走退化分支而不是除零
//   - Rate、DividendYield 可以为负（负利率市场）
type Contract struct {
	Spot          float64 `json:"spot"`           // S: 标的现价
	Strike        float64 `json:"strike"`         // K: 行权价
	Rate          float64 `json:"rate"`           // r: 连续复利无风险利率
	DividendYield float64 `json:"dividend_yield"` // q: 连续股息率
	Volatility    float64 `json:"volatility"`     // sigma: 年化波动率
	Expiry        float64 `json:"expiry"`         // T: 剩余期限（年）
	Kind          Kind    `json:"kind"`
}

// Validate 校验输入，失败返回包装了 ErrInvalidInput 的 *InputError
func (c Contract) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"spot", c.Spot},
		{"strike", c.Strike},
		{"rate", c.Rate},
		{"dividend_yield", c.DividendYield},
		{"volatility", c.Volatility},
		{"expiry", c.Expiry},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &InputError{Field: f.name, Value: f.value, Reason: "must be finite"}
		}
	}

	// 标的价格和行权价必须大于零
	if c.Spot <= 0 {
		return &InputError{Field: "spot", Value: c.Spot, Reason: "must be > 0"}
	}
	if c.Strike <= 0 {
		return &InputError{Field: "strike", Value: c.Strike, Reason: "must be > 0"}
	}
	// 波动率和到期时间不能为负
	if c.Volatility < 0 {
		return &InputError{Field: "volatility", Value: c.Volatility, Reason: "must be >= 0"}
	}
	if c.Expiry < 0 {
		return &InputError{Field: "expiry", Value: c.Expiry, Reason: "must be >= 0"}
	}
	if c.Kind != Call && c.Kind != Put {
		return &InputError{Field: "kind", Reason: fmt.Sprintf("unknown option kind %q", c.Kind)}
	}
	return nil
}

// Degenerate 到期或零波动时定价退化为确定性收益
func (c Contract) Degenerate() bool {
	return c.Expiry == 0 || c.Volatility == 0
}

// Forward 远期价格 F = S·e^{(r-q)T}
func (c Contract) Forward() float64 {
	return c.Spot * math.Exp((c.Rate-c.DividendYield)*c.Expiry)
}

// Intrinsic 以给定标的价格计算内在价值
func (c Contract) Intrinsic(underlying float64) float64 {
	if c.Kind == Put {
		return math.Max(c.Strike-underlying, 0)
	}
	return math.Max(underlying-c.Strike, 0)
}

// Discount 无风险贴现因子 e^{-rT}
func (c Contract) Discount() float64 {
	return math.Exp(-c.Rate * c.Expiry)
}

// Carry 股息贴现因子 e^{-qT}
func (c Contract) Carry() float64 {
	return math.Exp(-c.DividendYield * c.Expiry)
}

func (c Contract) WithSpot(s float64) Contract {
	c.Spot = s
	return c
}

func (c Contract) WithStrike(k float64) Contract {
	c.Strike = k
	return c
}

func (c Contract) WithVolatility(v float64) Contract {
	c.Volatility = v
	return c
}

func (c Contract) WithExpiry(t float64) Contract {
	c.Expiry = t
	return c
}

func (c Contract) WithRate(r float64) Contract {
	c.Rate = r
	return c
}

func (c Contract) WithKind(k Kind) Contract {
	c.Kind = k
	return c
}

func (c Contract) String() string {
	return fmt.Sprintf("%s S=%g K=%g r=%g q=%g sigma=%g T=%g",
		c.Kind, c.Spot, c.Strike, c.Rate, c.DividendYield, c.Volatility, c.Expiry)
}

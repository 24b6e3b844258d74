package option

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput 合约参数非法（S/K 非正、sigma/T 为负、非有限值）
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration 模拟配置不合法，在任何计算开始前返回
	ErrConfiguration = errors.New("configuration error")

	// ErrInsufficientSamples 样本数不足以估计方差 (N < 2)，属于配置错误
	ErrInsufficientSamples = fmt.Errorf("%w: insufficient samples", ErrConfiguration)

	// ErrNumericInstability d1/d2 或结果出现 Inf/NaN，不做静默截断
	ErrNumericInstability = errors.New("numeric instability")
)

// InputError 携带出错字段的输入错误
type InputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "kind" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s %s, got %v", e.Field, e.Reason, e.Value)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NumericError 数值不稳定错误，附带出问题的合约便于复现
type NumericError struct {
	Contract Contract
	Quantity string  // 出问题的量，如 "d1"、"price"
	Value    float64 // 实际算出的值 (Inf/NaN)
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric instability: %s=%v for %s", e.Quantity, e.Value, e.Contract)
}

func (e *NumericError) Unwrap() error { return ErrNumericInstability }

// ConfigError 描述具体哪个配置项不合法
type ConfigError struct {
	Field  string
	Reason string
	kind   error
}

// NewConfigError 构造配置错误；kind 为 nil 时归为 ErrConfiguration
func NewConfigError(field, reason string, kind error) *ConfigError {
	if kind == nil {
		kind = ErrConfiguration
	}
	return &ConfigError{Field: field, Reason: reason, kind: kind}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.kind, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.kind }

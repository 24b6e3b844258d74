package mc

import (
	"fmt"
	"runtime"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
)

const (
	DefaultConfidenceLevel = 0.95
	DefaultBlockSize       = 16384
)

// DefaultConvergenceSizes 收敛性研究的默认路径数：1e2 ... 1e7
var DefaultConvergenceSizes = []int{100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000}

// Config 一次模拟的配置（SimulationConfig），每次调用单独创建，不跨并发运行共享
type Config struct {
	Paths             int                      `json:"paths" mapstructure:"paths"`
	Seed              *uint64                  `json:"seed,omitempty" mapstructure:"seed"`
	VarianceReduction option.VarianceReduction `json:"variance_reduction,omitempty" mapstructure:"variance_reduction"`
	ConfidenceLevel   float64                  `json:"confidence_level,omitempty" mapstructure:"confidence_level"`

	// 执行参数，不影响结果：同一 seed/Paths 下任意 Workers 结果逐位一致
	Workers   int `json:"workers,omitempty" mapstructure:"workers"`
	// 每个分块的路径数；分块是播种和合并的单位，改变它会改变抽样序列
	BlockSize int `json:"block_size,omitempty" mapstructure:"block_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Paths:             100_000,
		VarianceReduction: option.VarianceNone,
		ConfidenceLevel:   DefaultConfidenceLevel,
		BlockSize:         DefaultBlockSize,
	}
}

// WithSeed 返回固定种子的副本
func (c Config) WithSeed(seed uint64) Config {
	c.Seed = &seed
	return c
}

// WithPaths 返回指定路径数的副本
func (c Config) WithPaths(n int) Config {
	c.Paths = n
	return c
}

// normalize 填充零值字段
func (c Config) normalize() Config {
	if c.VarianceReduction == "" {
		c.VarianceReduction = option.VarianceNone
	}
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	return c
}

// Validate 在开始计算前检查配置；零值字段按默认值处理
func (c Config) Validate() error {
	c = c.normalize()

	antithetic := false
	switch c.VarianceReduction {
	case option.VarianceNone:
	case option.VarianceAntithetic:
		antithetic = true
	default:
		return option.NewConfigError("variance_reduction", fmt.Sprintf("unknown mode %q", c.VarianceReduction), nil)
	}

	if c.Paths < 2 {
		return option.NewConfigError("paths", fmt.Sprintf("must be >= 2, got %d", c.Paths), option.ErrInsufficientSamples)
	}
	if antithetic {
		if c.Paths%2 != 0 {
			return option.NewConfigError("paths", fmt.Sprintf("must be even in antithetic mode, got %d", c.Paths), nil)
		}
		// 对偶模式下样本是成对均值，至少两对才能估计方差
		if c.Paths < 4 {
			return option.NewConfigError("paths", fmt.Sprintf("antithetic mode needs >= 4, got %d", c.Paths), option.ErrInsufficientSamples)
		}
		if c.BlockSize%2 != 0 {
			return option.NewConfigError("block_size", fmt.Sprintf("must be even in antithetic mode, got %d", c.BlockSize), nil)
		}
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return option.NewConfigError("confidence_level", fmt.Sprintf("must be in (0,1), got %v", c.ConfidenceLevel), nil)
	}
	return nil
}

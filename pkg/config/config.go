// Package config 加载配置：默认值 < 配置文件 < .env / BSM_ 环境变量 < 命令行参数
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
)

// EnvPrefix 环境变量前缀，例如 BSM_SIMULATION_PATHS
const EnvPrefix = "BSM"

// Config 根配置
type Config struct {
	// 雪花节点 ID，多实例部署时需不同
	NodeID int64 `mapstructure:"node_id"`
	// 日志配置
	Log logx.Config `mapstructure:"log"`
	// 命令行未给出合约参数时使用的默认合约
	Contract ContractConfig `mapstructure:"contract"`
	// 蒙特卡洛配置
	Simulation SimulationConfig `mapstructure:"simulation"`
	// 差分 Greeks 的相对步长
	GreeksStep float64 `mapstructure:"greeks_step"`
	// NATS 配置
	NATS NATSConfig `mapstructure:"nats"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
}

// ContractConfig 默认合约
type ContractConfig struct {
	Spot          float64 `mapstructure:"spot"`
	Strike        float64 `mapstructure:"strike"`
	Rate          float64 `mapstructure:"rate"`
	DividendYield float64 `mapstructure:"dividend_yield"`
	Volatility    float64 `mapstructure:"volatility"`
	Expiry        float64 `mapstructure:"expiry"`
	Kind          string  `mapstructure:"kind"`
}

// SimulationConfig 蒙特卡洛配置；Seed 为空表示每次随机
type SimulationConfig struct {
	Paths           int     `mapstructure:"paths"`
	Seed            string  `mapstructure:"seed"`
	Antithetic      bool    `mapstructure:"antithetic"`
	ConfidenceLevel float64 `mapstructure:"confidence_level"`
	Workers         int     `mapstructure:"workers"`
	BlockSize       int     `mapstructure:"block_size"`
}

// NATSConfig NATS 请求/应答与报告广播
type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Subject        string        `mapstructure:"subject"`
	Queue          string        `mapstructure:"queue"`
	ReportSubject  string        `mapstructure:"report_subject"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// KafkaConfig Kafka 请求消费、应答与报告生产
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	GroupID       string   `mapstructure:"group_id"`
	RequestTopic  string   `mapstructure:"request_topic"`
	ResponseTopic string   `mapstructure:"response_topic"`
	ReportTopic   string   `mapstructure:"report_topic"` // 为空则不发布报告
}

// RedisConfig 确定性报告缓存
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// flagKeys 命令行参数名 -> 配置键
var flagKeys = map[string]string{
	"config":           "",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"spot":             "contract.spot",
	"strike":           "contract.strike",
	"rate":             "contract.rate",
	"dividend":         "contract.dividend_yield",
	"vol":              "contract.volatility",
	"expiry":           "contract.expiry",
	"kind":             "contract.kind",
	"paths":            "simulation.paths",
	"seed":             "simulation.seed",
	"antithetic":       "simulation.antithetic",
	"confidence-level": "simulation.confidence_level",
	"workers":          "simulation.workers",
	"block-size":       "simulation.block_size",
	"step":             "greeks_step",
	"nats-url":         "nats.url",
	"redis-addr":       "redis.addr",
}

// Load 读取配置。path 为空时只用默认值、环境变量和命令行；
// .env 不存在时忽略。flags 可以为 nil。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 设置环境变量前缀，自动绑定（使用 _ 替代 .）
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || key == "" {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("invalid node_id: %d", c.NodeID)
	}
	if _, err := c.DefaultContract(); err != nil {
		return err
	}
	if _, err := c.MonteCarlo(); err != nil {
		return err
	}
	if !(c.GreeksStep > 0) {
		return fmt.Errorf("greeks_step must be > 0, got %v", c.GreeksStep)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Kafka.Enabled && (c.Kafka.RequestTopic == "" || c.Kafka.ResponseTopic == "") {
		return fmt.Errorf("kafka.request_topic and kafka.response_topic are required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// DefaultContract 配置中的默认合约，已校验
func (c *Config) DefaultContract() (option.Contract, error) {
	kind, err := option.ParseKind(c.Contract.Kind)
	if err != nil {
		return option.Contract{}, err
	}
	contract := option.Contract{
		Spot:          c.Contract.Spot,
		Strike:        c.Contract.Strike,
		Rate:          c.Contract.Rate,
		DividendYield: c.Contract.DividendYield,
		Volatility:    c.Contract.Volatility,
		Expiry:        c.Contract.Expiry,
		Kind:          kind,
	}
	return contract, contract.Validate()
}

// MonteCarlo 转换为模拟配置，已校验
func (c *Config) MonteCarlo() (mc.Config, error) {
	cfg := mc.Config{
		Paths:             c.Simulation.Paths,
		VarianceReduction: option.VarianceNone,
		ConfidenceLevel:   c.Simulation.ConfidenceLevel,
		Workers:           c.Simulation.Workers,
		BlockSize:         c.Simulation.BlockSize,
	}
	if c.Simulation.Antithetic {
		cfg.VarianceReduction = option.VarianceAntithetic
	}
	if s := strings.TrimSpace(c.Simulation.Seed); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return mc.Config{}, option.NewConfigError("seed", fmt.Sprintf("not an unsigned integer: %q", s), nil)
		}
		cfg.Seed = &seed
	}
	return cfg, cfg.Validate()
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")

	// 演示参数：S0=50, K=61, T=2, r=0.06, sigma=0.24
	v.SetDefault("contract.spot", 50.0)
	v.SetDefault("contract.strike", 61.0)
	v.SetDefault("contract.rate", 0.06)
	v.SetDefault("contract.dividend_yield", 0.0)
	v.SetDefault("contract.volatility", 0.24)
	v.SetDefault("contract.expiry", 2.0)
	v.SetDefault("contract.kind", "call")

	v.SetDefault("simulation.paths", 1_000_000)
	v.SetDefault("simulation.seed", "")
	v.SetDefault("simulation.antithetic", false)
	v.SetDefault("simulation.confidence_level", mc.DefaultConfidenceLevel)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.block_size", mc.DefaultBlockSize)

	v.SetDefault("greeks_step", 1e-4)

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "bsm.pricing.request")
	v.SetDefault("nats.queue", "bsm-pricers")
	v.SetDefault("nats.report_subject", "bsm.pricing.report")
	v.SetDefault("nats.request_timeout", 30*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.group_id", "bsm-pricers")
	v.SetDefault("kafka.request_topic", "bsm.pricing.requests")
	v.SetDefault("kafka.response_topic", "bsm.pricing.responses")
	v.SetDefault("kafka.report_topic", "bsm.pricing.reports")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)
	v.SetDefault("redis.prefix", "bsm:report:")
}

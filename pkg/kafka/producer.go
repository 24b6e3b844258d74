// 文件: pkg/kafka/producer.go
// 定价报告 Kafka 生产者
//
// 特点:
// - 异步发送，高吞吐
// - 错误计数并记录日志
// - 优雅关闭
// - 支持任意消息类型 (通过 Message 接口)

package kafka

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// =============================================================================
// Message 接口 - 所有消息类型需实现
// =============================================================================

// Message 通用消息接口
type Message interface {
	Topic() string          // 目标 topic
	Key() string            // 分区 key (相同 key 保证顺序)
	Value() ([]byte, error) // 消息体 (序列化后的数据)
}

// ReportMessage 一份定价报告，按运行 ID 分区
type ReportMessage struct {
	TopicName string
	Report    option.Report
}

func (m ReportMessage) Topic() string          { return m.TopicName }
func (m ReportMessage) Key() string            { return m.Report.RunID }
func (m ReportMessage) Value() ([]byte, error) { return json.Marshal(m.Report) }

// ResponseMessage 对某个请求的应答，按请求 ID 分区
type ResponseMessage struct {
	TopicName string
	Response  service.Response
}

func (m ResponseMessage) Topic() string          { return m.TopicName }
func (m ResponseMessage) Key() string            { return m.Response.ID }
func (m ResponseMessage) Value() ([]byte, error) { return json.Marshal(m.Response) }

// =============================================================================
// Producer 配置
// =============================================================================

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers        []string      // Kafka broker 地址列表
	RequiredAcks   int           // 确认模式: 0=不等待, 1=leader确认, -1=全部确认
	Compression    string        // 压缩方式: none, gzip, snappy, lz4, zstd
	FlushFrequency time.Duration // 刷新间隔
	FlushMessages  int           // 批量消息数
	MaxRetries     int           // 最大重试次数
}

// DefaultProducerConfig 默认配置
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:        brokers,
		RequiredAcks:   1,
		Compression:    "snappy",
		FlushFrequency: 100 * time.Millisecond,
		FlushMessages:  100,
		MaxRetries:     3,
	}
}

// SaramaConfig 转换为 sarama 配置
func (cfg ProducerConfig) SaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// 确认模式
	switch cfg.RequiredAcks {
	case 0:
		saramaConfig.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	default:
		saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	}

	// 压缩方式
	switch cfg.Compression {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	// 批量设置
	saramaConfig.Producer.Flush.Frequency = cfg.FlushFrequency
	saramaConfig.Producer.Flush.Messages = cfg.FlushMessages
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries

	// 异步模式，只关心错误
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	return saramaConfig
}

// =============================================================================
// Producer 生产者
// =============================================================================

// Producer 通用 Kafka 生产者
type Producer struct {
	producer sarama.AsyncProducer
	logger   logrus.FieldLogger

	// 统计
	sentCount  atomic.Int64
	errorCount atomic.Int64

	// 生命周期
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewProducer 连接 broker 创建生产者
func NewProducer(cfg ProducerConfig, logger logrus.FieldLogger) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromAsync(producer, logger), nil
}

// NewProducerFromAsync 包装已有的 AsyncProducer（测试里传 sarama/mocks）
func NewProducerFromAsync(producer sarama.AsyncProducer, logger logrus.FieldLogger) *Producer {
	if logger == nil {
		logger = logx.Discard()
	}
	p := &Producer{producer: producer, logger: logger}

	// 启动错误处理
	p.wg.Add(1)
	go p.handleErrors()
	return p
}

// =============================================================================
// 发送接口
// =============================================================================

// Send 发送消息 (异步)
func (p *Producer) Send(msg Message) error {
	data, err := msg.Value()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	return p.SendRaw(msg.Topic(), msg.Key(), data)
}

// SendRaw 发送原始消息
func (p *Producer) SendRaw(topic, key string, value []byte) error {
	// 读锁保证 Close 之后不会再往已关闭的 Input 写
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("producer is closed")
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	p.sentCount.Add(1)
	return nil
}

// =============================================================================
// 错误处理
// =============================================================================

func (p *Producer) handleErrors() {
	defer p.wg.Done()

	for err := range p.producer.Errors() {
		p.errorCount.Add(1)
		p.logger.WithFields(logrus.Fields{
			"topic": err.Msg.Topic,
		}).WithError(err.Err).Error("[Kafka] send error")
	}
}

// =============================================================================
// 统计与生命周期
// =============================================================================

// ProducerStats 统计信息
type ProducerStats struct {
	SentCount  int64
	ErrorCount int64
}

// Stats 获取统计信息
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		SentCount:  p.sentCount.Load(),
		ErrorCount: p.errorCount.Load(),
	}
}

// Close 关闭生产者，等待缓冲中的消息发送完毕
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil // 已经关闭
	}
	p.closed = true
	p.mu.Unlock()

	err := p.producer.Close()
	p.wg.Wait() // 等待错误处理完成
	return err
}

// 文件: pkg/kafka/consumer.go
// 定价请求 Kafka 消费者
//
// 特点:
// - 消费者组支持
// - 自动提交/手动提交
// - 优雅关闭
// - 回调处理

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// =============================================================================
// Consumer 配置
// =============================================================================

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers       []string // Kafka broker 地址列表
	GroupID       string   // 消费者组 ID
	Topics        []string // 订阅的 topics
	OffsetInitial int64    // 初始 offset: -1=newest, -2=oldest
	AutoCommit    bool     // 是否自动提交 offset
}

// DefaultConsumerConfig 默认配置
func DefaultConsumerConfig(brokers []string, groupID string, topics []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topics:        topics,
		OffsetInitial: sarama.OffsetNewest,
		AutoCommit:    true,
	}
}

// =============================================================================
// MessageHandler 消息处理器
// =============================================================================

// MessageHandler 消息处理函数；ctx 在会话结束或消费者停止时取消
type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// RequestHandler 把请求消息交给定价服务，应答写到 responseTopic。
// 应答 key 为请求 ID，请求未带 ID 时用 topic/partition/offset 代替。
// 新算出的报告同时写到 reportTopic (key 为运行 ID)，reportTopic 为空则不写
func RequestHandler(h *service.Handler, p *Producer, responseTopic, reportTopic string) MessageHandler {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		out := h.HandleJSON(ctx, msg.Value)

		resp, err := decodeResponse(out)
		if err != nil {
			return err
		}
		if resp.ID == "" {
			resp.ID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := p.Send(ResponseMessage{TopicName: responseTopic, Response: resp}); err != nil {
			return err
		}
		report := resp.FreshReport()
		if reportTopic == "" || report == nil {
			return nil
		}
		return p.Send(ReportMessage{TopicName: reportTopic, Report: *report})
	}
}

func decodeResponse(b []byte) (service.Response, error) {
	var resp service.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return service.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// =============================================================================
// Consumer 消费者
// =============================================================================

// Consumer 通用 Kafka 消费者
type Consumer struct {
	client  sarama.ConsumerGroup
	config  ConsumerConfig
	handler MessageHandler
	logger  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建消费者
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger logrus.FieldLogger) (*Consumer, error) {
	// 构建 Sarama 配置
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = cfg.OffsetInitial
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit

	// 创建消费者组
	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return newConsumer(client, cfg, handler, logger), nil
}

func newConsumer(client sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, logger logrus.FieldLogger) *Consumer {
	if logger == nil {
		logger = logx.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		config:  cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 启动消费
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// 加入消费者组
			handler := &consumerGroupHandler{handler: c.handler, logger: c.logger}
			err := c.client.Consume(c.ctx, c.config.Topics, handler)
			if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
				c.logger.WithError(err).Error("[Kafka] consume error")
			}

			// 检查是否应该退出
			if c.ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
		}
	}()
	c.logger.WithFields(logrus.Fields{
		"group":  c.config.GroupID,
		"topics": c.config.Topics,
	}).Info("[Kafka] consumer started")
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// =============================================================================
// Sarama ConsumerGroupHandler 实现
// =============================================================================

type consumerGroupHandler struct {
	handler MessageHandler
	logger  logrus.FieldLogger
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			// 调用用户处理器
			if err := h.handler(session.Context(), msg); err != nil {
				h.logger.WithFields(logrus.Fields{
					"topic":  msg.Topic,
					"offset": msg.Offset,
				}).WithError(err).Error("[Kafka] handle error")
				// 继续处理下一条，不中断
			}

			// 标记已处理
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

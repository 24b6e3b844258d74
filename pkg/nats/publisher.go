// 文件: pkg/nats/publisher.go
// 定价报告广播
// 轻量级替代 Kafka，适合本地开发

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
)

// Connect 建立连接，name 会显示在 NATS 监控里
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Publisher NATS 发布者
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher 在已有连接上创建发布者，subject 为报告广播主题
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// PublishReport 广播一份报告
func (p *Publisher) PublishReport(r option.Report) error {
	return p.Publish(p.subject, r)
}

// Publish 以 JSON 发布任意消息
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// Subject 报告广播主题
func (p *Publisher) Subject() string { return p.subject }

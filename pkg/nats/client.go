package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// Client 定价请求客户端
type Client struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewClient timeout 在 ctx 没有截止时间时生效
func NewClient(conn *nats.Conn, subject string, timeout time.Duration) *Client {
	return &Client{conn: conn, subject: subject, timeout: timeout}
}

// Do 发送请求并等待应答；业务错误在 Response.Error 中，传输错误作为 error 返回
func (c *Client) Do(ctx context.Context, req service.Request) (service.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return service.Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return service.Response{}, fmt.Errorf("request %s: %w", c.subject, err)
	}

	var resp service.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return service.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// =============================================================================
// 便捷方法
// =============================================================================

// UnmarshalJSON 反序列化 JSON
func UnmarshalJSON[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

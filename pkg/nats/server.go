// 文件: pkg/nats/server.go
// 定价请求/应答服务：队列订阅请求主题，多个实例负载均衡

package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Subject string // 请求主题
	Queue   string // 队列组，同组实例分摊请求
}

// Server NATS 定价服务
type Server struct {
	conn      *nats.Conn
	cfg       ServerConfig
	handler   *service.Handler
	publisher *Publisher // 可选，成功的报告会广播出去
	logger    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	subs   []*nats.Subscription
	wg     sync.WaitGroup
}

type ServerOption func(*Server)

// WithPublisher 成功产出报告时同时广播
func WithPublisher(p *Publisher) ServerOption {
	return func(s *Server) { s.publisher = p }
}

func WithLogger(l logrus.FieldLogger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 创建服务，调用 Start 后开始处理请求
func NewServer(conn *nats.Conn, cfg ServerConfig, handler *service.Handler, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		logger:  logx.Discard(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 队列订阅请求主题
func (s *Server) Start() error {
	sub, err := s.conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.onRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	fields := logrus.Fields{
		"subject": s.cfg.Subject,
		"queue":   s.cfg.Queue,
	}
	if s.publisher != nil {
		fields["reports"] = s.publisher.Subject()
	}
	s.logger.WithFields(fields).Info("[NATS] pricing server started")
	return nil
}

func (s *Server) onRequest(msg *nats.Msg) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	out := s.handler.HandleJSON(s.ctx, msg.Data)

	if msg.Reply != "" {
		if err := msg.Respond(out); err != nil {
			s.logger.WithError(err).WithField("subject", msg.Subject).Warn("[NATS] respond failed")
		}
	}
	if s.publisher != nil {
		s.broadcast(out)
	}
}

// broadcast 只广播新算出的报告，缓存命中不重复广播
func (s *Server) broadcast(out []byte) {
	resp, err := UnmarshalJSON[service.Response](out)
	if err != nil {
		return
	}
	report := resp.FreshReport()
	if report == nil {
		return
	}
	if err := s.publisher.PublishReport(*report); err != nil {
		s.logger.WithError(err).Warn("[NATS] publish report failed")
	}
}

// Close 取消订阅并取消正在进行的定价，等待在途请求返回；不关闭底层连接
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.cancel()
	s.wg.Wait()
	return firstErr
}

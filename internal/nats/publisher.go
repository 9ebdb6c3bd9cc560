package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-signal-executor/internal/monitor"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// Publisher NATS 连接封装，兼做发布和订阅入口
type Publisher struct {
	*nats.Conn
	mu     sync.RWMutex
	closed bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		Conn: conn,
	}

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(true)

	return p, nil
}

// PublishExecutionEvent 发布信号执行结果事件
func (p *Publisher) PublishExecutionEvent(ev *ExecutionEvent) error {
	data, err := ev.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("marshal execution event failed")
		return err
	}

	return p.Publish(TopicExecutionEvents, data)
}

// IsConnected 检查连接状态
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && !p.Conn.IsClosed()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(false)

	if p.Conn != nil {
		p.Conn.Close()
	}
	return nil
}

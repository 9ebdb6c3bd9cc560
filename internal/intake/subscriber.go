package intake

import (
	natsio "github.com/nats-io/nats.go"

	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/internal/monitor"
	natsx "github.com/utrading/utrading-signal-executor/internal/nats"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// SignalWriter 信号入库
type SignalWriter interface {
	Create(signal *models.Signal) error
}

// Subscriber 订阅外部信号源，把合法消息落成 pending 信号
// 执行决策完全交给调度器和管道，这里只做入库
type Subscriber struct {
	publisher *natsx.Publisher
	signals   SignalWriter
	sub       *natsio.Subscription
}

// NewSubscriber 创建信号订阅器
func NewSubscriber(publisher *natsx.Publisher, signals SignalWriter) *Subscriber {
	return &Subscriber{
		publisher: publisher,
		signals:   signals,
	}
}

// Start 开始订阅
func (s *Subscriber) Start() error {
	sub, err := s.publisher.Subscribe(natsx.TopicSignalIntake, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub

	logger.Info().Str("topic", natsx.TopicSignalIntake).Msg("signal intake subscribed")
	return nil
}

func (s *Subscriber) handle(msg *natsio.Msg) {
	in, err := natsx.UnmarshalIntakeSignal(msg.Data)
	if err != nil {
		// 非法消息直接丢弃，信号源偶发脏数据不该打断消费
		logger.Warn().Err(err).Msg("invalid intake signal dropped")
		monitor.GetMetrics().IncIntakeMessage("invalid")
		return
	}

	signal := &models.Signal{
		UserID:     in.UserID,
		Symbol:     in.Symbol,
		SignalType: in.SignalType,
		Price:      in.Price,
		Status:     models.SignalStatusPending,
	}

	if err = s.signals.Create(signal); err != nil {
		logger.Error().Err(err).
			Int64("user_id", in.UserID).
			Str("symbol", in.Symbol).
			Msg("persist intake signal failed")
		monitor.GetMetrics().IncIntakeMessage("persist_error")
		return
	}

	logger.Debug().
		Int64("signal_id", signal.ID).
		Str("symbol", in.Symbol).
		Str("type", in.SignalType).
		Msg("intake signal persisted")
	monitor.GetMetrics().IncIntakeMessage("accepted")
}

// Close 取消订阅
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			logger.Error().Err(err).Msg("unsubscribe intake failed")
		}
	}
}

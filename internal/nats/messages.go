package nats

import (
	"encoding/json"
	"fmt"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

const (
	// TopicSignalIntake 外部信号源投递原始信号
	TopicSignalIntake = "signal_executor.intake"
	// TopicExecutionEvents 管道发布的执行结果
	TopicExecutionEvents = "signal_executor.executions"
)

// IntakeSignal 信号源消息
type IntakeSignal struct {
	UserID     int64   `json:"user_id"`     // 用户ID
	Symbol     string  `json:"symbol"`      // 交易对
	SignalType string  `json:"signal_type"` // BUY/SELL
	Price      float64 `json:"price"`       // 信号价格
	Timestamp  int64   `json:"timestamp"`   // 时间戳
}

// Validate 入库前的基本校验，非法消息直接丢弃
func (s *IntakeSignal) Validate() error {
	if s.UserID <= 0 {
		return fmt.Errorf("invalid user_id: %d", s.UserID)
	}
	if s.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if s.SignalType != models.SignalTypeBuy && s.SignalType != models.SignalTypeSell {
		return fmt.Errorf("invalid signal_type: %q", s.SignalType)
	}
	if s.Price <= 0 {
		return fmt.Errorf("invalid price: %f", s.Price)
	}
	return nil
}

// UnmarshalIntakeSignal 解析信号源消息
func UnmarshalIntakeSignal(data []byte) (*IntakeSignal, error) {
	var s IntakeSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExecutionEvent 信号执行结果事件
type ExecutionEvent struct {
	SignalID    int64  `json:"signal_id"`              // 信号ID
	UserID      int64  `json:"user_id"`                // 用户ID
	Symbol      string `json:"symbol"`                 // 交易对
	Status      string `json:"status"`                 // executed/failed
	Reason      string `json:"reason,omitempty"`       // 失败原因
	OperationID int64  `json:"operation_id,omitempty"` // 创建的操作ID
}

// Marshal 序列化事件
func (e *ExecutionEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

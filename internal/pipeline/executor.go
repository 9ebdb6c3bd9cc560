package pipeline

import (
	"context"
	"fmt"

	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// OperationStore 执行操作写入
type OperationStore interface {
	Create(op *models.TradingOperation) error
}

// ExecutionMapper 把已通过所有闸口的信号落成待执行操作
type ExecutionMapper struct {
	operations OperationStore
}

// NewExecutionMapper 创建执行映射器
func NewExecutionMapper(operations OperationStore) *ExecutionMapper {
	return &ExecutionMapper{operations: operations}
}

// Execute 插入一条 waiting 操作
// 只负责落库，信号状态转移由调用方在确认插入成功后执行
func (m *ExecutionMapper) Execute(ctx context.Context, signal *models.Signal, amountUSDT float64, cred *models.ExchangeCredential) (*models.TradingOperation, error) {
	op := &models.TradingOperation{
		UserID:        signal.UserID,
		SignalID:      signal.ID,
		Exchange:      cred.Exchange,
		Symbol:        signal.Symbol,
		OperationType: signal.SignalType,
		AmountUSDT:    amountUSDT,
		EntryPrice:    signal.Price,
		Status:        models.OperationStatusWaiting,
		IsDemo:        false, // 模式闸口保证只有实盘信号走到这里
	}

	if err := m.operations.Create(op); err != nil {
		return nil, fmt.Errorf("create trading operation: %w", err)
	}

	logger.Info().
		Int64("signal_id", signal.ID).
		Int64("operation_id", op.ID).
		Str("symbol", op.Symbol).
		Str("type", op.OperationType).
		Float64("amount_usdt", op.AmountUSDT).
		Msg("trading operation created")

	return op, nil
}

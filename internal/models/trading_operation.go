package models

import "time"

// 执行操作状态
const (
	OperationStatusWaiting   = "waiting"   // 已创建，等待下游执行器成交
	OperationStatusCompleted = "completed" // 已平仓
	OperationStatusFailed    = "failed"    // 执行失败
)

// 操作方向
const (
	OperationTypeBuy  = "BUY"
	OperationTypeSell = "SELL"
)

// TradingOperation 执行操作表（历史 schema，仍是执行记录的权威来源）
// 管道只负责创建 waiting 行，成交/平仓由下游执行器回填
type TradingOperation struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64 `gorm:"not null;index:idx_operations_user;comment:用户ID" json:"user_id"`
	SignalID int64 `gorm:"not null;uniqueIndex:uidx_operations_signal;comment:来源信号ID" json:"signal_id"`

	Exchange      string  `gorm:"type:varchar(32);not null;comment:交易所" json:"exchange"`
	Symbol        string  `gorm:"type:varchar(24);not null;index;comment:交易对" json:"symbol"`
	OperationType string  `gorm:"type:varchar(8);not null;comment:方向: BUY/SELL" json:"operation_type"`
	AmountUSDT    float64 `gorm:"type:decimal(18,2);not null;comment:下单金额(USDT)" json:"amount_usdt"`
	EntryPrice    float64 `gorm:"type:decimal(28,12);not null;comment:入场价格" json:"entry_price"`

	Status       string     `gorm:"type:varchar(16);not null;default:waiting;index:idx_operations_status;comment:状态" json:"status"`
	ExitPrice    *float64   `gorm:"type:decimal(28,12);comment:出场价格" json:"exit_price,omitempty"`
	ActualProfit *float64   `gorm:"type:decimal(18,2);comment:实际盈亏(USDT)" json:"actual_profit,omitempty"`
	ClosedAt     *time.Time `gorm:"comment:平仓时间" json:"closed_at,omitempty"`

	IsDemo bool `gorm:"not null;default:false;comment:是否模拟盘" json:"is_demo"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_operations_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (TradingOperation) TableName() string {
	return "trading_operations"
}

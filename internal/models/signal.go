package models

import "time"

// 信号生命周期状态
const (
	SignalStatusPending    = "pending"    // 已入库，等待处理
	SignalStatusProcessing = "processing" // 风控通过，处理中
	SignalStatusExecuted   = "executed"   // 已创建执行操作
	SignalStatusFailed     = "failed"     // 终态：被拒绝或处理失败
)

// 信号方向
const (
	SignalTypeBuy  = "BUY"
	SignalTypeSell = "SELL"
)

// Signal 交易信号表
type Signal struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index:idx_signals_user;comment:用户ID" json:"user_id"`

	// 信号内容
	Symbol     string  `gorm:"type:varchar(24);not null;index;comment:交易对" json:"symbol"`
	SignalType string  `gorm:"type:varchar(8);not null;comment:方向: BUY/SELL" json:"signal_type"`
	Price      float64 `gorm:"type:decimal(28,12);not null;comment:信号价格" json:"price"`

	// 情绪分，处理时回填，可为空
	SentimentScore *float64 `gorm:"type:decimal(8,3);comment:情绪分 [-100,100]" json:"sentiment_score,omitempty"`

	// 生命周期
	Status     string `gorm:"type:varchar(16);not null;default:pending;index:idx_signals_status;comment:状态" json:"status"`
	FailReason string `gorm:"type:varchar(255);not null;default:'';comment:失败原因" json:"fail_reason"`

	CreatedAt   time.Time  `gorm:"autoCreateTime;index:idx_signals_created" json:"created_at"`
	ProcessedAt *time.Time `gorm:"comment:处理完成时间" json:"processed_at,omitempty"`
}

// TableName 指定表名
func (Signal) TableName() string {
	return "signals"
}

// Terminal 是否处于终态
func (s *Signal) Terminal() bool {
	return s.Status == SignalStatusExecuted || s.Status == SignalStatusFailed
}

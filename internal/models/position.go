package models

import "time"

// 仓位状态
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position 仓位表（新 schema）
// 迁移后的持仓权威来源，老数据仍可能只存在于 trading_operations
type Position struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index:idx_positions_user;comment:用户ID" json:"user_id"`

	Symbol       string   `gorm:"type:varchar(24);not null;index;comment:交易对" json:"symbol"`
	Side         string   `gorm:"type:varchar(8);not null;comment:方向: BUY/SELL" json:"side"`
	EntryPrice   float64  `gorm:"type:decimal(28,12);not null;comment:入场价格" json:"entry_price"`
	CurrentPrice *float64 `gorm:"type:decimal(28,12);comment:最新价格" json:"current_price,omitempty"`
	Amount       float64  `gorm:"type:decimal(18,2);not null;comment:仓位金额(USDT)" json:"amount"`
	Pnl          float64  `gorm:"type:decimal(18,2);not null;default:0;comment:浮动盈亏" json:"pnl"`

	Status string `gorm:"type:varchar(16);not null;default:open;index:idx_positions_status;comment:状态: open/closed" json:"status"`
	IsAuto bool   `gorm:"not null;default:false;comment:是否自动开仓" json:"is_auto"`
	IsDemo bool   `gorm:"not null;default:false;comment:是否模拟盘" json:"is_demo"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_positions_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Position) TableName() string {
	return "positions"
}

package models

import "time"

// RiskSettings 用户风控配置表
// 由账户设置页写入，管道只读
type RiskSettings struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;uniqueIndex:uidx_risk_settings_user;comment:用户ID" json:"user_id"`

	MaxPositionSize        float64 `gorm:"type:decimal(18,2);not null;comment:单笔最大仓位(USDT)" json:"max_position_size"`
	MaxLeverage            int     `gorm:"not null;comment:最大杠杆" json:"max_leverage"`
	DailyLossLimit         float64 `gorm:"type:decimal(18,2);not null;comment:当日最大亏损(USDT)" json:"daily_loss_limit"`
	MaxOpenPositions       int     `gorm:"not null;comment:最大同时持仓数" json:"max_open_positions"`
	DrawdownAlertThreshold float64 `gorm:"type:decimal(8,3);not null;default:0;comment:回撤告警阈值" json:"drawdown_alert_threshold"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (RiskSettings) TableName() string {
	return "risk_settings"
}

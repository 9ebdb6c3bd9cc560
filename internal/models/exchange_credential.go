package models

import "time"

// ExchangeCredential 交易所凭证表
// Mode 同时承载模拟盘标记：DEMO/TEST 为模拟，REAL 为实盘
type ExchangeCredential struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index:idx_credentials_user;comment:用户ID" json:"user_id"`

	Exchange  string `gorm:"type:varchar(32);not null;comment:交易所" json:"exchange"`
	APIKey    string `gorm:"type:varchar(128);not null;comment:API Key" json:"-"`
	APISecret string `gorm:"type:varchar(128);not null;comment:API Secret" json:"-"`

	IsActive bool   `gorm:"not null;default:false;index:idx_credentials_active;comment:是否启用" json:"is_active"`
	Mode     string `gorm:"type:varchar(8);not null;default:REAL;comment:账户模式: DEMO/TEST/REAL" json:"mode"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}

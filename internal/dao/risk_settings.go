package dao

import (
	"sync"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

type RiskSettingsDAO struct {
	db *gorm.DB
}

var (
	_riskSettings     *RiskSettingsDAO
	_riskSettingsOnce sync.Once
)

// InitRiskSettingsDAO 初始化 RiskSettingsDAO
func InitRiskSettingsDAO(db *gorm.DB) {
	_riskSettingsOnce.Do(func() {
		_riskSettings = NewRiskSettingsDAO(db)
	})
}

// NewRiskSettingsDAO 创建独立实例（测试用，线上走单例）
func NewRiskSettingsDAO(db *gorm.DB) *RiskSettingsDAO {
	return &RiskSettingsDAO{db: db}
}

// RiskSettingsStore 获取 RiskSettingsDAO 单例
func RiskSettingsStore() *RiskSettingsDAO {
	return _riskSettings
}

// Get 获取用户风控配置
// 用户未配置时返回 gorm.ErrRecordNotFound，由上层决定默认值
func (d *RiskSettingsDAO) Get(userID int64) (*models.RiskSettings, error) {
	var settings models.RiskSettings
	if err := d.db.Where("user_id = ?", userID).First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

package dao

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// ActivityDAO 风控用的账户活动聚合
// 持仓数和当日亏损都跨两套 schema 读取，口径和对账器保持一致
type ActivityDAO struct {
	db *gorm.DB
}

var (
	_activity     *ActivityDAO
	_activityOnce sync.Once
)

// InitActivityDAO 初始化 ActivityDAO
func InitActivityDAO(db *gorm.DB) {
	_activityOnce.Do(func() {
		_activity = NewActivityDAO(db)
	})
}

// NewActivityDAO 创建独立实例（测试用，线上走单例）
func NewActivityDAO(db *gorm.DB) *ActivityDAO {
	return &ActivityDAO{db: db}
}

// Activity 获取 ActivityDAO 单例
func Activity() *ActivityDAO {
	return _activity
}

// CountOpen 统计用户当前未平仓位数
// 新表 positions 优先，查询报错才退回老表 trading_operations 的
// waiting 行，单次统计只取一个来源，绝不把两表的行加在一起
func (d *ActivityDAO) CountOpen(userID int64) (int64, error) {
	var count int64
	err := d.db.Model(&models.Position{}).
		Where("user_id = ? AND status = ?", userID, models.PositionStatusOpen).
		Count(&count).Error
	if err == nil {
		return count, nil
	}

	logger.Warn().Err(err).
		Int64("user_id", userID).
		Msg("positions table count failed, falling back to trading_operations")

	err = d.db.Model(&models.TradingOperation{}).
		Where("user_id = ? AND status = ? AND operation_type = ?",
			userID, models.OperationStatusWaiting, models.OperationTypeBuy).
		Count(&count).Error
	return count, err
}

// TodayRealizedLoss 统计用户当日已实现亏损（正数，USDT）
// 只累计 actual_profit < 0 的已平仓操作
func (d *ActivityDAO) TodayRealizedLoss(userID int64) (float64, error) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var loss *float64
	err := d.db.Model(&models.TradingOperation{}).
		Select("SUM(-actual_profit)").
		Where("user_id = ? AND status = ? AND actual_profit < 0 AND closed_at >= ?",
			userID, models.OperationStatusCompleted, dayStart).
		Scan(&loss).Error
	if err != nil {
		return 0, err
	}
	if loss == nil {
		return 0, nil
	}
	return *loss, nil
}

package dao

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

type OperationDAO struct {
	db *gorm.DB
}

var (
	_operation     *OperationDAO
	_operationOnce sync.Once
)

// InitOperationDAO 初始化 OperationDAO
func InitOperationDAO(db *gorm.DB) {
	_operationOnce.Do(func() {
		_operation = NewOperationDAO(db)
	})
}

// NewOperationDAO 创建独立实例（测试用，线上走单例）
func NewOperationDAO(db *gorm.DB) *OperationDAO {
	return &OperationDAO{db: db}
}

// Operation 获取 OperationDAO 单例
func Operation() *OperationDAO {
	return _operation
}

// Create 创建执行操作（status=waiting）
// signal_id 上有唯一索引，同一信号的重复插入会直接报错
func (d *OperationDAO) Create(op *models.TradingOperation) error {
	return d.db.Create(op).Error
}

// GetBySignal 根据信号 ID 获取操作
func (d *OperationDAO) GetBySignal(signalID int64) (*models.TradingOperation, error) {
	var op models.TradingOperation
	if err := d.db.Where("signal_id = ?", signalID).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// DeleteOldClosed 清理过期的已结束操作
// waiting 行不清理：可能仍是合法挂单，也可能被旧版持仓视图引用
func (d *OperationDAO) DeleteOldClosed(before time.Time) (int64, error) {
	result := d.db.
		Where("status IN ? AND updated_at < ?",
			[]string{models.OperationStatusCompleted, models.OperationStatusFailed}, before).
		Delete(&models.TradingOperation{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

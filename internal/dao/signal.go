package dao

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

type SignalDAO struct {
	db *gorm.DB
}

var (
	_signal     *SignalDAO
	_signalOnce sync.Once
)

// InitSignalDAO 初始化 SignalDAO
func InitSignalDAO(db *gorm.DB) {
	_signalOnce.Do(func() {
		_signal = NewSignalDAO(db)
	})
}

// NewSignalDAO 创建独立实例（测试用，线上走单例）
func NewSignalDAO(db *gorm.DB) *SignalDAO {
	return &SignalDAO{db: db}
}

// Signal 获取 SignalDAO 单例
func Signal() *SignalDAO {
	return _signal
}

// Create 保存信号
func (d *SignalDAO) Create(signal *models.Signal) error {
	return d.db.Create(signal).Error
}

// Get 根据 ID 获取信号
func (d *SignalDAO) Get(id int64) (*models.Signal, error) {
	var signal models.Signal
	if err := d.db.Where("id = ?", id).First(&signal).Error; err != nil {
		return nil, err
	}
	return &signal, nil
}

// dispatchModeFilter 取用户当前启用凭证（多条取最近更新的）的模式，
// 模拟盘（DEMO/TEST）排除。没有任何启用凭证的用户按 REAL 保留：
// 这类信号要被调度后终结为 failed，不能滞留
const dispatchModeFilter = `COALESCE((` +
	`SELECT UPPER(TRIM(c.mode)) FROM exchange_credentials c ` +
	`WHERE c.user_id = signals.user_id AND c.is_active = ? ` +
	`ORDER BY c.updated_at DESC LIMIT 1` +
	`), 'REAL') NOT IN ('DEMO','TEST')`

// ListDispatchable 获取可调度的待处理信号（按创建时间排序）
// 模拟盘用户的 pending 信号归模拟器管，轮询层面直接排除，
// 否则模拟盘积压占满批次后实盘信号会被饿死
func (d *SignalDAO) ListDispatchable(limit int) ([]*models.Signal, error) {
	var signals []*models.Signal
	err := d.db.
		Where("status = ?", models.SignalStatusPending).
		Where(dispatchModeFilter, true).
		Order("created_at ASC").
		Limit(limit).
		Find(&signals).Error
	return signals, err
}

// MarkProcessing 条件转移 pending → processing
// 返回 false 表示信号已不在 pending（被并发处理或已终结）
func (d *SignalDAO) MarkProcessing(id int64) (bool, error) {
	result := d.db.Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.SignalStatusPending).
		Update("status", models.SignalStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkExecuted 条件转移 processing → executed，并回填处理时间和情绪分
func (d *SignalDAO) MarkExecuted(id int64, sentimentScore *float64) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.SignalStatusExecuted,
		"processed_at": &now,
	}
	if sentimentScore != nil {
		updates["sentiment_score"] = sentimentScore
	}
	return d.db.Model(&models.Signal{}).
		Where("id = ? AND status = ?", id, models.SignalStatusProcessing).
		Updates(updates).Error
}

// MarkFailed 将信号置为终态 failed 并记录原因
// pending 和 processing 都允许进入 failed，终态不再改写
func (d *SignalDAO) MarkFailed(id int64, reason string) error {
	now := time.Now()
	return d.db.Model(&models.Signal{}).
		Where("id = ? AND status IN ?", id,
			[]string{models.SignalStatusPending, models.SignalStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       models.SignalStatusFailed,
			"fail_reason":  reason,
			"processed_at": &now,
		}).Error
}

// DeleteOldTerminal 清理过期的终态信号（早于指定时间）
// pending/processing 不清理，避免丢掉未处理的信号
func (d *SignalDAO) DeleteOldTerminal(before time.Time) (int64, error) {
	result := d.db.
		Where("status IN ? AND created_at < ?",
			[]string{models.SignalStatusExecuted, models.SignalStatusFailed}, before).
		Delete(&models.Signal{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

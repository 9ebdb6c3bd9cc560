package reconcile

import (
	"context"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/models"
)

// PositionSource 持仓数据源策略
// 按固定优先级尝试，成功（包括空结果）即为本次对账的唯一权威来源
type PositionSource interface {
	Name() string
	Fetch(ctx context.Context, userID int64) ([]OpenPosition, error)
}

// ModernSource 新 schema：positions 表
type ModernSource struct {
	db *gorm.DB
}

// NewModernSource 创建新表数据源
func NewModernSource(db *gorm.DB) *ModernSource {
	return &ModernSource{db: db}
}

func (s *ModernSource) Name() string {
	return "positions"
}

// Fetch 读取 open 仓位
// 用松散的 map 行读取，字段归一化交给 normalizeRow，
// 避免 schema 版本差异渗进业务代码
func (s *ModernSource) Fetch(ctx context.Context, userID int64) ([]OpenPosition, error) {
	var rows []map[string]any
	err := s.db.WithContext(ctx).
		Table(models.Position{}.TableName()).
		Where("user_id = ? AND status = ?", userID, models.PositionStatusOpen).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]OpenPosition, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, normalizeRow(row))
	}
	return positions, nil
}

// LegacySource 老 schema：trading_operations 表
// 只在新表查询报错时启用，waiting 的 BUY 操作视为未平仓位
type LegacySource struct {
	db *gorm.DB
}

// NewLegacySource 创建旧表数据源
func NewLegacySource(db *gorm.DB) *LegacySource {
	return &LegacySource{db: db}
}

func (s *LegacySource) Name() string {
	return "trading_operations"
}

func (s *LegacySource) Fetch(ctx context.Context, userID int64) ([]OpenPosition, error) {
	var rows []map[string]any
	err := s.db.WithContext(ctx).
		Table(models.TradingOperation{}.TableName()).
		Where("user_id = ? AND status = ? AND operation_type = ?",
			userID, models.OperationStatusWaiting, models.OperationTypeBuy).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]OpenPosition, 0, len(rows))
	for _, row := range rows {
		pos := normalizeRow(row)
		// 老表没有仓位状态列，waiting 即未平仓
		pos.Status = models.PositionStatusOpen
		positions = append(positions, pos)
	}
	return positions, nil
}

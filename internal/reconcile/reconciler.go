package reconcile

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/internal/monitor"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// Reconciler 双源持仓对账
// 只读、无副作用，可被 UI 轮询，不持有写路径的任何锁
type Reconciler struct {
	sources []PositionSource
}

// NewReconciler 按给定优先级创建对账器
func NewReconciler(sources ...PositionSource) *Reconciler {
	return &Reconciler{sources: sources}
}

// NewDefaultReconciler 默认优先级：新表优先，旧表兜底
func NewDefaultReconciler(db *gorm.DB) *Reconciler {
	return NewReconciler(NewModernSource(db), NewLegacySource(db))
}

// ListOpenPositions 返回用户当前未平仓位的统一视图
// 每次调用恰好一个数据源是权威的：前一个源查询成功（哪怕零行）
// 就不再看后面的源，两个源的行绝不混在同一次结果里
func (r *Reconciler) ListOpenPositions(ctx context.Context, userID int64) ([]OpenPosition, error) {
	var lastErr error

	for _, source := range r.sources {
		positions, err := source.Fetch(ctx, userID)
		if err != nil {
			logger.Warn().Err(err).
				Str("source", source.Name()).
				Int64("user_id", userID).
				Msg("position source failed, trying next")
			lastErr = err
			continue
		}

		monitor.GetMetrics().IncReconcileSource(source.Name())
		return positions, nil
	}

	monitor.GetMetrics().IncReconcileError()
	return nil, fmt.Errorf("all position sources failed: %w", lastErr)
}

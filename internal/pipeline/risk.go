package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/utrading/utrading-signal-executor/config"
	"github.com/utrading/utrading-signal-executor/internal/models"
	"github.com/utrading/utrading-signal-executor/pkg/logger"
)

// RiskCheckResult 单次风控评估结果，不落库
type RiskCheckResult struct {
	Allowed bool           `json:"allowed"`
	Rule    string         `json:"rule,omitempty"` // 命中的规则: position_size/leverage/open_positions/daily_loss
	Reason  string         `json:"reason"`
	Details map[string]any `json:"details"`
}

// RiskSettingsStore 用户风控配置读取
type RiskSettingsStore interface {
	Get(userID int64) (*models.RiskSettings, error)
}

// ActivityStore 风控需要的账户活动聚合
type ActivityStore interface {
	CountOpen(userID int64) (int64, error)
	TodayRealizedLoss(userID int64) (float64, error)
}

// RiskEvaluator 按固定顺序评估风控上限，第一条违规即终止
type RiskEvaluator struct {
	settings RiskSettingsStore
	activity ActivityStore
	defaults config.Risk
}

// NewRiskEvaluator 创建风控评估器
func NewRiskEvaluator(settings RiskSettingsStore, activity ActivityStore, defaults config.Risk) *RiskEvaluator {
	return &RiskEvaluator{
		settings: settings,
		activity: activity,
		defaults: defaults,
	}
}

// Check 评估用户的一笔下单请求
// 任何数据获取失败都返回 DependencyError 并视为拒绝（fail closed）
func (e *RiskEvaluator) Check(ctx context.Context, userID int64, amountUSDT float64, leverage int) (RiskCheckResult, error) {
	limits, err := e.loadLimits(userID)
	if err != nil {
		return RiskCheckResult{}, &DependencyError{Op: "risk settings fetch", Err: err}
	}

	openCount, err := e.activity.CountOpen(userID)
	if err != nil {
		return RiskCheckResult{}, &DependencyError{Op: "open positions count", Err: err}
	}

	todayLoss, err := e.activity.TodayRealizedLoss(userID)
	if err != nil {
		return RiskCheckResult{}, &DependencyError{Op: "daily loss fetch", Err: err}
	}

	details := map[string]any{
		"amount_usdt":       amountUSDT,
		"leverage":          leverage,
		"open_positions":    openCount,
		"today_loss":        todayLoss,
		"max_position_size": limits.MaxPositionSize,
		"max_leverage":      limits.MaxLeverage,
	}

	// 固定顺序，第一条违规即返回，保证 reason 无歧义
	switch {
	case amountUSDT > limits.MaxPositionSize:
		return RiskCheckResult{
			Rule: "position_size",
			Reason: fmt.Sprintf("position size exceeds limit: %.2f > %.2f",
				amountUSDT, limits.MaxPositionSize),
			Details: details,
		}, nil
	case leverage > limits.MaxLeverage:
		return RiskCheckResult{
			Rule: "leverage",
			Reason: fmt.Sprintf("leverage exceeds limit: %d > %d",
				leverage, limits.MaxLeverage),
			Details: details,
		}, nil
	case openCount >= int64(limits.MaxOpenPositions):
		return RiskCheckResult{
			Rule: "open_positions",
			Reason: fmt.Sprintf("max open positions reached: %d >= %d",
				openCount, limits.MaxOpenPositions),
			Details: details,
		}, nil
	case todayLoss >= limits.DailyLossLimit:
		return RiskCheckResult{
			Rule: "daily_loss",
			Reason: fmt.Sprintf("daily loss limit reached: %.2f >= %.2f",
				todayLoss, limits.DailyLossLimit),
			Details: details,
		}, nil
	}

	return RiskCheckResult{Allowed: true, Details: details}, nil
}

// loadLimits 加载用户风控配置
// 新账户可能还没保存过配置，此时用配置文件里的保守默认值，不算失败
func (e *RiskEvaluator) loadLimits(userID int64) (*models.RiskSettings, error) {
	limits, err := e.settings.Get(userID)
	if err == nil {
		return limits, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn().
			Int64("user_id", userID).
			Msg("no risk settings row, using conservative defaults")

		return &models.RiskSettings{
			UserID:           userID,
			MaxPositionSize:  e.defaults.DefaultMaxPositionSize,
			MaxLeverage:      e.defaults.DefaultMaxLeverage,
			DailyLossLimit:   e.defaults.DefaultDailyLossLimit,
			MaxOpenPositions: e.defaults.DefaultMaxOpenPositions,
		}, nil
	}

	return nil, err
}
